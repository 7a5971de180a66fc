package main

import (
	"chat-platform/internal/gateway"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic.
func registerRoutes(r *gin.Engine, gw *gateway.Gateway) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// The realtime endpoint authenticates inside the websocket handshake
	// (query token or first-frame auth payload), not via HTTP middleware.
	r.GET("/ws", gw.HandleWS)
}
