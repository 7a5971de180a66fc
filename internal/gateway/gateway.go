package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chat-platform/internal/apperr"
	"chat-platform/internal/auth"
	"chat-platform/internal/call"
	"chat-platform/internal/chat"
	"chat-platform/internal/directory"
	"chat-platform/internal/signaling"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	eventConnected = "connected"
	authWait       = 5 * time.Second
)

type connectedPayload struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

// Gateway owns per-connection lifecycle: handshake auth, session
// registration, event dispatch, and idempotent disconnect cleanup.
type Gateway struct {
	log      *slog.Logger
	auth     *auth.Manager
	dir      directory.Directory
	registry *Registry
	router   *Router

	calls *call.Service
	chat  *chat.Service
	relay *signaling.Relay

	presenceTTL time.Duration
	upgrader    websocket.Upgrader
	clock       func() time.Time

	wg sync.WaitGroup
}

func New(log *slog.Logger, am *auth.Manager, dir directory.Directory, registry *Registry, calls *call.Service, chatSvc *chat.Service, relay *signaling.Relay, presenceTTL time.Duration) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	g := &Gateway{
		log:         log,
		auth:        am,
		dir:         dir,
		registry:    registry,
		router:      NewRouter(log),
		calls:       calls,
		chat:        chatSvc,
		relay:       relay,
		presenceTTL: presenceTTL,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from the platform's web origins;
			// origin policy is enforced at the edge proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clock: time.Now,
	}
	g.registerHandlers()
	return g
}

// HandleWS is the gin handler for the websocket endpoint. It blocks for
// the lifetime of the connection.
func (g *Gateway) HandleWS(c *gin.Context) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	conn.SetReadLimit(maxFrameSize)

	userID, err := g.authenticate(c, conn)
	if err != nil {
		g.rejectHandshake(conn, err)
		return
	}

	now := g.clock().UTC()
	sess := newSession(uuid.NewString(), userID, conn, now)

	ctx := context.Background()
	if err := g.dir.Register(ctx, userID, sess.ID, g.presenceTTL); err != nil {
		g.log.Error("presence registration failed", "user_id", userID, "err", err)
		g.rejectHandshake(conn, apperr.New(apperr.CodeInternal, "internal error"))
		return
	}
	g.registry.add(sess)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		sess.writePump()
	}()

	_ = sess.enqueue(eventConnected, connectedPayload{
		UserID:    userID,
		SessionID: sess.ID,
		Timestamp: now.UnixMilli(),
	})

	g.log.Info("session connected", "user_id", userID, "session_id", sess.ID)
	g.readLoop(ctx, sess)
	g.disconnect(ctx, sess)
}

// authenticate extracts the token from the query string or, failing that,
// from a first-frame auth payload, and introspects it.
func (g *Gateway) authenticate(c *gin.Context, conn *websocket.Conn) (string, error) {
	token := c.Query("token")
	if token == "" {
		var err error
		token, err = readAuthFrame(conn)
		if err != nil {
			return "", err
		}
	}

	in, err := g.auth.Introspect(token, g.clock())
	if err != nil || !in.Valid {
		return "", apperr.Auth("invalid token")
	}
	return in.UserID, nil
}

func readAuthFrame(conn *websocket.Conn) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(authWait))
	defer conn.SetReadDeadline(time.Time{})

	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		return "", apperr.Auth("missing token")
	}
	if f.Event != "auth" {
		return "", apperr.Auth("missing token")
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(f.Data, &payload); err != nil || payload.Token == "" {
		return "", apperr.Auth("missing token")
	}
	return payload.Token, nil
}

// rejectHandshake emits one typed auth error and closes the socket.
func (g *Gateway) rejectHandshake(conn *websocket.Conn, err error) {
	ae := apperr.From(err)
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(outbound{Event: eventError, Data: errorPayload{Code: string(ae.Code), Message: ae.Message}})
	_ = conn.Close()
}

// readLoop pulls frames off the socket until it closes. Each frame is
// dispatched on its own goroutine: inbound events from one connection may
// be processed concurrently, only this connection's outbound order is
// guaranteed (by the write pump).
func (g *Gateway) readLoop(ctx context.Context, sess *Session) {
	conn := sess.conn
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		// Liveness doubles as a presence heartbeat.
		if err := g.dir.Register(ctx, sess.UserID, sess.ID, g.presenceTTL); err != nil {
			g.log.Debug("presence refresh failed", "session_id", sess.ID, "err", err)
		}
		return nil
	})

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Debug("read failed", "session_id", sess.ID, "err", err)
			}
			return
		}
		frame := f
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.router.Dispatch(ctx, sess, frame)
		}()
	}
}

// disconnect tears one session down. Idempotent: explicit call:end and
// implicit disconnect may both try to finalize the same call, and a
// session may be closed from either pump.
func (g *Gateway) disconnect(ctx context.Context, sess *Session) {
	sess.close()
	g.registry.remove(sess.ID)

	if err := g.dir.Deregister(ctx, sess.UserID, sess.ID); err != nil {
		g.log.Warn("presence deregistration failed", "session_id", sess.ID, "err", err)
	}

	online, err := g.dir.IsOnline(ctx, sess.UserID)
	if err != nil {
		g.log.Warn("presence lookup failed", "user_id", sess.UserID, "err", err)
	}
	if err == nil && !online {
		// Last device gone: the user's active call, if any, is over.
		if err := g.calls.EndActiveCallOf(ctx, sess.UserID); err != nil {
			g.log.Warn("disconnect call cleanup failed", "user_id", sess.UserID, "err", err)
		}
		g.log.Info("user offline", "user_id", sess.UserID)
	}

	g.log.Info("session disconnected", "user_id", sess.UserID, "session_id", sess.ID)
}

// Shutdown closes all local sessions and waits for in-flight handlers.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.registry.CloseAll()
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
