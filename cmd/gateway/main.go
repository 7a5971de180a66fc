package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-platform/internal/auth"
	"chat-platform/internal/call"
	"chat-platform/internal/chat"
	"chat-platform/internal/config"
	"chat-platform/internal/directory"
	"chat-platform/internal/gateway"
	"chat-platform/internal/notify"
	"chat-platform/internal/signaling"
	"chat-platform/pkg/logger"
	"chat-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	dir, err := directory.NewRedis(rdb)
	if err != nil {
		log.Error("directory init failed", "err", err)
		os.Exit(1)
	}

	callRepo, err := call.NewPostgresRepo(db)
	if err != nil {
		log.Error("call repo init failed", "err", err)
		os.Exit(1)
	}
	chatRepo, err := chat.NewPostgresRepo(db)
	if err != nil {
		log.Error("chat repo init failed", "err", err)
		os.Exit(1)
	}

	registry := gateway.NewRegistry()

	callSvc := call.NewService(callRepo, dir, registry, notify.Nop{}, log, call.Config{
		RingTTL:         cfg.Realtime.RingTTL,
		ActiveTTL:       cfg.Realtime.ActiveCallTTL,
		AnswerDelay:     cfg.Realtime.AnswerDelay,
		HistoryCacheTTL: cfg.Realtime.HistoryCacheTTL,
	})
	chatSvc := chat.NewService(chatRepo, dir, registry, log, cfg.Realtime.DedupTTL)
	relay := signaling.New(dir, registry, log)

	gw := gateway.New(log, authManager, dir, registry, callSvc, chatSvc, relay, cfg.Realtime.PresenceTTL)

	sweeper := call.NewSweeper(callSvc, callRepo, log, cfg.Realtime.SweepInterval, cfg.Realtime.RingTTL)
	go sweeper.Run(rootCtx)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, gw)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No ReadTimeout/WriteTimeout: websocket connections are long-lived;
		// per-frame deadlines are enforced by the gateway itself.
	}

	go func() {
		log.Info("gateway listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Error("gateway shutdown failed", "err", err)
	}
}
