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

	"voicecall-platform/internal/auth"
	"voicecall-platform/internal/broker"
	"voicecall-platform/internal/calllog"
	"voicecall-platform/internal/config"
	"voicecall-platform/internal/httpapi"
	"voicecall-platform/internal/journal"
	"voicecall-platform/internal/media"
	"voicecall-platform/internal/orchestrator"
	"voicecall-platform/internal/signaling"
	"voicecall-platform/internal/store"
	"voicecall-platform/pkg/logger"
	"voicecall-platform/pkg/utils"

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

	callStore, err := store.NewRedisStore(rdb, log, store.RedisStoreOptions{ClaimTTL: cfg.Call.LiveClaimTTL})
	if err != nil {
		log.Error("store init failed", "err", err)
		os.Exit(1)
	}

	tokenBroker, err := broker.NewClient(cfg.Broker.URL, cfg.Broker.Timeout)
	if err != nil {
		log.Error("broker init failed", "err", err)
		os.Exit(1)
	}

	pushSender, err := signaling.NewHTTPSender(cfg.Push.GatewayURL, cfg.Push.Secret, 5*time.Second)
	if err != nil {
		log.Error("push sender init failed", "err", err)
		os.Exit(1)
	}

	callLog := calllog.NewService(db)
	journalSvc := journal.NewService(journal.NewMemoryRepo())

	registry, err := orchestrator.NewRegistry(orchestrator.RegistryDeps{
		Store:    callStore,
		Signals:  pushSender,
		Broker:   tokenBroker,
		Journal:  journalSvc,
		Archive:  callLog,
		NewRelay: func() media.Relay { return media.NewEngine() },
		Log:      log,
	})
	if err != nil {
		log.Error("orchestrator init failed", "err", err)
		os.Exit(1)
	}
	defer registry.Close()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	handlers := httpapi.Handlers{
		Auth:     authManager,
		Registry: registry,
		CallLog:  callLog,
	}
	webhook := signaling.WebhookHandler{
		Dispatcher: registry,
		Secret:     cfg.Push.Secret,
	}
	registerRoutes(r, handlers, webhook, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
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

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
