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

	"github.com/redis/go-redis/v9"

	"github.com/example/rocket-deliveries/internal/config"
	"github.com/example/rocket-deliveries/internal/dispatch"
	"github.com/example/rocket-deliveries/internal/events"
	httpapi "github.com/example/rocket-deliveries/internal/http"
	"github.com/example/rocket-deliveries/internal/logging"
	"github.com/example/rocket-deliveries/internal/payments"
	"github.com/example/rocket-deliveries/internal/pilots"
	"github.com/example/rocket-deliveries/internal/session"
	"github.com/example/rocket-deliveries/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := openStore(ctx, cfg, logger)
	defer store.Close()

	if n, err := storage.SeedPassengers(ctx, store); err != nil {
		logger.Warn("seed passengers failed", "err", err)
	} else if n > 0 {
		logger.Info("seeded passengers", "count", n)
	}

	var rdb *redis.Client
	var sessionStore session.Store = session.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, sessions fall back to memory", "addr", cfg.RedisAddr, "err", err)
			rdb = nil
		} else {
			sessionStore = session.NewRedisStore(rdb)
		}
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
	}

	platform := payments.NewStripeClient(cfg.StripeSecretKey)
	wsreg := dispatch.NewWSRegistry(logger)
	svc := pilots.NewService(store, platform, logger, pilots.Config{
		AppName:      cfg.AppName,
		PublicDomain: cfg.PublicDomain,
	}, pilots.WithPublisher(publisher), pilots.WithNotifier(wsreg))

	var limiter *httpapi.RateLimiter
	if rdb != nil {
		limiter = httpapi.NewRateLimiter(rdb, cfg.LoginRateLimit, logger)
	} else {
		limiter = httpapi.NewRateLimiter(nil, cfg.LoginRateLimit, logger)
	}

	srv, err := httpapi.NewServer(httpapi.Options{
		Config:   cfg,
		Pilots:   svc,
		Platform: platform,
		Sessions: session.NewManager(sessionStore, cfg.SessionSecret, cfg.SessionMaxAge, cfg.Production()),
		WSReg:    wsreg,
		Limiter:  limiter,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("build server failed", "err", err)
		os.Exit(1)
	}

	if cfg.RegisterWebhooks {
		registerWebhook(ctx, platform, srv, cfg, logger)
	}

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rocket deliveries listening", "addr", cfg.HTTPAddr, "public_domain", cfg.PublicDomain, "environment", cfg.Environment)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "err", err)
		}
	}
}

// openStore connects to the configured database. Outside production a
// connection failure falls back to the in-memory store.
func openStore(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) storage.Store {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store, err := storage.Open(connectCtx, cfg.DatabaseURI, cfg.RunMigrations)
	if err == nil {
		backend, _ := storage.BackendFor(cfg.DatabaseURI)
		logger.Info("store ready", "backend", backend)
		return store
	}
	if cfg.Production() {
		logger.Error("database unavailable", "err", err)
		os.Exit(1)
	}
	logger.Warn("database unavailable, using in-memory store", "err", err)
	return storage.NewMemoryStore()
}

// registerWebhook points the Connect webhook at this deployment. On failure
// the configured secret stays in use.
func registerWebhook(ctx context.Context, platform payments.Platform, srv *httpapi.Server, cfg config.ServerConfig, logger *slog.Logger) {
	regCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	secret, err := platform.RegisterWebhook(regCtx, cfg.WebhookURL())
	if err != nil {
		logger.Error("webhook registration failed, keeping configured secret", "url", cfg.WebhookURL(), "err", err)
		return
	}
	srv.SetWebhookSecret(secret)
	logger.Info("webhook endpoint registered", "url", cfg.WebhookURL())
}
