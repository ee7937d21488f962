// Package main is the entry point for the Truly API server.
// Truly lets anyone send anonymous messages to a registered user.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/prn-tf/truly/internal/auth"
	"github.com/prn-tf/truly/internal/cache/memory"
	rediscache "github.com/prn-tf/truly/internal/cache/redis"
	"github.com/prn-tf/truly/internal/config"
	"github.com/prn-tf/truly/internal/handler"
	"github.com/prn-tf/truly/internal/lock"
	"github.com/prn-tf/truly/internal/logging"
	"github.com/prn-tf/truly/internal/mail"
	"github.com/prn-tf/truly/internal/metrics"
	"github.com/prn-tf/truly/internal/repository"
	"github.com/prn-tf/truly/internal/repository/factory"
	"github.com/prn-tf/truly/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("Starting Truly server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		logCloser.Close()
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}

// run wires the application and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	store, err := factory.Open(ctx, cfg.Database, factory.Options{AutoMigrate: true}, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	cache, locker, closers, err := openSessionBackends(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	sender, err := mail.New(cfg.Mail, logger)
	if err != nil {
		return fmt.Errorf("failed to create mail sender: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Services
	authService := service.NewAuthService(store.Users, m, logger)
	userService := service.NewUserService(store.Users, locker, sender, service.UserServiceConfig{
		VerifyCodeTTL: cfg.Auth.VerifyCodeTTL,
		BcryptCost:    cfg.Auth.BcryptCost,
		SignUpLockTTL: cfg.Auth.SignUpLockTTL,
	}, m, logger)
	tokens := auth.NewTokenManager(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	sessionService := service.NewSessionService(authService, tokens, cache, logger)
	messageService := service.NewMessageService(store.Users, m, logger)

	// Handlers
	router := handler.NewRouter(handler.RouterConfig{
		AuthHandler: handler.NewAuthHandler(handler.AuthHandlerConfig{
			UserService:    userService,
			SessionService: sessionService,
			CookieSecure:   cfg.Auth.CookieSecure,
			Logger:         logger,
		}),
		MessageHandler:   handler.NewMessageHandler(messageService, logger),
		HealthHandler:    handler.NewHealthHandler(store.Database, cache, logger),
		SessionValidator: sessionService,
		Metrics:          m,
		MaxBodySize:      cfg.Server.MaxBodySize,
		Logger:           logger,
	})

	servers := []*http.Server{{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, m.Handler())
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server on %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down server...")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Str("addr", srv.Addr).Msg("graceful shutdown failed")
		}
	}

	return serveErr
}

// openSessionBackends returns the session cache and sign-up locker: Redis when
// enabled, process memory otherwise.
func openSessionBackends(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (repository.Cache, lock.Locker, []io.Closer, error) {
	if !cfg.Enabled {
		logger.Info().Msg("using in-memory session cache and locks")
		cache := memory.NewCache()
		locker := lock.NewMemoryLocker()
		return cache, locker, []io.Closer{cache, locker}, nil
	}

	client, err := rediscache.NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rediscache.NewCache(client), lock.NewRedisLocker(client), []io.Closer{client}, nil
}
