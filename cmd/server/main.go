package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/remote-agent-terminal/ptyhost/api/handlers"
	"github.com/remote-agent-terminal/ptyhost/api/middleware"
	"github.com/remote-agent-terminal/ptyhost/internal/config"
	"github.com/remote-agent-terminal/ptyhost/internal/db"
	"github.com/remote-agent-terminal/ptyhost/internal/listing"
	"github.com/remote-agent-terminal/ptyhost/internal/logging"
	"github.com/remote-agent-terminal/ptyhost/internal/metrics"
	"github.com/remote-agent-terminal/ptyhost/internal/model"
	"github.com/remote-agent-terminal/ptyhost/internal/repository"
	"github.com/remote-agent-terminal/ptyhost/internal/session"
	"github.com/remote-agent-terminal/ptyhost/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ptyhost: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		File:        cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	m := metrics.New()

	// Audit trail
	var (
		events session.EventSink
		audit  handlers.AuditLog
	)
	if cfg.Storage.DBPath != "" {
		database, err := db.Open(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		repo := repository.NewEventRepository(database)
		events, audit = repo, repo
		logger.Info("Audit trail enabled", zap.String("path", cfg.Storage.DBPath))
	}

	hubs := ws.NewHubManager()
	defer hubs.Close()

	table := session.NewTable(session.Config{
		DefaultShell:  cfg.Terminal.DefaultShell,
		Dimensions:    model.Dimensions{Rows: cfg.Terminal.Rows, Cols: cfg.Terminal.Cols},
		BufferSize:    cfg.Terminal.BufferSize,
		ReadChunkSize: cfg.Terminal.ReadChunkSize,
		PollInterval:  cfg.Terminal.PollInterval,
		RecordDir:     cfg.Terminal.RecordDir,
		Env:           cfg.Terminal.Env,
		MaxSessions:   cfg.Terminal.MaxSessions,
	}, hubs,
		session.WithLogger(logger.Named("session")),
		session.WithEvents(events),
		session.WithMetrics(m),
	)
	defer table.Close()

	wsHandler := ws.NewHandler(hubs, table, m, logger.Named("ws"))
	if !allowsAnyOrigin(cfg.Server.AllowedOrigins) {
		wsHandler.SetCheckOrigin(originChecker(cfg.Server.AllowedOrigins))
	}

	fetcher := listing.NewHTTPFetcher(listing.Config{
		Timeout: cfg.Listing.Timeout,
		Retries: cfg.Listing.Retries,
	})

	gin.SetMode(gin.ReleaseMode)
	if cfg.Logging.Development {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.Server.AllowedOrigins
	r.Use(
		middleware.RequestID(),
		middleware.Logger(logger.Named("http")),
		middleware.Recovery(logger),
		metrics.Middleware(m),
		middleware.CORS(corsCfg),
	)

	systemHandler := handlers.NewSystemHandler(cfg.Logging.File, fetcher, audit)
	r.GET("/health", systemHandler.Health)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	// API routes
	api := r.Group("/api")
	{
		handlers.NewSessionHandler(table).RegisterRoutes(api)
		handlers.NewEventsHandler(wsHandler).RegisterRoutes(api)
		systemHandler.RegisterRoutes(api)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down server", zap.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("Server shutdown incomplete", zap.Error(err))
	}

	// Deferred calls close the table, hubs and database in that order.
	return nil
}

func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
