// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tutorcore/internal/api"
	"github.com/starford/tutorcore/internal/mcpserver"
	"github.com/starford/tutorcore/internal/sse"
	"github.com/starford/tutorcore/internal/vault"
)

// Run starts the HTTP server, the SSE broker and the vault watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(app)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("tracing", cfg.App.Tracing),
		slog.String("log_level", cfg.App.LogLevel.String()))

	shutdownTracing, err := setupTracing(cfg.App, app.version, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	st, err := buildStack(ctx, cfg, logger, broker)
	if err != nil {
		return err
	}
	defer st.Close()
	svc := st.svc

	if _, err := svc.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := st.db.PingContext(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes (including SSE at /api/events) under /api.
	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Vault.Watch {
		g.Go(func() error {
			err := vault.Watch(gCtx, st.db, st.syncer, cfg.Vault.Debounce, logger, func(stats vault.SyncStats) {
				svc.AfterSync(gCtx, stats)
			})
			if err != nil {
				logger.Error("vault watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio. Logs and spans go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := newLogger(app)

	shutdownTracing, err := setupTracing(app.config.App, app.version, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	st, err := buildStack(ctx, app.config, logger, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.svc.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	logger.Info("MCP server starting on stdio", slog.String("version", app.version))
	return mcpserver.New(st.svc, app.version).ServeStdio()
}

// Seed syncs the vault into the concept graph once and reports what changed.
func Seed(ctx context.Context, opts ...Option) (vault.SyncStats, error) {
	app, err := newApplication(opts)
	if err != nil {
		return vault.SyncStats{}, err
	}
	logger := newLogger(app)

	st, err := buildStack(ctx, app.config, logger, nil)
	if err != nil {
		return vault.SyncStats{}, err
	}
	defer st.Close()

	return st.svc.Sync(ctx)
}
