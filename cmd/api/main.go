// Command api serves the receipt and statement ingestion API.
package main

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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FACorreiaa/smart-finance-ingest/pkg/config"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/interceptors"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := run(logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	deps, err := InitDependencies(cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps.Scheduler.Start(context.Background())
	if err := deps.Cron.Start(); err != nil {
		return fmt.Errorf("failed to start cron: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", slog.Any("error", err))
	}
	<-deps.Cron.Stop().Done()
	if err := deps.Scheduler.Shutdown(shutdownCtx); err != nil {
		logger.Error("job scheduler shutdown failed", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return nil
}

func newRouter(deps *Dependencies) http.Handler {
	api := http.NewServeMux()
	deps.IngestHandler.Register(api)
	deps.AnalyticsHandler.Register(api)

	protected := interceptors.Chain(api,
		interceptors.RequireAuth(deps.TokenValidator),
		deps.RateLimiter.Middleware,
	)

	root := http.NewServeMux()
	root.Handle("/api/", protected)
	root.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.DB.Health(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if deps.Config.Observability.MetricsEnabled {
		root.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	return interceptors.Chain(root,
		interceptors.Logging(deps.Logger),
		interceptors.CORS(deps.Config.Server.AllowedOrigins),
	)
}
