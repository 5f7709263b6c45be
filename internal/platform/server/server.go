// internal/platform/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"

	"gamerent/internal/platform/config"
	"gamerent/internal/platform/httpx"
	"gamerent/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter returns a router with the middleware, health and metrics
// endpoints every service exposes.
func NewRouter(service string, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.RequestLogger(service, logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpx.Health)
	r.Handle("/metrics", metrics.Handler())
	return r
}

// Run serves h until ctx is done, then drains in-flight requests within the
// configured shutdown timeout.
func Run(ctx context.Context, cfg config.ServerConfig, h http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
