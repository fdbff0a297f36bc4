package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/flowgridgo/internal/ctxlog"
)

// shutdownGrace bounds how long in-flight requests and background runs get
// to finish once Run's context is cancelled.
const shutdownGrace = 10 * time.Second

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails. On cancellation it drains in-flight requests and waits
// for background runs before returning.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	srv := &http.Server{
		Addr:    a.config.Addr,
		Handler: a.server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("🩺 Server starting", "address", fmt.Sprintf("http://localhost%s/health", a.config.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received, draining.")
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server shutdown: %w", err)
	}

	a.cancel()
	if err := a.manager.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("Background runs did not drain before deadline.", "error", err)
	}
	a.pool.Close()

	a.logger.Debug("App.Run method finished.")
	return runErr
}
