// Package app assembles the identity and profile services from their parts
// and runs them until the process is told to stop.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opencrafts-io/parley/internal/config"
)

// Worker is a background loop that runs until ctx is cancelled.
type Worker func(ctx context.Context) error

// serve runs the HTTP server next to the workers. It returns once ctx is
// cancelled and everything has stopped, or as soon as any of them fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, handler http.Handler, workers ...Worker) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.AppConfig.Address, cfg.AppConfig.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server running",
			slog.String("address", cfg.AppConfig.Address),
			slog.Int("port", cfg.AppConfig.Port),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to listen and serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.AppConfig.ShutdownTimeout)*time.Second)
		defer cancel()
		logger.Info("shutting down server")
		return srv.Shutdown(sCtx)
	})

	for _, w := range workers {
		g.Go(func() error { return w(gctx) })
	}

	return g.Wait()
}
