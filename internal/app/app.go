package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/you/civicauth/internal/config"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// Run serves the API until ctx is cancelled, then drains in-flight
// requests and stops the sweeper.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	c, err := NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close resources", zap.Error(err))
		}
	}()

	if err := c.SeedPolicies(); err != nil {
		return err
	}
	return Serve(ctx, c)
}

// Serve runs the HTTP server and the sweeper of an already built container.
func Serve(ctx context.Context, c *Container) error {
	srv := &http.Server{
		Addr:              ":" + c.Config.Port,
		Handler:           c.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Sweeper().Run(sweepCtx)
	}()
	defer func() {
		stopSweeper()
		wg.Wait()
	}()

	errCh := make(chan error, 1)
	go func() {
		c.Logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		c.Logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
