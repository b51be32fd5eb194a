package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Start runs the background workers and the HTTP listener until ctx is
// canceled, then shuts everything down gracefully.
func (s *Server) Start(ctx context.Context) error {
	runCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	if err := s.App.Run(runCtx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", s.App.Config.ServerAddr)
		if err := s.E.Start(s.App.Config.ServerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var startErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutting down server")
	case err := <-serveErr:
		startErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	if startErr != nil {
		errs = append(errs, fmt.Errorf("listen: %w", startErr))
	}
	if err := s.E.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	stopWorkers()
	if err := s.App.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
