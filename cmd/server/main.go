package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nfrund/gobychat/internal/app"
	"github.com/nfrund/gobychat/internal/config"
	"github.com/nfrund/gobychat/internal/logging"
	"github.com/nfrund/gobychat/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.New(cfg.LogFormat, cfg.LogLevel)
	slog.Info("Starting gobychat", "env", cfg.AppEnv, "storage", cfg.StorageBackend)

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	return server.New(a).Start(ctx)
}
