package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/opencrafts-io/parley/docs/identity"
	"github.com/opencrafts-io/parley/internal/app"
	"github.com/opencrafts-io/parley/internal/config"
)

// @title       Parley Identity API
// @version     1.0
// @description Accounts, sessions and token revocation.
// @BasePath    /
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("service", "identity"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewIdentity(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to create app.", slog.Any("error", err))
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		logger.Error("Failed to start app.", slog.Any("error", err))
		os.Exit(1)
	}
}
