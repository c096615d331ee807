package main

import (
	"log/slog"
	"os"

	"go-request-shield/internal/app"
	"go-request-shield/internal/logger"
)

func main() {
	// Bootstrap handler; app.New swaps in the env-configured one.
	slog.SetDefault(slog.New(logger.New(os.Stdout, false, slog.LevelInfo)))

	application, err := app.New()
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
