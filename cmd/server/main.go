package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/verygoodsaas/backoffice/internal/app"
	"github.com/verygoodsaas/backoffice/pkg/logger"
)

func main() {
	cfg, err := app.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		os.Exit(1)
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		logger.Error("failed to initialise logging", zap.Error(err))
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	server, err := app.NewServer(cfg)
	if err != nil {
		logger.Error("failed to build server", zap.Error(err))
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped unexpectedly", zap.Error(err))
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}
