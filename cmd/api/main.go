// cmd/api/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gamerent/internal/gateway"
	"gamerent/internal/platform/config"
	"gamerent/internal/platform/logger"
	"gamerent/internal/platform/server"
	"gamerent/internal/platform/telemetry"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("api", "8080")
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	router := server.NewRouter("api", log)
	if err := gateway.Mount(router, cfg.Gateway, log); err != nil {
		return err
	}

	log.Info("api gateway listening",
		zap.String("port", cfg.Server.Port),
		zap.String("catalog", cfg.Gateway.CatalogURL),
		zap.String("accounts", cfg.Gateway.AccountsURL),
		zap.String("rentals", cfg.Gateway.RentalsURL),
	)
	return server.Run(ctx, cfg.Server, router, log)
}
