// cmd/catalog/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gamerent/internal/auth"
	"gamerent/internal/catalog"
	"gamerent/internal/platform/config"
	"gamerent/internal/platform/database"
	"gamerent/internal/platform/logger"
	"gamerent/internal/platform/migrations"
	"gamerent/internal/platform/server"
	"gamerent/internal/platform/telemetry"
	"gamerent/pkg/eventstore"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "catalog: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("catalog", "8081")
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

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.Database.Migrate {
		if err := migrations.Apply(ctx, db.DB); err != nil {
			return err
		}
	}

	es := eventstore.NewEventStore(db.DB)
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	svc := catalog.NewService(es, db, log)

	router := server.NewRouter("catalog", log)
	router.Mount("/", catalog.NewHandler(svc, log).Routes(issuer))

	log.Info("starting catalog service", zap.String("port", cfg.Server.Port))
	return server.Run(ctx, cfg.Server, router, log)
}
