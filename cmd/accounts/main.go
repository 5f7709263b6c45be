// cmd/accounts/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gamerent/internal/accounts"
	"gamerent/internal/auth"
	"gamerent/internal/platform/config"
	"gamerent/internal/platform/database"
	"gamerent/internal/platform/logger"
	"gamerent/internal/platform/migrations"
	"gamerent/internal/platform/server"
	"gamerent/internal/platform/telemetry"
	"gamerent/pkg/eventstore"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "accounts: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("accounts", "8083")
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
	limiter := rate.NewLimiter(rate.Limit(cfg.Auth.RateLimit), cfg.Auth.RateBurst)
	svc := accounts.NewService(es, db, issuer, limiter, log)

	router := server.NewRouter("accounts", log)
	router.Mount("/", accounts.NewHandler(svc, log).Routes(issuer))

	log.Info("starting accounts service", zap.String("port", cfg.Server.Port))
	return server.Run(ctx, cfg.Server, router, log)
}
