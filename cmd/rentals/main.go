// cmd/rentals/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gamerent/internal/auth"
	"gamerent/internal/entitlement"
	"gamerent/internal/jobs"
	"gamerent/internal/ledger"
	"gamerent/internal/money"
	"gamerent/internal/platform/config"
	"gamerent/internal/platform/database"
	"gamerent/internal/platform/logger"
	"gamerent/internal/platform/migrations"
	"gamerent/internal/platform/server"
	"gamerent/internal/platform/telemetry"
	"gamerent/internal/pricing"
	"gamerent/internal/rentals"
	"gamerent/pkg/eventstore"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rentals: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("rentals", "8082")
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

	cache := rentals.NoopCache()
	if cfg.Entitlement.CacheEnabled {
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			// Entitlement reads fall back to Postgres.
			log.Warn("redis unavailable, entitlement cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			cache = rentals.NewRedisCache(rdb, log)
		}
	}

	prices := pricing.NewCalculator(pricing.Config{
		BasePricePerDay:  money.Cents(cfg.Pricing.BasePricePerDayCents),
		StandardTermDays: cfg.Pricing.StandardTermDays,
		SubscriptionFee:  money.Cents(cfg.Pricing.SubscriptionFeeCents),
	})
	tracker := entitlement.NewTracker(cfg.Entitlement.WindowLength, cfg.Entitlement.Allowance)
	l := ledger.New(prices, tracker, ledger.Config{
		RentalTerm:    cfg.Fines.RentalTerm,
		DailyFineRate: money.Cents(cfg.Fines.DailyRateCents),
	}, ledger.WithAuthorizer(rentals.AdminWaiver{}))

	es := eventstore.NewEventStore(db.DB)
	svc := rentals.NewService(rentals.NewPostgresStore(db, es), l, cache, log)
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	scheduler := jobs.NewScheduler(log)
	if err := scheduler.Add("overdue-scan", cfg.Jobs.OverdueSchedule, jobs.OverdueScan(svc, log)); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop(context.Background())

	router := server.NewRouter("rentals", log)
	router.Mount("/", rentals.NewHandler(svc, log).Routes(issuer))

	log.Info("starting rentals service", zap.String("port", cfg.Server.Port))
	return server.Run(ctx, cfg.Server, router, log)
}
