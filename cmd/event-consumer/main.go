package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/dripwire/dripwire-backend/internal/dispatcher"
	"github.com/dripwire/dripwire-backend/internal/reports"
	"github.com/dripwire/dripwire-backend/internal/rules"
	"github.com/dripwire/dripwire-backend/internal/tracker"
	"github.com/dripwire/dripwire-backend/pkg/config"
	"github.com/dripwire/dripwire-backend/pkg/db"
	"github.com/dripwire/dripwire-backend/pkg/idempotency"
	"github.com/dripwire/dripwire-backend/pkg/logger"
	"github.com/dripwire/dripwire-backend/pkg/migrate"
	"github.com/dripwire/dripwire-backend/pkg/pubsub"
	"github.com/dripwire/dripwire-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "event-consumer"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "event-consumer"

	logg = logger.New(logger.Options{
		ServiceName: "event-consumer",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	gdb := dbClient.DB()

	reportsService, err := reports.NewService(reports.NewRepository(gdb))
	if err != nil {
		logg.Error(context.Background(), "failed to create reports service", err)
		os.Exit(1)
	}

	dispatcherService, err := dispatcher.NewService(dispatcher.ServiceParams{
		Rules:   rules.NewRepository(gdb),
		Tracker: tracker.NewRepository(gdb),
		Reports: reportsService,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatcher service", err)
		os.Exit(1)
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	consumer, err := dispatcher.NewConsumer(dispatcherService, pubsubClient.EventsSubscription(), manager, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create event consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"subscription": cfg.PubSub.EventsSubscription,
	})
	logg.Info(ctx, "starting event consumer")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "event consumer stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "event consumer shutting down gracefully")
}
