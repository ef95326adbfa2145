package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dripwire/dripwire-backend/internal/breaker"
	"github.com/dripwire/dripwire-backend/internal/engine"
	"github.com/dripwire/dripwire-backend/internal/events"
	"github.com/dripwire/dripwire-backend/internal/mailer"
	"github.com/dripwire/dripwire-backend/internal/reports"
	"github.com/dripwire/dripwire-backend/internal/sequences"
	"github.com/dripwire/dripwire-backend/internal/subscribers"
	"github.com/dripwire/dripwire-backend/internal/tracker"
	"github.com/dripwire/dripwire-backend/internal/tracking"
	"github.com/dripwire/dripwire-backend/internal/worker"
	"github.com/dripwire/dripwire-backend/pkg/config"
	"github.com/dripwire/dripwire-backend/pkg/db"
	"github.com/dripwire/dripwire-backend/pkg/logger"
	"github.com/dripwire/dripwire-backend/pkg/metrics"
	"github.com/dripwire/dripwire-backend/pkg/migrate"
	"github.com/dripwire/dripwire-backend/pkg/redis"
)

const lockKeyFormat = "dw:sequence-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "sequence-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sequence-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sequence-worker",
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

	gdb := dbClient.DB()
	subscriberRepo := subscribers.NewRepository(gdb)
	eventRepo := events.NewRepository(gdb)

	breakerService, err := breaker.NewService(breaker.Params{
		Subscribers:  subscriberRepo,
		Events:       eventRepo,
		BounceLimit:  cfg.Engine.BounceLimit(),
		BounceWindow: cfg.Engine.BounceWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bounce breaker", err)
		os.Exit(1)
	}

	reportsService, err := reports.NewService(reports.NewRepository(gdb))
	if err != nil {
		logg.Error(context.Background(), "failed to create reports service", err)
		os.Exit(1)
	}

	gateway, err := mailer.NewSMTPGateway(cfg.Mailer, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create mail gateway", err)
		os.Exit(1)
	}

	engineService, err := engine.NewService(engine.ServiceParams{
		Tracker:      tracker.NewRepository(gdb),
		Sequences:    sequences.NewRepository(gdb),
		Subscribers:  subscriberRepo,
		Events:       eventRepo,
		Breaker:      breakerService,
		Reports:      reportsService,
		Gateway:      gateway,
		Instrumenter: tracking.NewInstrumenter(cfg.Tracking),
		Metrics:      metrics.NewDeliveryMetrics(prometheus.DefaultRegisterer),
		Logger:       logg,
		Config:       cfg.Engine,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sequence engine", err)
		os.Exit(1)
	}

	sweepJob, err := engine.NewSweepJob(engineService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep job", err)
		os.Exit(1)
	}

	retentionJob, err := events.NewRetentionJob(events.RetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: eventRepo,
		Retention:  cfg.Engine.EventRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create retention job", err)
		os.Exit(1)
	}

	mailRequestService, err := mailer.NewRequestService(mailer.RequestServiceParams{
		Requests:    mailer.NewRequestRepository(gdb),
		Subscribers: subscriberRepo,
		Gateway:     gateway,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create mail request service", err)
		os.Exit(1)
	}
	drainJob, err := mailer.NewDrainJob(mailRequestService, logg, 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create mail drain job", err)
		os.Exit(1)
	}

	lock, err := worker.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := worker.NewService(worker.ServiceParams{
		Logger:   logg,
		Registry: worker.NewRegistry(sweepJob, retentionJob, drainJob),
		Lock:     lock,
		Metrics:  metrics.NewWorkerMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Engine.PollInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sequence worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sequence worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sequence worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
