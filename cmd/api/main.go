package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/dripwire/dripwire-backend/api/routes"
	"github.com/dripwire/dripwire-backend/internal/dispatcher"
	"github.com/dripwire/dripwire-backend/internal/events"
	"github.com/dripwire/dripwire-backend/internal/mailer"
	"github.com/dripwire/dripwire-backend/internal/reports"
	"github.com/dripwire/dripwire-backend/internal/rules"
	"github.com/dripwire/dripwire-backend/internal/sequences"
	"github.com/dripwire/dripwire-backend/internal/subscribers"
	"github.com/dripwire/dripwire-backend/internal/tracker"
	"github.com/dripwire/dripwire-backend/internal/tracking"
	"github.com/dripwire/dripwire-backend/pkg/config"
	"github.com/dripwire/dripwire-backend/pkg/db"
	"github.com/dripwire/dripwire-backend/pkg/logger"
	"github.com/dripwire/dripwire-backend/pkg/migrate"
	"github.com/dripwire/dripwire-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	trackingService, err := tracking.NewService(tracking.ServiceParams{
		Config:      cfg.Tracking,
		Events:      events.NewRepository(gdb),
		Sequences:   sequences.NewRepository(gdb),
		Subscribers: subscribers.NewRepository(gdb),
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create tracking service", err)
		os.Exit(1)
	}

	gateway, err := mailer.NewSMTPGateway(cfg.Mailer, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create mail gateway", err)
		os.Exit(1)
	}
	mailRequestService, err := mailer.NewRequestService(mailer.RequestServiceParams{
		Requests:    mailer.NewRequestRepository(gdb),
		Subscribers: subscribers.NewRepository(gdb),
		Gateway:     gateway,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create mail request service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			dispatcherService,
			trackingService,
			reportsService,
			mailRequestService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
