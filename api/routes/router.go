package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dripwire/dripwire-backend/api/controllers"
	"github.com/dripwire/dripwire-backend/api/middleware"
	"github.com/dripwire/dripwire-backend/internal/dispatcher"
	"github.com/dripwire/dripwire-backend/internal/mailer"
	"github.com/dripwire/dripwire-backend/internal/reports"
	"github.com/dripwire/dripwire-backend/internal/tracking"
	"github.com/dripwire/dripwire-backend/pkg/config"
	"github.com/dripwire/dripwire-backend/pkg/db"
	"github.com/dripwire/dripwire-backend/pkg/logger"
	"github.com/dripwire/dripwire-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	dispatcherService dispatcher.Service,
	trackingService tracking.Service,
	reportsService reports.Service,
	mailRequestService mailer.RequestService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	// Tracking callbacks live outside /api/v1: these URLs are embedded in
	// outbound mail and must stay short and stable.
	r.Route("/t", func(r chi.Router) {
		r.Get("/open/{token}", controllers.TrackOpen(trackingService))
		r.Get("/click/{token}", controllers.TrackClick(trackingService))
		r.Get("/unsubscribe/{token}", controllers.TrackUnsubscribe(trackingService))
		r.Post("/unsubscribe/{token}", controllers.TrackUnsubscribe(trackingService))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(redisClient, logg))
		r.Post("/events", controllers.IngestEvent(dispatcherService, logg))
		r.Post("/mail-requests", controllers.CreateMailRequest(mailRequestService, logg))
		r.Get("/domains/{domainId}/sequences/{sequenceId}/report", controllers.SequenceReport(reportsService, logg))
	})

	return r
}
