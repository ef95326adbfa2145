package controllers

import (
	"net/http"

	"github.com/dripwire/dripwire-backend/api/responses"
	"github.com/dripwire/dripwire-backend/api/validators"
	"github.com/dripwire/dripwire-backend/internal/dispatcher"
	"github.com/dripwire/dripwire-backend/pkg/logger"
)

// IngestEvent accepts a domain event over HTTP for producers without a
// pub/sub publisher. Processing is synchronous.
func IngestEvent(service dispatcher.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var event dispatcher.DomainEvent
		if err := validators.DecodeJSONBody(r, &event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := service.HandleEvent(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}
