package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/api/responses"
	"github.com/dripwire/dripwire-backend/api/validators"
	"github.com/dripwire/dripwire-backend/internal/mailer"
	"github.com/dripwire/dripwire-backend/pkg/logger"
)

type mailRequestBody struct {
	DomainID uuid.UUID `json:"domainId" validate:"required"`
	UserID   uuid.UUID `json:"userId" validate:"required"`
	Reason   string    `json:"reason" validate:"required,max=255"`
	Message  string    `json:"message" validate:"required"`
}

// CreateMailRequest queues an ad-hoc mail outside any sequence.
func CreateMailRequest(service mailer.RequestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body mailRequestBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		request, err := service.Enqueue(ctx, mailer.EnqueueParams{
			DomainID: body.DomainID,
			UserID:   body.UserID,
			Reason:   validators.SanitizeString(body.Reason, 255),
			Message:  body.Message,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}
