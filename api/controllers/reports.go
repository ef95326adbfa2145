package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/api/responses"
	"github.com/dripwire/dripwire-backend/internal/reports"
	pkgerrors "github.com/dripwire/dripwire-backend/pkg/errors"
	"github.com/dripwire/dripwire-backend/pkg/logger"
)

// SequenceReport serves the per-sequence engagement summary.
func SequenceReport(service reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		domainID, err := uuid.Parse(chi.URLParam(r, "domainId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid domain id"))
			return
		}
		sequenceID, err := uuid.Parse(chi.URLParam(r, "sequenceId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid sequence id"))
			return
		}

		summary, err := service.Summary(ctx, domainID, sequenceID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
