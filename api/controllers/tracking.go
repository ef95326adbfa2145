package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dripwire/dripwire-backend/api/responses"
	"github.com/dripwire/dripwire-backend/internal/tracking"
)

// TrackOpen serves the pixel no matter what; recording is best effort.
func TrackOpen(service tracking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		service.RecordOpen(r.Context(), token)

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(tracking.Pixel)
	}
}

// TrackClick records the click and redirects, falling back to the home URL
// when the token is unusable.
func TrackClick(service tracking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		dest := service.ResolveClick(r.Context(), token)
		http.Redirect(w, r, dest, http.StatusFound)
	}
}

// TrackUnsubscribe flips the flag behind the token and always responds with
// the same message.
func TrackUnsubscribe(service tracking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		message := service.Unsubscribe(r.Context(), token)
		responses.WriteSuccess(w, map[string]string{"message": message})
	}
}
