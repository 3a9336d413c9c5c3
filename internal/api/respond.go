package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/inboxforge/warmline/internal/errdefs"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps an error kind to its HTTP status. Every handler funnels
// store and engine errors through here so each kind maps in exactly one
// place.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errdefs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errdefs.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, errdefs.ErrIntegrity):
		return http.StatusConflict
	case errors.Is(err, errdefs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errdefs.ErrProviderExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, errdefs.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondDomainError translates err via statusFor. 5xx details are
// logged server-side and replaced with a generic message so database
// internals never reach clients.
func respondDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		log.Printf("[API] ERROR %d: %v", status, err)
		respondError(w, status, "an internal error occurred")
		return
	}
	respondError(w, status, err.Error())
}
