package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inboxforge/warmline/internal/ratelimit"
)

// keyStatusResponse extends the ledger snapshot with the derived
// request rate and saturation forecast
type keyStatusResponse struct {
	ratelimit.KeyStatus
	RequestRatePerHour float64    `json:"request_rate_per_hour"`
	SaturatesAt        *time.Time `json:"saturates_at"`
}

// ListKeys reports every AI key's budget accounting so an operator can
// see which credentials are close to their provider quota.
func (h *Handlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	statuses := h.ledger.Statuses(r.Context())

	out := make([]keyStatusResponse, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, keyStatusResponse{
			KeyStatus:          s,
			RequestRatePerHour: h.ledger.RequestRate(r.Context(), s.KeyID),
			SaturatesAt:        h.ledger.SaturationForecast(r.Context(), s.KeyID),
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"keys": out})
}

// ResetKey clears a key's minute and day windows, for use after a
// provider-side quota change or a stuck exhaustion flag.
func (h *Handlers) ResetKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "keyID")

	known := false
	for _, s := range h.ledger.Statuses(r.Context()) {
		if s.KeyID == keyID {
			known = true
			break
		}
	}
	if !known {
		respondError(w, http.StatusNotFound, "unknown key")
		return
	}

	h.ledger.Reset(r.Context(), keyID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset", "keyId": keyID})
}
