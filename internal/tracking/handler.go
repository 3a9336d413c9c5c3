package tracking

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inboxforge/warmline/internal/store"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21,
	0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
	0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
	0x01, 0x00, 0x3b,
}

// Handler serves the open pixel and the provider bounce webhook.
type Handler struct {
	tokens *Service
	store  *store.Store
}

func NewHandler(tokens *Service, st *store.Store) *Handler {
	return &Handler{tokens: tokens, store: st}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/track/open/{emailID}", h.HandleOpen)
	r.Post("/webhooks/bounce", h.HandleBounceWebhook)
	return r
}

// HandleOpen records a first open and serves the pixel. The GIF is
// served no matter what: a broken id, bad token or database error must
// never break email rendering.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	defer h.servePixel(w)

	emailID, err := uuid.Parse(chi.URLParam(r, "emailID"))
	if err != nil {
		log.Printf("[Tracking] Pixel hit with malformed email id %q", chi.URLParam(r, "emailID"))
		return
	}

	if h.tokens.Enabled() {
		token := r.URL.Query().Get("token")
		ts, err := strconv.ParseInt(r.URL.Query().Get("ts"), 10, 64)
		if token == "" || err != nil {
			log.Printf("[Tracking] Pixel hit without token for email %s (ip: %s)", emailID, realIP(r))
			return
		}
		if !h.tokens.Validate(emailID, token, ts) {
			log.Printf("[Tracking] Invalid token for email %s (ip: %s)", emailID, realIP(r))
			return
		}
	}

	email, err := h.store.GetEmail(r.Context(), emailID)
	if err != nil {
		log.Printf("[Tracking] Lookup failed for email %s: %v", emailID, err)
		return
	}
	if email == nil {
		log.Printf("[Tracking] Pixel hit for unknown email %s", emailID)
		return
	}

	first, err := h.store.MarkEmailOpenedFirst(r.Context(), emailID, time.Now().UTC())
	if err != nil {
		log.Printf("[Tracking] Recording open for email %s failed: %v", emailID, err)
		return
	}
	if !first {
		return
	}
	if err := h.store.IncrementAccountCounter(r.Context(), email.SenderID, "total_opened", 1); err != nil {
		log.Printf("[Tracking] Counter bump failed for sender %s: %v", email.SenderID, err)
	}
	if email.CampaignID != nil {
		if err := h.store.IncrementCampaignCounter(r.Context(), *email.CampaignID, "total_emails_opened", 1); err != nil {
			log.Printf("[Tracking] Counter bump failed for campaign %s: %v", *email.CampaignID, err)
		}
	}
	log.Printf("[Tracking] Email %s opened (sender: %s)", emailID, email.SenderID)
}

type bounceWebhookRequest struct {
	MessageID string `json:"message_id"`
	Type      string `json:"type"`
}

// HandleBounceWebhook lets a mailbox provider push bounce notifications
// directly instead of waiting for the IMAP sweep to find them.
func (h *Handler) HandleBounceWebhook(w http.ResponseWriter, r *http.Request) {
	var req bounceWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Missing message_id"})
		return
	}
	if req.Type == "" {
		req.Type = "hard"
	}

	email, err := h.store.GetEmailByMessageID(r.Context(), req.MessageID)
	if err != nil {
		log.Printf("[Tracking] Bounce webhook lookup failed for %s: %v", req.MessageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	if email == nil {
		log.Printf("[Tracking] Bounce webhook for unknown message id %s", req.MessageID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "not_found", "message": "Email not found"})
		return
	}
	if email.Status == store.EmailBounced {
		// Providers retry webhooks; the first delivery already moved
		// the counters.
		writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Bounce already recorded"})
		return
	}

	if err := h.store.MarkEmailBounced(r.Context(), email.ID, time.Now().UTC()); err != nil {
		log.Printf("[Tracking] Marking email %s bounced failed: %v", email.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	if err := h.store.IncrementAccountCounter(r.Context(), email.SenderID, "total_bounced", 1); err != nil {
		log.Printf("[Tracking] Counter bump failed for sender %s: %v", email.SenderID, err)
	}
	if email.CampaignID != nil {
		if err := h.store.IncrementCampaignCounter(r.Context(), *email.CampaignID, "total_emails_bounced", 1); err != nil {
			log.Printf("[Tracking] Counter bump failed for campaign %s: %v", *email.CampaignID, err)
		}
	}

	log.Printf("[Tracking] Email %s bounced via webhook (%s)", email.ID, req.Type)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Bounce recorded"})
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
