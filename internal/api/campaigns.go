package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/inboxforge/warmline/internal/jobs"
	"github.com/inboxforge/warmline/internal/pkg/distlock"
	"github.com/inboxforge/warmline/internal/store"
)

// campaignResponse decorates the stored campaign with derived rates and
// ramp progress
type campaignResponse struct {
	*store.Campaign
	OpenRate           float64 `json:"open_rate"`
	ReplyRate          float64 `json:"reply_rate"`
	BounceRate         float64 `json:"bounce_rate"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

func newCampaignResponse(c *store.Campaign) campaignResponse {
	return campaignResponse{
		Campaign:           c,
		OpenRate:           c.OpenRate(),
		ReplyRate:          c.ReplyRate(),
		BounceRate:         c.BounceRate(),
		ProgressPercentage: c.ProgressPercentage(),
	}
}

type createCampaignRequest struct {
	Name          string      `json:"name"`
	SenderIDs     []uuid.UUID `json:"senderIds"`
	ReceiverIDs   []uuid.UUID `json:"receiverIds"`
	DurationWeeks int         `json:"durationWeeks"`
	Language      string      `json:"language"`
}

// CreateCampaign creates and immediately starts a warm-up campaign.
// Duration defaults to the recommendation for the youngest sender
// domain when the request leaves it at zero.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Language == "" {
		req.Language = store.LanguageEnglish
	}
	if req.Language != store.LanguageEnglish && req.Language != store.LanguageItalian {
		respondError(w, http.StatusBadRequest, "language must be en or it")
		return
	}

	campaign, err := h.engine.StartCampaign(r.Context(), req.Name, req.SenderIDs,
		req.ReceiverIDs, req.DurationWeeks, req.Language)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, newCampaignResponse(campaign))
}

// ListCampaigns returns campaigns, optionally filtered by status. Each
// campaign's counters are resynced from the email log before the read
// so drifted numbers heal on their own.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !validCampaignStatus(status) {
		respondError(w, http.StatusBadRequest, "unknown campaign status")
		return
	}

	campaigns, err := h.store.ListCampaigns(r.Context(), status)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	for _, c := range campaigns {
		if err := h.store.ResyncCampaignCounters(r.Context(), c.ID); err != nil {
			log.Printf("[API] counter resync for campaign %s failed: %v", c.ID, err)
		}
	}
	campaigns, err = h.store.ListCampaigns(r.Context(), status)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	out := make([]campaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		out = append(out, newCampaignResponse(c))
	}
	respondJSON(w, http.StatusOK, out)
}

// GetCampaign returns a single campaign with freshly resynced counters
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "campaignID", "campaign id")
	if !ok {
		return
	}

	if err := h.store.ResyncCampaignCounters(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	campaign, err := h.store.GetCampaign(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if campaign == nil {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}
	respondJSON(w, http.StatusOK, newCampaignResponse(campaign))
}

type campaignStatusRequest struct {
	Status string `json:"status"`
}

// UpdateCampaignStatus moves a campaign through its lifecycle: pause,
// resume, or manual completion. Completed campaigns are immutable and
// the store rejects transitions the state machine does not allow.
func (h *Handlers) UpdateCampaignStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "campaignID", "campaign id")
	if !ok {
		return
	}

	var req campaignStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validCampaignStatus(req.Status) {
		respondError(w, http.StatusBadRequest, "unknown campaign status")
		return
	}

	campaign, err := h.store.GetCampaign(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if campaign == nil {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}
	if campaign.Status == store.CampaignCompleted {
		respondError(w, http.StatusBadRequest, "cannot modify a completed campaign")
		return
	}

	if req.Status == store.CampaignCompleted {
		err = h.store.CompleteCampaign(r.Context(), id, time.Now().UTC())
	} else {
		err = h.store.TransitionCampaignStatus(r.Context(), id, campaign.Status, req.Status)
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}

	campaign, err = h.store.GetCampaign(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if campaign == nil {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}
	respondJSON(w, http.StatusOK, newCampaignResponse(campaign))
}

// ProcessCampaign triggers one scheduler step right now, bypassing the
// next-send-time gate. It holds the same distributed lock as the
// worker, so a campaign mid-batch answers 409 instead of double
// sending.
func (h *Handlers) ProcessCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "campaignID", "campaign id")
	if !ok {
		return
	}

	campaign, err := h.store.GetCampaign(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if campaign == nil {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}

	lock := distlock.NewLock(h.redis, h.db, jobs.CampaignLockKey(id), jobs.CampaignLockTTL)
	acquired, err := lock.Acquire(r.Context())
	if err != nil {
		log.Printf("[API] lock for campaign %s unavailable, continuing unlocked: %v", id, err)
	} else if !acquired {
		respondError(w, http.StatusConflict, "campaign is already being processed")
		return
	} else {
		defer lock.Release(r.Context())
	}

	sent, err := h.engine.ProcessCampaign(r.Context(), campaign, true)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaignId":        campaign.ID,
		"emailsSent":        sent,
		"emailsSentToday":   campaign.EmailsSentToday,
		"targetEmailsToday": campaign.TargetEmailsToday,
	})
}

// DeleteCampaign removes a campaign and, via cascade, its email log
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "campaignID", "campaign id")
	if !ok {
		return
	}

	if err := h.store.DeleteCampaign(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CampaignSenderStats aggregates per-sender counters from the email log
func (h *Handlers) CampaignSenderStats(w http.ResponseWriter, r *http.Request) {
	h.campaignStats(w, r, "senders", h.store.CampaignSenderStats)
}

// CampaignReceiverStats aggregates per-receiver counters from the email
// log
func (h *Handlers) CampaignReceiverStats(w http.ResponseWriter, r *http.Request) {
	h.campaignStats(w, r, "receivers", h.store.CampaignReceiverStats)
}

func (h *Handlers) campaignStats(w http.ResponseWriter, r *http.Request, key string,
	query func(ctx context.Context, campaignID uuid.UUID) ([]*store.CampaignAccountStats, error)) {
	id, ok := parseID(w, r, "campaignID", "campaign id")
	if !ok {
		return
	}

	campaign, err := h.store.GetCampaign(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if campaign == nil {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}

	stats, err := query(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if stats == nil {
		stats = []*store.CampaignAccountStats{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaignId": id,
		key:          stats,
	})
}

func validCampaignStatus(status string) bool {
	switch status {
	case store.CampaignPending, store.CampaignActive, store.CampaignPaused,
		store.CampaignCompleted, store.CampaignFailed:
		return true
	}
	return false
}
