package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/inboxforge/warmline/internal/store"
)

const defaultMetricsDays = 30

// SystemMetrics reports the whole-fleet overview: account and campaign
// counts, lifetime volumes and the blended engagement rates.
func (h *Handlers) SystemMetrics(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.SystemMetrics(r.Context(), time.Now().UTC())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"totalAccounts":       counts.TotalAccounts,
		"activeAccounts":      counts.ActiveAccounts,
		"totalCampaigns":      counts.TotalCampaigns,
		"activeCampaigns":     counts.ActiveCampaigns,
		"totalEmailsSent":     counts.TotalSent,
		"totalEmailsReceived": counts.TotalReceived,
		"emailsSentToday":     counts.EmailsSentToday,
		"averageOpenRate":     ratio(counts.TotalOpened, counts.TotalSent),
		"averageReplyRate":    ratio(counts.TotalReplied, counts.TotalReceived),
		"averageBounceRate":   ratio(counts.TotalBounced, counts.TotalSent),
	})
}

// DailyMetrics returns per-day aggregates across all accounts for the
// last N days, newest first
func (h *Handlers) DailyMetrics(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(w, r)
	if !ok {
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	metrics, err := h.store.DailySummaries(r.Context(), since)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if metrics == nil {
		metrics = []*store.DailyMetric{}
	}
	respondJSON(w, http.StatusOK, metrics)
}

// AccountMetrics returns one account's lifetime counters plus its
// stored daily history
func (h *Handlers) AccountMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "accountID", "account id")
	if !ok {
		return
	}
	days, ok := parseDays(w, r)
	if !ok {
		return
	}

	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if account == nil {
		respondError(w, http.StatusNotFound, "account not found")
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	metrics, err := h.store.MetricsByAccount(r.Context(), id, since)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if metrics == nil {
		metrics = []*store.DailyMetric{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accountId":         account.ID,
		"email":             account.Email,
		"totalSent":         account.TotalSent,
		"totalReceived":     account.TotalReceived,
		"totalOpened":       account.TotalOpened,
		"totalReplied":      account.TotalReplied,
		"totalBounced":      account.TotalBounced,
		"openRate":          account.OpenRate(),
		"replyRate":         account.ReplyRate(),
		"bounceRate":        account.BounceRate(),
		"currentDailyLimit": account.CurrentDailyLimit,
		"dailyMetrics":      metrics,
	})
}

// parseDays reads the ?days=N window, defaulting to 30
func parseDays(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return defaultMetricsDays, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > 365 {
		respondError(w, http.StatusBadRequest, "days must be between 1 and 365")
		return 0, false
	}
	return days, true
}

func ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
