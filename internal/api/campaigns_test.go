package api

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/warmline/internal/store"
)

func TestCreateCampaignStartsImmediately(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	sender := senderAccount()
	receiver := receiverAccount()

	hr.mock.ExpectQuery("FROM warmup_accounts WHERE id = ANY").
		WillReturnRows(accountRows(sender))
	hr.mock.ExpectQuery("FROM warmup_accounts WHERE id = ANY").
		WillReturnRows(accountRows(receiver))
	hr.mock.ExpectExec("INSERT INTO warmup_campaigns").
		WillReturnResult(sqlmock.NewResult(0, 1))
	hr.mock.ExpectExec("UPDATE warmup_campaigns SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	hr.mock.ExpectExec("UPDATE warmup_accounts SET warmup_started_at").
		WithArgs(sender.ID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := hr.do(t, http.MethodPost, "/api/campaigns", map[string]interface{}{
		"name":          "Q3 ramp",
		"senderIds":     []string{sender.ID.String()},
		"receiverIds":   []string{receiver.ID.String()},
		"durationWeeks": 6,
	})

	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	assert.Equal(t, "active", resp["status"])
	assert.Equal(t, float64(1), resp["current_week"])
	assert.Equal(t, float64(6), resp["duration_weeks"])
	assert.NotEmpty(t, resp["next_send_time"])
	assert.InDelta(t, 16.67, resp["progress_percentage"], 0.01)
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestCreateCampaignValidation(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	w := hr.do(t, http.MethodPost, "/api/campaigns", map[string]interface{}{
		"senderIds":   []string{uuid.NewString()},
		"receiverIds": []string{uuid.NewString()},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "name is required")

	w = hr.do(t, http.MethodPost, "/api/campaigns", map[string]interface{}{
		"name":        "x",
		"senderIds":   []string{uuid.NewString()},
		"receiverIds": []string{uuid.NewString()},
		"language":    "fr",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "language must be en or it")

	// No participants never reaches the database.
	w = hr.do(t, http.MethodPost, "/api/campaigns", map[string]interface{}{
		"name": "x",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "at least one sender and one receiver")
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestListCampaignsResyncsCounters(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	stale := activeCampaign()
	stale.TotalEmailsSent = 3

	healed := *stale
	healed.TotalEmailsSent = 9
	healed.TotalEmailsOpened = 3

	hr.mock.ExpectQuery("FROM warmup_campaigns ORDER BY created_at").
		WillReturnRows(campaignRows(stale))
	hr.mock.ExpectExec("UPDATE warmup_campaigns SET total_emails_sent").
		WithArgs(stale.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	hr.mock.ExpectQuery("FROM warmup_campaigns ORDER BY created_at").
		WillReturnRows(campaignRows(&healed))

	w := hr.do(t, http.MethodGet, "/api/campaigns", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp []map[string]interface{}
	decodeBody(t, w, &resp)
	require.Len(t, resp, 1)
	// The response reflects the counters after the resync, not before.
	assert.Equal(t, float64(9), resp[0]["total_emails_sent"])
	assert.InDelta(t, 0.333, resp[0]["open_rate"], 0.001)
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestListCampaignsRejectsUnknownStatus(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	w := hr.do(t, http.MethodGet, "/api/campaigns?status=running", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown campaign status")
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestGetCampaignResyncsFirst(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	c := activeCampaign()
	c.TotalEmailsSent = 10
	c.TotalEmailsReplied = 4

	hr.mock.ExpectExec("UPDATE warmup_campaigns SET total_emails_sent").
		WithArgs(c.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	hr.mock.ExpectQuery("FROM warmup_campaigns WHERE id").
		WithArgs(c.ID).
		WillReturnRows(campaignRows(c))

	w := hr.do(t, http.MethodGet, "/api/campaigns/"+c.ID.String(), nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	assert.Equal(t, c.ID.String(), resp["id"])
	assert.Equal(t, 0.4, resp["reply_rate"])
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestGetCampaignMissing(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	id := uuid.New()
	// The resync touches zero rows, which already proves the campaign is
	// gone; no second query happens.
	hr.mock.ExpectExec("UPDATE warmup_campaigns SET total_emails_sent").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := hr.do(t, http.MethodGet, "/api/campaigns/"+id.String(), nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = hr.do(t, http.MethodGet, "/api/campaigns/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestPauseCampaign(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	c := activeCampaign()
	paused := *c
	paused.Status = store.CampaignPaused

	hr.mock.ExpectQuery("FROM warmup_campaigns WHERE id").
		WithArgs(c.ID).
		WillReturnRows(campaignRows(c))
	hr.mock.ExpectExec("UPDATE warmup_campaigns SET status").
		WithArgs(c.ID, store.CampaignActive, store.CampaignPaused).
		WillReturnResult(sqlmock.NewResult(0, 1))
	hr.mock.ExpectQuery("FROM warmup_campaigns WHERE id").
		WithArgs(c.ID).
		WillReturnRows(campaignRows(&paused))

	w := hr.do(t, http.MethodPatch, "/api/campaigns/"+c.ID.String()+"/status",
		map[string]interface{}{"status": "paused"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	assert.Equal(t, "paused", resp["status"])
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestCampaignStatusRejectsCompleted(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	c := activeCampaign()
	c.Status = store.CampaignCompleted

	hr.mock.ExpectQuery("FROM warmup_campaigns WHERE id").
		WithArgs(c.ID).
		WillReturnRows(campaignRows(c))

	w := hr.do(t, http.MethodPatch, "/api/campaigns/"+c.ID.String()+"/status",
		map[string]interface{}{"status": "active"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "cannot modify a completed campaign")
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestCampaignStatusRejectsInvalidTransition(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	c := activeCampaign()
	c.Status = store.CampaignPending

	hr.mock.ExpectQuery("FROM warmup_campaigns WHERE id").
		WithArgs(c.ID).
		WillReturnRows(campaignRows(c))

	// pending -> paused is not a legal move; the store rejects it before
	// touching the row.
	w := hr.do(t, http.MethodPatch, "/api/campaigns/"+c.ID.String()+"/status",
		map[string]interface{}{"status": "paused"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "campaign cannot move from pending to paused")

	w = hr.do(t, http.MethodPatch, "/api/campaigns/"+c.ID.String()+"/status",
		map[string]interface{}{"status": "archived"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown campaign status")
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestCompleteCampaignSetsEndTime(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	c := activeCampaign()
	now := time.Now().UTC()
	done := *c
	done.Status = store.CampaignCompleted
	done.EndTime = &now

	hr.mock.ExpectQuery("FROM warmup_campaigns WHERE id").
		WithArgs(c.ID).
		WillReturnRows(campaignRows(c))
	hr.mock.ExpectExec("UPDATE warmup_campaigns SET status").
		WithArgs(c.ID, store.CampaignCompleted, sqlmock.AnyArg(), store.CampaignActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	hr.mock.ExpectQuery("FROM warmup_campaigns WHERE id").
		WithArgs(c.ID).
		WillReturnRows(campaignRows(&done))

	w := hr.do(t, http.MethodPatch, "/api/campaigns/"+c.ID.String()+"/status",
		map[string]interface{}{"status": "completed"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	assert.Equal(t, "completed", resp["status"])
	assert.NotEmpty(t, resp["end_time"])
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestProcessCampaignCompletesOverdueCampaign(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	// Fifty days into a six week ramp: the manual kick notices the ramp
	// is over and completes the campaign instead of sending.
	c := activeCampaign()
	c.StartTime = time.Now().UTC().Add(-50 * 24 * time.Hour)

	hr.mock.ExpectQuery("FROM warmup_campaigns WHERE id").
		WithArgs(c.ID).
		WillReturnRows(campaignRows(c))
	hr.mock.ExpectExec("UPDATE warmup_campaigns SET status").
		WithArgs(c.ID, store.CampaignCompleted, sqlmock.AnyArg(), store.CampaignActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := hr.do(t, http.MethodPost, "/api/campaigns/"+c.ID.String()+"/process", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	assert.Equal(t, c.ID.String(), resp["campaignId"])
	assert.Equal(t, float64(0), resp["emailsSent"])

	// The lock taken for the run is released on the way out.
	assert.False(t, hr.redis.Exists("lock:campaign:"+c.ID.String()))
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestProcessCampaignConflict(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	c := activeCampaign()
	require.NoError(t, hr.redis.Set("lock:campaign:"+c.ID.String(), "worker-owned"))

	hr.mock.ExpectQuery("FROM warmup_campaigns WHERE id").
		WithArgs(c.ID).
		WillReturnRows(campaignRows(c))

	w := hr.do(t, http.MethodPost, "/api/campaigns/"+c.ID.String()+"/process", nil)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already being processed")

	// The worker's lock survives the rejected request.
	val, err := hr.redis.Get("lock:campaign:" + c.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "worker-owned", val)
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestProcessCampaignNotFound(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	id := uuid.New()
	hr.mock.ExpectQuery("FROM warmup_campaigns WHERE id").
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	w := hr.do(t, http.MethodPost, "/api/campaigns/"+id.String()+"/process", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, hr.redis.Exists("lock:campaign:"+id.String()))
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestDeleteCampaign(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	id := uuid.New()
	hr.mock.ExpectExec("DELETE FROM warmup_campaigns").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := hr.do(t, http.MethodDelete, "/api/campaigns/"+id.String(), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	hr.mock.ExpectExec("DELETE FROM warmup_campaigns").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	w = hr.do(t, http.MethodDelete, "/api/campaigns/"+id.String(), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestCampaignSenderStats(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	c := activeCampaign()
	senderID := uuid.New()

	hr.mock.ExpectQuery("FROM warmup_campaigns WHERE id").
		WithArgs(c.ID).
		WillReturnRows(campaignRows(c))
	hr.mock.ExpectQuery("JOIN warmup_accounts a ON a.id = e.sender_id").
		WithArgs(c.ID).
		WillReturnRows(sqlmock.NewRows([]string{"sender_id", "email", "sent", "opened", "replied", "bounced"}).
			AddRow(senderID, "sender@warm.test", 10, 5, 2, 1))

	w := hr.do(t, http.MethodGet, "/api/campaigns/"+c.ID.String()+"/sender-stats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		CampaignID string                        `json:"campaignId"`
		Senders    []*store.CampaignAccountStats `json:"senders"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, c.ID.String(), resp.CampaignID)
	require.Len(t, resp.Senders, 1)
	assert.Equal(t, "sender@warm.test", resp.Senders[0].Email)
	assert.Equal(t, 10, resp.Senders[0].Sent)
	assert.Equal(t, 0.5, resp.Senders[0].OpenRate)
	assert.Equal(t, 0.1, resp.Senders[0].BounceRate)
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestCampaignReceiverStats(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	c := activeCampaign()
	receiverID := uuid.New()

	hr.mock.ExpectQuery("FROM warmup_campaigns WHERE id").
		WithArgs(c.ID).
		WillReturnRows(campaignRows(c))
	hr.mock.ExpectQuery("JOIN warmup_accounts a ON a.id = e.receiver_id").
		WithArgs(c.ID).
		WillReturnRows(sqlmock.NewRows([]string{"receiver_id", "email", "received", "opened", "replied"}).
			AddRow(receiverID, "receiver@pool.test", 10, 4, 3))

	w := hr.do(t, http.MethodGet, "/api/campaigns/"+c.ID.String()+"/receiver-stats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Receivers []*store.CampaignAccountStats `json:"receivers"`
	}
	decodeBody(t, w, &resp)
	require.Len(t, resp.Receivers, 1)
	assert.Equal(t, 10, resp.Receivers[0].Received)
	assert.Equal(t, 0.4, resp.Receivers[0].OpenRate)
	assert.Equal(t, 0.3, resp.Receivers[0].ReplyRate)
	require.NoError(t, hr.mock.ExpectationsWereMet())
}

func TestCampaignStatsEmpty(t *testing.T) {
	hr, cleanup := setupAPI(t)
	defer cleanup()

	c := activeCampaign()
	hr.mock.ExpectQuery("FROM warmup_campaigns WHERE id").
		WithArgs(c.ID).
		WillReturnRows(campaignRows(c))
	hr.mock.ExpectQuery("JOIN warmup_accounts a ON a.id = e.sender_id").
		WithArgs(c.ID).
		WillReturnRows(sqlmock.NewRows([]string{"sender_id", "email", "sent", "opened", "replied", "bounced"}))

	w := hr.do(t, http.MethodGet, "/api/campaigns/"+c.ID.String()+"/sender-stats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"senders":[]`)
	require.NoError(t, hr.mock.ExpectationsWereMet())
}
