package tracking

import (
	"bytes"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/warmline/internal/store"
)

func setupHandler(t *testing.T, secret string) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := NewHandler(NewService(secret, "http://api.test"), store.NewStore(db))
	return h, mock
}

func emailRows(id, senderID uuid.UUID, messageID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "message_id", "campaign_id", "sender_id", "receiver_id", "subject", "body",
		"in_reply_to", "thread_id", "is_warmup", "ai_generated", "ai_prompt", "ai_model",
		"retry_count", "error_message", "status", "sent_at", "delivered_at", "opened_at",
		"replied_at", "bounced_at", "created_at", "updated_at",
	}).AddRow(id, messageID, nil, senderID, uuid.New(), "Quick question", "Hi there",
		nil, nil, true, true, "prompt", "model-x", 0, "", store.EmailSent, now, nil, nil,
		nil, nil, now, now)
}

func openRequest(h *Handler, emailID uuid.UUID, withToken bool) *httptest.ResponseRecorder {
	target := fmt.Sprintf("/track/open/%s", emailID)
	if withToken {
		raw := h.tokens.TrackingURL(emailID)
		target = strings.TrimPrefix(raw, "http://api.test")
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHandleOpenRecordsFirstOpen(t *testing.T) {
	h, mock := setupHandler(t, "test-secret")
	emailID, senderID := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM warmup_emails WHERE id").
		WillReturnRows(emailRows(emailID, senderID, "msg-1@sender.test"))
	mock.ExpectExec("UPDATE warmup_emails SET opened_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE warmup_accounts SET total_opened").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := openRequest(h, emailID, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.True(t, bytes.Equal(pixelGIF, rec.Body.Bytes()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleOpenRepeatDoesNotBumpCounter(t *testing.T) {
	h, mock := setupHandler(t, "test-secret")
	emailID, senderID := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM warmup_emails WHERE id").
		WillReturnRows(emailRows(emailID, senderID, "msg-1@sender.test"))
	// opened_at already set: no row matches, so no counter update follows.
	mock.ExpectExec("UPDATE warmup_emails SET opened_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := openRequest(h, emailID, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Equal(pixelGIF, rec.Body.Bytes()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleOpenInvalidTokenServesPixelWithoutRecording(t *testing.T) {
	h, mock := setupHandler(t, "test-secret")
	emailID := uuid.New()

	target := fmt.Sprintf("/track/open/%s?token=%s&ts=%d", emailID, strings.Repeat("0", 32), time.Now().Unix())
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Equal(pixelGIF, rec.Body.Bytes()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleOpenMissingTokenServesPixelWithoutRecording(t *testing.T) {
	h, mock := setupHandler(t, "test-secret")

	rec := openRequest(h, uuid.New(), false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Equal(pixelGIF, rec.Body.Bytes()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleOpenUnknownEmail(t *testing.T) {
	h, mock := setupHandler(t, "test-secret")
	emailID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM warmup_emails WHERE id").
		WillReturnError(sql.ErrNoRows)

	rec := openRequest(h, emailID, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Equal(pixelGIF, rec.Body.Bytes()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleOpenDisabledValidationStillRecords(t *testing.T) {
	h, mock := setupHandler(t, "")
	emailID, senderID := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM warmup_emails WHERE id").
		WillReturnRows(emailRows(emailID, senderID, "msg-1@sender.test"))
	mock.ExpectExec("UPDATE warmup_emails SET opened_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE warmup_accounts SET total_opened").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// No token at all still records when validation is disabled.
	rec := openRequest(h, emailID, false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleOpenMalformedIDServesPixel(t *testing.T) {
	h, mock := setupHandler(t, "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/track/open/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Equal(pixelGIF, rec.Body.Bytes()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBounceWebhookMarksEmail(t *testing.T) {
	h, mock := setupHandler(t, "test-secret")
	emailID, senderID := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM warmup_emails WHERE message_id").
		WillReturnRows(emailRows(emailID, senderID, "msg-9@sender.test"))
	mock.ExpectExec("UPDATE warmup_emails SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE warmup_accounts SET total_bounced").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := strings.NewReader(`{"message_id": "msg-9@sender.test", "type": "hard"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/bounce", body)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"success"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBounceWebhookUnknownMessage(t *testing.T) {
	h, mock := setupHandler(t, "test-secret")

	mock.ExpectQuery("SELECT (.+) FROM warmup_emails WHERE message_id").
		WillReturnError(sql.ErrNoRows)

	body := strings.NewReader(`{"message_id": "ghost@nowhere.test"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/bounce", body)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"not_found"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBounceWebhookRequiresMessageID(t *testing.T) {
	h, mock := setupHandler(t, "test-secret")

	body := strings.NewReader(`{"type": "hard"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/bounce", body)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func campaignEmailRows(id, senderID, campaignID uuid.UUID, messageID, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "message_id", "campaign_id", "sender_id", "receiver_id", "subject", "body",
		"in_reply_to", "thread_id", "is_warmup", "ai_generated", "ai_prompt", "ai_model",
		"retry_count", "error_message", "status", "sent_at", "delivered_at", "opened_at",
		"replied_at", "bounced_at", "created_at", "updated_at",
	}).AddRow(id, messageID, campaignID, senderID, uuid.New(), "Quick question", "Hi there",
		nil, nil, true, true, "prompt", "model-x", 0, "", status, now, nil, nil,
		nil, nil, now, now)
}

func TestHandleOpenBumpsCampaignCounter(t *testing.T) {
	h, mock := setupHandler(t, "test-secret")
	emailID, senderID, campaignID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM warmup_emails WHERE id").
		WillReturnRows(campaignEmailRows(emailID, senderID, campaignID, "msg-1@sender.test", store.EmailSent))
	mock.ExpectExec("UPDATE warmup_emails SET opened_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE warmup_accounts SET total_opened").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE warmup_campaigns SET total_emails_opened").
		WithArgs(campaignID, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := openRequest(h, emailID, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBounceWebhookBumpsCampaignCounter(t *testing.T) {
	h, mock := setupHandler(t, "test-secret")
	emailID, senderID, campaignID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM warmup_emails WHERE message_id").
		WillReturnRows(campaignEmailRows(emailID, senderID, campaignID, "msg-9@sender.test", store.EmailSent))
	mock.ExpectExec("UPDATE warmup_emails SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE warmup_accounts SET total_bounced").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE warmup_campaigns SET total_emails_bounced").
		WithArgs(campaignID, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := strings.NewReader(`{"message_id": "msg-9@sender.test", "type": "hard"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/bounce", body)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBounceWebhookRepeatIsNoOp(t *testing.T) {
	h, mock := setupHandler(t, "test-secret")
	emailID, senderID, campaignID := uuid.New(), uuid.New(), uuid.New()

	// Already bounced: the provider retried the webhook. No writes.
	mock.ExpectQuery("SELECT (.+) FROM warmup_emails WHERE message_id").
		WillReturnRows(campaignEmailRows(emailID, senderID, campaignID, "msg-9@sender.test", store.EmailBounced))

	body := strings.NewReader(`{"message_id": "msg-9@sender.test", "type": "hard"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/bounce", body)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "already recorded")
	assert.NoError(t, mock.ExpectationsWereMet())
}
