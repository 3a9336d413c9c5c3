package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/warmline/internal/aigen"
	"github.com/inboxforge/warmline/internal/config"
	"github.com/inboxforge/warmline/internal/domaincheck"
	"github.com/inboxforge/warmline/internal/engine"
	"github.com/inboxforge/warmline/internal/health"
	"github.com/inboxforge/warmline/internal/mailer"
	"github.com/inboxforge/warmline/internal/ratelimit"
	"github.com/inboxforge/warmline/internal/store"
	"github.com/inboxforge/warmline/internal/tracking"
	"github.com/inboxforge/warmline/internal/vault"
)

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, _ aigen.Request) *aigen.Content {
	return &aigen.Content{Subject: "Hello", Body: "Quick hello."}
}

func (stubGenerator) GenerateReply(_ context.Context, originalSubject, _, _, _ string) *aigen.Content {
	return &aigen.Content{Subject: "Re: " + originalSubject, Body: "Thanks!"}
}

// stubProfiler answers domain checks with a fixed age.
type stubProfiler struct {
	age *int
}

func (p stubProfiler) CheckDomain(_ context.Context, emailOrDomain string) *domaincheck.Profile {
	return &domaincheck.Profile{Domain: store.DomainOf(emailOrDomain), AgeDays: p.age}
}

type apiHarness struct {
	handlers *Handlers
	mock     sqlmock.Sqlmock
	router   http.Handler
	redis    *miniredis.Miniredis
	ledger   *ratelimit.MemoryLedger
}

func setupAPI(t *testing.T) (*apiHarness, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{
		Warmup: config.WarmupConfig{
			MinEmailsPerDay:       5,
			MaxEmailsPerDay:       100,
			DurationWeeks:         6,
			MaxBatchSize:          3,
			SlotDelayMinSeconds:   1,
			SlotDelayMaxSeconds:   1,
			MaxBounceRate:         0.05,
			AutoPauseOnHighBounce: true,
		},
		Response: config.ResponseConfig{
			DelayMinHours:    1,
			DelayMaxHours:    6,
			ReplyProbability: 0.85,
		},
	}

	// Default profile: an old, fully warmed domain.
	age := 400
	profiler := stubProfiler{age: &age}

	st := store.NewStore(db)
	vlt := vault.New("test-vault-key")
	ledger := ratelimit.NewMemoryLedger([]ratelimit.Key{{ID: "openrouter_1", Provider: "openrouter"}})
	eng := engine.New(st, vlt, stubGenerator{}, profiler, tracking.NewService("secret", "http://api.test"), nil, cfg)

	h := NewHandlers(st, eng, vlt, profiler, ledger, db, rdb)
	h.probe = func(_ context.Context, _ *store.Account, _ string) *mailer.ProbeResult {
		return &mailer.ProbeResult{SMTP: true, IMAP: true}
	}

	trk := tracking.NewHandler(tracking.NewService("secret", "http://api.test"), st)
	hlth := health.NewHandler(db, rdb, nil)
	router := SetupRoutes(h, trk, hlth)

	cleanup := func() {
		rdb.Close()
		mr.Close()
		db.Close()
	}
	return &apiHarness{handlers: h, mock: mock, router: router, redis: mr, ledger: ledger}, cleanup
}

// do runs one request through the full middleware chain
func (hr *apiHarness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	hr.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func senderAccount() *store.Account {
	now := time.Now().UTC()
	return &store.Account{
		ID:                uuid.New(),
		Email:             "sender@warm.test",
		AccountType:       store.AccountSender,
		FirstName:         "Ada",
		LastName:          "Byron",
		SMTPHost:          "smtp.warm.test",
		SMTPPort:          587,
		SMTPUseTLS:        true,
		IMAPHost:          "imap.warm.test",
		IMAPPort:          993,
		IMAPUseSSL:        true,
		EncryptedPassword: "wv1:sealed",
		Domain:            "warm.test",
		CurrentDailyLimit: 5,
		TotalSent:         40,
		TotalReceived:     20,
		TotalOpened:       10,
		TotalReplied:      5,
		Status:            store.AccountActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func receiverAccount() *store.Account {
	a := senderAccount()
	a.ID = uuid.New()
	a.Email = "receiver@pool.test"
	a.AccountType = store.AccountReceiver
	a.Domain = "pool.test"
	return a
}

func accountRows(accounts ...*store.Account) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "email", "account_type", "first_name", "last_name", "smtp_host", "smtp_port",
		"smtp_use_tls", "imap_host", "imap_port", "imap_use_ssl", "encrypted_password", "domain",
		"domain_age_days", "domain_checked_at", "current_daily_limit", "warmup_started_at",
		"total_sent", "total_received", "total_opened", "total_replied", "total_bounced",
		"status", "created_at", "updated_at",
	})
	for _, a := range accounts {
		rows.AddRow(a.ID, a.Email, a.AccountType, a.FirstName, a.LastName,
			a.SMTPHost, a.SMTPPort, a.SMTPUseTLS, a.IMAPHost, a.IMAPPort, a.IMAPUseSSL,
			a.EncryptedPassword, a.Domain, a.DomainAgeDays, a.DomainCheckedAt,
			a.CurrentDailyLimit, a.WarmupStartedAt, a.TotalSent, a.TotalReceived,
			a.TotalOpened, a.TotalReplied, a.TotalBounced, a.Status, a.CreatedAt, a.UpdatedAt)
	}
	return rows
}

func activeCampaign() *store.Campaign {
	now := time.Now().UTC()
	return &store.Campaign{
		ID:            uuid.New(),
		Name:          "Warmup " + uuid.NewString()[:8],
		SenderIDs:     []uuid.UUID{uuid.New()},
		ReceiverIDs:   []uuid.UUID{uuid.New()},
		Language:      store.LanguageEnglish,
		DurationWeeks: 6,
		CurrentWeek:   1,
		StartTime:     now.Add(-24 * time.Hour),
		Status:        store.CampaignActive,
		CreatedAt:     now.Add(-24 * time.Hour),
		UpdatedAt:     now,
	}
}

func uuidArray(ids []uuid.UUID) []byte {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return []byte("{" + strings.Join(strs, ",") + "}")
}

func campaignRows(campaigns ...*store.Campaign) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "name", "sender_ids", "receiver_ids", "language", "duration_weeks",
		"current_week", "start_time", "end_time", "next_send_time", "last_send_time",
		"emails_sent_today", "target_emails_today", "total_emails_sent", "total_emails_opened",
		"total_emails_replied", "total_emails_bounced", "status", "created_at", "updated_at",
	})
	for _, c := range campaigns {
		rows.AddRow(c.ID, c.Name, uuidArray(c.SenderIDs), uuidArray(c.ReceiverIDs),
			c.Language, c.DurationWeeks, c.CurrentWeek, c.StartTime, c.EndTime,
			c.NextSendTime, c.LastSendTime, c.EmailsSentToday, c.TargetEmailsToday,
			c.TotalEmailsSent, c.TotalEmailsOpened, c.TotalEmailsReplied,
			c.TotalEmailsBounced, c.Status, c.CreatedAt, c.UpdatedAt)
	}
	return rows
}
