package engine

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/warmline/internal/aigen"
	"github.com/inboxforge/warmline/internal/config"
	"github.com/inboxforge/warmline/internal/domaincheck"
	"github.com/inboxforge/warmline/internal/mailer"
	"github.com/inboxforge/warmline/internal/store"
	"github.com/inboxforge/warmline/internal/tracking"
	"github.com/inboxforge/warmline/internal/vault"
)

// testClock freezes "now" at 10:00 UTC, well inside the business-hours
// send window.
var testClock = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// fakeMailer stands in for every transport the engine opens. bound
// records which account each transport was opened for.
type fakeMailer struct {
	mu       sync.Mutex
	sendErr  error
	sent     []*mailer.Message
	bound    []string
	inbound  []*mailer.Inbound
	fetchErr error
	restored [][]uint32
}

func (f *fakeMailer) Send(ctx context.Context, msg *mailer.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, msg)
	return msg.MessageID, nil
}

func (f *fakeMailer) FetchUnread(ctx context.Context, limit int) ([]*mailer.Inbound, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.inbound, nil
}

func (f *fakeMailer) RestoreUnseen(ctx context.Context, uids []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(uids) > 0 {
		f.restored = append(f.restored, uids)
	}
	return nil
}

type fakeGenerator struct {
	content       *aigen.Content
	reply         *aigen.Content
	requests      []aigen.Request
	replySubjects []string
	replyLangs    []string
}

func (f *fakeGenerator) Generate(ctx context.Context, req aigen.Request) *aigen.Content {
	f.requests = append(f.requests, req)
	if f.content != nil {
		return f.content
	}
	return &aigen.Content{
		Subject: "Quick thought on the quarterly plan",
		Body:    "Hi,\n\nHope the week is treating you well.",
		Prompt:  "warmup prompt",
		Model:   "test-model",
	}
}

func (f *fakeGenerator) GenerateReply(ctx context.Context, originalSubject, originalBody, senderName, language string) *aigen.Content {
	f.replySubjects = append(f.replySubjects, originalSubject)
	f.replyLangs = append(f.replyLangs, language)
	if f.reply != nil {
		return f.reply
	}
	return &aigen.Content{
		Subject: "Re: " + originalSubject,
		Body:    "Thanks, that sounds good to me.",
		Prompt:  "reply prompt",
		Model:   "test-model",
	}
}

type fakeProfiler struct {
	profiles map[string]*domaincheck.Profile
	calls    []string
}

func (f *fakeProfiler) CheckDomain(ctx context.Context, emailOrDomain string) *domaincheck.Profile {
	f.calls = append(f.calls, emailOrDomain)
	if p, ok := f.profiles[emailOrDomain]; ok {
		return p
	}
	return &domaincheck.Profile{Domain: store.DomainOf(emailOrDomain)}
}

func testConfig() *config.Config {
	return &config.Config{
		Warmup: config.WarmupConfig{
			MinEmailsPerDay:       5,
			MaxEmailsPerDay:       100,
			DurationWeeks:         6,
			MaxBatchSize:          3,
			SlotDelayMinSeconds:   120,
			SlotDelayMaxSeconds:   600,
			MaxBounceRate:         0.05,
			AutoPauseOnHighBounce: true,
		},
		Response: config.ResponseConfig{
			DelayMinHours:    1,
			DelayMaxHours:    6,
			ReplyProbability: 1.0,
		},
	}
}

func setupEngine(t *testing.T) (*Engine, sqlmock.Sqlmock, *fakeMailer, *fakeGenerator, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	fm := &fakeMailer{}
	fg := &fakeGenerator{}
	e := New(store.NewStore(db), vault.New(""), fg, &fakeProfiler{},
		tracking.NewService("tracking-secret", "http://api.test"), nil, testConfig())
	e.newMailer = func(account *store.Account, password string) AccountMailer {
		fm.mu.Lock()
		fm.bound = append(fm.bound, account.Email)
		fm.mu.Unlock()
		return fm
	}
	e.now = func() time.Time { return testClock }
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	e.rng = rand.New(rand.NewSource(42))

	return e, mock, fm, fg, func() { db.Close() }
}

// testSender builds an active sender fixture. ageDays < 0 leaves the
// domain unprofiled.
func testSender(email string, ageDays int) *store.Account {
	a := &store.Account{
		ID:                uuid.New(),
		Email:             email,
		AccountType:       store.AccountSender,
		FirstName:         "Alice",
		LastName:          "Warm",
		SMTPHost:          "smtp.test",
		SMTPPort:          587,
		SMTPUseTLS:        true,
		IMAPHost:          "imap.test",
		IMAPPort:          993,
		IMAPUseSSL:        true,
		EncryptedPassword: "hunter2",
		Domain:            store.DomainOf(email),
		CurrentDailyLimit: 5,
		TotalSent:         200,
		Status:            store.AccountActive,
		CreatedAt:         testClock.Add(-30 * 24 * time.Hour),
		UpdatedAt:         testClock.Add(-time.Hour),
	}
	if ageDays >= 0 {
		a.DomainAgeDays = &ageDays
	}
	return a
}

func testReceiver(email string) *store.Account {
	a := testSender(email, 400)
	a.AccountType = store.AccountReceiver
	a.FirstName = "Bob"
	a.LastName = "Reply"
	return a
}

func accountIDs(accounts ...*store.Account) []uuid.UUID {
	ids := make([]uuid.UUID, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	return ids
}

// testCampaign builds an active week-one campaign over the given
// accounts, due for sending immediately.
func testCampaign(senders, receivers []*store.Account) *store.Campaign {
	return &store.Campaign{
		ID:            uuid.New(),
		Name:          "spring warmup",
		SenderIDs:     accountIDs(senders...),
		ReceiverIDs:   accountIDs(receivers...),
		Language:      store.LanguageEnglish,
		DurationWeeks: 6,
		CurrentWeek:   1,
		StartTime:     testClock.Add(-24 * time.Hour),
		Status:        store.CampaignActive,
		CreatedAt:     testClock.Add(-24 * time.Hour),
		UpdatedAt:     testClock.Add(-time.Hour),
	}
}

func accountRowsFor(accounts ...*store.Account) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "email", "account_type", "first_name", "last_name",
		"smtp_host", "smtp_port", "smtp_use_tls", "imap_host", "imap_port", "imap_use_ssl",
		"encrypted_password", "domain", "domain_age_days", "domain_checked_at",
		"current_daily_limit", "warmup_started_at", "total_sent", "total_received",
		"total_opened", "total_replied", "total_bounced", "status", "created_at", "updated_at"})
	for _, a := range accounts {
		rows.AddRow(a.ID, a.Email, a.AccountType, a.FirstName, a.LastName,
			a.SMTPHost, a.SMTPPort, a.SMTPUseTLS, a.IMAPHost, a.IMAPPort, a.IMAPUseSSL,
			a.EncryptedPassword, a.Domain, a.DomainAgeDays, a.DomainCheckedAt,
			a.CurrentDailyLimit, a.WarmupStartedAt, a.TotalSent, a.TotalReceived,
			a.TotalOpened, a.TotalReplied, a.TotalBounced, a.Status, a.CreatedAt, a.UpdatedAt)
	}
	return rows
}

func uuidArray(ids []uuid.UUID) []byte {
	out := []byte("{")
	for i, id := range ids {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, id.String()...)
	}
	return append(out, '}')
}

func campaignRowsFor(campaigns ...*store.Campaign) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "name", "sender_ids", "receiver_ids", "language",
		"duration_weeks", "current_week", "start_time", "end_time", "next_send_time",
		"last_send_time", "emails_sent_today", "target_emails_today", "total_emails_sent",
		"total_emails_opened", "total_emails_replied", "total_emails_bounced", "status",
		"created_at", "updated_at"})
	for _, c := range campaigns {
		rows.AddRow(c.ID, c.Name, uuidArray(c.SenderIDs), uuidArray(c.ReceiverIDs), c.Language,
			c.DurationWeeks, c.CurrentWeek, c.StartTime, c.EndTime, c.NextSendTime,
			c.LastSendTime, c.EmailsSentToday, c.TargetEmailsToday, c.TotalEmailsSent,
			c.TotalEmailsOpened, c.TotalEmailsReplied, c.TotalEmailsBounced, c.Status,
			c.CreatedAt, c.UpdatedAt)
	}
	return rows
}

func emailRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "message_id", "campaign_id", "sender_id", "receiver_id",
		"subject", "body", "in_reply_to", "thread_id", "is_warmup", "ai_generated", "ai_prompt",
		"ai_model", "retry_count", "error_message", "status", "sent_at", "delivered_at",
		"opened_at", "replied_at", "bounced_at", "created_at", "updated_at"})
}

func intPtr(n int) *int { return &n }
