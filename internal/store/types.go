package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account type constants
const (
	AccountSender   = "sender"
	AccountReceiver = "receiver"
)

// Account status constants
const (
	AccountActive   = "active"
	AccountPaused   = "paused"
	AccountDisabled = "disabled"
	AccountError    = "error"
)

// Campaign status constants
const (
	CampaignPending   = "pending"
	CampaignActive    = "active"
	CampaignPaused    = "paused"
	CampaignCompleted = "completed"
	CampaignFailed    = "failed"
)

// Email status constants
const (
	EmailPending   = "pending"
	EmailSent      = "sent"
	EmailDelivered = "delivered"
	EmailOpened    = "opened"
	EmailReplied   = "replied"
	EmailBounced   = "bounced"
	EmailFailed    = "failed"
)

// Language constants
const (
	LanguageEnglish = "en"
	LanguageItalian = "it"
)

// Account represents a mailbox used for warming, either as a sender or
// as a receiver that replies to warmup traffic.
type Account struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	Email             string     `json:"email" db:"email"`
	AccountType       string     `json:"account_type" db:"account_type"`
	FirstName         string     `json:"first_name" db:"first_name"`
	LastName          string     `json:"last_name" db:"last_name"`
	SMTPHost          string     `json:"smtp_host" db:"smtp_host"`
	SMTPPort          int        `json:"smtp_port" db:"smtp_port"`
	SMTPUseTLS        bool       `json:"smtp_use_tls" db:"smtp_use_tls"`
	IMAPHost          string     `json:"imap_host" db:"imap_host"`
	IMAPPort          int        `json:"imap_port" db:"imap_port"`
	IMAPUseSSL        bool       `json:"imap_use_ssl" db:"imap_use_ssl"`
	EncryptedPassword string     `json:"-" db:"encrypted_password"`
	Domain            string     `json:"domain" db:"domain"`
	DomainAgeDays     *int       `json:"domain_age_days" db:"domain_age_days"`
	DomainCheckedAt   *time.Time `json:"domain_checked_at" db:"domain_checked_at"`
	CurrentDailyLimit int        `json:"current_daily_limit" db:"current_daily_limit"`
	WarmupStartedAt   *time.Time `json:"warmup_started_at" db:"warmup_started_at"`
	TotalSent         int        `json:"total_sent" db:"total_sent"`
	TotalReceived     int        `json:"total_received" db:"total_received"`
	TotalOpened       int        `json:"total_opened" db:"total_opened"`
	TotalReplied      int        `json:"total_replied" db:"total_replied"`
	TotalBounced      int        `json:"total_bounced" db:"total_bounced"`
	Status            string     `json:"status" db:"status"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// FullName returns the display name for outgoing mail headers
func (a *Account) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// BounceRate returns the lifetime bounce rate for the account
func (a *Account) BounceRate() float64 {
	if a.TotalSent == 0 {
		return 0
	}
	return float64(a.TotalBounced) / float64(a.TotalSent)
}

// OpenRate returns the lifetime open rate for the account
func (a *Account) OpenRate() float64 {
	if a.TotalSent == 0 {
		return 0
	}
	return float64(a.TotalOpened) / float64(a.TotalSent)
}

// ReplyRate returns replies relative to mail received by the account
func (a *Account) ReplyRate() float64 {
	if a.TotalReceived == 0 {
		return 0
	}
	return float64(a.TotalReplied) / float64(a.TotalReceived)
}

// Campaign represents a warmup campaign pairing sender accounts with
// receiver accounts over a multi-week ramp.
type Campaign struct {
	ID                 uuid.UUID   `json:"id" db:"id"`
	Name               string      `json:"name" db:"name"`
	SenderIDs          []uuid.UUID `json:"sender_ids" db:"sender_ids"`
	ReceiverIDs        []uuid.UUID `json:"receiver_ids" db:"receiver_ids"`
	Language           string      `json:"language" db:"language"`
	DurationWeeks      int         `json:"duration_weeks" db:"duration_weeks"`
	CurrentWeek        int         `json:"current_week" db:"current_week"`
	StartTime          time.Time   `json:"start_time" db:"start_time"`
	EndTime            *time.Time  `json:"end_time" db:"end_time"`
	NextSendTime       *time.Time  `json:"next_send_time" db:"next_send_time"`
	LastSendTime       *time.Time  `json:"last_send_time" db:"last_send_time"`
	EmailsSentToday    int         `json:"emails_sent_today" db:"emails_sent_today"`
	TargetEmailsToday  int         `json:"target_emails_today" db:"target_emails_today"`
	TotalEmailsSent    int         `json:"total_emails_sent" db:"total_emails_sent"`
	TotalEmailsOpened  int         `json:"total_emails_opened" db:"total_emails_opened"`
	TotalEmailsReplied int         `json:"total_emails_replied" db:"total_emails_replied"`
	TotalEmailsBounced int         `json:"total_emails_bounced" db:"total_emails_bounced"`
	Status             string      `json:"status" db:"status"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`
}

// OpenRate returns opened emails relative to sent
func (c *Campaign) OpenRate() float64 {
	if c.TotalEmailsSent == 0 {
		return 0
	}
	return float64(c.TotalEmailsOpened) / float64(c.TotalEmailsSent)
}

// ReplyRate returns replied emails relative to sent
func (c *Campaign) ReplyRate() float64 {
	if c.TotalEmailsSent == 0 {
		return 0
	}
	return float64(c.TotalEmailsReplied) / float64(c.TotalEmailsSent)
}

// BounceRate returns bounced emails relative to sent
func (c *Campaign) BounceRate() float64 {
	if c.TotalEmailsSent == 0 {
		return 0
	}
	return float64(c.TotalEmailsBounced) / float64(c.TotalEmailsSent)
}

// ProgressPercentage returns how far the campaign is through its ramp
func (c *Campaign) ProgressPercentage() float64 {
	if c.DurationWeeks == 0 {
		return 0
	}
	return float64(c.CurrentWeek) / float64(c.DurationWeeks) * 100
}

// validCampaignTransitions defines the allowed campaign status moves.
// Completed and failed are terminal.
var validCampaignTransitions = map[string][]string{
	CampaignPending: {CampaignActive},
	CampaignActive:  {CampaignPaused, CampaignCompleted, CampaignFailed},
	CampaignPaused:  {CampaignActive},
}

// ValidCampaignTransition reports whether a campaign may move between
// the two statuses
func ValidCampaignTransition(from, to string) bool {
	for _, allowed := range validCampaignTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Email represents a single warmup email, sent or pending
type Email struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	MessageID    *string    `json:"message_id" db:"message_id"`
	CampaignID   *uuid.UUID `json:"campaign_id" db:"campaign_id"`
	SenderID     uuid.UUID  `json:"sender_id" db:"sender_id"`
	ReceiverID   uuid.UUID  `json:"receiver_id" db:"receiver_id"`
	Subject      string     `json:"subject" db:"subject"`
	Body         string     `json:"body" db:"body"`
	InReplyTo    *string    `json:"in_reply_to" db:"in_reply_to"`
	ThreadID     *string    `json:"thread_id" db:"thread_id"`
	IsWarmup     bool       `json:"is_warmup" db:"is_warmup"`
	AIGenerated  bool       `json:"ai_generated" db:"ai_generated"`
	AIPrompt     string     `json:"ai_prompt" db:"ai_prompt"`
	AIModel      string     `json:"ai_model" db:"ai_model"`
	RetryCount   int        `json:"retry_count" db:"retry_count"`
	ErrorMessage string     `json:"error_message" db:"error_message"`
	Status       string     `json:"status" db:"status"`
	SentAt       *time.Time `json:"sent_at" db:"sent_at"`
	DeliveredAt  *time.Time `json:"delivered_at" db:"delivered_at"`
	OpenedAt     *time.Time `json:"opened_at" db:"opened_at"`
	RepliedAt    *time.Time `json:"replied_at" db:"replied_at"`
	BouncedAt    *time.Time `json:"bounced_at" db:"bounced_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// DailyMetric holds per-account per-day aggregates derived from the
// email log at end of day.
type DailyMetric struct {
	ID             uuid.UUID `json:"id" db:"id"`
	AccountID      uuid.UUID `json:"account_id" db:"account_id"`
	Date           time.Time `json:"date" db:"date"`
	EmailsSent     int       `json:"emails_sent" db:"emails_sent"`
	EmailsReceived int       `json:"emails_received" db:"emails_received"`
	EmailsOpened   int       `json:"emails_opened" db:"emails_opened"`
	EmailsReplied  int       `json:"emails_replied" db:"emails_replied"`
	EmailsBounced  int       `json:"emails_bounced" db:"emails_bounced"`
	EmailsFailed   int       `json:"emails_failed" db:"emails_failed"`
	OpenRate       float64   `json:"open_rate" db:"open_rate"`
	ReplyRate      float64   `json:"reply_rate" db:"reply_rate"`
	BounceRate     float64   `json:"bounce_rate" db:"bounce_rate"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
