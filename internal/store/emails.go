package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const emailColumns = `id, message_id, campaign_id, sender_id, receiver_id, subject, body,
	in_reply_to, thread_id, is_warmup, ai_generated, ai_prompt, ai_model, retry_count,
	error_message, status, sent_at, delivered_at, opened_at, replied_at, bounced_at,
	created_at, updated_at`

// CreateEmail persists a new email record, normally in pending state so
// the row ID is available for the tracking pixel before the send.
func (s *Store) CreateEmail(ctx context.Context, email *Email) error {
	email.ID = uuid.New()
	email.CreatedAt = time.Now().UTC()
	email.UpdatedAt = email.CreatedAt
	if email.Status == "" {
		email.Status = EmailPending
	}

	query := `INSERT INTO warmup_emails (id, message_id, campaign_id, sender_id, receiver_id,
		subject, body, in_reply_to, thread_id, is_warmup, ai_generated, ai_prompt, ai_model,
		retry_count, error_message, status, sent_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := s.db.ExecContext(ctx, query, email.ID, email.MessageID, email.CampaignID,
		email.SenderID, email.ReceiverID, email.Subject, email.Body, email.InReplyTo,
		email.ThreadID, email.IsWarmup, email.AIGenerated, email.AIPrompt, email.AIModel,
		email.RetryCount, email.ErrorMessage, email.Status, email.SentAt,
		email.CreatedAt, email.UpdatedAt)
	return mapError(err)
}

func scanEmail(row interface{ Scan(...interface{}) error }) (*Email, error) {
	e := &Email{}
	err := row.Scan(&e.ID, &e.MessageID, &e.CampaignID, &e.SenderID, &e.ReceiverID,
		&e.Subject, &e.Body, &e.InReplyTo, &e.ThreadID, &e.IsWarmup, &e.AIGenerated,
		&e.AIPrompt, &e.AIModel, &e.RetryCount, &e.ErrorMessage, &e.Status,
		&e.SentAt, &e.DeliveredAt, &e.OpenedAt, &e.RepliedAt, &e.BouncedAt,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetEmail retrieves an email by ID
func (s *Store) GetEmail(ctx context.Context, id uuid.UUID) (*Email, error) {
	query := fmt.Sprintf(`SELECT %s FROM warmup_emails WHERE id = $1`, emailColumns)
	email, err := scanEmail(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return email, err
}

// GetEmailByMessageID retrieves an email by its RFC message ID.
// Message IDs are stored bare, without angle brackets.
func (s *Store) GetEmailByMessageID(ctx context.Context, messageID string) (*Email, error) {
	query := fmt.Sprintf(`SELECT %s FROM warmup_emails WHERE message_id = $1`, emailColumns)
	email, err := scanEmail(s.db.QueryRowContext(ctx, query, messageID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return email, err
}

// ListEmailsByCampaign retrieves emails for a campaign, newest first
func (s *Store) ListEmailsByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]*Email, error) {
	query := fmt.Sprintf(`SELECT %s FROM warmup_emails WHERE campaign_id = $1
		ORDER BY created_at DESC LIMIT $2`, emailColumns)

	rows, err := s.db.QueryContext(ctx, query, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []*Email
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// MarkEmailSent flips a pending email to sent
func (s *Store) MarkEmailSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	query := `UPDATE warmup_emails SET status = $2, sent_at = $3, updated_at = NOW() WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id, EmailSent, sentAt)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// MarkEmailBounced flips an email to bounced. Bounced is terminal.
func (s *Store) MarkEmailBounced(ctx context.Context, id uuid.UUID, bouncedAt time.Time) error {
	query := `UPDATE warmup_emails SET status = $2, bounced_at = $3, updated_at = NOW() WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id, EmailBounced, bouncedAt)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// MarkEmailReplied records that the recipient answered, keyed by the
// message ID carried in the reply's In-Reply-To header. Bounced rows
// stay bounced. Returns true when a row was updated.
func (s *Store) MarkEmailReplied(ctx context.Context, messageID string, repliedAt time.Time) (bool, error) {
	query := `UPDATE warmup_emails SET status = $2, replied_at = $3, updated_at = NOW()
		WHERE message_id = $1 AND status <> $4`
	result, err := s.db.ExecContext(ctx, query, messageID, EmailReplied, repliedAt, EmailBounced)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkEmailOpenedFirst records the first open of an email. Later opens
// are ignored. Returns true when this call was the first open, so the
// caller knows whether to bump counters.
func (s *Store) MarkEmailOpenedFirst(ctx context.Context, id uuid.UUID, openedAt time.Time) (bool, error) {
	query := `UPDATE warmup_emails SET opened_at = $2, updated_at = NOW()
		WHERE id = $1 AND opened_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, id, openedAt)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecentSentBySender returns the sender's last sent emails joined with
// the receiver address, newest first. Used to back-link bounce
// notifications to the original outbound message.
type SentEmailRef struct {
	ID            uuid.UUID
	MessageID     *string
	CampaignID    *uuid.UUID
	ReceiverID    uuid.UUID
	ReceiverEmail string
	SentAt        *time.Time
}

// RecentSentBySender retrieves up to limit recently sent emails for a sender
func (s *Store) RecentSentBySender(ctx context.Context, senderID uuid.UUID, limit int) ([]*SentEmailRef, error) {
	query := `SELECT e.id, e.message_id, e.campaign_id, e.receiver_id, a.email, e.sent_at
		FROM warmup_emails e
		JOIN warmup_accounts a ON a.id = e.receiver_id
		WHERE e.sender_id = $1 AND e.status = $2
		ORDER BY e.sent_at DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, senderID, EmailSent, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []*SentEmailRef
	for rows.Next() {
		ref := &SentEmailRef{}
		if err := rows.Scan(&ref.ID, &ref.MessageID, &ref.CampaignID, &ref.ReceiverID,
			&ref.ReceiverEmail, &ref.SentAt); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// FindActiveCampaignForPair finds the most recent active campaign that
// pairs the given sender and receiver. Used by the conversation engine
// to pick the reply language.
func (s *Store) FindActiveCampaignForPair(ctx context.Context, senderID, receiverID uuid.UUID) (*Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM warmup_campaigns
		WHERE status = $1 AND $2 = ANY(sender_ids) AND $3 = ANY(receiver_ids)
		ORDER BY created_at DESC LIMIT 1`, campaignColumns)

	campaign, err := scanCampaign(s.db.QueryRowContext(ctx, query, CampaignActive, senderID, receiverID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return campaign, err
}
