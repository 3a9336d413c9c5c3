package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/inboxforge/warmline/internal/errdefs"
)

const campaignColumns = `id, name, sender_ids, receiver_ids, language, duration_weeks,
	current_week, start_time, end_time, next_send_time, last_send_time,
	emails_sent_today, target_emails_today, total_emails_sent, total_emails_opened,
	total_emails_replied, total_emails_bounced, status, created_at, updated_at`

// CreateCampaign creates a new warmup campaign
func (s *Store) CreateCampaign(ctx context.Context, campaign *Campaign) error {
	campaign.ID = uuid.New()
	campaign.CreatedAt = time.Now().UTC()
	campaign.UpdatedAt = campaign.CreatedAt
	if campaign.Language == "" {
		campaign.Language = LanguageEnglish
	}
	if campaign.DurationWeeks == 0 {
		campaign.DurationWeeks = 6
	}
	if campaign.CurrentWeek == 0 {
		campaign.CurrentWeek = 1
	}
	if campaign.Status == "" {
		campaign.Status = CampaignPending
	}
	if campaign.StartTime.IsZero() {
		campaign.StartTime = campaign.CreatedAt
	}

	query := `INSERT INTO warmup_campaigns (id, name, sender_ids, receiver_ids, language,
		duration_weeks, current_week, start_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query, campaign.ID, campaign.Name,
		pq.Array(campaign.SenderIDs), pq.Array(campaign.ReceiverIDs), campaign.Language,
		campaign.DurationWeeks, campaign.CurrentWeek, campaign.StartTime, campaign.Status,
		campaign.CreatedAt, campaign.UpdatedAt)
	return mapError(err)
}

func scanCampaign(row interface{ Scan(...interface{}) error }) (*Campaign, error) {
	c := &Campaign{}
	err := row.Scan(&c.ID, &c.Name, pq.Array(&c.SenderIDs), pq.Array(&c.ReceiverIDs),
		&c.Language, &c.DurationWeeks, &c.CurrentWeek, &c.StartTime, &c.EndTime,
		&c.NextSendTime, &c.LastSendTime, &c.EmailsSentToday, &c.TargetEmailsToday,
		&c.TotalEmailsSent, &c.TotalEmailsOpened, &c.TotalEmailsReplied,
		&c.TotalEmailsBounced, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCampaign retrieves a campaign by ID
func (s *Store) GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM warmup_campaigns WHERE id = $1`, campaignColumns)
	campaign, err := scanCampaign(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return campaign, err
}

// ListCampaigns retrieves campaigns with an optional status filter
func (s *Store) ListCampaigns(ctx context.Context, status string) ([]*Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM warmup_campaigns`, campaignColumns)
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []*Campaign
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, campaign)
	}
	return campaigns, rows.Err()
}

// TransitionCampaignStatus moves a campaign between statuses, guarded by
// the expected current status so concurrent workers cannot double-apply.
func (s *Store) TransitionCampaignStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	if !ValidCampaignTransition(from, to) {
		return fmt.Errorf("%w: campaign cannot move from %s to %s", errdefs.ErrInvalidState, from, to)
	}
	query := `UPDATE warmup_campaigns SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	result, err := s.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: campaign is no longer %s", errdefs.ErrInvalidState, from)
	}
	return nil
}

// StartCampaignRun activates a pending campaign and records its ramp plan
func (s *Store) StartCampaignRun(ctx context.Context, id uuid.UUID, durationWeeks int, startTime, nextSendTime time.Time) error {
	query := `UPDATE warmup_campaigns SET status = $2, duration_weeks = $3, start_time = $4,
		next_send_time = $5, updated_at = NOW() WHERE id = $1 AND status = $6`
	result, err := s.db.ExecContext(ctx, query, id, CampaignActive, durationWeeks, startTime, nextSendTime, CampaignPending)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: campaign is not pending", errdefs.ErrInvalidState)
	}
	return nil
}

// CompleteCampaign marks an active campaign as finished
func (s *Store) CompleteCampaign(ctx context.Context, id uuid.UUID, endTime time.Time) error {
	query := `UPDATE warmup_campaigns SET status = $2, end_time = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`
	result, err := s.db.ExecContext(ctx, query, id, CampaignCompleted, endTime, CampaignActive)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: campaign is not active", errdefs.ErrInvalidState)
	}
	return nil
}

// SetDailyPlan records today's target and the current ramp week
func (s *Store) SetDailyPlan(ctx context.Context, id uuid.UUID, currentWeek, target int) error {
	query := `UPDATE warmup_campaigns SET current_week = $2, target_emails_today = $3,
		updated_at = NOW() WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id, currentWeek, target)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SetNextSendTime schedules the next batch for a campaign
func (s *Store) SetNextSendTime(ctx context.Context, id uuid.UUID, next *time.Time) error {
	query := `UPDATE warmup_campaigns SET next_send_time = $2, updated_at = NOW() WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id, next)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// RecordCampaignSend bumps the send counters after a successful delivery
func (s *Store) RecordCampaignSend(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	query := `UPDATE warmup_campaigns SET emails_sent_today = emails_sent_today + 1,
		total_emails_sent = total_emails_sent + 1, last_send_time = $2, updated_at = NOW()
		WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id, sentAt)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// campaignCounters whitelists the columns IncrementCampaignCounter may touch
var campaignCounters = map[string]bool{
	"total_emails_opened":  true,
	"total_emails_replied": true,
	"total_emails_bounced": true,
}

// IncrementCampaignCounter adds delta to one of the engagement counters
func (s *Store) IncrementCampaignCounter(ctx context.Context, id uuid.UUID, counter string, delta int) error {
	if !campaignCounters[counter] {
		return fmt.Errorf("%w: unknown campaign counter %q", errdefs.ErrInvalidInput, counter)
	}
	query := fmt.Sprintf(`UPDATE warmup_campaigns SET %s = %s + $2, updated_at = NOW() WHERE id = $1`, counter, counter)
	result, err := s.db.ExecContext(ctx, query, id, delta)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ResetDailyCounters zeroes emails_sent_today on all active campaigns
func (s *Store) ResetDailyCounters(ctx context.Context) (int64, error) {
	query := `UPDATE warmup_campaigns SET emails_sent_today = 0, updated_at = NOW() WHERE status = $1`
	result, err := s.db.ExecContext(ctx, query, CampaignActive)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ResyncCampaignCounters recomputes campaign aggregates from the email log.
// Used when counter drift is suspected, for example after a crashed batch.
func (s *Store) ResyncCampaignCounters(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE warmup_campaigns SET
		total_emails_sent = (SELECT COUNT(*) FROM warmup_emails WHERE campaign_id = $1 AND sent_at IS NOT NULL),
		total_emails_opened = (SELECT COUNT(*) FROM warmup_emails WHERE campaign_id = $1 AND opened_at IS NOT NULL),
		total_emails_replied = (SELECT COUNT(*) FROM warmup_emails WHERE campaign_id = $1 AND replied_at IS NOT NULL),
		total_emails_bounced = (SELECT COUNT(*) FROM warmup_emails WHERE campaign_id = $1 AND status = 'bounced'),
		emails_sent_today = (SELECT COUNT(*) FROM warmup_emails WHERE campaign_id = $1 AND sent_at >= date_trunc('day', NOW() AT TIME ZONE 'utc')),
		updated_at = NOW()
		WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteCampaign removes a campaign and its emails
func (s *Store) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM warmup_campaigns WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// CampaignAccountStats holds one account's counters within a campaign
type CampaignAccountStats struct {
	AccountID  uuid.UUID `json:"account_id"`
	Email      string    `json:"email"`
	Sent       int       `json:"sent"`
	Received   int       `json:"received"`
	Opened     int       `json:"opened"`
	Replied    int       `json:"replied"`
	Bounced    int       `json:"bounced"`
	OpenRate   float64   `json:"open_rate"`
	ReplyRate  float64   `json:"reply_rate"`
	BounceRate float64   `json:"bounce_rate"`
}

// CampaignSenderStats aggregates the campaign's email log per sender
func (s *Store) CampaignSenderStats(ctx context.Context, campaignID uuid.UUID) ([]*CampaignAccountStats, error) {
	query := `SELECT e.sender_id, a.email,
		SUM(CASE WHEN e.sent_at IS NOT NULL THEN 1 ELSE 0 END),
		SUM(CASE WHEN e.opened_at IS NOT NULL THEN 1 ELSE 0 END),
		SUM(CASE WHEN e.replied_at IS NOT NULL THEN 1 ELSE 0 END),
		SUM(CASE WHEN e.status = 'bounced' THEN 1 ELSE 0 END)
		FROM warmup_emails e
		JOIN warmup_accounts a ON a.id = e.sender_id
		WHERE e.campaign_id = $1
		GROUP BY e.sender_id, a.email
		ORDER BY a.email`

	rows, err := s.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*CampaignAccountStats
	for rows.Next() {
		st := &CampaignAccountStats{}
		if err := rows.Scan(&st.AccountID, &st.Email, &st.Sent, &st.Opened,
			&st.Replied, &st.Bounced); err != nil {
			return nil, err
		}
		if st.Sent > 0 {
			st.OpenRate = float64(st.Opened) / float64(st.Sent)
			st.ReplyRate = float64(st.Replied) / float64(st.Sent)
			st.BounceRate = float64(st.Bounced) / float64(st.Sent)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// CampaignReceiverStats aggregates the campaign's email log per receiver
func (s *Store) CampaignReceiverStats(ctx context.Context, campaignID uuid.UUID) ([]*CampaignAccountStats, error) {
	query := `SELECT e.receiver_id, a.email,
		SUM(CASE WHEN e.status IN ('sent', 'delivered', 'opened', 'replied') THEN 1 ELSE 0 END),
		SUM(CASE WHEN e.opened_at IS NOT NULL THEN 1 ELSE 0 END),
		SUM(CASE WHEN e.status = 'replied' THEN 1 ELSE 0 END)
		FROM warmup_emails e
		JOIN warmup_accounts a ON a.id = e.receiver_id
		WHERE e.campaign_id = $1
		GROUP BY e.receiver_id, a.email
		ORDER BY a.email`

	rows, err := s.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*CampaignAccountStats
	for rows.Next() {
		st := &CampaignAccountStats{}
		if err := rows.Scan(&st.AccountID, &st.Email, &st.Received, &st.Opened,
			&st.Replied); err != nil {
			return nil, err
		}
		if st.Received > 0 {
			st.OpenRate = float64(st.Opened) / float64(st.Received)
			st.ReplyRate = float64(st.Replied) / float64(st.Received)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
