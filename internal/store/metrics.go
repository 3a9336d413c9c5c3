package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SystemCounts holds the system-wide aggregates behind /metrics/system
type SystemCounts struct {
	TotalAccounts   int
	ActiveAccounts  int
	TotalCampaigns  int
	ActiveCampaigns int
	TotalSent       int
	TotalReceived   int
	TotalOpened     int
	TotalReplied    int
	TotalBounced    int
	EmailsSentToday int
}

// SystemMetrics aggregates accounts, campaigns and today's send volume
func (s *Store) SystemMetrics(ctx context.Context, now time.Time) (*SystemCounts, error) {
	counts := &SystemCounts{}

	accountQuery := `SELECT COUNT(*),
		SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END),
		COALESCE(SUM(total_sent), 0), COALESCE(SUM(total_received), 0),
		COALESCE(SUM(total_opened), 0), COALESCE(SUM(total_replied), 0),
		COALESCE(SUM(total_bounced), 0)
		FROM warmup_accounts`
	err := s.db.QueryRowContext(ctx, accountQuery).Scan(&counts.TotalAccounts,
		&counts.ActiveAccounts, &counts.TotalSent, &counts.TotalReceived,
		&counts.TotalOpened, &counts.TotalReplied, &counts.TotalBounced)
	if err != nil {
		return nil, err
	}

	campaignQuery := `SELECT COUNT(*), SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END)
		FROM warmup_campaigns`
	err = s.db.QueryRowContext(ctx, campaignQuery).Scan(&counts.TotalCampaigns, &counts.ActiveCampaigns)
	if err != nil {
		return nil, err
	}

	// Counts by sent_at alone: a sent row keeps its timestamp when a
	// reply or bounce later advances its status.
	dayStart := now.UTC().Truncate(24 * time.Hour)
	todayQuery := `SELECT COUNT(*) FROM warmup_emails
		WHERE sent_at >= $1 AND sent_at < $2`
	err = s.db.QueryRowContext(ctx, todayQuery, dayStart, dayStart.Add(24*time.Hour)).
		Scan(&counts.EmailsSentToday)
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// DailySummaries aggregates metric rows across all accounts per day for
// the last N days, newest first. Rates are recomputed from the summed
// counts rather than averaged.
func (s *Store) DailySummaries(ctx context.Context, since time.Time) ([]*DailyMetric, error) {
	query := `SELECT date, COALESCE(SUM(emails_sent), 0), COALESCE(SUM(emails_received), 0),
		COALESCE(SUM(emails_opened), 0), COALESCE(SUM(emails_replied), 0),
		COALESCE(SUM(emails_bounced), 0), COALESCE(SUM(emails_failed), 0)
		FROM warmup_metrics WHERE date >= $1 GROUP BY date ORDER BY date DESC`

	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*DailyMetric
	for rows.Next() {
		m := &DailyMetric{}
		if err := rows.Scan(&m.Date, &m.EmailsSent, &m.EmailsReceived, &m.EmailsOpened,
			&m.EmailsReplied, &m.EmailsBounced, &m.EmailsFailed); err != nil {
			return nil, err
		}
		m.OpenRate, m.ReplyRate, m.BounceRate = metricRates(m.EmailsSent, m.EmailsReceived,
			m.EmailsOpened, m.EmailsReplied, m.EmailsBounced)
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// MetricsByAccount returns the stored daily rows for one account since
// the given date, newest first
func (s *Store) MetricsByAccount(ctx context.Context, accountID uuid.UUID, since time.Time) ([]*DailyMetric, error) {
	query := `SELECT id, account_id, date, emails_sent, emails_received, emails_opened,
		emails_replied, emails_bounced, emails_failed, open_rate, reply_rate, bounce_rate, created_at
		FROM warmup_metrics WHERE account_id = $1 AND date >= $2 ORDER BY date DESC`

	rows, err := s.db.QueryContext(ctx, query, accountID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*DailyMetric
	for rows.Next() {
		m := &DailyMetric{}
		if err := rows.Scan(&m.ID, &m.AccountID, &m.Date, &m.EmailsSent, &m.EmailsReceived,
			&m.EmailsOpened, &m.EmailsReplied, &m.EmailsBounced, &m.EmailsFailed,
			&m.OpenRate, &m.ReplyRate, &m.BounceRate, &m.CreatedAt); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// CountDailyActivity derives one account's counts for a single UTC day
// from the email log. Sent, opened, replied and bounced are credited to
// the sender side; received to the receiver side.
func (s *Store) CountDailyActivity(ctx context.Context, accountID uuid.UUID, day time.Time) (*DailyMetric, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `SELECT
		(SELECT COUNT(*) FROM warmup_emails WHERE sender_id = $1 AND sent_at >= $2 AND sent_at < $3),
		(SELECT COUNT(*) FROM warmup_emails WHERE receiver_id = $1 AND status IN ('sent', 'delivered', 'opened', 'replied') AND sent_at >= $2 AND sent_at < $3),
		(SELECT COUNT(*) FROM warmup_emails WHERE sender_id = $1 AND opened_at >= $2 AND opened_at < $3),
		(SELECT COUNT(*) FROM warmup_emails WHERE sender_id = $1 AND in_reply_to IS NOT NULL AND sent_at >= $2 AND sent_at < $3),
		(SELECT COUNT(*) FROM warmup_emails WHERE sender_id = $1 AND status = 'bounced' AND bounced_at >= $2 AND bounced_at < $3),
		(SELECT COUNT(*) FROM warmup_emails WHERE sender_id = $1 AND status = 'failed' AND created_at >= $2 AND created_at < $3)`

	m := &DailyMetric{AccountID: accountID, Date: dayStart}
	err := s.db.QueryRowContext(ctx, query, accountID, dayStart, dayEnd).Scan(
		&m.EmailsSent, &m.EmailsReceived, &m.EmailsOpened, &m.EmailsReplied,
		&m.EmailsBounced, &m.EmailsFailed)
	if err != nil {
		return nil, err
	}
	m.OpenRate, m.ReplyRate, m.BounceRate = metricRates(m.EmailsSent, m.EmailsReceived,
		m.EmailsOpened, m.EmailsReplied, m.EmailsBounced)
	return m, nil
}

// UpsertDailyMetric writes one (account, date) row, replacing any
// existing counts for that day
func (s *Store) UpsertDailyMetric(ctx context.Context, m *DailyMetric) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO warmup_metrics (id, account_id, date, emails_sent, emails_received,
		emails_opened, emails_replied, emails_bounced, emails_failed, open_rate, reply_rate,
		bounce_rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (account_id, date) DO UPDATE SET emails_sent = EXCLUDED.emails_sent,
		emails_received = EXCLUDED.emails_received, emails_opened = EXCLUDED.emails_opened,
		emails_replied = EXCLUDED.emails_replied, emails_bounced = EXCLUDED.emails_bounced,
		emails_failed = EXCLUDED.emails_failed, open_rate = EXCLUDED.open_rate,
		reply_rate = EXCLUDED.reply_rate, bounce_rate = EXCLUDED.bounce_rate`

	_, err := s.db.ExecContext(ctx, query, m.ID, m.AccountID, m.Date, m.EmailsSent,
		m.EmailsReceived, m.EmailsOpened, m.EmailsReplied, m.EmailsBounced, m.EmailsFailed,
		m.OpenRate, m.ReplyRate, m.BounceRate, m.CreatedAt)
	return mapError(err)
}

// metricRates derives open, reply and bounce rates from raw counts.
// Opens and bounces are relative to sent mail, replies to received.
func metricRates(sent, received, opened, replied, bounced int) (openRate, replyRate, bounceRate float64) {
	if sent > 0 {
		openRate = float64(opened) / float64(sent)
		bounceRate = float64(bounced) / float64(sent)
	}
	if received > 0 {
		replyRate = float64(replied) / float64(received)
	}
	return openRate, replyRate, bounceRate
}
