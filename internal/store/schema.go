package store

import "context"

// schemaStatements holds the DDL for all warmup tables. Statements are
// idempotent so Migrate can run at every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS warmup_accounts (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		account_type VARCHAR(20) NOT NULL,
		first_name VARCHAR(100) NOT NULL DEFAULT '',
		last_name VARCHAR(100) NOT NULL DEFAULT '',
		smtp_host VARCHAR(255) NOT NULL DEFAULT '',
		smtp_port INTEGER NOT NULL DEFAULT 587,
		smtp_use_tls BOOLEAN NOT NULL DEFAULT TRUE,
		imap_host VARCHAR(255) NOT NULL DEFAULT '',
		imap_port INTEGER NOT NULL DEFAULT 993,
		imap_use_ssl BOOLEAN NOT NULL DEFAULT TRUE,
		encrypted_password TEXT NOT NULL DEFAULT '',
		domain VARCHAR(255) NOT NULL DEFAULT '',
		domain_age_days INTEGER,
		domain_checked_at TIMESTAMPTZ,
		current_daily_limit INTEGER NOT NULL DEFAULT 5,
		warmup_started_at TIMESTAMPTZ,
		total_sent INTEGER NOT NULL DEFAULT 0,
		total_received INTEGER NOT NULL DEFAULT 0,
		total_opened INTEGER NOT NULL DEFAULT 0,
		total_replied INTEGER NOT NULL DEFAULT 0,
		total_bounced INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_warmup_accounts_type ON warmup_accounts(account_type)`,
	`CREATE INDEX IF NOT EXISTS idx_warmup_accounts_status ON warmup_accounts(status)`,

	`CREATE TABLE IF NOT EXISTS warmup_campaigns (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		sender_ids UUID[] NOT NULL DEFAULT '{}',
		receiver_ids UUID[] NOT NULL DEFAULT '{}',
		language VARCHAR(10) NOT NULL DEFAULT 'en',
		duration_weeks INTEGER NOT NULL DEFAULT 6,
		current_week INTEGER NOT NULL DEFAULT 1,
		start_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_time TIMESTAMPTZ,
		next_send_time TIMESTAMPTZ,
		last_send_time TIMESTAMPTZ,
		emails_sent_today INTEGER NOT NULL DEFAULT 0,
		target_emails_today INTEGER NOT NULL DEFAULT 0,
		total_emails_sent INTEGER NOT NULL DEFAULT 0,
		total_emails_opened INTEGER NOT NULL DEFAULT 0,
		total_emails_replied INTEGER NOT NULL DEFAULT 0,
		total_emails_bounced INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_warmup_campaigns_status ON warmup_campaigns(status)`,

	`CREATE TABLE IF NOT EXISTS warmup_emails (
		id UUID PRIMARY KEY,
		message_id TEXT UNIQUE,
		campaign_id UUID REFERENCES warmup_campaigns(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL REFERENCES warmup_accounts(id) ON DELETE CASCADE,
		receiver_id UUID NOT NULL REFERENCES warmup_accounts(id) ON DELETE CASCADE,
		subject TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		in_reply_to TEXT,
		thread_id TEXT,
		is_warmup BOOLEAN NOT NULL DEFAULT TRUE,
		ai_generated BOOLEAN NOT NULL DEFAULT FALSE,
		ai_prompt TEXT NOT NULL DEFAULT '',
		ai_model VARCHAR(100) NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		sent_at TIMESTAMPTZ,
		delivered_at TIMESTAMPTZ,
		opened_at TIMESTAMPTZ,
		replied_at TIMESTAMPTZ,
		bounced_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_warmup_emails_campaign ON warmup_emails(campaign_id)`,
	`CREATE INDEX IF NOT EXISTS idx_warmup_emails_sender ON warmup_emails(sender_id)`,
	`CREATE INDEX IF NOT EXISTS idx_warmup_emails_in_reply_to ON warmup_emails(in_reply_to)`,
	`CREATE INDEX IF NOT EXISTS idx_warmup_emails_thread ON warmup_emails(thread_id)`,
	`CREATE INDEX IF NOT EXISTS idx_warmup_emails_status ON warmup_emails(status)`,

	`CREATE TABLE IF NOT EXISTS warmup_metrics (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES warmup_accounts(id) ON DELETE CASCADE,
		date DATE NOT NULL,
		emails_sent INTEGER NOT NULL DEFAULT 0,
		emails_received INTEGER NOT NULL DEFAULT 0,
		emails_opened INTEGER NOT NULL DEFAULT 0,
		emails_replied INTEGER NOT NULL DEFAULT 0,
		emails_bounced INTEGER NOT NULL DEFAULT 0,
		emails_failed INTEGER NOT NULL DEFAULT 0,
		open_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		reply_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		bounce_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(account_id, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_warmup_metrics_date ON warmup_metrics(date)`,
}

// Migrate creates the warmup schema if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
