package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/inboxforge/warmline/internal/errdefs"
)

const accountColumns = `id, email, account_type, first_name, last_name, smtp_host, smtp_port,
	smtp_use_tls, imap_host, imap_port, imap_use_ssl, encrypted_password, domain,
	domain_age_days, domain_checked_at, current_daily_limit, warmup_started_at,
	total_sent, total_received, total_opened, total_replied, total_bounced,
	status, created_at, updated_at`

// DomainOf extracts the domain part of an email address
func DomainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return strings.ToLower(email[i+1:])
	}
	return ""
}

// CreateAccount creates a new warmup account
func (s *Store) CreateAccount(ctx context.Context, account *Account) error {
	account.ID = uuid.New()
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	account.CreatedAt = time.Now().UTC()
	account.UpdatedAt = account.CreatedAt
	if account.SMTPPort == 0 {
		account.SMTPPort = 587
	}
	if account.IMAPPort == 0 {
		account.IMAPPort = 993
	}
	if account.CurrentDailyLimit == 0 {
		account.CurrentDailyLimit = 5
	}
	if account.Status == "" {
		account.Status = AccountActive
	}
	if account.Domain == "" {
		account.Domain = DomainOf(account.Email)
	}

	query := `INSERT INTO warmup_accounts (id, email, account_type, first_name, last_name,
		smtp_host, smtp_port, smtp_use_tls, imap_host, imap_port, imap_use_ssl,
		encrypted_password, domain, domain_age_days, domain_checked_at, current_daily_limit,
		warmup_started_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := s.db.ExecContext(ctx, query, account.ID, account.Email, account.AccountType,
		account.FirstName, account.LastName, account.SMTPHost, account.SMTPPort, account.SMTPUseTLS,
		account.IMAPHost, account.IMAPPort, account.IMAPUseSSL, account.EncryptedPassword,
		account.Domain, account.DomainAgeDays, account.DomainCheckedAt, account.CurrentDailyLimit,
		account.WarmupStartedAt, account.Status, account.CreatedAt, account.UpdatedAt)
	return mapError(err)
}

func scanAccount(row interface{ Scan(...interface{}) error }) (*Account, error) {
	a := &Account{}
	err := row.Scan(&a.ID, &a.Email, &a.AccountType, &a.FirstName, &a.LastName,
		&a.SMTPHost, &a.SMTPPort, &a.SMTPUseTLS, &a.IMAPHost, &a.IMAPPort, &a.IMAPUseSSL,
		&a.EncryptedPassword, &a.Domain, &a.DomainAgeDays, &a.DomainCheckedAt,
		&a.CurrentDailyLimit, &a.WarmupStartedAt, &a.TotalSent, &a.TotalReceived,
		&a.TotalOpened, &a.TotalReplied, &a.TotalBounced, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAccount retrieves an account by ID
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM warmup_accounts WHERE id = $1`, accountColumns)
	account, err := scanAccount(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return account, err
}

// GetAccountByEmail retrieves an account by its email address
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM warmup_accounts WHERE LOWER(email) = LOWER($1)`, accountColumns)
	account, err := scanAccount(s.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return account, err
}

// ListAccounts retrieves accounts with optional type and status filters
func (s *Store) ListAccounts(ctx context.Context, accountType, status string) ([]*Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM warmup_accounts WHERE 1=1`, accountColumns)
	args := []interface{}{}
	if accountType != "" {
		args = append(args, accountType)
		query += fmt.Sprintf(" AND account_type = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// GetAccountsByIDs retrieves the accounts matching the given IDs
func (s *Store) GetAccountsByIDs(ctx context.Context, ids []uuid.UUID) ([]*Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM warmup_accounts WHERE id = ANY($1) ORDER BY created_at`, accountColumns)

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// UpdateAccount persists connection, naming and status fields
func (s *Store) UpdateAccount(ctx context.Context, account *Account) error {
	account.UpdatedAt = time.Now().UTC()

	query := `UPDATE warmup_accounts SET first_name = $2, last_name = $3, smtp_host = $4,
		smtp_port = $5, smtp_use_tls = $6, imap_host = $7, imap_port = $8, imap_use_ssl = $9,
		encrypted_password = $10, current_daily_limit = $11, status = $12, updated_at = $13
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, account.ID, account.FirstName, account.LastName,
		account.SMTPHost, account.SMTPPort, account.SMTPUseTLS, account.IMAPHost, account.IMAPPort,
		account.IMAPUseSSL, account.EncryptedPassword, account.CurrentDailyLimit, account.Status,
		account.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return requireRow(result)
}

// UpdateAccountStatus sets the status of an account
func (s *Store) UpdateAccountStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `UPDATE warmup_accounts SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateDomainInfo records the result of a WHOIS domain age check
func (s *Store) UpdateDomainInfo(ctx context.Context, id uuid.UUID, domain string, ageDays *int, checkedAt time.Time) error {
	query := `UPDATE warmup_accounts SET domain = $2, domain_age_days = $3,
		domain_checked_at = $4, updated_at = NOW() WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id, domain, ageDays, checkedAt)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// MarkWarmupStarted sets warmup_started_at if the account has none yet
func (s *Store) MarkWarmupStarted(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	query := `UPDATE warmup_accounts SET warmup_started_at = $2, updated_at = NOW()
		WHERE id = $1 AND warmup_started_at IS NULL`
	_, err := s.db.ExecContext(ctx, query, id, startedAt)
	return err
}

// DeleteAccount removes an account and its emails
func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM warmup_accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// accountCounters whitelists the columns IncrementAccountCounter may touch
var accountCounters = map[string]bool{
	"total_sent":     true,
	"total_received": true,
	"total_opened":   true,
	"total_replied":  true,
	"total_bounced":  true,
}

// IncrementAccountCounter adds delta to one of the lifetime counters
func (s *Store) IncrementAccountCounter(ctx context.Context, id uuid.UUID, counter string, delta int) error {
	if !accountCounters[counter] {
		return fmt.Errorf("%w: unknown account counter %q", errdefs.ErrInvalidInput, counter)
	}
	query := fmt.Sprintf(`UPDATE warmup_accounts SET %s = %s + $2, updated_at = NOW() WHERE id = $1`, counter, counter)
	result, err := s.db.ExecContext(ctx, query, id, delta)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// requireRow turns a zero-row update into a not found error
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errdefs.ErrNotFound
	}
	return nil
}
