package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/inboxforge/warmline/internal/errdefs"
)

// Store provides database operations for warmup entities
type Store struct {
	db *sql.DB
}

// NewStore creates a new warmup store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks
func (s *Store) DB() *sql.DB {
	return s.db
}

// mapError translates Postgres constraint violations into integrity
// errors so callers can distinguish them from transient failures.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "23503", "23514":
			return fmt.Errorf("%w: %s", errdefs.ErrIntegrity, pqErr.Message)
		}
	}
	return err
}
