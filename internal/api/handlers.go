// Package api exposes the warm-up service over REST: account and
// campaign management, metrics, AI key accounting and the manual
// process trigger. Tracking pixel and webhook routes are registered
// here too but implemented by the tracking package.
package api

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/inboxforge/warmline/internal/engine"
	"github.com/inboxforge/warmline/internal/mailer"
	"github.com/inboxforge/warmline/internal/ratelimit"
	"github.com/inboxforge/warmline/internal/store"
	"github.com/inboxforge/warmline/internal/vault"
)

const apiVersion = "0.1.0"

// probeFunc verifies an account's SMTP and IMAP credentials. Swappable
// in tests so handlers never open real connections.
type probeFunc func(ctx context.Context, account *store.Account, password string) *mailer.ProbeResult

// Handlers carries the dependencies shared by all REST handlers
type Handlers struct {
	store    *store.Store
	engine   *engine.Engine
	vault    *vault.Vault
	profiler engine.DomainProfiler
	ledger   ratelimit.Ledger
	db       *sql.DB
	redis    *redis.Client
	probe    probeFunc
}

// NewHandlers creates the REST handler set. The redis client may be nil;
// the process endpoint then falls back to Postgres advisory locks.
func NewHandlers(st *store.Store, eng *engine.Engine, vlt *vault.Vault,
	profiler engine.DomainProfiler, ledger ratelimit.Ledger,
	db *sql.DB, rdb *redis.Client) *Handlers {
	return &Handlers{
		store:    st,
		engine:   eng,
		vault:    vlt,
		profiler: profiler,
		ledger:   ledger,
		db:       db,
		redis:    rdb,
		probe: func(ctx context.Context, account *store.Account, password string) *mailer.ProbeResult {
			return mailer.New(account, password).TestConnection(ctx)
		},
	}
}

// HandleRoot identifies the service
func (h *Handlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"name":        "warmline",
		"version":     apiVersion,
		"description": "AI-powered email warm-up service",
	})
}
