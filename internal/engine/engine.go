// Package engine drives the warm-up lifecycle: the scheduler ramps
// outbound volume per campaign, the conversation loop answers warmup
// mail from receiver inboxes, and the bounce sweep back-links delivery
// failures to the emails that caused them. All clock, randomness and
// transport access goes through injectable fields so the behavior is
// testable without wall time or live mailboxes.
package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/inboxforge/warmline/internal/aigen"
	"github.com/inboxforge/warmline/internal/config"
	"github.com/inboxforge/warmline/internal/domaincheck"
	"github.com/inboxforge/warmline/internal/mailer"
	"github.com/inboxforge/warmline/internal/store"
	"github.com/inboxforge/warmline/internal/tracking"
	"github.com/inboxforge/warmline/internal/vault"
)

const (
	// sendTimeout bounds each SMTP transaction and each IMAP sweep.
	sendTimeout = 30 * time.Second

	// inboxFetchLimit caps how many unread messages one sweep pulls.
	inboxFetchLimit = 50

	// recentSentWindow is how far back the bounce detector searches
	// when matching a notification to the original outbound email.
	recentSentWindow = 10
)

// ContentGenerator produces warmup email content. Satisfied by
// *aigen.Generator; it never fails, the template fallback is the floor.
type ContentGenerator interface {
	Generate(ctx context.Context, req aigen.Request) *aigen.Content
	GenerateReply(ctx context.Context, originalSubject, originalBody, senderName, language string) *aigen.Content
}

// DomainProfiler resolves a sender domain's age profile. Satisfied by
// *domaincheck.Checker.
type DomainProfiler interface {
	CheckDomain(ctx context.Context, emailOrDomain string) *domaincheck.Profile
}

// AccountMailer is the per-account transport surface the engine drives.
// Satisfied by *mailer.Transport.
type AccountMailer interface {
	Send(ctx context.Context, msg *mailer.Message) (string, error)
	FetchUnread(ctx context.Context, limit int) ([]*mailer.Inbound, error)
	RestoreUnseen(ctx context.Context, uids []uint32) error
}

// Engine coordinates scheduling, conversation and bounce handling over
// one shared store.
type Engine struct {
	store    *store.Store
	vault    *vault.Vault
	gen      ContentGenerator
	domains  DomainProfiler
	tokens   *tracking.Service
	signer   *aigen.SignatureRenderer
	warmup   config.WarmupConfig
	response config.ResponseConfig

	newMailer func(account *store.Account, password string) AccountMailer
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	rng *rand.Rand
}

// New wires the engine against real transports and the wall clock. A
// nil signer signs with the account's display name.
func New(st *store.Store, vlt *vault.Vault, gen ContentGenerator, domains DomainProfiler, tokens *tracking.Service, signer *aigen.SignatureRenderer, cfg *config.Config) *Engine {
	if signer == nil {
		signer, _ = aigen.NewSignatureRenderer("")
	}
	return &Engine{
		store:    st,
		vault:    vlt,
		gen:      gen,
		domains:  domains,
		tokens:   tokens,
		signer:   signer,
		warmup:   cfg.Warmup,
		response: cfg.Response,
		newMailer: func(account *store.Account, password string) AccountMailer {
			return mailer.New(account, password)
		},
		now:   time.Now,
		sleep: sleepContext,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// sleepContext waits for d unless the context ends first, so a paused
// worker shutdown does not hang on a ten-minute slot delay.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// signatureFor resolves the name outgoing mail from this account is
// signed with: the configured signature template rendered against the
// account's identity, or its display name when no template is set.
func (e *Engine) signatureFor(a *store.Account) string {
	return e.signer.Render(a.FirstName, a.LastName, a.Email, a.FullName())
}

func (e *Engine) randIntn(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Intn(n)
}

func (e *Engine) randInt63n(n int64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Int63n(n)
}

func (e *Engine) randFloat() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

func (e *Engine) shuffleSlots(slots []*store.Account) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rng.Shuffle(len(slots), func(i, j int) {
		slots[i], slots[j] = slots[j], slots[i]
	})
}
