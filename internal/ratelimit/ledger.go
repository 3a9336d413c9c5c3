// Package ratelimit tracks per-API-key request budgets across minute
// and day windows so the AI generator can rotate keys before a
// provider starts rejecting calls.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Limits holds the request budget for one provider tier
type Limits struct {
	RPM int
	RPD int
}

// DefaultLimits carries the free-tier budgets per provider
var DefaultLimits = map[string]Limits{
	"openrouter": {RPM: 20, RPD: 50},
	"groq":       {RPM: 30, RPD: 1000},
	"openai":     {RPM: 60, RPD: 200},
}

// Key identifies one registered API key
type Key struct {
	ID       string
	Provider string
}

// KeyStatus is a point-in-time snapshot of one key's accounting
type KeyStatus struct {
	KeyID              string    `json:"key_id"`
	Provider           string    `json:"provider"`
	RPMLimit           int       `json:"rpm_limit"`
	RPDLimit           int       `json:"rpd_limit"`
	RequestsThisMinute int       `json:"requests_this_minute"`
	RequestsToday      int       `json:"requests_today"`
	RemainingRPM       int       `json:"remaining_rpm"`
	RemainingRPD       int       `json:"remaining_rpd"`
	RequestsLastHour   int       `json:"requests_last_hour"`
	Exhausted          bool      `json:"exhausted"`
	LastRequest        time.Time `json:"last_request"`
	MinuteReset        time.Time `json:"minute_reset"`
	DayReset           time.Time `json:"day_reset"`
}

// Ledger is the accounting surface shared by the in-process and the
// Redis-backed implementations. Checks never return errors: a broken
// backend fails open so mail generation keeps running.
type Ledger interface {
	// CanUse reports whether the key has budget left, with a human
	// readable reason when it does not.
	CanUse(ctx context.Context, keyID string) (bool, string)
	// Record accounts one request against the key. Returns false when
	// the key is out of budget and the request was not accounted.
	Record(ctx context.Context, keyID string) bool
	// AvailableKey picks the provider's key with the most remaining
	// budget, or "" when every key is exhausted.
	AvailableKey(ctx context.Context, provider string) string
	// Statuses snapshots all keys, ordered by key id.
	Statuses(ctx context.Context) []KeyStatus
	// RequestRate reports the requests observed for the key in the
	// trailing hour.
	RequestRate(ctx context.Context, keyID string) float64
	// SaturationForecast estimates when the key's daily budget runs
	// out at the current hourly rate. Nil when the key is idle or
	// saturation is more than 24 hours away.
	SaturationForecast(ctx context.Context, keyID string) *time.Time
	// Reset clears both windows for the key.
	Reset(ctx context.Context, keyID string)
}

// historyCap bounds the per-key request history ring. Time-based
// pruning already keeps it to one hour of requests; the cap only backs
// that up against a pathological burst.
const historyCap = 3600

type keyState struct {
	provider    string
	rpmLimit    int
	rpdLimit    int
	minuteCount int
	dayCount    int
	minuteReset time.Time
	dayReset    time.Time
	history     []time.Time
	lastRequest time.Time
	exhausted   bool
}

// MemoryLedger is the single-process ledger. All methods are safe for
// concurrent use.
type MemoryLedger struct {
	mu   sync.Mutex
	keys map[string]*keyState
	now  func() time.Time
}

// NewMemoryLedger registers the given keys with their provider's
// default limits. Keys of unknown providers are skipped.
func NewMemoryLedger(keys []Key) *MemoryLedger {
	l := &MemoryLedger{
		keys: make(map[string]*keyState),
		now:  time.Now,
	}
	for _, key := range keys {
		limits, ok := DefaultLimits[key.Provider]
		if !ok {
			log.Printf("[RateLimit] no default limits for provider %s, skipping %s", key.Provider, key.ID)
			continue
		}
		l.keys[key.ID] = &keyState{
			provider:    key.Provider,
			rpmLimit:    limits.RPM,
			rpdLimit:    limits.RPD,
			minuteReset: l.now().Add(time.Minute),
			dayReset:    nextUTCMidnight(l.now()),
		}
	}
	log.Printf("[RateLimit] tracking %d API keys", len(l.keys))
	return l
}

// SetKeyLimits overrides the budget for one key
func (l *MemoryLedger) SetKeyLimits(keyID string, rpm, rpd int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if state, ok := l.keys[keyID]; ok {
		state.rpmLimit = rpm
		state.rpdLimit = rpd
	}
}

// CanUse reports whether the key has budget in both windows
func (l *MemoryLedger) CanUse(_ context.Context, keyID string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.keys[keyID]
	if !ok {
		return true, ""
	}
	l.applyResets(state)

	now := l.now()
	if state.minuteCount >= state.rpmLimit {
		wait := int(state.minuteReset.Sub(now).Seconds())
		if wait < 0 {
			wait = 0
		}
		return false, fmt.Sprintf("RPM limit reached. Wait %ds.", wait)
	}
	if state.dayCount >= state.rpdLimit {
		wait := int(state.dayReset.Sub(now).Hours())
		if wait < 0 {
			wait = 0
		}
		return false, fmt.Sprintf("Daily limit reached. Wait %dh.", wait)
	}
	return true, ""
}

// Record accounts one request, refusing when a window is full
func (l *MemoryLedger) Record(_ context.Context, keyID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.keys[keyID]
	if !ok {
		log.Printf("[RateLimit] unknown key %s", keyID)
		return true
	}
	l.applyResets(state)

	if state.minuteCount >= state.rpmLimit {
		log.Printf("[RateLimit] %s: RPM limit reached (%d)", keyID, state.rpmLimit)
		state.exhausted = true
		return false
	}
	if state.dayCount >= state.rpdLimit {
		log.Printf("[RateLimit] %s: daily limit reached (%d)", keyID, state.rpdLimit)
		state.exhausted = true
		return false
	}

	now := l.now()
	state.minuteCount++
	state.dayCount++
	state.lastRequest = now
	state.exhausted = false
	state.history = append(state.history, now)
	state.pruneHistory(now)
	return true
}

// AvailableKey returns the provider key with the most remaining budget
func (l *MemoryLedger) AvailableKey(_ context.Context, provider string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	bestKey := ""
	bestRemaining := -1
	for keyID, state := range l.keys {
		if state.provider != provider {
			continue
		}
		l.applyResets(state)
		if state.minuteCount >= state.rpmLimit || state.dayCount >= state.rpdLimit {
			continue
		}
		remaining := state.rpmLimit - state.minuteCount
		if r := state.rpdLimit - state.dayCount; r < remaining {
			remaining = r
		}
		if remaining > bestRemaining || (remaining == bestRemaining && keyID < bestKey) {
			bestRemaining = remaining
			bestKey = keyID
		}
	}
	return bestKey
}

// Statuses snapshots every key, ordered by key id
func (l *MemoryLedger) Statuses(_ context.Context) []KeyStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	statuses := make([]KeyStatus, 0, len(l.keys))
	for keyID, state := range l.keys {
		l.applyResets(state)
		state.pruneHistory(l.now())
		statuses = append(statuses, KeyStatus{
			KeyID:              keyID,
			Provider:           state.provider,
			RPMLimit:           state.rpmLimit,
			RPDLimit:           state.rpdLimit,
			RequestsThisMinute: state.minuteCount,
			RequestsToday:      state.dayCount,
			RemainingRPM:       maxInt(0, state.rpmLimit-state.minuteCount),
			RemainingRPD:       maxInt(0, state.rpdLimit-state.dayCount),
			RequestsLastHour:   len(state.history),
			Exhausted:          state.exhausted,
			LastRequest:        state.lastRequest,
			MinuteReset:        state.minuteReset,
			DayReset:           state.dayReset,
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].KeyID < statuses[j].KeyID })
	return statuses
}

// RequestRate reports requests seen for the key in the trailing hour
func (l *MemoryLedger) RequestRate(_ context.Context, keyID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.keys[keyID]
	if !ok {
		return 0
	}
	state.pruneHistory(l.now())
	return float64(len(state.history))
}

// SaturationForecast projects the daily budget against the trailing
// hourly rate
func (l *MemoryLedger) SaturationForecast(_ context.Context, keyID string) *time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.keys[keyID]
	if !ok {
		return nil
	}
	l.applyResets(state)
	state.pruneHistory(l.now())
	return forecastSaturation(l.now(), state.rpdLimit-state.dayCount, float64(len(state.history)))
}

// Reset clears both windows for one key
func (l *MemoryLedger) Reset(_ context.Context, keyID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.keys[keyID]
	if !ok {
		return
	}
	now := l.now()
	state.minuteCount = 0
	state.dayCount = 0
	state.minuteReset = now.Add(time.Minute)
	state.dayReset = nextUTCMidnight(now)
	state.history = nil
	state.exhausted = false
	log.Printf("[RateLimit] manually reset %s counters", keyID)
}

// applyResets rolls the windows forward when their deadline passed.
// Callers must hold the mutex.
func (l *MemoryLedger) applyResets(state *keyState) {
	now := l.now()
	if !now.Before(state.minuteReset) {
		state.minuteCount = 0
		state.minuteReset = now.Add(time.Minute)
		state.exhausted = false
	}
	if !now.Before(state.dayReset) {
		state.dayCount = 0
		state.dayReset = nextUTCMidnight(now)
		state.exhausted = false
	}
}

func (s *keyState) pruneHistory(now time.Time) {
	cutoff := now.Add(-time.Hour)
	kept := s.history[:0]
	for _, ts := range s.history {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) > historyCap {
		kept = kept[len(kept)-historyCap:]
	}
	s.history = kept
}

// forecastSaturation converts remaining daily budget and an hourly
// rate into a saturation estimate. An exhausted key saturates now; an
// idle key never does.
func forecastSaturation(now time.Time, remaining int, perHour float64) *time.Time {
	if perHour == 0 {
		return nil
	}
	if remaining <= 0 {
		t := now
		return &t
	}
	hours := float64(remaining) / perHour
	if hours > 24 {
		return nil
	}
	t := now.Add(time.Duration(hours * float64(time.Hour)))
	return &t
}

// nextUTCMidnight returns the start of the next UTC day
func nextUTCMidnight(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
