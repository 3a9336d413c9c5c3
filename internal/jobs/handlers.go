package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/inboxforge/warmline/internal/engine"
	"github.com/inboxforge/warmline/internal/pkg/distlock"
	"github.com/inboxforge/warmline/internal/store"
)

// Lock lifetimes. A lock must outlive the work it guards; expiry is the
// crash recovery path, not the happy path.
const (
	// CampaignLockTTL covers one full scheduler step including the
	// inter-slot delays. Exported because the API's manual process
	// endpoint takes the same lock.
	CampaignLockTTL = 30 * time.Minute

	// sweepLockTTL covers an inbox or bounce sweep across every
	// account.
	sweepLockTTL = 25 * time.Minute

	// cronLockTTL covers the short bookkeeping jobs.
	cronLockTTL = 5 * time.Minute
)

// CampaignLockKey names the distributed lock serializing all processing
// of one campaign, shared by the worker and the API.
func CampaignLockKey(id uuid.UUID) string {
	return fmt.Sprintf("campaign:%s", id)
}

// CampaignEnqueuer fans campaign work back onto the broker. Satisfied
// by *Client.
type CampaignEnqueuer interface {
	EnqueueCampaignProcess(ctx context.Context, campaignID uuid.UUID, force bool) error
}

// Handler owns the worker side of every task type.
type Handler struct {
	engine *engine.Engine
	store  *store.Store
	db     *sql.DB
	redis  *redis.Client
	queue  CampaignEnqueuer
}

// NewHandler wires the task handlers.
func NewHandler(eng *engine.Engine, st *store.Store, db *sql.DB, rdb *redis.Client, queue CampaignEnqueuer) *Handler {
	return &Handler{engine: eng, store: st, db: db, redis: rdb, queue: queue}
}

// Mux registers every handler on a fresh serve mux.
func (h *Handler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCampaignProcess, h.HandleCampaignProcess)
	mux.HandleFunc(TypeCampaignSweep, h.HandleCampaignSweep)
	mux.HandleFunc(TypeInboxSweep, h.HandleInboxSweep)
	mux.HandleFunc(TypeBounceSweep, h.HandleBounceSweep)
	mux.HandleFunc(TypeDailyReset, h.HandleDailyReset)
	mux.HandleFunc(TypeMetricsRollup, h.HandleMetricsRollup)
	return mux
}

// withLock runs fn under a named distributed lock. A held lock means
// another worker owns the job, so the task completes without running.
// A broken lock backend degrades to running unlocked; the engine's
// status guards are the second net.
func (h *Handler) withLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	lock := distlock.NewLock(h.redis, h.db, key, ttl)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[Jobs] Lock %s unavailable, continuing unlocked: %v", key, err)
	} else if !acquired {
		log.Printf("[Jobs] %s already running elsewhere, skipping", key)
		return nil
	} else {
		defer lock.Release(ctx)
	}
	return fn(ctx)
}

// HandleCampaignProcess runs one scheduler step for a single campaign.
func (h *Handler) HandleCampaignProcess(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCampaignProcessPayload(task.Payload())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	return h.withLock(ctx, CampaignLockKey(payload.CampaignID), CampaignLockTTL, func(ctx context.Context) error {
		campaign, err := h.store.GetCampaign(ctx, payload.CampaignID)
		if err != nil {
			return fmt.Errorf("load campaign %s: %w", payload.CampaignID, err)
		}
		if campaign == nil {
			log.Printf("[Jobs] Campaign %s no longer exists, dropping task", payload.CampaignID)
			return nil
		}

		sent, err := h.engine.ProcessCampaign(ctx, campaign, payload.Force)
		if err != nil {
			return fmt.Errorf("process campaign %s: %w", payload.CampaignID, err)
		}
		log.Printf("[Jobs] Campaign %s processed, %d emails sent", payload.CampaignID, sent)
		return nil
	})
}

// HandleCampaignSweep enqueues a process task for every active
// campaign. A campaign that is already queued or mid-flight is left
// alone; one failed enqueue does not stop the rest.
func (h *Handler) HandleCampaignSweep(ctx context.Context, _ *asynq.Task) error {
	return h.withLock(ctx, "sweep:campaigns", cronLockTTL, func(ctx context.Context) error {
		campaigns, err := h.store.ListCampaigns(ctx, store.CampaignActive)
		if err != nil {
			return fmt.Errorf("list active campaigns: %w", err)
		}

		enqueued := 0
		for _, campaign := range campaigns {
			if err := h.queue.EnqueueCampaignProcess(ctx, campaign.ID, false); err != nil {
				if errors.Is(err, asynq.ErrTaskIDConflict) {
					continue
				}
				log.Printf("[Jobs] Enqueue failed for campaign %s: %v", campaign.ID, err)
				continue
			}
			enqueued++
		}
		log.Printf("[Jobs] Campaign sweep enqueued %d of %d active campaigns", enqueued, len(campaigns))
		return nil
	})
}

// HandleInboxSweep answers unread warm-up mail across all receivers.
func (h *Handler) HandleInboxSweep(ctx context.Context, _ *asynq.Task) error {
	return h.withLock(ctx, "sweep:inbox", sweepLockTTL, func(ctx context.Context) error {
		results, err := h.engine.ProcessAllReceivers(ctx)
		if err != nil {
			return fmt.Errorf("inbox sweep: %w", err)
		}
		replies := 0
		for _, n := range results {
			replies += n
		}
		log.Printf("[Jobs] Inbox sweep sent %d replies across %d receivers", replies, len(results))
		return nil
	})
}

// HandleBounceSweep scans sender inboxes for bounce notifications.
func (h *Handler) HandleBounceSweep(ctx context.Context, _ *asynq.Task) error {
	return h.withLock(ctx, "sweep:bounces", sweepLockTTL, func(ctx context.Context) error {
		results, err := h.engine.ProcessAllSenderBounces(ctx)
		if err != nil {
			return fmt.Errorf("bounce sweep: %w", err)
		}
		bounces := 0
		for _, n := range results {
			bounces += n
		}
		log.Printf("[Jobs] Bounce sweep matched %d bounces across %d senders", bounces, len(results))
		return nil
	})
}

// HandleDailyReset zeroes every active campaign's daily counter.
func (h *Handler) HandleDailyReset(ctx context.Context, _ *asynq.Task) error {
	return h.withLock(ctx, "cron:daily-reset", cronLockTTL, func(ctx context.Context) error {
		if err := h.engine.ResetDailyCounters(ctx); err != nil {
			return fmt.Errorf("daily reset: %w", err)
		}
		return nil
	})
}

// HandleMetricsRollup writes the per-account daily metric rows.
func (h *Handler) HandleMetricsRollup(ctx context.Context, _ *asynq.Task) error {
	return h.withLock(ctx, "cron:metrics-rollup", cronLockTTL, func(ctx context.Context) error {
		if err := h.engine.RollUpDailyMetrics(ctx); err != nil {
			return fmt.Errorf("metrics rollup: %w", err)
		}
		return nil
	})
}
