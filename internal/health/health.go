// Package health exposes the liveness probe and the dependency report:
// database ping, Redis ping, broker queue depths, and worker heartbeat
// freshness.
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/inboxforge/warmline/internal/jobs"
)

const checkTimeout = 2 * time.Second

// Handler serves the health endpoints.
type Handler struct {
	db        *sql.DB
	redis     *redis.Client
	inspector *asynq.Inspector
	started   time.Time
}

// NewHandler wires the health endpoints. The inspector may be nil when
// the process has no broker connection.
func NewHandler(db *sql.DB, rdb *redis.Client, inspector *asynq.Inspector) *Handler {
	return &Handler{db: db, redis: rdb, inspector: inspector, started: time.Now().UTC()}
}

// Routes mounts the health endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HandleLiveness)
	r.Get("/detailed", h.HandleDetailed)
	return r
}

// HandleLiveness reports that the process is up.
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC(),
	})
}

type checkResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HandleDetailed reports every dependency. The response is 503 when the
// database or Redis is unreachable; a stale worker heartbeat degrades
// the status but keeps the API serving.
func (h *Handler) HandleDetailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbCheck := h.checkDatabase(ctx)
	redisCheck := h.checkRedis(ctx)
	worker := h.checkWorker(ctx)

	status := "healthy"
	code := http.StatusOK
	if dbCheck.Status != "healthy" || redisCheck.Status != "healthy" {
		status = "degraded"
		code = http.StatusServiceUnavailable
	} else if worker["status"] != "active" {
		status = "degraded"
	}

	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"database":  dbCheck,
		"redis":     redisCheck,
		"queues":    h.checkQueues(),
		"worker":    worker,
	})
}

func (h *Handler) checkDatabase(ctx context.Context) checkResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	if err := h.db.PingContext(ctx); err != nil {
		return checkResult{Status: "down", LatencyMS: time.Since(start).Milliseconds(), Error: err.Error()}
	}
	return checkResult{Status: "healthy", LatencyMS: time.Since(start).Milliseconds()}
}

func (h *Handler) checkRedis(ctx context.Context) checkResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return checkResult{Status: "down", LatencyMS: time.Since(start).Milliseconds(), Error: err.Error()}
	}
	return checkResult{Status: "healthy", LatencyMS: time.Since(start).Milliseconds()}
}

// checkQueues snapshots per-queue depths from the broker. Depth errors
// are reported inline; they do not fail the endpoint.
func (h *Handler) checkQueues() map[string]interface{} {
	queues := map[string]interface{}{}
	if h.inspector == nil {
		return queues
	}

	names, err := h.inspector.Queues()
	if err != nil {
		queues["error"] = err.Error()
		return queues
	}
	for _, name := range names {
		info, err := h.inspector.GetQueueInfo(name)
		if err != nil {
			queues[name] = map[string]interface{}{"error": err.Error()}
			continue
		}
		queues[name] = map[string]interface{}{
			"pending":   info.Pending,
			"active":    info.Active,
			"scheduled": info.Scheduled,
			"retry":     info.Retry,
			"archived":  info.Archived,
		}
	}
	return queues
}

func (h *Handler) checkWorker(ctx context.Context) map[string]interface{} {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	last, err := jobs.LastHeartbeat(ctx, h.redis)
	if err != nil {
		return map[string]interface{}{"status": "unknown", "error": err.Error()}
	}
	if last.IsZero() {
		return map[string]interface{}{"status": "stale"}
	}
	return map[string]interface{}{
		"status":         "active",
		"last_heartbeat": last.UTC().Format(time.RFC3339),
		"age_seconds":    int(time.Since(last).Seconds()),
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
