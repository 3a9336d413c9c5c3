package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	heartbeatKey      = "warmline:worker:heartbeat"
	heartbeatInterval = 30 * time.Second
	heartbeatTTL      = 90 * time.Second
)

// Beat records that a worker is alive. The TTL lets the health report
// distinguish a stopped worker from one that never started.
func Beat(ctx context.Context, rdb *redis.Client) error {
	return rdb.Set(ctx, heartbeatKey, time.Now().UTC().Format(time.RFC3339), heartbeatTTL).Err()
}

// RunHeartbeat beats until the context ends. Runs as a goroutine next
// to the worker server.
func RunHeartbeat(ctx context.Context, rdb *redis.Client) {
	if err := Beat(ctx, rdb); err != nil {
		log.Printf("[Jobs] Heartbeat write failed: %v", err)
	}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := Beat(ctx, rdb); err != nil {
				log.Printf("[Jobs] Heartbeat write failed: %v", err)
			}
		}
	}
}

// LastHeartbeat returns the most recent beat, or the zero time when no
// worker has beaten within the TTL.
func LastHeartbeat(ctx context.Context, rdb *redis.Client) (time.Time, error) {
	val, err := rdb.Get(ctx, heartbeatKey).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse heartbeat %q: %w", val, err)
	}
	return t, nil
}
