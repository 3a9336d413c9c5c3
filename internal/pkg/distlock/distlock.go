// Package distlock keeps the API's manual process trigger and the
// worker's scheduled runs from batching the same campaign twice. Redis
// backs the lock when available; without it, Postgres advisory locks
// give the same guarantee for a single database.
package distlock

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a non-blocking, single-holder mutex shared across
// processes. One instance serves one acquire/release cycle; concurrent
// goroutines need their own instances.
type DistLock interface {
	// Acquire reports whether the lock was taken. It never blocks.
	Acquire(ctx context.Context) (bool, error)
	// Release frees the lock if this instance still holds it.
	Release(ctx context.Context) error
}

// NewLock picks the backend: Redis when a client is configured,
// otherwise Postgres advisory locks.
func NewLock(rdb *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if rdb != nil {
		return NewRedisLock(rdb, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// RedisLock holds the lock as a SETNX key with a TTL, so a crashed
// holder frees it once the TTL runs out. A random owner token plus a
// compare-and-delete script keep one process from releasing another's
// lock.
type RedisLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// NewRedisLock creates a Redis-backed lock for the given key.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	token := make([]byte, 16)
	rand.Read(token)
	return &RedisLock{
		client: client,
		key:    "lock:" + key,
		owner:  hex.EncodeToString(token),
		ttl:    ttl,
	}
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	taken, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return taken, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

func (l *RedisLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err()
}

// PGAdvisoryLock maps the key onto a session-scoped advisory lock.
// There is no TTL; the lock dies with the database connection, which
// covers the crashed-holder case the same way the Redis TTL does.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock derives the advisory lock id from the key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var taken bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&taken)
	return taken, err
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
