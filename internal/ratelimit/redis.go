package ratelimit

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for atomic check-and-increment across both windows.
// Prevents the race a GET → check → INCR sequence would have when
// several workers share one key ring.
const recordLuaScript = `
local minuteKey = KEYS[1]
local dayKey = KEYS[2]
local histKey = KEYS[3]
local rpmLimit = tonumber(ARGV[1])
local rpdLimit = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local minCurrent = tonumber(redis.call("GET", minuteKey) or "0")
local dayCurrent = tonumber(redis.call("GET", dayKey) or "0")

if minCurrent + 1 > rpmLimit then
    return {0, 1}
end
if dayCurrent + 1 > rpdLimit then
    return {0, 2}
end

local newMin = redis.call("INCR", minuteKey)
if newMin == 1 then
    redis.call("EXPIRE", minuteKey, 120)
end

local newDay = redis.call("INCR", dayKey)
if newDay == 1 then
    redis.call("EXPIRE", dayKey, 90000)
end

redis.call("ZADD", histKey, now, now .. "-" .. newDay)
redis.call("ZREMRANGEBYSCORE", histKey, 0, now - 3600)
redis.call("EXPIRE", histKey, 3700)

return {1, 0}
`

// RedisLedger shares one key-ring's accounting across processes. The
// server and the worker both consume the same provider budgets, so a
// single-process ledger under-counts; Redis keeps them honest.
//
// Counter keys are time-bucketed so expiry does the resetting:
//
//	warmup:ratelimit:<keyID>:min:<unixMinute>
//	warmup:ratelimit:<keyID>:day:<yyyy-mm-dd>
//	warmup:ratelimit:<keyID>:hist   (sorted set, trailing hour)
//
// Redis failures fail open: generation keeps running on a broken
// backend rather than stalling every campaign.
type RedisLedger struct {
	redis        *redis.Client
	keys         map[string]redisKeyMeta
	recordScript *redis.Script
	now          func() time.Time
}

type redisKeyMeta struct {
	provider string
	rpmLimit int
	rpdLimit int
}

// NewRedisLedger registers the given keys against a shared Redis
// backend. Keys of unknown providers are skipped.
func NewRedisLedger(client *redis.Client, keys []Key) *RedisLedger {
	l := &RedisLedger{
		redis:        client,
		keys:         make(map[string]redisKeyMeta),
		recordScript: redis.NewScript(recordLuaScript),
		now:          time.Now,
	}
	for _, key := range keys {
		limits, ok := DefaultLimits[key.Provider]
		if !ok {
			log.Printf("[RateLimit] no default limits for provider %s, skipping %s", key.Provider, key.ID)
			continue
		}
		l.keys[key.ID] = redisKeyMeta{provider: key.Provider, rpmLimit: limits.RPM, rpdLimit: limits.RPD}
	}
	log.Printf("[RateLimit] tracking %d API keys (redis-backed)", len(l.keys))
	return l
}

func (l *RedisLedger) minuteKey(keyID string, now time.Time) string {
	return fmt.Sprintf("warmup:ratelimit:%s:min:%d", keyID, now.Unix()/60)
}

func (l *RedisLedger) dayKey(keyID string, now time.Time) string {
	return fmt.Sprintf("warmup:ratelimit:%s:day:%s", keyID, now.UTC().Format("2006-01-02"))
}

func (l *RedisLedger) histKey(keyID string) string {
	return fmt.Sprintf("warmup:ratelimit:%s:hist", keyID)
}

// counts reads both window counters in one round trip
func (l *RedisLedger) counts(ctx context.Context, keyID string, now time.Time) (minute, day int, err error) {
	pipe := l.redis.Pipeline()
	minCmd := pipe.Get(ctx, l.minuteKey(keyID, now))
	dayCmd := pipe.Get(ctx, l.dayKey(keyID, now))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, 0, err
	}
	m, _ := minCmd.Int()
	d, _ := dayCmd.Int()
	return m, d, nil
}

// CanUse reports whether the key has budget in both windows
func (l *RedisLedger) CanUse(ctx context.Context, keyID string) (bool, string) {
	meta, ok := l.keys[keyID]
	if !ok {
		return true, ""
	}
	now := l.now()
	minute, day, err := l.counts(ctx, keyID, now)
	if err != nil {
		log.Printf("[RateLimit] redis check failed for %s: %v", keyID, err)
		return true, ""
	}
	if minute >= meta.rpmLimit {
		wait := 60 - now.Second()
		return false, fmt.Sprintf("RPM limit reached. Wait %ds.", wait)
	}
	if day >= meta.rpdLimit {
		wait := int(nextUTCMidnight(now).Sub(now).Hours())
		return false, fmt.Sprintf("Daily limit reached. Wait %dh.", wait)
	}
	return true, ""
}

// Record atomically accounts one request, refusing when a window is full
func (l *RedisLedger) Record(ctx context.Context, keyID string) bool {
	meta, ok := l.keys[keyID]
	if !ok {
		log.Printf("[RateLimit] unknown key %s", keyID)
		return true
	}
	now := l.now()

	result, err := l.recordScript.Run(ctx, l.redis,
		[]string{l.minuteKey(keyID, now), l.dayKey(keyID, now), l.histKey(keyID)},
		meta.rpmLimit,
		meta.rpdLimit,
		now.Unix(),
	).Slice()
	if err != nil {
		log.Printf("[RateLimit] redis record failed for %s: %v", keyID, err)
		return true
	}

	allowed, _ := result[0].(int64)
	if allowed == 1 {
		return true
	}
	reason, _ := result[1].(int64)
	switch reason {
	case 1:
		log.Printf("[RateLimit] %s: RPM limit reached (%d)", keyID, meta.rpmLimit)
	case 2:
		log.Printf("[RateLimit] %s: daily limit reached (%d)", keyID, meta.rpdLimit)
	}
	return false
}

// AvailableKey returns the provider key with the most remaining budget
func (l *RedisLedger) AvailableKey(ctx context.Context, provider string) string {
	now := l.now()
	bestKey := ""
	bestRemaining := -1
	for keyID, meta := range l.keys {
		if meta.provider != provider {
			continue
		}
		minute, day, err := l.counts(ctx, keyID, now)
		if err != nil {
			log.Printf("[RateLimit] redis check failed for %s: %v", keyID, err)
			continue
		}
		if minute >= meta.rpmLimit || day >= meta.rpdLimit {
			continue
		}
		remaining := meta.rpmLimit - minute
		if r := meta.rpdLimit - day; r < remaining {
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
func (l *RedisLedger) Statuses(ctx context.Context) []KeyStatus {
	now := l.now()
	statuses := make([]KeyStatus, 0, len(l.keys))
	for keyID, meta := range l.keys {
		minute, day, err := l.counts(ctx, keyID, now)
		if err != nil {
			log.Printf("[RateLimit] redis check failed for %s: %v", keyID, err)
		}
		lastHour := l.historyCount(ctx, keyID, now)
		statuses = append(statuses, KeyStatus{
			KeyID:              keyID,
			Provider:           meta.provider,
			RPMLimit:           meta.rpmLimit,
			RPDLimit:           meta.rpdLimit,
			RequestsThisMinute: minute,
			RequestsToday:      day,
			RemainingRPM:       maxInt(0, meta.rpmLimit-minute),
			RemainingRPD:       maxInt(0, meta.rpdLimit-day),
			RequestsLastHour:   lastHour,
			Exhausted:          minute >= meta.rpmLimit || day >= meta.rpdLimit,
			LastRequest:        l.lastRequest(ctx, keyID),
			MinuteReset:        time.Unix((now.Unix()/60+1)*60, 0),
			DayReset:           nextUTCMidnight(now),
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].KeyID < statuses[j].KeyID })
	return statuses
}

// RequestRate reports requests seen for the key in the trailing hour
func (l *RedisLedger) RequestRate(ctx context.Context, keyID string) float64 {
	if _, ok := l.keys[keyID]; !ok {
		return 0
	}
	return float64(l.historyCount(ctx, keyID, l.now()))
}

// SaturationForecast projects the daily budget against the trailing
// hourly rate
func (l *RedisLedger) SaturationForecast(ctx context.Context, keyID string) *time.Time {
	meta, ok := l.keys[keyID]
	if !ok {
		return nil
	}
	now := l.now()
	_, day, err := l.counts(ctx, keyID, now)
	if err != nil {
		log.Printf("[RateLimit] redis check failed for %s: %v", keyID, err)
		return nil
	}
	rate := float64(l.historyCount(ctx, keyID, now))
	return forecastSaturation(now, meta.rpdLimit-day, rate)
}

// Reset clears both windows and the history for one key
func (l *RedisLedger) Reset(ctx context.Context, keyID string) {
	if _, ok := l.keys[keyID]; !ok {
		return
	}
	now := l.now()
	if err := l.redis.Del(ctx, l.minuteKey(keyID, now), l.dayKey(keyID, now), l.histKey(keyID)).Err(); err != nil {
		log.Printf("[RateLimit] redis reset failed for %s: %v", keyID, err)
		return
	}
	log.Printf("[RateLimit] manually reset %s counters", keyID)
}

func (l *RedisLedger) historyCount(ctx context.Context, keyID string, now time.Time) int {
	cutoff := strconv.FormatInt(now.Unix()-3600, 10)
	count, err := l.redis.ZCount(ctx, l.histKey(keyID), cutoff, "+inf").Result()
	if err != nil {
		return 0
	}
	return int(count)
}

func (l *RedisLedger) lastRequest(ctx context.Context, keyID string) time.Time {
	entries, err := l.redis.ZRevRangeWithScores(ctx, l.histKey(keyID), 0, 0).Result()
	if err != nil || len(entries) == 0 {
		return time.Time{}
	}
	return time.Unix(int64(entries[0].Score), 0)
}
