package callsession

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"agentsflow-voice/pkg/utils"
)

// Locker guards the analyze transition against concurrent deliveries for the
// same call. Advisory only: storage-level locking remains the correctness
// boundary, so implementations may fail open.
type Locker interface {
	// Acquire returns false when another delivery for the call already holds
	// the slot.
	Acquire(ctx context.Context, callID string) (bool, error)
	Release(ctx context.Context, callID string)
}

// RedisLocker holds a single per-call slot in Redis with a TTL, so a crashed
// process never leaks the slot.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) key(callID string) string {
	return "voice:call_slot:" + callID
}

func (l *RedisLocker) Acquire(ctx context.Context, callID string) (bool, error) {
	return utils.AcquireCallSlot(ctx, l.rdb, l.key(callID), l.ttl)
}

func (l *RedisLocker) Release(ctx context.Context, callID string) {
	_ = utils.ReleaseCallSlot(ctx, l.rdb, l.key(callID))
}

// NopLocker always grants the slot. Used in tests and when Redis is not wired.
type NopLocker struct{}

func (NopLocker) Acquire(ctx context.Context, callID string) (bool, error) { return true, nil }
func (NopLocker) Release(ctx context.Context, callID string)               {}
