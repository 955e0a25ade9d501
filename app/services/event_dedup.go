package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aproductiontitle/capi-public/config"
	"github.com/aproductiontitle/capi-public/utils"
	"github.com/redis/go-redis/v9"
)

// EventDedupService remembers processed webhook event IDs so provider retries
// do not double-apply contact state changes.
type EventDedupService interface {
	// MarkProcessed records the event key and reports whether this caller is
	// the first to see it.
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
}

// RedisEventDedup implements EventDedupService on a shared redis instance
type RedisEventDedup struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisEventDedup creates a new redis-backed dedup service
func NewRedisEventDedup(rc *redis.Client, cfg *config.CacheConfig, ttl time.Duration) EventDedupService {
	if ttl <= 0 {
		ttl = utils.WebhookDedupTTL
	}
	return &RedisEventDedup{
		rc:     rc,
		prefix: cfg.RedisPrefix,
		ttl:    ttl,
	}
}

// MarkProcessed sets the event key with NX semantics; the first writer wins
func (d *RedisEventDedup) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf("%swebhook:event:%s", d.prefix, eventID)

	ok, err := d.rc.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event %s: %w", eventID, err)
	}

	return ok, nil
}

// MemoryEventDedup implements EventDedupService in process memory, used when
// the cache is disabled and in tests
type MemoryEventDedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

// NewMemoryEventDedup creates a new in-memory dedup service
func NewMemoryEventDedup(ttl time.Duration) *MemoryEventDedup {
	if ttl <= 0 {
		ttl = utils.WebhookDedupTTL
	}
	return &MemoryEventDedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// MarkProcessed records the event key, expiring stale entries opportunistically
func (d *MemoryEventDedup) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := utils.UTCNow()
	for k, expiry := range d.seen {
		if now.After(expiry) {
			delete(d.seen, k)
		}
	}

	if _, ok := d.seen[eventID]; ok {
		return false, nil
	}
	d.seen[eventID] = now.Add(d.ttl)
	return true, nil
}
