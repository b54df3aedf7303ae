package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"course-leaderboard-service/internal/domain"
)

// AnalyticsCache is an in-process TTL cache for serialized analytics
// payloads. Expirations carry up to 10% jitter to spread recomputes.
type AnalyticsCache struct {
	clock func() time.Time
	rnd   *rand.Rand

	mu      sync.RWMutex
	entries map[string]cachedPayload
}

type cachedPayload struct {
	payload   []byte
	expiresAt time.Time
}

func NewAnalyticsCache() *AnalyticsCache {
	return &AnalyticsCache{
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[string]cachedPayload),
	}
}

// NewAnalyticsCacheWithClock is test-only for deterministic expiry.
func NewAnalyticsCacheWithClock(now func() time.Time) *AnalyticsCache {
	c := NewAnalyticsCache()
	c.clock = now
	return c
}

func (c *AnalyticsCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, domain.ErrCacheMiss
	}
	return entry.payload, nil
}

func (c *AnalyticsCache) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	stored := make([]byte, len(payload))
	copy(stored, payload)

	c.mu.Lock()
	c.entries[key] = cachedPayload{
		payload:   stored,
		expiresAt: c.clock().Add(c.ttlWithJitter(ttl)),
	}
	c.mu.Unlock()
	return nil
}

func (c *AnalyticsCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *AnalyticsCache) ttlWithJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	jitterMax := int64(ttl) / 10
	return ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
