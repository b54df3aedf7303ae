package redis

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"course-leaderboard-service/internal/domain"
)

// AnalyticsCache stores serialized analytics payloads in Redis:
// SET cache:{key} {payload} EX {ttl+jitter}. Redis expiry is the TTL
// mechanism, so reads are a plain GET.
type AnalyticsCache struct {
	client *redis.Client
	rnd    *rand.Rand
}

func NewAnalyticsCache(client *redis.Client) *AnalyticsCache {
	return &AnalyticsCache{
		client: client,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *AnalyticsCache) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *AnalyticsCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), payload, c.ttlWithJitter(ttl)).Err()
}

func (c *AnalyticsCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

func (c *AnalyticsCache) key(key string) string {
	return "cache:" + key
}

func (c *AnalyticsCache) ttlWithJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	jitterMax := int64(ttl) / 10
	return ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
