package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"course-leaderboard-service/internal/domain"
)

// AnalyticsCache stores serialized analytics payloads with per-entry TTLs.
// Implementations return domain.ErrCacheMiss for absent or expired keys.
type AnalyticsCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CacheTTLs tiers cache lifetimes by volatility and recompute cost.
type CacheTTLs struct {
	TestAnalytics   time.Duration // per-test statistics
	CourseStats     time.Duration // course/platform level aggregates
	LeaderboardPage time.Duration // paginated leaderboard views
}

// DefaultCacheTTLs matches the tiering the service runs with in production.
func DefaultCacheTTLs() CacheTTLs {
	return CacheTTLs{
		TestAnalytics:   time.Hour,
		CourseStats:     3 * time.Hour,
		LeaderboardPage: 5 * time.Minute,
	}
}

// Analytics memoizes expensive derived statistics. The contract is bounded
// staleness: a result write does not synchronously purge entries, and callers
// accept data lagging by up to the TTL unless they force a refresh.
type Analytics struct {
	results ResultStore
	entries LeaderboardStore
	cache   AnalyticsCache
	ttl     CacheTTLs
	sf      singleflight.Group
	clock   func() time.Time
}

func NewAnalytics(results ResultStore, entries LeaderboardStore, cache AnalyticsCache, ttl CacheTTLs) *Analytics {
	return &Analytics{
		results: results,
		entries: entries,
		cache:   cache,
		ttl:     ttl,
		clock:   time.Now,
	}
}

// TestAnalytics returns distribution and summary statistics for one test,
// cached for the per-test tier. force bypasses the cache and restores it.
func (a *Analytics) TestAnalytics(ctx context.Context, scope domain.Scope, testID string, force bool) (domain.TestAnalytics, error) {
	key := cacheKey(scope, "test", testID)
	var out domain.TestAnalytics
	err := a.cached(ctx, key, a.ttl.TestAnalytics, force, &out, func() (any, error) {
		results, err := a.results.ListByTest(ctx, scope, testID)
		if err != nil {
			return nil, fmt.Errorf("load test results: %w", err)
		}
		return a.computeTestAnalytics(testID, results), nil
	})
	return out, err
}

// CourseStats returns course-wide aggregates, cached for the slow tier.
func (a *Analytics) CourseStats(ctx context.Context, scope domain.Scope, courseID string, force bool) (domain.CourseStats, error) {
	key := cacheKey(scope, "course", courseID)
	var out domain.CourseStats
	err := a.cached(ctx, key, a.ttl.CourseStats, force, &out, func() (any, error) {
		results, err := a.results.ListByCourse(ctx, scope, courseID)
		if err != nil {
			return nil, fmt.Errorf("load course results: %w", err)
		}
		return a.computeCourseStats(courseID, results), nil
	})
	return out, err
}

// LeaderboardPage serves a cached paginated view for read-heavy displays.
// The authoritative read path goes through the service instead.
func (a *Analytics) LeaderboardPage(ctx context.Context, scope domain.Scope, courseID string, page, limit int) (domain.Leaderboard, error) {
	page, limit = normalizePage(page, limit)
	key := cacheKey(scope, "lbpage", fmt.Sprintf("%s:%d:%d", courseID, page, limit))
	var out domain.Leaderboard
	err := a.cached(ctx, key, a.ttl.LeaderboardPage, false, &out, func() (any, error) {
		entries, err := a.entries.ListCourse(ctx, scope, courseID)
		if err != nil {
			return nil, fmt.Errorf("load leaderboard: %w", err)
		}
		return domain.Leaderboard{
			CourseID:  courseID,
			Entries:   pageOf(entries, page, limit),
			Total:     len(entries),
			Page:      page,
			Limit:     limit,
			UpdatedAt: a.clock(),
		}, nil
	})
	return out, err
}

// InvalidateTest drops the cached analytics for one test.
func (a *Analytics) InvalidateTest(ctx context.Context, scope domain.Scope, testID string) error {
	return a.cache.Delete(ctx, cacheKey(scope, "test", testID))
}

// InvalidateCourse drops the cached course aggregates.
func (a *Analytics) InvalidateCourse(ctx context.Context, scope domain.Scope, courseID string) error {
	return a.cache.Delete(ctx, cacheKey(scope, "course", courseID))
}

// cached implements the miss path: singleflight coalesces concurrent
// recomputes of the same key, and the computed value is stored before return.
func (a *Analytics) cached(ctx context.Context, key string, ttl time.Duration, force bool, out any, compute func() (any, error)) error {
	if !force {
		if payload, err := a.cache.Get(ctx, key); err == nil {
			return json.Unmarshal(payload, out)
		} else if !errors.Is(err, domain.ErrCacheMiss) {
			return fmt.Errorf("cache get: %w", err)
		}
	}

	payload, err, _ := a.sf.Do(key, func() (interface{}, error) {
		if !force {
			if cached, err := a.cache.Get(ctx, key); err == nil {
				return cached, nil
			}
		}
		value, err := compute()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal analytics: %w", err)
		}
		if err := a.cache.Set(ctx, key, raw, ttl); err != nil {
			return nil, fmt.Errorf("cache set: %w", err)
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(payload.([]byte), out)
}

func (a *Analytics) computeTestAnalytics(testID string, results []domain.Result) domain.TestAnalytics {
	analytics := domain.TestAnalytics{
		TestID:       testID,
		Results:      len(results),
		Distribution: emptyDistribution(),
		ComputedAt:   a.clock(),
	}
	if len(results) == 0 {
		return analytics
	}

	percentages := make([]float64, len(results))
	passed := 0
	for i, res := range results {
		percentages[i] = res.Percentage
		if res.Passed {
			passed++
		}
		analytics.Distribution[bucketIndex(res.Percentage)].Count++
	}

	var sum float64
	for _, p := range percentages {
		sum += p
	}
	analytics.Average = round2(sum / float64(len(percentages)))
	analytics.Median = round2(median(percentages))
	analytics.StdDev = round2(stdDev(percentages))
	analytics.PassRate = round2(float64(passed) / float64(len(results)) * 100)
	return analytics
}

func (a *Analytics) computeCourseStats(courseID string, results []domain.Result) domain.CourseStats {
	stats := domain.CourseStats{CourseID: courseID, Results: len(results), ComputedAt: a.clock()}
	if len(results) == 0 {
		return stats
	}

	users := make(map[string]struct{})
	var sum float64
	passed := 0
	for _, res := range results {
		users[res.UserID] = struct{}{}
		sum += res.Percentage
		if res.Passed {
			passed++
		}
	}
	stats.Participants = len(users)
	stats.AveragePct = round2(sum / float64(len(results)))
	stats.PassRate = round2(float64(passed) / float64(len(results)) * 100)
	return stats
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// emptyDistribution builds the ten fixed percentage bands, the last one
// closed at 100.
func emptyDistribution() []domain.DistributionBucket {
	buckets := make([]domain.DistributionBucket, 10)
	for i := range buckets {
		min := float64(i * 10)
		max := min + 9.99
		label := fmt.Sprintf("%d-%d", i*10, i*10+9)
		if i == 9 {
			max = 100
			label = "90-100"
		}
		buckets[i] = domain.DistributionBucket{Label: label, Min: min, Max: max}
	}
	return buckets
}

func bucketIndex(percentage float64) int {
	idx := int(percentage / 10)
	if idx > 9 {
		idx = 9
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

func cacheKey(scope domain.Scope, kind, id string) string {
	return "analytics:" + scope.OrgID + ":" + scope.BranchID + ":" + kind + ":" + id
}
