package app

import (
	"math"

	"course-leaderboard-service/internal/domain"
)

// Badge labels assigned at read time. Top brackets are computed against the
// full course size, not the requested page.
const (
	BadgeChampion = "champion"
	BadgeTopTen   = "top-10%"
	BadgeTopQuart = "top-25%"
)

// Consistency ratings derived from the spread of a user's percentages.
const (
	ConsistencyHigh    = "high"
	ConsistencyMedium  = "medium"
	ConsistencyLow     = "low"
	ConsistencyUnrated = "unrated"
)

// EnrichEntries annotates ranked entries with percentile, badge, consistency
// rating, and rank change. Annotations are derived; they never feed back into
// the persisted ranking. Rank change comes from the last known ranking
// snapshot, not from invented variance: no snapshot, no arrow.
func EnrichEntries(entries []domain.LeaderboardEntry, total int, resultsByUser map[string][]domain.Result, prevRank func(userID string) (int, bool)) []domain.EnrichedEntry {
	enriched := make([]domain.EnrichedEntry, 0, len(entries))
	for _, entry := range entries {
		e := domain.EnrichedEntry{
			LeaderboardEntry: entry,
			Percentile:       percentile(entry.Rank, total),
			Badge:            badgeFor(entry.Rank, total),
			Consistency:      consistencyFor(resultsByUser[entry.UserID]),
		}
		if prev, ok := prevRank(entry.UserID); ok {
			change := prev - entry.Rank
			e.RankChange = &change
		}
		enriched = append(enriched, e)
	}
	return enriched
}

func percentile(rank, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(total-rank) / float64(total) * 100)
}

func badgeFor(rank, total int) string {
	switch {
	case rank == 1:
		return BadgeChampion
	case float64(rank) <= math.Ceil(float64(total)*0.10):
		return BadgeTopTen
	case float64(rank) <= math.Ceil(float64(total)*0.25):
		return BadgeTopQuart
	default:
		return ""
	}
}

func consistencyFor(results []domain.Result) string {
	if len(results) < 2 {
		return ConsistencyUnrated
	}
	percentages := make([]float64, len(results))
	for i, res := range results {
		percentages[i] = res.Percentage
	}
	switch sd := stdDev(percentages); {
	case sd < 5:
		return ConsistencyHigh
	case sd < 15:
		return ConsistencyMedium
	default:
		return ConsistencyLow
	}
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}
