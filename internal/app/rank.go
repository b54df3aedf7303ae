package app

import (
	"sort"

	"course-leaderboard-service/internal/domain"
)

// AssignRanks orders a course's entries by averageScore desc, then
// totalPoints desc, then userID asc as a stable deterministic tie-break, and
// assigns 1-based ranks. The output is always a contiguous {1..N}: repeated
// runs over unchanged input never oscillate.
func AssignRanks(entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	ranked := make([]domain.LeaderboardEntry, len(entries))
	copy(ranked, entries)

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].AverageScore != ranked[j].AverageScore {
			return ranked[i].AverageScore > ranked[j].AverageScore
		}
		if ranked[i].TotalPoints != ranked[j].TotalPoints {
			return ranked[i].TotalPoints > ranked[j].TotalPoints
		}
		return ranked[i].UserID < ranked[j].UserID
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
