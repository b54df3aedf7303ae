package memory

import (
	"context"
	"sort"
	"sync"

	"course-leaderboard-service/internal/domain"
)

// LeaderboardStore is an in-memory implementation of app.LeaderboardStore.
// Each course's entry set is swapped wholesale under the store mutex.
type LeaderboardStore struct {
	mu      sync.RWMutex
	courses map[string][]domain.LeaderboardEntry
}

func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{courses: make(map[string][]domain.LeaderboardEntry)}
}

func (s *LeaderboardStore) ListCourse(_ context.Context, scope domain.Scope, courseID string) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.courses[s.key(scope, courseID)]
	out := make([]domain.LeaderboardEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (s *LeaderboardStore) GetEntry(_ context.Context, scope domain.Scope, courseID, userID string) (domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.courses[s.key(scope, courseID)] {
		if entry.UserID == userID {
			return entry, nil
		}
	}
	return domain.LeaderboardEntry{}, domain.ErrEntryNotFound
}

func (s *LeaderboardStore) ReplaceCourse(_ context.Context, scope domain.Scope, courseID string, entries []domain.LeaderboardEntry) error {
	stored := make([]domain.LeaderboardEntry, len(entries))
	copy(stored, entries)

	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(scope, courseID)
	if len(stored) == 0 {
		delete(s.courses, key)
		return nil
	}
	s.courses[key] = stored
	return nil
}

func (s *LeaderboardStore) key(scope domain.Scope, courseID string) string {
	return scope.OrgID + "/" + scope.BranchID + "/" + courseID
}
