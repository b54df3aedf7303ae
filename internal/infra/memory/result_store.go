package memory

import (
	"context"
	"sort"
	"sync"

	"course-leaderboard-service/internal/domain"
)

// ResultStore is an in-memory implementation of app.ResultStore. The
// attemptID index under the store mutex is the uniqueness constraint: a
// concurrent double-create observes the first writer's index entry.
type ResultStore struct {
	mu        sync.RWMutex
	byID      map[string]domain.Result
	byAttempt map[string]string // attemptID -> resultID
}

func NewResultStore() *ResultStore {
	return &ResultStore{
		byID:      make(map[string]domain.Result),
		byAttempt: make(map[string]string),
	}
}

func (s *ResultStore) Create(_ context.Context, res domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byAttempt[res.AttemptID]; exists {
		return domain.ErrDuplicateResult
	}
	s.byAttempt[res.AttemptID] = res.ID
	s.byID[res.ID] = res
	return nil
}

func (s *ResultStore) Update(_ context.Context, res domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[res.ID]; !ok {
		return domain.ErrResultNotFound
	}
	s.byID[res.ID] = res
	return nil
}

func (s *ResultStore) Get(_ context.Context, scope domain.Scope, resultID string) (domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.byID[resultID]
	if !ok || !inScope(res, scope) {
		return domain.Result{}, domain.ErrResultNotFound
	}
	return res, nil
}

func (s *ResultStore) ListByUserCourse(_ context.Context, scope domain.Scope, courseID, userID string) ([]domain.Result, error) {
	return s.collect(scope, func(res domain.Result) bool {
		return res.CourseID == courseID && res.UserID == userID
	}), nil
}

func (s *ResultStore) ListByCourse(_ context.Context, scope domain.Scope, courseID string) ([]domain.Result, error) {
	return s.collect(scope, func(res domain.Result) bool {
		return res.CourseID == courseID
	}), nil
}

func (s *ResultStore) ListByTest(_ context.Context, scope domain.Scope, testID string) ([]domain.Result, error) {
	return s.collect(scope, func(res domain.Result) bool {
		return res.TestID == testID
	}), nil
}

func (s *ResultStore) List(_ context.Context, scope domain.Scope, filter domain.ResultFilter) ([]domain.Result, int, error) {
	matched := s.collect(scope, func(res domain.Result) bool {
		if filter.UserID != "" && res.UserID != filter.UserID {
			return false
		}
		if filter.TestID != "" && res.TestID != filter.TestID {
			return false
		}
		if filter.CourseID != "" && res.CourseID != filter.CourseID {
			return false
		}
		if filter.MinPercent != nil && res.Percentage < *filter.MinPercent {
			return false
		}
		if filter.MaxPercent != nil && res.Percentage > *filter.MaxPercent {
			return false
		}
		return true
	})

	total := len(matched)
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= total {
		return []domain.Result{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// Remove deletes a result outright. The engine itself never deletes results;
// this exists so tests can model external retraction of a user's result set.
func (s *ResultStore) Remove(resultID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.byID[resultID]; ok {
		delete(s.byAttempt, res.AttemptID)
		delete(s.byID, resultID)
	}
}

func (s *ResultStore) collect(scope domain.Scope, match func(domain.Result) bool) []domain.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Result, 0)
	for _, res := range s.byID {
		if inScope(res, scope) && match(res) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func inScope(res domain.Result, scope domain.Scope) bool {
	return res.Scope.OrgID == scope.OrgID && res.Scope.BranchID == scope.BranchID
}
