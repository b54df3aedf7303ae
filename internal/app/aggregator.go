package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"course-leaderboard-service/internal/domain"
)

// ResultStore abstracts how results are persisted (in-memory, Postgres, etc).
// Create must enforce the one-result-per-attempt invariant with a real
// uniqueness constraint and return domain.ErrDuplicateResult on violation.
type ResultStore interface {
	Create(ctx context.Context, res domain.Result) error
	Update(ctx context.Context, res domain.Result) error
	Get(ctx context.Context, scope domain.Scope, resultID string) (domain.Result, error)
	ListByUserCourse(ctx context.Context, scope domain.Scope, courseID, userID string) ([]domain.Result, error)
	ListByCourse(ctx context.Context, scope domain.Scope, courseID string) ([]domain.Result, error)
	ListByTest(ctx context.Context, scope domain.Scope, testID string) ([]domain.Result, error)
	List(ctx context.Context, scope domain.Scope, filter domain.ResultFilter) ([]domain.Result, int, error)
}

// LeaderboardStore persists ranked course entries. ReplaceCourse swaps the
// whole entry set for a course atomically from the caller's point of view.
type LeaderboardStore interface {
	ListCourse(ctx context.Context, scope domain.Scope, courseID string) ([]domain.LeaderboardEntry, error)
	GetEntry(ctx context.Context, scope domain.Scope, courseID, userID string) (domain.LeaderboardEntry, error)
	ReplaceCourse(ctx context.Context, scope domain.Scope, courseID string, entries []domain.LeaderboardEntry) error
}

// Aggregator recomputes per-user aggregate statistics and course rankings.
//
// All aggregate-then-rank sequences for one course are funnelled through a
// per-course mutex: the read-compute-write cycle is not atomic on its own,
// and two unserialized writers would each rewrite the full ranking from a
// stale snapshot, silently discarding the other's effect on third parties.
type Aggregator struct {
	results ResultStore
	entries LeaderboardStore
	clock   func() time.Time

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	prevRanks map[string]map[string]int
	subs      map[string]map[chan domain.Leaderboard]struct{}
}

func NewAggregator(results ResultStore, entries LeaderboardStore) *Aggregator {
	return NewAggregatorWithClock(results, entries, time.Now)
}

// NewAggregatorWithClock is test-only for deterministic timestamps.
func NewAggregatorWithClock(results ResultStore, entries LeaderboardStore, now func() time.Time) *Aggregator {
	return &Aggregator{
		results:   results,
		entries:   entries,
		clock:     now,
		locks:     make(map[string]*sync.Mutex),
		prevRanks: make(map[string]map[string]int),
		subs:      make(map[string]map[chan domain.Leaderboard]struct{}),
	}
}

// UpdateUserScore recomputes one user's aggregate row from their results in
// the course, then re-ranks the whole course: a single user's change can move
// everyone else's relative rank. A user whose result set became empty loses
// their entry; the remaining ranks close the gap.
func (a *Aggregator) UpdateUserScore(ctx context.Context, scope domain.Scope, courseID, userID string) error {
	if scope.IsZero() {
		return fmt.Errorf("update user score: %w", domain.ErrScopeIntegrity)
	}

	key := courseKey(scope, courseID)
	unlock := a.lockCourse(key)
	defer unlock()

	results, err := a.results.ListByUserCourse(ctx, scope, courseID, userID)
	if err != nil {
		return fmt.Errorf("load user results: %w", err)
	}
	if err := verifyScopes(results); err != nil {
		return err
	}

	current, err := a.entries.ListCourse(ctx, scope, courseID)
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}

	next := make([]domain.LeaderboardEntry, 0, len(current)+1)
	for _, entry := range current {
		if entry.UserID != userID {
			next = append(next, entry)
		}
	}
	if len(results) > 0 {
		next = append(next, a.entryFromResults(scope, courseID, userID, results))
	}

	return a.rankAndPersist(ctx, scope, courseID, key, current, next)
}

// RebuildCourse replaces the course's whole entry set from its results in a
// single O(R) grouping pass, then re-ranks.
func (a *Aggregator) RebuildCourse(ctx context.Context, scope domain.Scope, courseID string) error {
	if scope.IsZero() {
		return fmt.Errorf("rebuild course: %w", domain.ErrScopeIntegrity)
	}

	key := courseKey(scope, courseID)
	unlock := a.lockCourse(key)
	defer unlock()

	results, err := a.results.ListByCourse(ctx, scope, courseID)
	if err != nil {
		return fmt.Errorf("load course results: %w", err)
	}
	if err := verifyScopes(results); err != nil {
		return err
	}

	current, err := a.entries.ListCourse(ctx, scope, courseID)
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}

	byUser := make(map[string][]domain.Result)
	order := make([]string, 0)
	for _, res := range results {
		if _, seen := byUser[res.UserID]; !seen {
			order = append(order, res.UserID)
		}
		byUser[res.UserID] = append(byUser[res.UserID], res)
	}

	next := make([]domain.LeaderboardEntry, 0, len(byUser))
	for _, userID := range order {
		next = append(next, a.entryFromResults(scope, courseID, userID, byUser[userID]))
	}

	return a.rankAndPersist(ctx, scope, courseID, key, current, next)
}

// PreviousRank reports the user's rank before the most recent re-rank of the
// course, for read-time rank-change display. No history, no guessing: absent
// means the course has not been re-ranked since this process started.
func (a *Aggregator) PreviousRank(scope domain.Scope, courseID, userID string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ranks, ok := a.prevRanks[courseKey(scope, courseID)]
	if !ok {
		return 0, false
	}
	rank, ok := ranks[userID]
	return rank, ok
}

// Subscribe returns a channel receiving full-course ranking snapshots after
// every re-rank. The caller must invoke cancel to avoid leaks.
func (a *Aggregator) Subscribe(scope domain.Scope, courseID string) (<-chan domain.Leaderboard, func()) {
	key := courseKey(scope, courseID)
	ch := make(chan domain.Leaderboard, 8)

	a.mu.Lock()
	if a.subs[key] == nil {
		a.subs[key] = make(map[chan domain.Leaderboard]struct{})
	}
	a.subs[key][ch] = struct{}{}
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subs[key][ch]; ok {
			delete(a.subs[key], ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}

func (a *Aggregator) rankAndPersist(ctx context.Context, scope domain.Scope, courseID, key string, current, next []domain.LeaderboardEntry) error {
	ranked := AssignRanks(next)
	if err := a.entries.ReplaceCourse(ctx, scope, courseID, ranked); err != nil {
		return fmt.Errorf("persist ranks: %w", err)
	}

	prev := make(map[string]int, len(current))
	for _, entry := range current {
		prev[entry.UserID] = entry.Rank
	}

	snapshot := domain.Leaderboard{
		CourseID:  courseID,
		Entries:   ranked,
		Total:     len(ranked),
		UpdatedAt: a.clock(),
	}

	a.mu.Lock()
	a.prevRanks[key] = prev
	for ch := range a.subs[key] {
		select {
		case ch <- snapshot:
		default:
			// Drop the stale snapshot so a slow subscriber never blocks ranking.
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
	a.mu.Unlock()
	return nil
}

func (a *Aggregator) entryFromResults(scope domain.Scope, courseID, userID string, results []domain.Result) domain.LeaderboardEntry {
	var total float64
	for _, res := range results {
		total += res.Score
	}
	count := len(results)
	return domain.LeaderboardEntry{
		CourseID:       courseID,
		UserID:         userID,
		AverageScore:   round2(total / float64(count)),
		TotalPoints:    total,
		TestsCompleted: count,
		LastUpdated:    a.clock(),
		Scope:          scope,
	}
}

// lockCourse serializes aggregate-then-rank cycles per course.
func (a *Aggregator) lockCourse(key string) func() {
	a.mu.Lock()
	lock, ok := a.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[key] = lock
	}
	a.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func verifyScopes(results []domain.Result) error {
	for _, res := range results {
		if res.Scope.IsZero() {
			return fmt.Errorf("result %s: %w", res.ID, domain.ErrScopeIntegrity)
		}
	}
	return nil
}

func courseKey(scope domain.Scope, courseID string) string {
	return scope.OrgID + "/" + scope.BranchID + "/" + courseID
}
