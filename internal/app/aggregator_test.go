package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"course-leaderboard-service/internal/app"
	"course-leaderboard-service/internal/domain"
	"course-leaderboard-service/internal/infra/memory"
)

var testScope = domain.Scope{OrgID: "org-1"}

func TestUpdateUserScoreUpsertsAndRanks(t *testing.T) {
	ctx := context.Background()
	results := memory.NewResultStore()
	entries := memory.NewLeaderboardStore()
	agg := app.NewAggregator(results, entries)

	seedResult(t, results, "r1", "a1", "u1", "course-1", 90, 100)
	seedResult(t, results, "r2", "a2", "u1", "course-1", 90, 100)
	seedResult(t, results, "r3", "a3", "u2", "course-1", 85, 100)

	if err := agg.UpdateUserScore(ctx, testScope, "course-1", "u1"); err != nil {
		t.Fatalf("update u1: %v", err)
	}
	if err := agg.UpdateUserScore(ctx, testScope, "course-1", "u2"); err != nil {
		t.Fatalf("update u2: %v", err)
	}

	board, err := entries.ListCourse(ctx, testScope, "course-1")
	if err != nil {
		t.Fatalf("list course: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(board))
	}
	if board[0].UserID != "u1" || board[0].Rank != 1 {
		t.Fatalf("expected u1 leading, got %+v", board[0])
	}
	if board[0].AverageScore != 90 || board[0].TotalPoints != 180 || board[0].TestsCompleted != 2 {
		t.Fatalf("unexpected aggregates for u1: %+v", board[0])
	}
}

func TestUpdateUserScoreRemovesEmptiedUser(t *testing.T) {
	ctx := context.Background()
	results := memory.NewResultStore()
	entries := memory.NewLeaderboardStore()
	agg := app.NewAggregator(results, entries)

	seedResult(t, results, "r1", "a1", "u1", "course-1", 90, 100)
	seedResult(t, results, "r2", "a2", "u2", "course-1", 80, 100)
	seedResult(t, results, "r3", "a3", "u3", "course-1", 70, 100)
	for _, user := range []string{"u1", "u2", "u3"} {
		if err := agg.UpdateUserScore(ctx, testScope, "course-1", user); err != nil {
			t.Fatalf("update %s: %v", user, err)
		}
	}

	// External retraction of u2's only result, then re-aggregation.
	results.Remove("r2")
	if err := agg.UpdateUserScore(ctx, testScope, "course-1", "u2"); err != nil {
		t.Fatalf("update after removal: %v", err)
	}

	if _, err := entries.GetEntry(ctx, testScope, "course-1", "u2"); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("expected u2 entry gone, got %v", err)
	}
	board, _ := entries.ListCourse(ctx, testScope, "course-1")
	if len(board) != 2 {
		t.Fatalf("expected 2 remaining entries, got %d", len(board))
	}
	if board[0].Rank != 1 || board[1].Rank != 2 {
		t.Fatalf("expected contiguous ranks after removal, got %+v", board)
	}
}

func TestRebuildCourseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	results := memory.NewResultStore()
	entries := memory.NewLeaderboardStore()
	agg := app.NewAggregator(results, entries)

	seedResult(t, results, "r1", "a1", "u1", "course-1", 60, 100)
	seedResult(t, results, "r2", "a2", "u2", "course-1", 80, 100)
	seedResult(t, results, "r3", "a3", "u2", "course-1", 90, 100)

	if err := agg.RebuildCourse(ctx, testScope, "course-1"); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	first, _ := entries.ListCourse(ctx, testScope, "course-1")

	if err := agg.RebuildCourse(ctx, testScope, "course-1"); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	second, _ := entries.ListCourse(ctx, testScope, "course-1")

	if len(first) != len(second) {
		t.Fatalf("rebuild changed entry count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].UserID != second[i].UserID || first[i].Rank != second[i].Rank {
			t.Fatalf("rebuild not idempotent: %+v vs %+v", first[i], second[i])
		}
	}
}

func TestAggregatorRejectsMissingScope(t *testing.T) {
	ctx := context.Background()
	agg := app.NewAggregator(memory.NewResultStore(), memory.NewLeaderboardStore())

	if err := agg.UpdateUserScore(ctx, domain.Scope{}, "course-1", "u1"); !errors.Is(err, domain.ErrScopeIntegrity) {
		t.Fatalf("expected scope integrity error, got %v", err)
	}
	if err := agg.RebuildCourse(ctx, domain.Scope{}, "course-1"); !errors.Is(err, domain.ErrScopeIntegrity) {
		t.Fatalf("expected scope integrity error, got %v", err)
	}
}

func TestAggregatorRejectsScopelessResults(t *testing.T) {
	ctx := context.Background()
	entries := memory.NewLeaderboardStore()
	agg := app.NewAggregator(scopelessResults{}, entries)

	err := agg.UpdateUserScore(ctx, testScope, "course-1", "u1")
	if !errors.Is(err, domain.ErrScopeIntegrity) {
		t.Fatalf("expected scope integrity error, got %v", err)
	}
	board, _ := entries.ListCourse(ctx, testScope, "course-1")
	if len(board) != 0 {
		t.Fatalf("no entries should be written on integrity failure, got %+v", board)
	}
}

func TestConcurrentUpdatesKeepRanksContiguous(t *testing.T) {
	ctx := context.Background()
	results := memory.NewResultStore()
	entries := memory.NewLeaderboardStore()
	agg := app.NewAggregator(results, entries)

	const users = 8
	for i := 0; i < users; i++ {
		user := fmt.Sprintf("u%d", i)
		seedResult(t, results, "r"+user, "a"+user, user, "course-1", float64(50+i*5), 100)
	}

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := agg.UpdateUserScore(ctx, testScope, "course-1", fmt.Sprintf("u%d", i)); err != nil {
				t.Errorf("concurrent update: %v", err)
			}
		}(i)
	}
	wg.Wait()

	board, _ := entries.ListCourse(ctx, testScope, "course-1")
	if len(board) != users {
		t.Fatalf("expected %d entries, got %d", users, len(board))
	}
	for i, entry := range board {
		if entry.Rank != i+1 {
			t.Fatalf("ranks not contiguous after concurrent updates: %+v", board)
		}
	}
}

func TestPreviousRankSnapshot(t *testing.T) {
	ctx := context.Background()
	results := memory.NewResultStore()
	entries := memory.NewLeaderboardStore()
	agg := app.NewAggregator(results, entries)

	seedResult(t, results, "r1", "a1", "u1", "course-1", 70, 100)
	seedResult(t, results, "r2", "a2", "u2", "course-1", 90, 100)
	if err := agg.RebuildCourse(ctx, testScope, "course-1"); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	// u1 overtakes u2.
	seedResult(t, results, "r3", "a3", "u1", "course-1", 100, 100)
	if err := agg.UpdateUserScore(ctx, testScope, "course-1", "u1"); err != nil {
		t.Fatalf("update: %v", err)
	}

	prev, ok := agg.PreviousRank(testScope, "course-1", "u1")
	if !ok || prev != 2 {
		t.Fatalf("expected previous rank 2 for u1, got %d ok=%v", prev, ok)
	}
	entry, err := entries.GetEntry(ctx, testScope, "course-1", "u1")
	if err != nil || entry.Rank != 1 {
		t.Fatalf("expected u1 now rank 1, got %+v err=%v", entry, err)
	}
}

func TestSubscribeReceivesRankSnapshots(t *testing.T) {
	ctx := context.Background()
	results := memory.NewResultStore()
	entries := memory.NewLeaderboardStore()
	agg := app.NewAggregator(results, entries)

	ch, cancel := agg.Subscribe(testScope, "course-1")
	defer cancel()

	seedResult(t, results, "r1", "a1", "u1", "course-1", 90, 100)
	if err := agg.UpdateUserScore(ctx, testScope, "course-1", "u1"); err != nil {
		t.Fatalf("update: %v", err)
	}

	select {
	case snapshot := <-ch:
		if snapshot.Total != 1 || snapshot.Entries[0].UserID != "u1" {
			t.Fatalf("unexpected snapshot: %+v", snapshot)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
	}
}

// scopelessResults simulates a store returning rows that lost their tenant
// scope; aggregation must refuse to proceed.
type scopelessResults struct{}

func (scopelessResults) Create(context.Context, domain.Result) error { return nil }
func (scopelessResults) Update(context.Context, domain.Result) error { return nil }
func (scopelessResults) Get(context.Context, domain.Scope, string) (domain.Result, error) {
	return domain.Result{}, domain.ErrResultNotFound
}
func (scopelessResults) ListByUserCourse(context.Context, domain.Scope, string, string) ([]domain.Result, error) {
	return []domain.Result{{ID: "r1", UserID: "u1", CourseID: "course-1", Score: 50}}, nil
}
func (scopelessResults) ListByCourse(context.Context, domain.Scope, string) ([]domain.Result, error) {
	return []domain.Result{{ID: "r1", UserID: "u1", CourseID: "course-1", Score: 50}}, nil
}
func (scopelessResults) ListByTest(context.Context, domain.Scope, string) ([]domain.Result, error) {
	return nil, nil
}
func (scopelessResults) List(context.Context, domain.Scope, domain.ResultFilter) ([]domain.Result, int, error) {
	return nil, 0, nil
}

func seedResult(t *testing.T, store *memory.ResultStore, id, attemptID, userID, courseID string, score, maxScore float64) {
	t.Helper()
	percentage := 0.0
	if maxScore > 0 {
		percentage = score / maxScore * 100
	}
	err := store.Create(context.Background(), domain.Result{
		ID:           id,
		AttemptID:    attemptID,
		UserID:       userID,
		TestID:       "test-1",
		CourseID:     courseID,
		Score:        score,
		MaxScore:     maxScore,
		Percentage:   percentage,
		Passed:       percentage >= 60,
		CalculatedAt: time.Now(),
		Scope:        testScope,
	})
	if err != nil {
		t.Fatalf("seed result %s: %v", id, err)
	}
}
