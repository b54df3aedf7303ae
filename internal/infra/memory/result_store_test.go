package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"course-leaderboard-service/internal/domain"
)

var scope = domain.Scope{OrgID: "org-1"}

func TestResultStoreRejectsDuplicateAttempt(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()

	if err := store.Create(ctx, sampleResult("r1", "a1", "u1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.Create(ctx, sampleResult("r2", "a1", "u1"))
	if !errors.Is(err, domain.ErrDuplicateResult) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := store.Get(ctx, scope, "r2"); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("losing write must not persist, got %v", err)
	}
}

func TestResultStoreConcurrentDoubleCreate(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Create(ctx, sampleResult("r"+string(rune('1'+i)), "a1", "u1"))
		}(i)
	}
	wg.Wait()

	var conflicts int
	for _, err := range errs {
		if errors.Is(err, domain.ErrDuplicateResult) {
			conflicts++
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if conflicts != 1 {
		t.Fatalf("exactly one writer must lose, got %d conflicts", conflicts)
	}
}

func TestResultStoreScopeIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()
	other := domain.Scope{OrgID: "org-2"}

	if err := store.Create(ctx, sampleResult("r1", "a1", "u1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.Get(ctx, other, "r1"); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("cross-tenant read must miss, got %v", err)
	}
	results, err := store.ListByCourse(ctx, other, "c1")
	if err != nil || len(results) != 0 {
		t.Fatalf("cross-tenant list must be empty, got %d err=%v", len(results), err)
	}
}

func TestResultStoreFilterAndPagination(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()

	percents := []float64{30, 55, 70, 95}
	for i, pct := range percents {
		res := sampleResult("r"+string(rune('1'+i)), "a"+string(rune('1'+i)), "u1")
		res.Percentage = pct
		if err := store.Create(ctx, res); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	min := 50.0
	max := 90.0
	results, total, err := store.List(ctx, scope, domain.ResultFilter{
		CourseID:   "c1",
		MinPercent: &min,
		MaxPercent: &max,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(results) != 2 {
		t.Fatalf("expected 2 results in [50,90], got total=%d len=%d", total, len(results))
	}

	paged, total, err := store.List(ctx, scope, domain.ResultFilter{CourseID: "c1", Page: 2, Limit: 3})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if total != 4 || len(paged) != 1 {
		t.Fatalf("expected 1 row on page 2 of 4, got total=%d len=%d", total, len(paged))
	}
}

func sampleResult(id, attemptID, userID string) domain.Result {
	return domain.Result{
		ID:           id,
		AttemptID:    attemptID,
		UserID:       userID,
		TestID:       "t1",
		CourseID:     "c1",
		Score:        8,
		MaxScore:     10,
		Percentage:   80,
		Passed:       true,
		CalculatedAt: time.Now(),
		Scope:        scope,
	}
}
