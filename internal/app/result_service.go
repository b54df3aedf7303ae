package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"course-leaderboard-service/internal/domain"
)

// AttemptProvider exposes attempts owned by the external attempt tracker.
type AttemptProvider interface {
	Get(ctx context.Context, scope domain.Scope, attemptID string) (domain.Attempt, error)
}

// AnswerProvider lists a submitted attempt's answers.
type AnswerProvider interface {
	List(ctx context.Context, scope domain.Scope, attemptID string) ([]domain.Answer, error)
}

// QuestionProvider exposes a test and its question weights.
type QuestionProvider interface {
	Test(ctx context.Context, scope domain.Scope, testID string) (domain.Test, error)
	List(ctx context.Context, scope domain.Scope, testID string) ([]domain.Question, error)
}

// NotificationSink receives result summaries. Delivery is fire-and-forget;
// its failure never fails result creation.
type NotificationSink interface {
	Notify(ctx context.Context, userID string, summary domain.ResultSummary) error
}

// LeaderboardService contains the scoring and leaderboard use cases.
type LeaderboardService struct {
	attempts  AttemptProvider
	answers   AnswerProvider
	questions QuestionProvider
	results   ResultStore
	entries   LeaderboardStore
	agg       *Aggregator
	notifier  NotificationSink

	defaultPassing float64
	clock          func() time.Time
	newID          func() string
}

func NewLeaderboardService(
	attempts AttemptProvider,
	answers AnswerProvider,
	questions QuestionProvider,
	results ResultStore,
	entries LeaderboardStore,
	agg *Aggregator,
	notifier NotificationSink,
	defaultPassing float64,
) *LeaderboardService {
	return &LeaderboardService{
		attempts:       attempts,
		answers:        answers,
		questions:      questions,
		results:        results,
		entries:        entries,
		agg:            agg,
		notifier:       notifier,
		defaultPassing: defaultPassing,
		clock:          time.Now,
		newID:          uuid.NewString,
	}
}

// WithClock is test-only for deterministic timestamps and IDs.
func (s *LeaderboardService) WithClock(now func() time.Time, newID func() string) *LeaderboardService {
	s.clock = now
	s.newID = newID
	return s
}

// CreateResult scores a submitted attempt and persists its result.
//
// The store's uniqueness constraint on attemptID is what rejects concurrent
// double-submits; the attempt status check alone would not. The follow-up
// leaderboard update is non-fatal: the result is the source of truth and the
// leaderboard is eventually consistent (RefreshLeaderboard forces it).
func (s *LeaderboardService) CreateResult(ctx context.Context, scope domain.Scope, attemptID string) (domain.Result, error) {
	attempt, err := s.attempts.Get(ctx, scope, attemptID)
	if err != nil {
		return domain.Result{}, err
	}
	if attempt.Status != domain.AttemptSubmitted {
		return domain.Result{}, fmt.Errorf("attempt %s is %s: %w", attemptID, attempt.Status, domain.ErrAttemptNotSubmitted)
	}
	if attempt.Scope.IsZero() {
		return domain.Result{}, fmt.Errorf("attempt %s: %w", attemptID, domain.ErrScopeIntegrity)
	}

	res, err := s.score(ctx, attempt)
	if err != nil {
		return domain.Result{}, err
	}
	res.ID = s.newID()

	if err := s.results.Create(ctx, res); err != nil {
		return domain.Result{}, err
	}

	if err := s.agg.UpdateUserScore(ctx, res.Scope, res.CourseID, res.UserID); err != nil {
		log.Printf("leaderboard update after result %s failed, standings are stale until refresh: %v", res.ID, err)
	}

	s.notify(res)
	return res, nil
}

// RecalculateResult re-scores a result against its original attempt,
// overwriting the scoring fields in place. Identity is preserved.
func (s *LeaderboardService) RecalculateResult(ctx context.Context, scope domain.Scope, resultID string) (domain.Result, error) {
	existing, err := s.results.Get(ctx, scope, resultID)
	if err != nil {
		return domain.Result{}, err
	}

	attempt, err := s.attempts.Get(ctx, scope, existing.AttemptID)
	if err != nil {
		return domain.Result{}, fmt.Errorf("load original attempt: %w", err)
	}

	res, err := s.score(ctx, attempt)
	if err != nil {
		return domain.Result{}, err
	}
	res.ID = existing.ID

	if err := s.results.Update(ctx, res); err != nil {
		return domain.Result{}, fmt.Errorf("update result: %w", err)
	}

	if err := s.agg.UpdateUserScore(ctx, res.Scope, res.CourseID, res.UserID); err != nil {
		log.Printf("leaderboard update after recalculating %s failed: %v", res.ID, err)
	}
	return res, nil
}

// GetCourseLeaderboard reads the authoritative ranked entries for a course,
// paginated. Page and limit are normalized to 1 and 20 when unset.
func (s *LeaderboardService) GetCourseLeaderboard(ctx context.Context, scope domain.Scope, courseID string, page, limit int) (domain.Leaderboard, error) {
	entries, err := s.entries.ListCourse(ctx, scope, courseID)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load leaderboard: %w", err)
	}
	page, limit = normalizePage(page, limit)
	return domain.Leaderboard{
		CourseID:  courseID,
		Entries:   pageOf(entries, page, limit),
		Total:     len(entries),
		Page:      page,
		Limit:     limit,
		UpdatedAt: s.clock(),
	}, nil
}

// GetUserRank returns the user's entry in the course, or nil when the user
// has no results there.
func (s *LeaderboardService) GetUserRank(ctx context.Context, scope domain.Scope, courseID, userID string) (*domain.LeaderboardEntry, error) {
	entry, err := s.entries.GetEntry(ctx, scope, courseID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load entry: %w", err)
	}
	return &entry, nil
}

// RefreshLeaderboard forces a full rebuild of the course's rankings.
func (s *LeaderboardService) RefreshLeaderboard(ctx context.Context, scope domain.Scope, courseID string) error {
	return s.agg.RebuildCourse(ctx, scope, courseID)
}

// GetEnrichedLeaderboard decorates one leaderboard page with read-time
// annotations (percentile, badge, consistency, rank change).
func (s *LeaderboardService) GetEnrichedLeaderboard(ctx context.Context, scope domain.Scope, courseID string, page, limit int) ([]domain.EnrichedEntry, int, error) {
	entries, err := s.entries.ListCourse(ctx, scope, courseID)
	if err != nil {
		return nil, 0, fmt.Errorf("load leaderboard: %w", err)
	}
	results, err := s.results.ListByCourse(ctx, scope, courseID)
	if err != nil {
		return nil, 0, fmt.Errorf("load course results: %w", err)
	}

	byUser := make(map[string][]domain.Result)
	for _, res := range results {
		byUser[res.UserID] = append(byUser[res.UserID], res)
	}

	page, limit = normalizePage(page, limit)
	enriched := EnrichEntries(pageOf(entries, page, limit), len(entries), byUser, func(userID string) (int, bool) {
		return s.agg.PreviousRank(scope, courseID, userID)
	})
	return enriched, len(entries), nil
}

// ListResults is a pass-through query over persisted results.
func (s *LeaderboardService) ListResults(ctx context.Context, scope domain.Scope, filter domain.ResultFilter) ([]domain.Result, int, error) {
	return s.results.List(ctx, scope, filter)
}

// SubscribeLeaderboard streams full-course ranking snapshots.
func (s *LeaderboardService) SubscribeLeaderboard(scope domain.Scope, courseID string) (<-chan domain.Leaderboard, func()) {
	return s.agg.Subscribe(scope, courseID)
}

func (s *LeaderboardService) score(ctx context.Context, attempt domain.Attempt) (domain.Result, error) {
	test, err := s.questions.Test(ctx, attempt.Scope, attempt.TestID)
	if err != nil {
		return domain.Result{}, fmt.Errorf("load test: %w", err)
	}
	questions, err := s.questions.List(ctx, attempt.Scope, attempt.TestID)
	if err != nil {
		return domain.Result{}, fmt.Errorf("load questions: %w", err)
	}
	answers, err := s.answers.List(ctx, attempt.Scope, attempt.ID)
	if err != nil {
		return domain.Result{}, fmt.Errorf("load answers: %w", err)
	}

	sc := CalculateScore(questions, answers)
	return domain.Result{
		AttemptID:    attempt.ID,
		UserID:       attempt.UserID,
		TestID:       attempt.TestID,
		CourseID:     attempt.CourseID,
		Score:        sc.Score,
		MaxScore:     sc.MaxScore,
		Percentage:   sc.Percentage,
		Passed:       sc.Percentage >= passingPercent(test, s.defaultPassing),
		CalculatedAt: s.clock(),
		Scope:        attempt.Scope,
	}, nil
}

func (s *LeaderboardService) notify(res domain.Result) {
	if s.notifier == nil {
		return
	}
	summary := domain.ResultSummary{
		ResultID:   res.ID,
		TestID:     res.TestID,
		CourseID:   res.CourseID,
		Score:      res.Score,
		MaxScore:   res.MaxScore,
		Percentage: res.Percentage,
		Passed:     res.Passed,
	}
	go func() {
		if err := s.notifier.Notify(context.Background(), res.UserID, summary); err != nil {
			log.Printf("result notification for user %s failed: %v", res.UserID, err)
		}
	}()
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func pageOf(entries []domain.LeaderboardEntry, page, limit int) []domain.LeaderboardEntry {
	start := (page - 1) * limit
	if start >= len(entries) {
		return []domain.LeaderboardEntry{}
	}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end]
}
