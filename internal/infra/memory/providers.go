package memory

import (
	"context"
	"log"
	"sync"

	"course-leaderboard-service/internal/domain"
)

// Fixtures holds static collaborator data keyed the way the providers query
// it (useful for tests and demos, mirroring a seeded backing store).
type Fixtures struct {
	Attempts  map[string]domain.Attempt   // by attemptID
	Answers   map[string][]domain.Answer  // by attemptID
	Tests     map[string]domain.Test      // by testID
	Questions map[string][]domain.Question // by testID
}

// StaticAttemptProvider serves attempts from a fixture map.
type StaticAttemptProvider struct {
	mu       sync.RWMutex
	attempts map[string]domain.Attempt
}

func NewStaticAttemptProvider(attempts map[string]domain.Attempt) *StaticAttemptProvider {
	if attempts == nil {
		attempts = make(map[string]domain.Attempt)
	}
	return &StaticAttemptProvider{attempts: attempts}
}

func (p *StaticAttemptProvider) Get(_ context.Context, scope domain.Scope, attemptID string) (domain.Attempt, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	attempt, ok := p.attempts[attemptID]
	if !ok || attempt.Scope.OrgID != scope.OrgID {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

// Put seeds or replaces an attempt.
func (p *StaticAttemptProvider) Put(attempt domain.Attempt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[attempt.ID] = attempt
}

// StaticAnswerProvider serves answers from a fixture map.
type StaticAnswerProvider struct {
	answers map[string][]domain.Answer
}

func NewStaticAnswerProvider(answers map[string][]domain.Answer) *StaticAnswerProvider {
	if answers == nil {
		answers = make(map[string][]domain.Answer)
	}
	return &StaticAnswerProvider{answers: answers}
}

func (p *StaticAnswerProvider) List(_ context.Context, _ domain.Scope, attemptID string) ([]domain.Answer, error) {
	return p.answers[attemptID], nil
}

// StaticQuestionProvider serves tests and questions from fixture maps.
type StaticQuestionProvider struct {
	tests     map[string]domain.Test
	questions map[string][]domain.Question
}

func NewStaticQuestionProvider(tests map[string]domain.Test, questions map[string][]domain.Question) *StaticQuestionProvider {
	if tests == nil {
		tests = make(map[string]domain.Test)
	}
	if questions == nil {
		questions = make(map[string][]domain.Question)
	}
	return &StaticQuestionProvider{tests: tests, questions: questions}
}

func (p *StaticQuestionProvider) Test(_ context.Context, _ domain.Scope, testID string) (domain.Test, error) {
	test, ok := p.tests[testID]
	if !ok {
		return domain.Test{}, domain.ErrTestNotFound
	}
	return test, nil
}

func (p *StaticQuestionProvider) List(_ context.Context, _ domain.Scope, testID string) ([]domain.Question, error) {
	return p.questions[testID], nil
}

// LogNotificationSink logs result summaries instead of delivering them.
type LogNotificationSink struct{}

func (LogNotificationSink) Notify(_ context.Context, userID string, summary domain.ResultSummary) error {
	log.Printf("result ready for user %s: test=%s score=%.2f/%.2f passed=%v",
		userID, summary.TestID, summary.Score, summary.MaxScore, summary.Passed)
	return nil
}
