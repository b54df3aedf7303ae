package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-leaderboard-service/internal/domain"
)

// AttemptProvider reads attempts from the collaborator-owned attempts table.
type AttemptProvider struct {
	pool *pgxpool.Pool
}

func NewAttemptProvider(pool *pgxpool.Pool) *AttemptProvider {
	return &AttemptProvider{pool: pool}
}

func (p *AttemptProvider) Get(ctx context.Context, scope domain.Scope, attemptID string) (domain.Attempt, error) {
	var attempt domain.Attempt
	err := p.pool.QueryRow(ctx, `
		SELECT attempt_id, test_id, course_id, user_id, status, org_id, branch_id, COALESCE(submitted_at, 'epoch'::timestamptz)
		FROM attempts
		WHERE attempt_id=$1 AND org_id=$2 AND branch_id=$3`,
		attemptID, scope.OrgID, scope.BranchID,
	).Scan(
		&attempt.ID, &attempt.TestID, &attempt.CourseID, &attempt.UserID,
		&attempt.Status, &attempt.Scope.OrgID, &attempt.Scope.BranchID, &attempt.SubmittedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("load attempt: %w", err)
	}
	return attempt, nil
}

// AnswerProvider reads a submitted attempt's answers.
type AnswerProvider struct {
	pool *pgxpool.Pool
}

func NewAnswerProvider(pool *pgxpool.Pool) *AnswerProvider {
	return &AnswerProvider{pool: pool}
}

func (p *AnswerProvider) List(ctx context.Context, scope domain.Scope, attemptID string) ([]domain.Answer, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT question_id, points_awarded, selected_option_id, selected_correct
		FROM answers
		WHERE attempt_id=$1 AND org_id=$2 AND branch_id=$3`,
		attemptID, scope.OrgID, scope.BranchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Answer, 0)
	for rows.Next() {
		var ans domain.Answer
		if err := rows.Scan(&ans.QuestionID, &ans.PointsAwarded, &ans.SelectedOptionID, &ans.SelectedCorrect); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, ans)
	}
	return out, rows.Err()
}

// QuestionProvider reads tests and their question weights.
type QuestionProvider struct {
	pool *pgxpool.Pool
}

func NewQuestionProvider(pool *pgxpool.Pool) *QuestionProvider {
	return &QuestionProvider{pool: pool}
}

func (p *QuestionProvider) Test(ctx context.Context, scope domain.Scope, testID string) (domain.Test, error) {
	var test domain.Test
	err := p.pool.QueryRow(ctx, `
		SELECT test_id, course_id, passing_percent
		FROM tests
		WHERE test_id=$1 AND org_id=$2 AND branch_id=$3`,
		testID, scope.OrgID, scope.BranchID,
	).Scan(&test.ID, &test.CourseID, &test.PassingPercent)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Test{}, domain.ErrTestNotFound
	}
	if err != nil {
		return domain.Test{}, fmt.Errorf("load test: %w", err)
	}
	return test, nil
}

func (p *QuestionProvider) List(ctx context.Context, scope domain.Scope, testID string) ([]domain.Question, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT question_id, test_id, points
		FROM questions
		WHERE test_id=$1 AND org_id=$2 AND branch_id=$3
		ORDER BY question_id`,
		testID, scope.OrgID, scope.BranchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Question, 0)
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.TestID, &q.Points); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
