package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-leaderboard-service/internal/domain"
)

// ResultStore persists results in Postgres. The UNIQUE constraint on
// attempt_id is the idempotency guard: a concurrent double-create loses the
// race at the database, not at a pre-check.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

const resultColumns = `result_id, attempt_id, user_id, test_id, course_id, score, max_score, percentage, passed, calculated_at, org_id, branch_id`

func (s *ResultStore) Create(ctx context.Context, res domain.Result) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO results (`+resultColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		res.ID, res.AttemptID, res.UserID, res.TestID, res.CourseID,
		res.Score, res.MaxScore, res.Percentage, res.Passed, res.CalculatedAt,
		res.Scope.OrgID, res.Scope.BranchID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateResult
		}
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *ResultStore) Update(ctx context.Context, res domain.Result) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE results
		SET score=$2, max_score=$3, percentage=$4, passed=$5, calculated_at=$6
		WHERE result_id=$1`,
		res.ID, res.Score, res.MaxScore, res.Percentage, res.Passed, res.CalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResultNotFound
	}
	return nil
}

func (s *ResultStore) Get(ctx context.Context, scope domain.Scope, resultID string) (domain.Result, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+resultColumns+` FROM results
		WHERE result_id=$1 AND org_id=$2 AND branch_id=$3`,
		resultID, scope.OrgID, scope.BranchID,
	)
	res, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Result{}, domain.ErrResultNotFound
	}
	if err != nil {
		return domain.Result{}, fmt.Errorf("load result: %w", err)
	}
	return res, nil
}

func (s *ResultStore) ListByUserCourse(ctx context.Context, scope domain.Scope, courseID, userID string) ([]domain.Result, error) {
	return s.list(ctx, `
		SELECT `+resultColumns+` FROM results
		WHERE org_id=$1 AND branch_id=$2 AND course_id=$3 AND user_id=$4
		ORDER BY result_id`,
		scope.OrgID, scope.BranchID, courseID, userID)
}

func (s *ResultStore) ListByCourse(ctx context.Context, scope domain.Scope, courseID string) ([]domain.Result, error) {
	return s.list(ctx, `
		SELECT `+resultColumns+` FROM results
		WHERE org_id=$1 AND branch_id=$2 AND course_id=$3
		ORDER BY result_id`,
		scope.OrgID, scope.BranchID, courseID)
}

func (s *ResultStore) ListByTest(ctx context.Context, scope domain.Scope, testID string) ([]domain.Result, error) {
	return s.list(ctx, `
		SELECT `+resultColumns+` FROM results
		WHERE org_id=$1 AND branch_id=$2 AND test_id=$3
		ORDER BY result_id`,
		scope.OrgID, scope.BranchID, testID)
}

func (s *ResultStore) List(ctx context.Context, scope domain.Scope, filter domain.ResultFilter) ([]domain.Result, int, error) {
	where := []string{"org_id=$1", "branch_id=$2"}
	args := []interface{}{scope.OrgID, scope.BranchID}
	add := func(cond string, val interface{}) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != "" {
		add("user_id=$%d", filter.UserID)
	}
	if filter.TestID != "" {
		add("test_id=$%d", filter.TestID)
	}
	if filter.CourseID != "" {
		add("course_id=$%d", filter.CourseID)
	}
	if filter.MinPercent != nil {
		add("percentage>=$%d", *filter.MinPercent)
	}
	if filter.MaxPercent != nil {
		add("percentage<=$%d", *filter.MaxPercent)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM results WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT `+resultColumns+` FROM results WHERE %s ORDER BY result_id LIMIT $%d OFFSET $%d`,
		clause, len(args)-1, len(args))

	results, err := s.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (s *ResultStore) list(ctx context.Context, query string, args ...interface{}) ([]domain.Result, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Result, 0)
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanResult(row pgx.Row) (domain.Result, error) {
	var res domain.Result
	err := row.Scan(
		&res.ID, &res.AttemptID, &res.UserID, &res.TestID, &res.CourseID,
		&res.Score, &res.MaxScore, &res.Percentage, &res.Passed, &res.CalculatedAt,
		&res.Scope.OrgID, &res.Scope.BranchID,
	)
	return res, err
}
