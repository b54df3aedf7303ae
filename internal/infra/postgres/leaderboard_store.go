package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-leaderboard-service/internal/domain"
)

// LeaderboardStore persists ranked entries in Postgres. ReplaceCourse swaps
// the course's entry set inside one transaction so a reader never observes a
// half-written ranking.
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

func (s *LeaderboardStore) ListCourse(ctx context.Context, scope domain.Scope, courseID string) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT course_id, user_id, rank, average_score, total_points, tests_completed, last_updated, org_id, branch_id
		FROM leaderboard_entries
		WHERE org_id=$1 AND branch_id=$2 AND course_id=$3
		ORDER BY rank`,
		scope.OrgID, scope.BranchID, courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LeaderboardEntry, 0)
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(
			&entry.CourseID, &entry.UserID, &entry.Rank, &entry.AverageScore,
			&entry.TotalPoints, &entry.TestsCompleted, &entry.LastUpdated,
			&entry.Scope.OrgID, &entry.Scope.BranchID,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *LeaderboardStore) GetEntry(ctx context.Context, scope domain.Scope, courseID, userID string) (domain.LeaderboardEntry, error) {
	var entry domain.LeaderboardEntry
	err := s.pool.QueryRow(ctx, `
		SELECT course_id, user_id, rank, average_score, total_points, tests_completed, last_updated, org_id, branch_id
		FROM leaderboard_entries
		WHERE org_id=$1 AND branch_id=$2 AND course_id=$3 AND user_id=$4`,
		scope.OrgID, scope.BranchID, courseID, userID,
	).Scan(
		&entry.CourseID, &entry.UserID, &entry.Rank, &entry.AverageScore,
		&entry.TotalPoints, &entry.TestsCompleted, &entry.LastUpdated,
		&entry.Scope.OrgID, &entry.Scope.BranchID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LeaderboardEntry{}, domain.ErrEntryNotFound
	}
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("load entry: %w", err)
	}
	return entry, nil
}

func (s *LeaderboardStore) ReplaceCourse(ctx context.Context, scope domain.Scope, courseID string, entries []domain.LeaderboardEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM leaderboard_entries
		WHERE org_id=$1 AND branch_id=$2 AND course_id=$3`,
		scope.OrgID, scope.BranchID, courseID,
	); err != nil {
		return fmt.Errorf("clear course entries: %w", err)
	}

	for _, entry := range entries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO leaderboard_entries
			(org_id, branch_id, course_id, user_id, rank, average_score, total_points, tests_completed, last_updated)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			scope.OrgID, scope.BranchID, courseID, entry.UserID, entry.Rank,
			entry.AverageScore, entry.TotalPoints, entry.TestsCompleted, entry.LastUpdated,
		); err != nil {
			return fmt.Errorf("insert entry for %s: %w", entry.UserID, err)
		}
	}

	return tx.Commit(ctx)
}
