package domain

import "time"

// Scope is the tenant boundary (organization, optional branch) every piece of
// data carries. Aggregation never crosses it.
type Scope struct {
	OrgID    string `json:"orgId"`
	BranchID string `json:"branchId,omitempty"`
}

// IsZero reports whether the scope is unresolved. An unresolved scope is a
// hard error during aggregation, never a default.
func (s Scope) IsZero() bool {
	return s.OrgID == ""
}

// AttemptStatus is the lifecycle state of a test attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptExpired    AttemptStatus = "expired"
)

// Attempt is a user's single run through a test, owned by an external
// collaborator. Only Submitted attempts may produce a Result.
type Attempt struct {
	ID          string        `json:"id"`
	TestID      string        `json:"testId"`
	CourseID    string        `json:"courseId"`
	UserID      string        `json:"userId"`
	Status      AttemptStatus `json:"status"`
	Scope       Scope         `json:"scope"`
	SubmittedAt time.Time     `json:"submittedAt"`
}

// Test carries the scoring policy for its questions.
type Test struct {
	ID             string  `json:"id"`
	CourseID       string  `json:"courseId"`
	PassingPercent float64 `json:"passingPercent"` // defaults to 60 if zero
}

// Question models one scorable item of a test.
type Question struct {
	ID     string  `json:"id"`
	TestID string  `json:"testId"`
	Points float64 `json:"points"`
}

// Answer is a user's response to one question. PointsAwarded, when set, is a
// grader override that wins over the selected-option check.
type Answer struct {
	QuestionID       string   `json:"questionId"`
	PointsAwarded    *float64 `json:"pointsAwarded,omitempty"`
	SelectedOptionID string   `json:"selectedOptionId,omitempty"`
	SelectedCorrect  bool     `json:"selectedCorrect"`
}

// Score is the outcome of scoring one attempt.
type Score struct {
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"maxScore"`
	Percentage float64 `json:"percentage"`
}

// Result is the persisted scoring outcome of one attempt. Exactly one Result
// exists per attempt; recalculation overwrites fields in place.
type Result struct {
	ID           string    `json:"id"`
	AttemptID    string    `json:"attemptId"`
	UserID       string    `json:"userId"`
	TestID       string    `json:"testId"`
	CourseID     string    `json:"courseId"`
	Score        float64   `json:"score"`
	MaxScore     float64   `json:"maxScore"`
	Percentage   float64   `json:"percentage"`
	Passed       bool      `json:"passed"`
	CalculatedAt time.Time `json:"calculatedAt"`
	Scope        Scope     `json:"scope"`
}

// LeaderboardEntry is a per-(course, user) aggregate ranking row. It exists
// iff the user has at least one Result in the course.
type LeaderboardEntry struct {
	CourseID       string    `json:"courseId"`
	UserID         string    `json:"userId"`
	Rank           int       `json:"rank"`
	AverageScore   float64   `json:"averageScore"`
	TotalPoints    float64   `json:"totalPoints"`
	TestsCompleted int       `json:"testsCompleted"`
	LastUpdated    time.Time `json:"lastUpdated"`
	Scope          Scope     `json:"scope"`
}

// Leaderboard is one page of a course's ranked entries.
type Leaderboard struct {
	CourseID  string             `json:"courseId"`
	Entries   []LeaderboardEntry `json:"entries"`
	Total     int                `json:"total"`
	Page      int                `json:"page"`
	Limit     int                `json:"limit"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// EnrichedEntry decorates a LeaderboardEntry with read-time annotations.
// None of these fields participate in the persisted ranking invariant.
type EnrichedEntry struct {
	LeaderboardEntry
	Percentile  float64 `json:"percentile"`
	Badge       string  `json:"badge,omitempty"`
	Consistency string  `json:"consistency"`
	RankChange  *int    `json:"rankChange,omitempty"`
}

// ResultSummary is the notification payload sent after a result is created.
type ResultSummary struct {
	ResultID   string  `json:"resultId"`
	TestID     string  `json:"testId"`
	CourseID   string  `json:"courseId"`
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"maxScore"`
	Percentage float64 `json:"percentage"`
	Passed     bool    `json:"passed"`
}

// DistributionBucket is one 10-point band of a score distribution.
type DistributionBucket struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// TestAnalytics holds derived statistics for one test's results.
type TestAnalytics struct {
	TestID       string               `json:"testId"`
	Results      int                  `json:"results"`
	Average      float64              `json:"average"`
	Median       float64              `json:"median"`
	StdDev       float64              `json:"stdDev"`
	PassRate     float64              `json:"passRate"`
	Distribution []DistributionBucket `json:"distribution"`
	ComputedAt   time.Time            `json:"computedAt"`
}

// CourseStats holds course-wide aggregate statistics.
type CourseStats struct {
	CourseID     string    `json:"courseId"`
	Results      int       `json:"results"`
	Participants int       `json:"participants"`
	AveragePct   float64   `json:"averagePercentage"`
	PassRate     float64   `json:"passRate"`
	ComputedAt   time.Time `json:"computedAt"`
}

// ResultFilter narrows result list queries. Zero values mean "no constraint".
type ResultFilter struct {
	UserID     string
	TestID     string
	CourseID   string
	MinPercent *float64
	MaxPercent *float64
	Page       int
	Limit      int
}
