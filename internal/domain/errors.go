package domain

import "errors"

var (
	// ErrAttemptNotFound is returned when the referenced attempt does not exist.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrResultNotFound is returned when the referenced result does not exist.
	ErrResultNotFound = errors.New("result not found")
	// ErrEntryNotFound indicates a user has no leaderboard entry in the course.
	ErrEntryNotFound = errors.New("leaderboard entry not found")
	// ErrTestNotFound indicates the attempt's test could not be loaded.
	ErrTestNotFound = errors.New("test not found")
	// ErrAttemptNotSubmitted rejects result creation for non-terminal attempts.
	ErrAttemptNotSubmitted = errors.New("attempt is not in submitted state")
	// ErrDuplicateResult rejects a second result for the same attempt.
	ErrDuplicateResult = errors.New("result already exists for attempt")
	// ErrScopeIntegrity aborts aggregation when a row has no resolvable tenant
	// scope. Aggregating across tenants silently is never acceptable.
	ErrScopeIntegrity = errors.New("missing tenant scope")
	// ErrCacheMiss is returned by analytics caches when a key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")
)
