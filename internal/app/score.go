package app

import (
	"math"

	"course-leaderboard-service/internal/domain"
)

// DefaultPassingPercent applies when a test does not configure its own
// passing threshold.
const DefaultPassingPercent = 60.0

// CalculateScore derives score/maxScore/percentage for one attempt from its
// answers and the test's question weights. Earned points per question: the
// grader override if present, else full points when the selected option is
// correct, else zero. Unanswered questions earn zero. Pure computation.
func CalculateScore(questions []domain.Question, answers []domain.Answer) domain.Score {
	byQuestion := make(map[string]domain.Answer, len(answers))
	for _, ans := range answers {
		byQuestion[ans.QuestionID] = ans
	}

	var score, maxScore float64
	for _, q := range questions {
		maxScore += q.Points
		ans, ok := byQuestion[q.ID]
		if !ok {
			continue
		}
		switch {
		case ans.PointsAwarded != nil:
			// Overrides are clamped so a result can never exceed its maximum.
			score += clamp(*ans.PointsAwarded, 0, q.Points)
		case ans.SelectedCorrect:
			score += q.Points
		}
	}

	// A test with no weighted questions scores 0, not NaN.
	percentage := 0.0
	if maxScore > 0 {
		percentage = round2(score / maxScore * 100)
	}
	return domain.Score{Score: score, MaxScore: maxScore, Percentage: percentage}
}

// passingPercent resolves the test's threshold, falling back to the default.
func passingPercent(test domain.Test, fallback float64) float64 {
	if test.PassingPercent > 0 {
		return test.PassingPercent
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultPassingPercent
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
