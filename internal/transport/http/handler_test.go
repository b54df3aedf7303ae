package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course-leaderboard-service/internal/app"
	"course-leaderboard-service/internal/domain"
	"course-leaderboard-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	attempts := memory.NewStaticAttemptProvider(map[string]domain.Attempt{
		"a1": {ID: "a1", TestID: "t1", CourseID: "course-1", UserID: "u1",
			Status: domain.AttemptSubmitted, Scope: domain.Scope{OrgID: "org-1"}},
		"a2": {ID: "a2", TestID: "t1", CourseID: "course-1", UserID: "u2",
			Status: domain.AttemptSubmitted, Scope: domain.Scope{OrgID: "org-1"}},
		"a3": {ID: "a3", TestID: "t1", CourseID: "course-1", UserID: "u3",
			Status: domain.AttemptInProgress, Scope: domain.Scope{OrgID: "org-1"}},
	})
	answers := memory.NewStaticAnswerProvider(map[string][]domain.Answer{
		"a1": {
			{QuestionID: "q1", SelectedCorrect: true},
			{QuestionID: "q2", SelectedCorrect: true},
		},
		"a2": {
			{QuestionID: "q1", SelectedCorrect: true},
		},
	})
	questions := memory.NewStaticQuestionProvider(
		map[string]domain.Test{"t1": {ID: "t1", CourseID: "course-1"}},
		map[string][]domain.Question{"t1": {
			{ID: "q1", TestID: "t1", Points: 5},
			{ID: "q2", TestID: "t1", Points: 5},
		}},
	)

	results := memory.NewResultStore()
	entries := memory.NewLeaderboardStore()
	agg := app.NewAggregator(results, entries)
	service := app.NewLeaderboardService(attempts, answers, questions, results, entries, agg,
		memory.LogNotificationSink{}, app.DefaultPassingPercent)

	seq := 0
	service.WithClock(time.Now, func() string {
		seq++
		return fmt.Sprintf("result-%d", seq)
	})

	analytics := app.NewAnalytics(results, entries, memory.NewAnalyticsCache(), app.DefaultCacheTTLs())

	mux := http.NewServeMux()
	NewHandler(service, analytics).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Org-ID", "org-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestCreateResultEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/results", map[string]string{"attemptId": "a1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	res := decode[domain.Result](t, resp)
	if res.Score != 10 || res.Percentage != 100 || !res.Passed {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCreateResultDuplicateConflict(t *testing.T) {
	server := newTestServer(t)

	first := doJSON(t, http.MethodPost, server.URL+"/results", map[string]string{"attemptId": "a1"})
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.StatusCode)
	}
	second := doJSON(t, http.MethodPost, server.URL+"/results", map[string]string{"attemptId": "a1"})
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", second.StatusCode)
	}
}

func TestCreateResultErrorMapping(t *testing.T) {
	server := newTestServer(t)

	cases := []struct {
		name      string
		attemptID string
		status    int
	}{
		{"unknown attempt", "missing", http.StatusNotFound},
		{"unsubmitted attempt", "a3", http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, server.URL+"/results", map[string]string{"attemptId": tc.attemptID})
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
		})
	}
}

func TestCreateResultRequiresAttemptID(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/results", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCourseLeaderboardEndpoint(t *testing.T) {
	server := newTestServer(t)

	for _, attemptID := range []string{"a1", "a2"} {
		resp := doJSON(t, http.MethodPost, server.URL+"/results", map[string]string{"attemptId": attemptID})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed %s: expected 201, got %d", attemptID, resp.StatusCode)
		}
	}

	resp := doJSON(t, http.MethodGet, server.URL+"/courses/course-1/leaderboard", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	lb := decode[domain.Leaderboard](t, resp)
	if lb.Total != 2 || len(lb.Entries) != 2 {
		t.Fatalf("expected 2 entries, got total=%d len=%d", lb.Total, len(lb.Entries))
	}
	if lb.Entries[0].UserID != "u1" || lb.Entries[0].Rank != 1 {
		t.Fatalf("expected u1 at rank 1, got %s at rank %d", lb.Entries[0].UserID, lb.Entries[0].Rank)
	}
	if lb.Entries[1].UserID != "u2" || lb.Entries[1].Rank != 2 {
		t.Fatalf("expected u2 at rank 2, got %s at rank %d", lb.Entries[1].UserID, lb.Entries[1].Rank)
	}
}

func TestUserRankEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/results", map[string]string{"attemptId": "a1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	ranked := doJSON(t, http.MethodGet, server.URL+"/courses/course-1/users/u1/rank", nil)
	if ranked.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", ranked.StatusCode)
	}
	entry := decode[domain.LeaderboardEntry](t, ranked)
	if entry.Rank != 1 {
		t.Fatalf("expected rank 1, got %d", entry.Rank)
	}

	// A user with no results is unranked, not an error.
	unranked := doJSON(t, http.MethodGet, server.URL+"/courses/course-1/users/ghost/rank", nil)
	if unranked.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for unranked user, got %d", unranked.StatusCode)
	}
}

func TestScopeHeaderIsolation(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/results", map[string]string{"attemptId": "a1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, server.URL+"/courses/course-1/leaderboard", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Org-ID", "org-2")
	other, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer other.Body.Close()
	lb := decode[domain.Leaderboard](t, other)
	if lb.Total != 0 {
		t.Fatalf("expected empty leaderboard in foreign org, got total=%d", lb.Total)
	}
}

func TestTestAnalyticsEndpoint(t *testing.T) {
	server := newTestServer(t)

	for _, attemptID := range []string{"a1", "a2"} {
		resp := doJSON(t, http.MethodPost, server.URL+"/results", map[string]string{"attemptId": attemptID})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed %s: expected 201, got %d", attemptID, resp.StatusCode)
		}
	}

	resp := doJSON(t, http.MethodGet, server.URL+"/tests/t1/analytics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	stats := decode[domain.TestAnalytics](t, resp)
	if stats.Results != 2 {
		t.Fatalf("expected 2 results, got %d", stats.Results)
	}
	if stats.Average != 75 {
		t.Fatalf("expected average 75, got %v", stats.Average)
	}
}
