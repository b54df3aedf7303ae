package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"course-leaderboard-service/internal/app"
	"course-leaderboard-service/internal/domain"
)

// Handler exposes the engine's logical operations as a thin JSON shell.
// Tenant scope arrives resolved in headers; enforcement lives upstream.
type Handler struct {
	service   *app.LeaderboardService
	analytics *app.Analytics
}

func NewHandler(service *app.LeaderboardService, analytics *app.Analytics) *Handler {
	return &Handler{service: service, analytics: analytics}
}

// Register wires all routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /results", h.createResult)
	mux.HandleFunc("POST /results/{resultID}/recalculate", h.recalculateResult)
	mux.HandleFunc("GET /results", h.listResults)
	mux.HandleFunc("GET /courses/{courseID}/leaderboard", h.courseLeaderboard)
	mux.HandleFunc("GET /courses/{courseID}/leaderboard/enriched", h.enrichedLeaderboard)
	mux.HandleFunc("GET /courses/{courseID}/leaderboard/cached", h.cachedLeaderboard)
	mux.HandleFunc("POST /courses/{courseID}/leaderboard/refresh", h.refreshLeaderboard)
	mux.HandleFunc("GET /courses/{courseID}/users/{userID}/rank", h.userRank)
	mux.HandleFunc("GET /courses/{courseID}/stats", h.courseStats)
	mux.HandleFunc("GET /tests/{testID}/analytics", h.testAnalytics)
}

type createResultRequest struct {
	AttemptID string `json:"attemptId"`
}

func (h *Handler) createResult(w http.ResponseWriter, r *http.Request) {
	var req createResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AttemptID == "" {
		writeMessage(w, http.StatusBadRequest, "attemptId is required")
		return
	}
	res, err := h.service.CreateResult(r.Context(), scopeFrom(r), req.AttemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) recalculateResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.RecalculateResult(r.Context(), scopeFrom(r), r.PathValue("resultID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) listResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ResultFilter{
		UserID:   q.Get("userId"),
		TestID:   q.Get("testId"),
		CourseID: q.Get("courseId"),
		Page:     intParam(q.Get("page")),
		Limit:    intParam(q.Get("limit")),
	}
	if v := q.Get("minPercent"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinPercent = &f
		}
	}
	if v := q.Get("maxPercent"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MaxPercent = &f
		}
	}

	results, total, err := h.service.ListResults(r.Context(), scopeFrom(r), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"total":   total,
	})
}

func (h *Handler) courseLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lb, err := h.service.GetCourseLeaderboard(r.Context(), scopeFrom(r), r.PathValue("courseID"),
		intParam(q.Get("page")), intParam(q.Get("limit")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *Handler) enrichedLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, total, err := h.service.GetEnrichedLeaderboard(r.Context(), scopeFrom(r), r.PathValue("courseID"),
		intParam(q.Get("page")), intParam(q.Get("limit")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
	})
}

func (h *Handler) cachedLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lb, err := h.analytics.LeaderboardPage(r.Context(), scopeFrom(r), r.PathValue("courseID"),
		intParam(q.Get("page")), intParam(q.Get("limit")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *Handler) refreshLeaderboard(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RefreshLeaderboard(r.Context(), scopeFrom(r), r.PathValue("courseID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userRank(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.GetUserRank(r.Context(), scopeFrom(r), r.PathValue("courseID"), r.PathValue("userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) courseStats(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "true"
	stats, err := h.analytics.CourseStats(r.Context(), scopeFrom(r), r.PathValue("courseID"), force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) testAnalytics(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "true"
	analytics, err := h.analytics.TestAnalytics(r.Context(), scopeFrom(r), r.PathValue("testID"), force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// scopeFrom reads the tenant scope resolved by the upstream auth layer.
func scopeFrom(r *http.Request) domain.Scope {
	scope := domain.Scope{
		OrgID:    r.Header.Get("X-Org-ID"),
		BranchID: r.Header.Get("X-Branch-ID"),
	}
	if scope.OrgID == "" {
		scope.OrgID = r.URL.Query().Get("orgId")
		scope.BranchID = r.URL.Query().Get("branchId")
	}
	return scope
}

func intParam(raw string) int {
	v, _ := strconv.Atoi(raw)
	return v
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrResultNotFound),
		errors.Is(err, domain.ErrTestNotFound),
		errors.Is(err, domain.ErrEntryNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateResult):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrAttemptNotSubmitted),
		errors.Is(err, domain.ErrScopeIntegrity):
		writeMessage(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("request failed: %v", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
