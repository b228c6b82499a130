package http

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/metrics"
)

// DefaultUserHeader carries the caller identity set by the upstream gateway.
const DefaultUserHeader = "X-User-ID"

type Handler struct {
	attempts   *app.AttemptService
	results    *app.ResultService
	rankings   *app.RankingService
	userHeader string
}

func NewHandler(attempts *app.AttemptService, results *app.ResultService, rankings *app.RankingService, userHeader string) *Handler {
	if userHeader == "" {
		userHeader = DefaultUserHeader
	}
	return &Handler{
		attempts:   attempts,
		results:    results,
		rankings:   rankings,
		userHeader: userHeader,
	}
}

// Routes registers the REST API, the ranking feed and the operational endpoints.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	h.handle(mux, "POST /quiz-taking/{quizId}/start", "start", h.start)
	h.handle(mux, "POST /quiz-taking/{quizId}/{questionId}/answer", "answer", h.answer)
	h.handle(mux, "POST /quiz-taking/{attemptId}/finish", "finish", h.finish)
	h.handle(mux, "GET /quiz-taking/{attemptId}/status", "status", h.status)
	h.handle(mux, "GET /active-attempts", "active_attempts", h.activeAttempts)
	h.handle(mux, "GET /active-attempts/{attemptId}/resume", "resume", h.resume)
	h.handle(mux, "DELETE /active-attempts/{attemptId}/abandon", "abandon", h.abandon)
	mux.HandleFunc("GET /ranking/{quizId}", metrics.Instrument("ranking", h.ranking))
	mux.HandleFunc("GET /ranking", metrics.Instrument("rankings", h.allRankings))

	ws := NewWSHandler(h.rankings)
	mux.HandleFunc("GET /ws/ranking", ws.ServeWS)
	return mux
}

type userKey struct{}

func (h *Handler) handle(mux *http.ServeMux, pattern, route string, next http.HandlerFunc) {
	mux.HandleFunc(pattern, metrics.Instrument(route, h.authenticated(next)))
}

func (h *Handler) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(h.userHeader))
		if userID == "" {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	}
}

func userFrom(r *http.Request) string {
	userID, _ := r.Context().Value(userKey{}).(string)
	return userID
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizId")
	if !ok {
		return
	}
	started, err := h.attempts.Start(r.Context(), userFrom(r), quizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, started)
}

type answerRequest struct {
	UserAnswer string `json:"userAnswer"`
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizId")
	if !ok {
		return
	}
	questionID, ok := pathID(w, r, "questionId")
	if !ok {
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid request body"})
		return
	}
	outcome, err := h.attempts.SubmitAnswer(r.Context(), userFrom(r), quizID, questionID, req.UserAnswer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request) {
	finished, err := h.results.Finish(r.Context(), r.PathValue("attemptId"), userFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	finished.Result.ScorePercentage = roundScore(finished.Result.ScorePercentage)
	writeJSON(w, http.StatusOK, finished)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	status, err := h.attempts.Status(r.Context(), r.PathValue("attemptId"), userFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) activeAttempts(w http.ResponseWriter, r *http.Request) {
	active, err := h.attempts.ActiveAttempts(r.Context(), userFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, active)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	state, err := h.attempts.Resume(r.Context(), r.PathValue("attemptId"), userFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) abandon(w http.ResponseWriter, r *http.Request) {
	attemptID := r.PathValue("attemptId")
	if err := h.attempts.Abandon(r.Context(), attemptID, userFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"attemptId": attemptID, "message": "Attempt abandoned."})
}

func (h *Handler) ranking(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizId")
	if !ok {
		return
	}
	lb, err := h.rankings.Ranking(r.Context(), quizID, r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roundLeaderboard(lb))
}

func (h *Handler) allRankings(w http.ResponseWriter, r *http.Request) {
	boards, err := h.rankings.Rankings(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, err)
		return
	}
	for i := range boards {
		boards[i] = roundLeaderboard(boards[i])
	}
	writeJSON(w, http.StatusOK, boards)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid " + name})
		return 0, false
	}
	return id, true
}

// roundScore rounds a percentage to two decimals for presentation.
func roundScore(score float64) float64 {
	return math.Round(score*100) / 100
}

func roundLeaderboard(lb domain.Leaderboard) domain.Leaderboard {
	entries := make([]domain.RankingEntry, len(lb.Entries))
	for i, e := range lb.Entries {
		e.ScorePercentage = roundScore(e.ScorePercentage)
		entries[i] = e
	}
	lb.Entries = entries
	return lb
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	var (
		status int
		code   string
	)
	switch domain.KindOf(err) {
	case domain.KindUnauthorized:
		status, code = http.StatusUnauthorized, "unauthorized"
	case domain.KindNotFound:
		status, code = http.StatusNotFound, "not_found"
	case domain.KindConflict:
		status, code = http.StatusBadRequest, "conflict"
	case domain.KindValidation:
		status, code = http.StatusBadRequest, "validation_failed"
	default:
		log.Printf("request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error", Message: "internal server error"})
		return
	}
	writeJSON(w, status, errorBody{Error: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}
