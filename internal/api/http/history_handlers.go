package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-study/internal/exam"
)

// GET /history?type=Exam|Quiz
func ListHistoryHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := current(s, r)
		if err != nil {
			writeError(w, err)
			return
		}
		typ := exam.AttemptType(strings.TrimSpace(r.URL.Query().Get("type")))
		switch typ {
		case "", exam.AttemptExam, exam.AttemptQuiz:
		default:
			writeError(w, validationErr("type must be Exam or Quiz"))
			return
		}
		list, err := ss.ctrl.History(r.Context(), typ)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /history/summary
func SummaryHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := current(s, r)
		if err != nil {
			writeError(w, err)
			return
		}
		sum, err := ss.ctrl.Summary(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// GET /history/{id} opens a past attempt in the session's review view.
func ViewHistoryHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := current(s, r)
		if err != nil {
			writeError(w, err)
			return
		}
		a, err := ss.ctrl.ViewHistory(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// DELETE /history/{id}
func DeleteHistoryHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := current(s, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := ss.ctrl.DeleteAttempt(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
