package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-study/internal/exam"
	"github.com/mind-engage/mindengage-study/internal/session"
)

// APIKeyHeader carries a caller-supplied LLM key on POST /sessions.
const APIKeyHeader = "X-LLM-Api-Key"

// Limits bounds the per-request question and flashcard counts.
type Limits struct {
	DefaultQuestionCount int
	MaxQuestionCount     int
}

func (l Limits) questionCount(n int) (int, error) {
	if n == 0 {
		n = l.DefaultQuestionCount
	}
	if n < 1 || (l.MaxQuestionCount > 0 && n > l.MaxQuestionCount) {
		return 0, validationErr("question_count must be between 1 and %d", l.MaxQuestionCount)
	}
	return n, nil
}

// current resolves the caller's session from the bearer claims.
func current(s *Sessions, r *http.Request) (*studySession, error) {
	c := session.FromContext(r.Context())
	if c == nil {
		return nil, errSessionGone
	}
	return s.get(c.SessionID)
}

// POST /sessions {subject_id, subject_name}
func CreateSessionHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SubjectID   string `json:"subject_id" validate:"required,max=128"`
			SubjectName string `json:"subject_name" validate:"max=256"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		subj := exam.Subject{ID: strings.TrimSpace(req.SubjectID), Name: strings.TrimSpace(req.SubjectName)}
		if subj.Name == "" {
			subj.Name = subj.ID
		}
		sid, token, err := s.Open(subj, strings.TrimSpace(r.Header.Get(APIKeyHeader)))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"session_id": sid, "token": token})
	}
}

// GET /session
func GetSessionHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := current(s, r)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ss.ctrl.Snapshot())
	}
}

// POST /session/exam {material, name, question_count}
func GenerateExamHandler(s *Sessions, lim Limits) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := current(s, r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Material      string `json:"material"`
			Name          string `json:"name"`
			QuestionCount int    `json:"question_count" validate:"gte=0"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		n, err := lim.questionCount(req.QuestionCount)
		if err != nil {
			writeError(w, err)
			return
		}
		err = ss.ctrl.Generate(r.Context(), req.Material, req.Name, n)
		if errors.Is(err, exam.ErrNoQuestions) {
			writeJSON(w, http.StatusOK, map[string]any{"session": ss.ctrl.Snapshot(), "warning": "no questions generated"})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": ss.ctrl.Snapshot()})
	}
}

// PUT /session/answers/{index} {value}
func AnswerHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := current(s, r)
		if err != nil {
			writeError(w, err)
			return
		}
		idx, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			writeError(w, validationErr("answer index must be an integer"))
			return
		}
		var req struct {
			Value string `json:"value"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := ss.ctrl.Answer(idx, req.Value); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /session/navigate {direction: next|prev}
func NavigateHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := current(s, r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Direction string `json:"direction" validate:"required,oneof=next prev"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		step := 1
		if req.Direction == "prev" {
			step = -1
		}
		idx, err := ss.ctrl.Navigate(step)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"current_index": idx})
	}
}

type submitResponse struct {
	Attempt   exam.Attempt `json:"attempt"`
	Score     string       `json:"score"` // display form, e.g. "66.7%"
	Persisted bool         `json:"persisted"`
	Warning   string       `json:"warning,omitempty"`
}

// scored wraps a finished attempt; an empty warning means it was saved.
func scored(a exam.Attempt, warning string) submitResponse {
	return submitResponse{Attempt: a, Score: exam.FormatScore(a.OverallScore), Persisted: warning == "", Warning: warning}
}

// POST /session/submit
func SubmitHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := current(s, r)
		if err != nil {
			writeError(w, err)
			return
		}
		a, err := ss.ctrl.Submit(r.Context())
		switch {
		case errors.Is(err, exam.ErrPersistence):
			writeJSON(w, http.StatusOK, scored(a, "results could not be saved to history: "+err.Error()))
		case err != nil:
			writeError(w, err)
		default:
			writeJSON(w, http.StatusOK, scored(a, ""))
		}
	}
}

// POST /session/reset
func ResetHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := current(s, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := ss.ctrl.Reset(); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type readingsResponse struct {
	Readings  []exam.Reading `json:"readings"`
	Persisted bool           `json:"persisted"`
	Warning   string         `json:"warning,omitempty"`
}

// POST /session/readings {topic}
func ReadingsHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := current(s, r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Topic string `json:"topic" validate:"required,max=200"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		rs, err := ss.ctrl.FetchReadings(r.Context(), req.Topic)
		switch {
		case errors.Is(err, exam.ErrPersistence):
			writeJSON(w, http.StatusOK, readingsResponse{Readings: rs, Warning: "readings could not be saved: " + err.Error()})
		case err != nil:
			writeError(w, err)
		default:
			writeJSON(w, http.StatusOK, readingsResponse{Readings: rs, Persisted: true})
		}
	}
}
