package http

import (
	"errors"
	"net/http"

	"github.com/mind-engage/mindengage-study/internal/exam"
)

const maxFlashcards = 50

// POST /notes {material}
func NotesHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := current(s, r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Material string `json:"material" validate:"required"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		ctx, cancel := s.callContext(r)
		defer cancel()
		notes, err := ss.gen.GenerateNotes(ctx, req.Material)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"notes": notes})
	}
}

// POST /flashcards {material, count}
func FlashcardsHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := current(s, r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Material string `json:"material" validate:"required"`
			Count    int    `json:"count" validate:"gte=0,lte=50"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.Count == 0 {
			req.Count = 10
		}
		ctx, cancel := s.callContext(r)
		defer cancel()
		cards, err := ss.gen.GenerateFlashcards(ctx, req.Material, req.Count)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(cards) > maxFlashcards {
			cards = cards[:maxFlashcards]
		}
		writeJSON(w, http.StatusOK, map[string]any{"flashcards": cards})
	}
}

// POST /quizzes {name, correct, total, topics}
func RecordQuizHandler(s *Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, err := current(s, r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Name    string   `json:"name" validate:"required"`
			Correct int      `json:"correct" validate:"gte=0"`
			Total   int      `json:"total" validate:"gte=0,gtefield=Correct"`
			Topics  []string `json:"topics"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		a, err := ss.ctrl.RecordQuiz(r.Context(), req.Name, req.Correct, req.Total, req.Topics)
		if errors.Is(err, exam.ErrPersistence) {
			writeJSON(w, http.StatusOK, scored(a, "quiz could not be saved to history: "+err.Error()))
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, scored(a, ""))
	}
}
