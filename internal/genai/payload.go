package genai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-study/internal/exam"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type questionPayload struct {
	Question      string   `json:"question" validate:"required"`
	Type          string   `json:"type" validate:"required,oneof=multiple_choice true_false short_answer"`
	Options       []string `json:"options" validate:"omitempty,dive,required"`
	CorrectAnswer string   `json:"correctAnswer" validate:"required"`
	Topic         string   `json:"topic" validate:"required"`
}

type examPayload struct {
	Questions []questionPayload `json:"questions" validate:"dive"`
}

type gradedItem struct {
	Index     *int `json:"index"`
	IsCorrect bool `json:"isCorrect"`
}

type gradingPayload struct {
	Results        []gradedItem `json:"results"`
	TopicsToReview []string     `json:"topicsToReview"`
}

type readingPayload struct {
	Title string `json:"title" validate:"required"`
	URL   string `json:"url" validate:"required,url"`
}

type readingsPayload struct {
	Readings []readingPayload `json:"readings"`
}

type Flashcard struct {
	Front string `json:"front" validate:"required"`
	Back  string `json:"back" validate:"required"`
}

type flashcardsPayload struct {
	Flashcards []Flashcard `json:"flashcards" validate:"dive"`
}

var errNoJSON = errors.New("response contains no JSON object")

// extractJSON pulls the JSON object out of a model reply, which may be
// wrapped in a ```json fence or surrounded by prose.
func extractJSON(reply string) (string, error) {
	s := strings.TrimSpace(reply)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", errNoJSON
	}
	return s[start : end+1], nil
}

func decode(reply string, v any) error {
	raw, err := extractJSON(reply)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode model reply: %w", err)
	}
	return nil
}

func (p questionPayload) toQuestion() (exam.ExamQuestion, error) {
	q := exam.ExamQuestion{
		Question:      strings.TrimSpace(p.Question),
		Type:          exam.QuestionType(p.Type),
		CorrectAnswer: strings.TrimSpace(p.CorrectAnswer),
		Topic:         strings.TrimSpace(p.Topic),
	}
	switch q.Type {
	case exam.MultipleChoice:
		for _, o := range p.Options {
			q.Options = append(q.Options, strings.TrimSpace(o))
		}
		if len(q.Options) < 2 {
			return q, fmt.Errorf("multiple_choice needs at least 2 options, got %d", len(q.Options))
		}
	case exam.TrueFalse:
		switch strings.ToLower(q.CorrectAnswer) {
		case "true":
			q.CorrectAnswer = "True"
		case "false":
			q.CorrectAnswer = "False"
		default:
			return q, fmt.Errorf("true_false answer %q", q.CorrectAnswer)
		}
	}
	if !q.Valid() {
		return q, fmt.Errorf("correct answer %q is not one of the options", q.CorrectAnswer)
	}
	return q, nil
}

// correctness orders graded items by index when the model supplied
// indices, falling back to reply order.
func (p gradingPayload) correctness(n int) ([]bool, error) {
	if len(p.Results) != n {
		return nil, fmt.Errorf("got %d results for %d questions", len(p.Results), n)
	}
	out := make([]bool, n)
	seen := make([]bool, n)
	for pos, r := range p.Results {
		i := pos
		if r.Index != nil {
			i = *r.Index
		}
		if i < 0 || i >= n || seen[i] {
			return nil, fmt.Errorf("result index %d invalid", i)
		}
		seen[i] = true
		out[i] = r.IsCorrect
	}
	return out, nil
}

func httpURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
