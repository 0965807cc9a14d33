// Package genai implements the exam generation service on top of a hosted
// LLM: question generation, grading, reading suggestions, notes and
// flashcards.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mind-engage/mindengage-study/internal/exam"
)

const (
	opGenerateExam = "generate_exam"
	opGradeExam    = "grade_exam"
	opReadings     = "find_readings"
	opNotes        = "generate_notes"
	opFlashcards   = "generate_flashcards"

	defaultMaxMaterialRunes = 60000
)

// Observer receives one call per model request.
type Observer interface {
	ObserveGeneration(op, outcome string, d time.Duration)
}

type Options struct {
	RateLimit        float64 // requests per second, 0 disables limiting
	Burst            int
	Temperature      float64
	MaxTokens        int
	MaxMaterialRunes int
	Logger           *zap.Logger
	Observer         Observer
}

type Service struct {
	model       llms.Model
	limiter     *rate.Limiter
	temperature float64
	maxTokens   int
	maxMaterial int
	log         *zap.Logger
	obs         Observer
}

func New(model llms.Model, opts Options) *Service {
	s := &Service{
		model:       model,
		limiter:     rate.NewLimiter(rate.Inf, 0),
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		maxMaterial: opts.MaxMaterialRunes,
		log:         opts.Logger,
		obs:         opts.Observer,
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	if s.temperature == 0 {
		s.temperature = 0.3
	}
	if s.maxTokens == 0 {
		s.maxTokens = 4096
	}
	if s.maxMaterial == 0 {
		s.maxMaterial = defaultMaxMaterialRunes
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// complete sends one prompt and classifies failures as generation errors.
func (s *Service) complete(ctx context.Context, op, prompt string) (string, error) {
	start := time.Now()
	reply, err := s.call(ctx, prompt)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
	}
	if s.obs != nil {
		s.obs.ObserveGeneration(op, outcome, time.Since(start))
	}
	if err != nil {
		s.log.Warn("llm call failed", zap.String("op", op), zap.Error(err))
		return "", wrap(op, err)
	}
	s.log.Debug("llm call", zap.String("op", op), zap.Duration("took", time.Since(start)), zap.Int("reply_len", len(reply)))
	return reply, nil
}

func (s *Service) call(ctx context.Context, prompt string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	return llms.GenerateFromSinglePrompt(ctx, s.model, prompt,
		llms.WithTemperature(s.temperature),
		llms.WithMaxTokens(s.maxTokens),
	)
}

func wrap(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w: %v", op, exam.ErrGenerationTimeout, exam.ErrGeneration, err)
	}
	return fmt.Errorf("%s: %w: %v", op, exam.ErrGeneration, err)
}

func (s *Service) clip(material string) string {
	material = strings.TrimSpace(material)
	r := []rune(material)
	if len(r) <= s.maxMaterial {
		return material
	}
	return string(r[:s.maxMaterial])
}

func (s *Service) GenerateExam(ctx context.Context, material string, questionCount int) ([]exam.ExamQuestion, error) {
	reply, err := s.complete(ctx, opGenerateExam, fmt.Sprintf(examPrompt, questionCount, s.clip(material)))
	if err != nil {
		return nil, err
	}
	var p examPayload
	if err := decode(reply, &p); err != nil {
		return nil, wrap(opGenerateExam, err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, wrap(opGenerateExam, err)
	}
	out := make([]exam.ExamQuestion, 0, len(p.Questions))
	for i, qp := range p.Questions {
		q, err := qp.toQuestion()
		if err != nil {
			return nil, wrap(opGenerateExam, fmt.Errorf("question %d: %w", i, err))
		}
		out = append(out, q)
	}
	return out, nil
}

type gradeItem struct {
	Index         int      `json:"index"`
	Question      string   `json:"question"`
	Type          string   `json:"type"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer"`
	UserAnswer    string   `json:"userAnswer"`
}

func (s *Service) GradeExam(ctx context.Context, material string, questions []exam.ExamQuestion, answers []string) (exam.Grading, error) {
	if len(answers) != len(questions) {
		return exam.Grading{}, fmt.Errorf("%w: %d answers for %d questions", exam.ErrValidation, len(answers), len(questions))
	}
	items := make([]gradeItem, len(questions))
	for i, q := range questions {
		items[i] = gradeItem{
			Index:         i,
			Question:      q.Question,
			Type:          string(q.Type),
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			UserAnswer:    answers[i],
		}
	}
	buf, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return exam.Grading{}, fmt.Errorf("encode answers: %w", err)
	}

	reply, err := s.complete(ctx, opGradeExam, fmt.Sprintf(gradePrompt, s.clip(material), buf))
	if err != nil {
		return exam.Grading{}, err
	}
	var p gradingPayload
	if err := decode(reply, &p); err != nil {
		return exam.Grading{}, wrap(opGradeExam, err)
	}
	correct, err := p.correctness(len(questions))
	if err != nil {
		return exam.Grading{}, wrap(opGradeExam, err)
	}
	results := make([]exam.ExamResult, len(questions))
	for i, q := range questions {
		results[i] = exam.ExamResult{
			Question:      q.Question,
			Type:          q.Type,
			Topic:         q.Topic,
			UserAnswer:    answers[i],
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     correct[i],
		}
	}
	topics := p.TopicsToReview
	if topics == nil {
		topics = []string{}
	}
	return exam.Grading{Results: results, TopicsToReview: topics}, nil
}

// FindReadings returns the well-formed suggestions; entries without a title
// or with a non-http(s) URL are dropped.
func (s *Service) FindReadings(ctx context.Context, topic string) ([]exam.Reading, error) {
	reply, err := s.complete(ctx, opReadings, fmt.Sprintf(readingsPrompt, strings.TrimSpace(topic)))
	if err != nil {
		return nil, err
	}
	var p readingsPayload
	if err := decode(reply, &p); err != nil {
		return nil, wrap(opReadings, err)
	}
	out := make([]exam.Reading, 0, len(p.Readings))
	for _, r := range p.Readings {
		r.Title, r.URL = strings.TrimSpace(r.Title), strings.TrimSpace(r.URL)
		if validate.Struct(r) != nil || !httpURL(r.URL) {
			continue
		}
		out = append(out, exam.Reading{Title: r.Title, URL: r.URL})
	}
	return out, nil
}

// GenerateNotes returns Markdown study notes.
func (s *Service) GenerateNotes(ctx context.Context, material string) (string, error) {
	if strings.TrimSpace(material) == "" {
		return "", fmt.Errorf("%w: course material is required", exam.ErrValidation)
	}
	reply, err := s.complete(ctx, opNotes, fmt.Sprintf(notesPrompt, s.clip(material)))
	if err != nil {
		return "", err
	}
	notes := strings.TrimSpace(reply)
	notes = strings.TrimPrefix(notes, "```markdown")
	notes = strings.TrimPrefix(notes, "```")
	notes = strings.TrimSuffix(notes, "```")
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return "", wrap(opNotes, errors.New("empty notes"))
	}
	return notes, nil
}

func (s *Service) GenerateFlashcards(ctx context.Context, material string, count int) ([]Flashcard, error) {
	if strings.TrimSpace(material) == "" {
		return nil, fmt.Errorf("%w: course material is required", exam.ErrValidation)
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: flashcard count must be positive", exam.ErrValidation)
	}
	reply, err := s.complete(ctx, opFlashcards, fmt.Sprintf(flashcardsPrompt, count, s.clip(material)))
	if err != nil {
		return nil, err
	}
	var p flashcardsPayload
	if err := decode(reply, &p); err != nil {
		return nil, wrap(opFlashcards, err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, wrap(opFlashcards, err)
	}
	if p.Flashcards == nil {
		p.Flashcards = []Flashcard{}
	}
	return p.Flashcards, nil
}

var _ exam.GenerationService = (*Service)(nil)
