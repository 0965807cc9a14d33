package exam

import "context"

// GenerationService is the LLM-backed collaborator. Implementations return
// errors wrapping ErrGeneration for unreachable services or malformed payloads.
type GenerationService interface {
	GenerateExam(ctx context.Context, material string, questionCount int) ([]ExamQuestion, error)
	// answers has the same length as questions; "" means unanswered.
	GradeExam(ctx context.Context, material string, questions []ExamQuestion, answers []string) (Grading, error)
	FindReadings(ctx context.Context, topic string) ([]Reading, error)
}
