package exam

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrGeneration        = errors.New("generation failure")
	ErrGenerationTimeout = errors.New("generation timeout")
	ErrPersistence       = errors.New("persistence failure")
	ErrNotFound          = errors.New("attempt not found")
	ErrNoQuestions       = errors.New("no questions generated")
	ErrBusy              = errors.New("another request is in flight")
	ErrInvalidState      = errors.New("invalid state for operation")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// generationErr classifies an error returned by a GenerationService call.
// Deadlines become ErrGenerationTimeout (which also matches ErrGeneration);
// anything not already classified becomes ErrGeneration.
func generationErr(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrGenerationTimeout):
		return fmt.Errorf("%s: %w: %w: %v", op, ErrGenerationTimeout, ErrGeneration, err)
	case errors.Is(err, ErrGeneration):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrGeneration, err)
	}
}

func persistenceErr(op string, err error) error {
	if errors.Is(err, ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrPersistence, err)
}
