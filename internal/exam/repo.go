package exam

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// AttemptStore is a flat ordered collection of attempts for all subjects.
// Filtering happens in memory; there are no indexes.
type AttemptStore interface {
	Append(ctx context.Context, a Attempt) error
	ListBySubjectAndType(ctx context.Context, subjectID string, typ AttemptType) ([]Attempt, error) // date desc
	FindByID(ctx context.Context, id string) (Attempt, error)                                        // ErrNotFound if absent
	DeleteByID(ctx context.Context, id string) error                                                 // no-op if absent
	UpdateExtraReadings(ctx context.Context, id string, readings []Reading) error
}

type MemoryStore struct {
	mu       sync.RWMutex
	attempts []Attempt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a.Clone())
	return nil
}

func (m *MemoryStore) ListBySubjectAndType(_ context.Context, subjectID string, typ AttemptType) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterAttempts(m.attempts, subjectID, typ), nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.ID == id {
			return a.Clone(), nil
		}
	}
	return Attempt{}, ErrNotFound
}

func (m *MemoryStore) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = removeAttempt(m.attempts, id)
	return nil
}

func (m *MemoryStore) UpdateExtraReadings(_ context.Context, id string, readings []Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.attempts {
		if m.attempts[i].ID == id {
			m.attempts[i].ExtraReadings = slices.Clone(readings)
			return nil
		}
	}
	return ErrNotFound
}

// Len is the number of stored attempts across all subjects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.attempts)
}

// filterAttempts returns clones matching subject and type (either may be
// empty to match all), newest first.
func filterAttempts(all []Attempt, subjectID string, typ AttemptType) []Attempt {
	out := make([]Attempt, 0, len(all))
	for _, a := range all {
		if subjectID != "" && a.SubjectID != subjectID {
			continue
		}
		if typ != "" && a.Type != typ {
			continue
		}
		out = append(out, a.Clone())
	}
	// RFC3339 UTC dates sort lexically
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

func removeAttempt(all []Attempt, id string) []Attempt {
	for i, a := range all {
		if a.ID == id {
			return append(all[:i:i], all[i+1:]...)
		}
	}
	return all
}
