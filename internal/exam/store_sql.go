package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const DefaultStoreKey = "studyAttempts"

// SQLStore keeps every attempt in one JSON array stored under a single key
// of the kv table, mirroring a browser local-storage slot.
type SQLStore struct {
	db       *sql.DB
	key      string
	maxBytes int // 0 disables the quota
}

func NewSQLStore(db *sql.DB, key string, maxBytes int) *SQLStore {
	if key == "" {
		key = DefaultStoreKey
	}
	return &SQLStore{db: db, key: key, maxBytes: maxBytes}
}

func (s *SQLStore) Append(ctx context.Context, a Attempt) error {
	return s.update(ctx, func(all []Attempt) ([]Attempt, error) {
		return append(all, a.Clone()), nil
	})
}

func (s *SQLStore) ListBySubjectAndType(ctx context.Context, subjectID string, typ AttemptType) ([]Attempt, error) {
	all, err := s.load(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return filterAttempts(all, subjectID, typ), nil
}

func (s *SQLStore) FindByID(ctx context.Context, id string) (Attempt, error) {
	all, err := s.load(ctx, s.db)
	if err != nil {
		return Attempt{}, err
	}
	for _, a := range all {
		if a.ID == id {
			return a, nil
		}
	}
	return Attempt{}, ErrNotFound
}

func (s *SQLStore) DeleteByID(ctx context.Context, id string) error {
	return s.update(ctx, func(all []Attempt) ([]Attempt, error) {
		return removeAttempt(all, id), nil
	})
}

func (s *SQLStore) UpdateExtraReadings(ctx context.Context, id string, readings []Reading) error {
	return s.update(ctx, func(all []Attempt) ([]Attempt, error) {
		for i := range all {
			if all[i].ID == id {
				all[i].ExtraReadings = append([]Reading(nil), readings...)
				return all, nil
			}
		}
		return nil, ErrNotFound
	})
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) load(ctx context.Context, q queryer) ([]Attempt, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, s.key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && raw == "") {
		return []Attempt{}, nil
	}
	if err != nil {
		return nil, persistenceErr("load attempts", err)
	}
	var all []Attempt
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		return nil, persistenceErr("decode attempts", err)
	}
	return all, nil
}

// update is a read-modify-write of the whole array inside one transaction.
func (s *SQLStore) update(ctx context.Context, fn func([]Attempt) ([]Attempt, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceErr("begin", err)
	}
	defer tx.Rollback()

	all, err := s.load(ctx, tx)
	if err != nil {
		return err
	}
	all, err = fn(all)
	if err != nil {
		return err
	}
	buf, err := json.Marshal(all)
	if err != nil {
		return persistenceErr("encode attempts", err)
	}
	if s.maxBytes > 0 && len(buf) > s.maxBytes {
		return fmt.Errorf("%w: quota exceeded (%d > %d bytes)", ErrPersistence, len(buf), s.maxBytes)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO kv (key,value) VALUES ($1,$2)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`, s.key, string(buf))
	if err != nil {
		return persistenceErr("save attempts", err)
	}
	if err := tx.Commit(); err != nil {
		return persistenceErr("commit", err)
	}
	return nil
}
