package exam_test

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/mind-engage/mindengage-study/internal/db"
	"github.com/mind-engage/mindengage-study/internal/exam"

	_ "modernc.org/sqlite" // driver for "sqlite"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	dbh, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	dbh.SetMaxOpenConns(1)
	t.Cleanup(func() { dbh.Close() })
	if err := db.EnsureSchema(context.Background(), dbh, db.DriverSQLite); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return dbh
}

func sampleAttempt(id, subject string, typ exam.AttemptType, date string) exam.Attempt {
	return exam.Attempt{
		ID:          id,
		SubjectID:   subject,
		SubjectName: "Subject " + subject,
		Name:        "Attempt " + id,
		Type:        typ,
		Date:        date,
		ExamQuestions: []exam.ExamQuestion{
			{Question: "2+2?", Type: exam.MultipleChoice, Options: []string{"3", "4"}, CorrectAnswer: "4", Topic: "Arithmetic"},
		},
		ExamResults: []exam.ExamResult{
			{Question: "2+2?", Type: exam.MultipleChoice, Topic: "Arithmetic", UserAnswer: "4", CorrectAnswer: "4", IsCorrect: true},
		},
		OverallScore:   100,
		TopicsToReview: []string{},
		ExtraReadings:  []exam.Reading{{Title: "Numbers", URL: "https://example.org/n"}},
	}
}

func storesUnderTest(t *testing.T) map[string]exam.AttemptStore {
	return map[string]exam.AttemptStore{
		"memory": exam.NewMemoryStore(),
		"sql":    exam.NewSQLStore(openSQLite(t), "", 0),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := sampleAttempt("100", "bio", exam.AttemptExam, "2026-01-01T00:00:00.000Z")
			if err := store.Append(ctx, in); err != nil {
				t.Fatalf("append: %v", err)
			}
			// mutating the caller's copy must not leak into the store
			in.ExamQuestions[0].Options[0] = "mutated"
			in.ExtraReadings[0].URL = "mutated"

			got, err := store.FindByID(ctx, "100")
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			want := sampleAttempt("100", "bio", exam.AttemptExam, "2026-01-01T00:00:00.000Z")
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
			}
			if _, err := store.FindByID(ctx, "missing"); !errors.Is(err, exam.ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreListAndDelete(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed := []exam.Attempt{
				sampleAttempt("1", "bio", exam.AttemptExam, "2026-01-01T00:00:00.000Z"),
				sampleAttempt("2", "bio", exam.AttemptQuiz, "2026-01-02T00:00:00.000Z"),
				sampleAttempt("3", "bio", exam.AttemptExam, "2026-01-03T00:00:00.000Z"),
				sampleAttempt("4", "chem", exam.AttemptExam, "2026-01-04T00:00:00.000Z"),
			}
			for _, a := range seed {
				if err := store.Append(ctx, a); err != nil {
					t.Fatal(err)
				}
			}

			list, err := store.ListBySubjectAndType(ctx, "bio", exam.AttemptExam)
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != 2 || list[0].ID != "3" || list[1].ID != "1" {
				t.Fatalf("list = %+v", ids(list))
			}

			if err := store.DeleteByID(ctx, "nope"); err != nil {
				t.Fatalf("delete unknown: %v", err)
			}
			all, _ := store.ListBySubjectAndType(ctx, "", "")
			if len(all) != 4 {
				t.Fatalf("size changed after no-op delete: %d", len(all))
			}

			if err := store.DeleteByID(ctx, "3"); err != nil {
				t.Fatal(err)
			}
			all, _ = store.ListBySubjectAndType(ctx, "", "")
			if len(all) != 3 {
				t.Fatalf("len = %d", len(all))
			}
			for _, a := range all {
				orig := seed[indexOf(seed, a.ID)]
				if !reflect.DeepEqual(a, orig) {
					t.Fatalf("attempt %s changed: %+v", a.ID, a)
				}
			}
		})
	}
}

func TestStoreUpdateExtraReadings(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = store.Append(ctx, sampleAttempt("1", "bio", exam.AttemptExam, "2026-01-01T00:00:00.000Z"))
			rs := []exam.Reading{{Title: "A", URL: "https://a"}, {Title: "B", URL: "https://b"}}
			if err := store.UpdateExtraReadings(ctx, "1", rs); err != nil {
				t.Fatal(err)
			}
			got, _ := store.FindByID(ctx, "1")
			if !reflect.DeepEqual(got.ExtraReadings, rs) {
				t.Fatalf("readings = %+v", got.ExtraReadings)
			}
			if err := store.UpdateExtraReadings(ctx, "2", rs); !errors.Is(err, exam.ErrNotFound) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestSQLStoreQuota(t *testing.T) {
	ctx := context.Background()
	store := exam.NewSQLStore(openSQLite(t), "quota-test", 600)
	if err := store.Append(ctx, sampleAttempt("1", "bio", exam.AttemptExam, "2026-01-01T00:00:00.000Z")); err != nil {
		t.Fatalf("first append: %v", err)
	}
	err := store.Append(ctx, sampleAttempt("2", "bio", exam.AttemptExam, "2026-01-02T00:00:00.000Z"))
	if !errors.Is(err, exam.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
	all, _ := store.ListBySubjectAndType(ctx, "", "")
	if len(all) != 1 {
		t.Fatalf("rejected write leaked: %d attempts", len(all))
	}
}

func TestSQLStoreCorruptJSON(t *testing.T) {
	ctx := context.Background()
	dbh := openSQLite(t)
	if _, err := dbh.Exec(`INSERT INTO kv (key,value) VALUES ('studyAttempts','{not json')`); err != nil {
		t.Fatal(err)
	}
	store := exam.NewSQLStore(dbh, "", 0)
	if _, err := store.ListBySubjectAndType(ctx, "", ""); !errors.Is(err, exam.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
}

func TestSQLStoreSeparateKeys(t *testing.T) {
	ctx := context.Background()
	dbh := openSQLite(t)
	a := exam.NewSQLStore(dbh, "a", 0)
	b := exam.NewSQLStore(dbh, "b", 0)
	_ = a.Append(ctx, sampleAttempt("1", "bio", exam.AttemptExam, "2026-01-01T00:00:00.000Z"))
	if _, err := b.FindByID(ctx, "1"); !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func ids(list []exam.Attempt) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}

func indexOf(list []exam.Attempt, id string) int {
	for i, a := range list {
		if a.ID == id {
			return i
		}
	}
	return -1
}
