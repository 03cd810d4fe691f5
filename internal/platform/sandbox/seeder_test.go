package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/ehr/healthassist/internal/domain/assessment"
)

func TestDataGenerator_Reproducible(t *testing.T) {
	k, _ := DefaultKnowledge()
	a, b := NewDataGenerator(42), NewDataGenerator(42)
	for i := 0; i < 10; i++ {
		if x, y := a.Opening(k.Symptoms), b.Opening(k.Symptoms); x != y {
			t.Fatalf("iteration %d: %q != %q", i, x, y)
		}
	}
}

func TestDataGenerator_OpeningNamesSymptom(t *testing.T) {
	e := newTestEngine(t)
	gen := NewDataGenerator(7)
	for i := 0; i < 20; i++ {
		opening := gen.Opening(e.k.Symptoms)
		if len(e.ExtractSymptoms(opening)) == 0 {
			t.Errorf("opening %q names no known symptom", opening)
		}
	}
}

func TestDataGenerator_Answer(t *testing.T) {
	gen := NewDataGenerator(1)
	opts := []string{"Yes", "No"}
	for i := 0; i < 10; i++ {
		if a := gen.Answer(opts); a != "Yes" && a != "No" {
			t.Fatalf("answer %q is not an offered option", a)
		}
	}
	if gen.Answer(nil) == "" {
		t.Error("expected free text when there are no options")
	}
}

func TestSeeder_Seed(t *testing.T) {
	repo := NewMemoryRepo()
	seeder := NewSeeder(repo, newTestEngine(t))
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	seeder.now = func() time.Time { return base }

	res, err := seeder.Seed(context.Background(), "u1", SeedConfig{Sessions: 6, AbandonedEvery: 3, Seed: 99})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if res.Sessions != 6 || res.Completed != 4 || res.Abandoned != 2 {
		t.Errorf("unexpected result: %+v", res)
	}

	items, _ := repo.ListByUser(context.Background(), "u1", 50)
	if len(items) != 6 {
		t.Fatalf("expected 6 stored sessions, got %d", len(items))
	}
	questions := 0
	for _, s := range items {
		questions += s.QuestionCount()
		if !s.StartedAt.Before(base) {
			t.Errorf("seeded session %s must start in the past", s.ID)
		}
		switch s.Status {
		case assessment.StatusCompleted:
			if s.Assessment == nil || s.QuestionCount() < assessment.MinQuestionsForCompletion {
				t.Errorf("completed session %s is incomplete", s.ID)
			}
		case assessment.StatusAbandoned:
			if s.Assessment != nil {
				t.Errorf("abandoned session %s must not carry an assessment", s.ID)
			}
		default:
			t.Errorf("seeded session %s has status %s", s.ID, s.Status)
		}
	}
	if questions != res.Questions {
		t.Errorf("expected %d questions, counted %d", res.Questions, questions)
	}
	if _, err := repo.ActiveForUser(context.Background(), "u1"); !errors.Is(err, ErrNotFound) {
		t.Error("seeding must not leave an active session")
	}
}

func TestSeeder_Limits(t *testing.T) {
	seeder := NewSeeder(NewMemoryRepo(), newTestEngine(t))
	if _, err := seeder.Seed(context.Background(), "u1", SeedConfig{Sessions: maxSeedSessions + 1}); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("expected ErrTooManySessions, got %v", err)
	}
	if _, err := seeder.Seed(context.Background(), "", SeedConfig{}); err == nil {
		t.Error("expected error for a missing user")
	}
	res, err := seeder.Seed(context.Background(), "u1", SeedConfig{Seed: 3})
	if err != nil || res.Sessions != defaultSeedSessions {
		t.Errorf("expected default session count, got %+v %v", res, err)
	}
}

func TestSeedHandler_Seed(t *testing.T) {
	e := newTestServer(t, nil)
	rec := do(t, e, http.MethodPost, "/api/v1/sandbox/seed", `{"sessions":3,"seed":5}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var res SeedResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Sessions != 3 {
		t.Errorf("expected 3 sessions, got %+v", res)
	}

	rec = do(t, e, http.MethodGet, "/api/v1/assessment/chat/history", "", "")
	var items []assessment.SessionSummary
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 3 {
		t.Errorf("expected seeded sessions in history, got %d", len(items))
	}

	rec = do(t, e, http.MethodPost, "/api/v1/sandbox/seed", `{"sessions":500}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
