package sandbox

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/healthassist/internal/domain/assessment"
)

func newTestService(t *testing.T) (*Service, SessionRepository) {
	t.Helper()
	repo := NewMemoryRepo()
	svc := NewService(repo, newTestEngine(t), zerolog.Nop())

	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("s%d", n)
	}
	return svc, repo
}

func strPtr(s string) *string { return &s }

func TestService_FirstMessage(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.Chat(context.Background(), "u1", "I have a headache and fever", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := res.Question
	if q == nil || res.Assessment != nil {
		t.Fatalf("expected a question turn, got %+v", res)
	}
	if q.SessionID != "s1" || q.Progress != 20 || q.QuestionCount != 1 || q.CanComplete {
		t.Errorf("unexpected turn: %+v", q)
	}
	if !reflect.DeepEqual(q.IdentifiedSymptoms, []string{"headache", "fever"}) {
		t.Errorf("unexpected symptoms: %v", q.IdentifiedSymptoms)
	}
	if res.Body() != interface{}(q) {
		t.Error("body must be the question turn")
	}
}

func TestService_EmptyMessage(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Chat(context.Background(), "u1", "   ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestService_RunsToTerminal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	res, _ := svc.Chat(ctx, "u1", "I have a cough", nil)
	id := strPtr(res.Question.SessionID)

	for i := 2; i <= DefaultMaxQuestions; i++ {
		res, err := svc.Chat(ctx, "u1", "Mild", id)
		if err != nil {
			t.Fatalf("answer %d: %v", i-1, err)
		}
		if res.Question == nil || res.Question.QuestionCount != i {
			t.Fatalf("answer %d: unexpected reply %+v", i-1, res)
		}
		if res.Question.CanComplete != (i >= 3) {
			t.Errorf("question %d: can_complete=%v", i, res.Question.CanComplete)
		}
	}

	res, err := svc.Chat(ctx, "u1", "No", id)
	if err != nil {
		t.Fatalf("final answer: %v", err)
	}
	if res.Assessment == nil {
		t.Fatalf("expected terminal assessment after %d answers", DefaultMaxQuestions)
	}
	if res.Assessment.QuestionCount != DefaultMaxQuestions || !res.Assessment.OverallStatus.Valid() {
		t.Errorf("unexpected assessment: %+v", res.Assessment)
	}

	if _, err := svc.Chat(ctx, "u1", "more", id); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("expected ErrSessionNotActive, got %v", err)
	}
	if _, err := svc.Current(ctx, "u1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("completed session must not be current, got %v", err)
	}
}

func TestService_Complete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	res, _ := svc.Chat(ctx, "u1", "I have a rash", nil)
	id := res.Question.SessionID

	if _, err := svc.Complete(ctx, "u1", id); !errors.Is(err, ErrNotEnoughInformation) {
		t.Fatalf("expected ErrNotEnoughInformation, got %v", err)
	}
	svc.Chat(ctx, "u1", "Yes", &id)
	svc.Chat(ctx, "u1", "1-3 days", &id)

	a, err := svc.Complete(ctx, "u1", id)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if a.QuestionCount != 3 || a.SessionID != id {
		t.Errorf("unexpected assessment: %+v", a)
	}
	if len(a.Conditions) == 0 || a.Conditions[0].Name != "Allergic reaction" {
		t.Errorf("unexpected conditions: %+v", a.Conditions)
	}
	if _, err := svc.Complete(ctx, "u1", id); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("expected ErrSessionNotActive, got %v", err)
	}
}

// The floor counts answers, not questions issued.
func TestService_CompleteCountsAnswers(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	sess := &Session{
		ID:     "seeded",
		UserID: "u1",
		Status: assessment.StatusActive,
		Turns: []Turn{
			{QuestionID: "describe", Question: "Tell me more", Answer: "a cough", Answered: true},
			{QuestionID: "duration", Question: "How long?", Answer: "Two days", Answered: true},
			{QuestionID: "severity", Question: "How bad?"},
		},
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Complete(ctx, "u1", "seeded"); !errors.Is(err, ErrNotEnoughInformation) {
		t.Fatalf("three questions with two answers must not complete, got %v", err)
	}
	res, err := svc.Chat(ctx, "u1", "Mild", strPtr("seeded"))
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Question == nil || !res.Question.CanComplete {
		t.Fatalf("expected a completable question turn, got %+v", res)
	}
	if _, err := svc.Complete(ctx, "u1", "seeded"); err != nil {
		t.Errorf("three answers must complete, got %v", err)
	}
}

func TestService_SevereAnswer(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	res, _ := svc.Chat(ctx, "u1", "I have a cough", nil)
	id := res.Question.SessionID
	svc.Chat(ctx, "u1", "With blood", &id)

	sess, _ := repo.GetByID(ctx, id)
	if !sess.Severe {
		t.Error("a severe answer must mark the session")
	}
	if !sess.Turns[0].Answered || sess.Turns[0].Answer != "With blood" || sess.Turns[0].AnsweredAt == nil {
		t.Errorf("unexpected first turn: %+v", sess.Turns[0])
	}
}

func TestService_Ownership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	res, _ := svc.Chat(ctx, "u1", "I have a fever", nil)
	id := res.Question.SessionID

	if _, err := svc.Chat(ctx, "u2", "hello", &id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.Complete(ctx, "u2", id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.HistorySession(ctx, "u2", id, true); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.Chat(ctx, "u1", "hello", strPtr("missing")); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestService_NewChatAbandonsActive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	first, _ := svc.Chat(ctx, "u1", "I have a fever", nil)
	second, _ := svc.Chat(ctx, "u1", "I have a cough", nil)

	cur, err := svc.Current(ctx, "u1")
	if err != nil || cur.SessionID != second.Question.SessionID {
		t.Fatalf("expected the new session to be current, got %+v %v", cur, err)
	}
	old, _ := svc.HistorySession(ctx, "u1", first.Question.SessionID, false)
	if old.Status != assessment.StatusAbandoned {
		t.Errorf("expected abandoned, got %s", old.Status)
	}
}

func TestService_Reset(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	first, _ := svc.Chat(ctx, "u1", "I have a fever", nil)

	reply, err := svc.Reset(ctx, "u1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reply.SessionID == first.Question.SessionID || reply.Message == "" {
		t.Fatalf("unexpected reset reply: %+v", reply)
	}

	cur, _ := svc.Current(ctx, "u1")
	if cur.SessionID != reply.SessionID || cur.QuestionCount != 0 || len(cur.IdentifiedSymptoms) != 0 {
		t.Errorf("unexpected current session: %+v", cur)
	}

	res, err := svc.Chat(ctx, "u1", "I feel tired", &reply.SessionID)
	if err != nil {
		t.Fatalf("chat after reset: %v", err)
	}
	if res.Question.QuestionCount != 1 || !reflect.DeepEqual(res.Question.IdentifiedSymptoms, []string{"fatigue"}) {
		t.Errorf("unexpected turn: %+v", res.Question)
	}
}

func TestService_History(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for _, msg := range []string{"I have a fever", "I have a cough", "I have a rash"} {
		res, _ := svc.Chat(ctx, "u1", msg, nil)
		id := res.Question.SessionID
		svc.Chat(ctx, "u1", "Yes", &id)
	}
	svc.Chat(ctx, "u2", "I have a headache", nil)

	items, err := svc.History(ctx, "u1", 2, false)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(items) != 2 || items[0].SessionID != "s3" || items[1].SessionID != "s2" {
		t.Fatalf("unexpected history: %+v", items)
	}
	if items[0].ConversationHistory != nil {
		t.Error("conversation must be omitted unless requested")
	}

	items, _ = svc.History(ctx, "u1", 10, true)
	if len(items) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(items))
	}
	conv := items[0].ConversationHistory
	if len(conv) != 1 || conv[0].Answer != "Yes" || conv[0].AskedAt == nil {
		t.Errorf("unexpected conversation: %+v", conv)
	}
}
