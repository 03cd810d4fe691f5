package assessment

import (
	"testing"
)

func TestMessageLog_AppendOrder(t *testing.T) {
	l := NewMessageLog()
	l.Append(RoleAssistant, "welcome", nil, "")
	l.Append(RoleUser, "I have a cough", nil, "")
	l.Append(RoleAssistant, "Is it dry?", []string{"Dry", "Productive"}, "cough")

	msgs := l.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	want := []string{"welcome", "I have a cough", "Is it dry?"}
	for i, m := range msgs {
		if m.Content != want[i] {
			t.Errorf("message %d: expected %q, got %q", i, want[i], m.Content)
		}
		if m.ID == "" {
			t.Errorf("message %d has no id", i)
		}
	}
	if msgs[2].ContextReference != "cough" || len(msgs[2].Options) != 2 {
		t.Errorf("unexpected third message: %+v", msgs[2])
	}
	if msgs[0].ID == msgs[1].ID {
		t.Error("message ids must be unique")
	}
}

func TestMessageLog_Immutable(t *testing.T) {
	l := NewMessageLog()
	opts := []string{"Yes", "No"}
	l.Append(RoleAssistant, "Q?", opts, "")
	opts[0] = "changed"

	msgs := l.Messages()
	if msgs[0].Options[0] != "Yes" {
		t.Error("appended message must not alias the caller's slice")
	}
	msgs[0].Options[1] = "changed"
	if l.Messages()[0].Options[1] != "No" {
		t.Error("Messages must return copies")
	}
}

func TestMessageLog_LastAndReset(t *testing.T) {
	l := NewMessageLog()
	if _, ok := l.Last(); ok {
		t.Error("expected no last message on empty log")
	}
	l.Append(RoleUser, "a", nil, "")
	l.Append(RoleUser, "b", nil, "")
	last, ok := l.Last()
	if !ok || last.Content != "b" {
		t.Errorf("expected last message b, got %+v", last)
	}

	l.Reset()
	if l.Len() != 0 {
		t.Errorf("expected empty log after reset, got %d", l.Len())
	}
}
