package assessment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeHistoryAPI struct {
	items      []SessionSummary
	err        error
	gotLimit   int
	gotInclude bool
	one        *SessionSummary
}

func (f *fakeHistoryAPI) History(ctx context.Context, limit int, include bool) ([]SessionSummary, error) {
	f.gotLimit = limit
	f.gotInclude = include
	return f.items, f.err
}

func (f *fakeHistoryAPI) HistorySession(ctx context.Context, id string) (*SessionSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.one, nil
}

func summaries(n int) []SessionSummary {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]SessionSummary, n)
	for i := range out {
		out[i] = SessionSummary{
			SessionID:           string(rune('a' + i)),
			Status:              StatusCompleted,
			StartedAt:           base.Add(time.Duration(i) * time.Hour),
			ConversationHistory: []QAPair{{Question: "q", Answer: "a"}},
		}
	}
	return out
}

func TestHistoryBrowser_DefaultLimit(t *testing.T) {
	api := &fakeHistoryAPI{items: summaries(3)}
	h := NewHistoryBrowser(api, zerolog.Nop())

	out, err := h.List(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.gotLimit != DefaultHistoryLimit {
		t.Errorf("expected limit %d, got %d", DefaultHistoryLimit, api.gotLimit)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(out))
	}
	// most recent first
	if out[0].SessionID != "c" || out[2].SessionID != "a" {
		t.Errorf("unexpected order: %s %s %s", out[0].SessionID, out[1].SessionID, out[2].SessionID)
	}
	for _, s := range out {
		if s.ConversationHistory != nil {
			t.Error("conversation history must be omitted unless requested")
		}
	}
}

func TestHistoryBrowser_IncludeConversation(t *testing.T) {
	api := &fakeHistoryAPI{items: summaries(2)}
	h := NewHistoryBrowser(api, zerolog.Nop())

	out, _ := h.List(context.Background(), ListOptions{Limit: 5, IncludeConversation: true})
	if !api.gotInclude || api.gotLimit != 5 {
		t.Errorf("unexpected request: limit=%d include=%v", api.gotLimit, api.gotInclude)
	}
	if len(out[0].ConversationHistory) != 1 {
		t.Error("expected conversation history")
	}
}

func TestHistoryBrowser_TruncatesToLimit(t *testing.T) {
	api := &fakeHistoryAPI{items: summaries(5)}
	h := NewHistoryBrowser(api, zerolog.Nop())
	out, _ := h.List(context.Background(), ListOptions{Limit: 2})
	if len(out) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(out))
	}
}

func TestHistoryBrowser_InvalidLimit(t *testing.T) {
	api := &fakeHistoryAPI{items: summaries(1)}
	h := NewHistoryBrowser(api, zerolog.Nop())
	out, err := h.List(context.Background(), ListOptions{Limit: -1})
	if !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Error("expected an empty, non-nil list")
	}
	if api.gotLimit != 0 {
		t.Error("invalid limit must not reach the API")
	}
}

func TestHistoryBrowser_FailureReturnsEmpty(t *testing.T) {
	api := &fakeHistoryAPI{err: &RemoteError{Kind: KindServer, StatusCode: 500, Detail: "boom"}}
	h := NewHistoryBrowser(api, zerolog.Nop())
	out, err := h.List(context.Background(), ListOptions{})
	if !IsRemoteKind(err, KindServer) {
		t.Fatalf("expected server error, got %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Error("expected an empty, non-nil list")
	}
}

func TestHistoryBrowser_FetchOne(t *testing.T) {
	api := &fakeHistoryAPI{one: &SessionSummary{SessionID: "s1"}}
	h := NewHistoryBrowser(api, zerolog.Nop())

	if _, err := h.FetchOne(context.Background(), "  "); err == nil {
		t.Error("expected error for blank id")
	}
	s, err := h.FetchOne(context.Background(), "s1")
	if err != nil || s.SessionID != "s1" {
		t.Fatalf("unexpected result: %+v %v", s, err)
	}

	api.one = nil
	if _, err := h.FetchOne(context.Background(), "s1"); err == nil {
		t.Error("expected error for empty response")
	}
}

// History reads never touch orchestrator state.
func TestHistoryBrowser_IndependentOfOrchestrator(t *testing.T) {
	chat := &fakeAPI{}
	o, tracker, log := newTestOrchestrator(chat)
	chat.pushChat(t, questionTurn("s1", 1, 20, false, "fever"))
	o.Send(context.Background(), "fever")

	before, _ := tracker.Current()
	h := NewHistoryBrowser(&fakeHistoryAPI{items: summaries(3)}, zerolog.Nop())
	h.List(context.Background(), ListOptions{IncludeConversation: true})

	after, _ := tracker.Current()
	if before.SessionID != after.SessionID || before.QuestionCount != after.QuestionCount {
		t.Error("history must not affect the current session")
	}
	if log.Len() != 2 || o.State() != StateActive {
		t.Errorf("history must not affect the log or state: len=%d state=%s", log.Len(), o.State())
	}
}
