package assessment

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Tracker owns the current session: its id, server-side status, running
// question count and identified symptoms. All mutation goes through the
// guarded methods below.
type Tracker struct {
	mu      sync.Mutex
	current *Snapshot
	pending bool
	logger  zerolog.Logger
}

// NewTracker returns a tracker with no current session.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{logger: logger}
}

// Current returns a copy of the current session state.
func (t *Tracker) Current() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return Snapshot{}, false
	}
	return copySnapshot(*t.current), true
}

// SessionID returns the current session id or "" when there is none.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return ""
	}
	return t.current.SessionID
}

// Begin marks a request as outstanding.
func (t *Tracker) Begin() {
	t.mu.Lock()
	t.pending = true
	t.mu.Unlock()
}

// End clears the outstanding marker.
func (t *Tracker) End() {
	t.mu.Lock()
	t.pending = false
	t.mu.Unlock()
}

// Adopt replaces the current session wholesale. It fails with ErrConflict
// while a request is outstanding so two sessions' replies cannot interleave.
func (t *Tracker) Adopt(sessionID string, initial Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending {
		return ErrConflict
	}
	if sessionID == "" {
		return fmt.Errorf("adopt: session_id is required")
	}
	s := initial
	s.SessionID = sessionID
	if s.Status == "" {
		s.Status = StatusActive
	}
	s.IdentifiedSymptoms = uniqueStrings(s.IdentifiedSymptoms)
	snap := Snapshot{Session: s}
	if s.Status == StatusCompleted {
		snap.Progress = 100
	}
	t.current = &snap
	return nil
}

// Discard drops the current session and abandons any outstanding request.
func (t *Tracker) Discard() {
	t.mu.Lock()
	t.current = nil
	t.pending = false
	t.mu.Unlock()
}

// ApplyQuestionTurn folds an intermediate reply into the current session.
func (t *Tracker) ApplyQuestionTurn(turn *QuestionTurn) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.guard(turn.SessionID); err != nil {
		return err
	}
	s := t.current

	if turn.QuestionCount >= s.QuestionCount {
		s.QuestionCount = turn.QuestionCount
	} else {
		t.logger.Warn().
			Str("session_id", s.SessionID).
			Int("current", s.QuestionCount).
			Int("reply", turn.QuestionCount).
			Msg("ignoring regressing question_count")
	}

	progress := clampPercent(turn.Progress)
	if progress >= s.Progress {
		s.Progress = progress
	} else {
		t.logger.Warn().
			Str("session_id", s.SessionID).
			Int("current", s.Progress).
			Int("reply", progress).
			Msg("ignoring regressing progress")
	}

	if turn.IdentifiedSymptoms != nil {
		s.IdentifiedSymptoms = uniqueStrings(turn.IdentifiedSymptoms)
	}
	s.CanComplete = turn.CanComplete && s.QuestionCount >= MinQuestionsForCompletion
	s.LastMessage = turn.Message
	return nil
}

// ApplyTerminalAssessment closes the current session. Afterwards every
// question turn is rejected with ErrSessionClosed.
func (t *Tracker) ApplyTerminalAssessment(result *TerminalAssessment) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.guard(result.SessionID); err != nil {
		return err
	}
	s := t.current
	if result.QuestionCount > s.QuestionCount {
		s.QuestionCount = result.QuestionCount
	}
	s.Status = StatusCompleted
	s.HasAssessment = true
	s.Progress = 100
	s.CanComplete = false
	if result.Message != "" {
		s.LastMessage = result.Message
	}
	return nil
}

func (t *Tracker) guard(sessionID string) error {
	if t.current == nil {
		return fmt.Errorf("%w: no current session, reply for %q", ErrSessionMismatch, sessionID)
	}
	if sessionID != t.current.SessionID {
		return fmt.Errorf("%w: current %q, reply for %q", ErrSessionMismatch, t.current.SessionID, sessionID)
	}
	if t.current.Status != StatusActive {
		return ErrSessionClosed
	}
	return nil
}

func copySnapshot(s Snapshot) Snapshot {
	s.IdentifiedSymptoms = cloneStrings(s.IdentifiedSymptoms)
	return s
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// uniqueStrings drops duplicates and blanks, keeping first occurrences.
func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
