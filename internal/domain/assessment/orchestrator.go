package assessment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is a Chat Orchestrator state.
type State string

const (
	StateEmpty     State = "empty"
	StateActive    State = "active"
	StateWaiting   State = "waiting"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// DefaultWelcomeMessage is seeded into a fresh Message Log.
const DefaultWelcomeMessage = "Hello! I'm your health assessment assistant. " +
	"Tell me how you are feeling and I'll ask a few follow-up questions."

const assessmentReadyMessage = "Your health assessment is ready."

// View is a consistent read-only copy of the orchestrator for rendering.
type View struct {
	State      State
	Session    *Snapshot
	Messages   []Message
	Assessment *TerminalAssessment
	LastError  error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWelcomeMessage overrides the locally seeded welcome message.
func WithWelcomeMessage(msg string) Option {
	return func(o *Orchestrator) { o.welcome = msg }
}

// WithClock overrides the clock used for session start times.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator is the state machine that serializes outgoing turns against
// the Session Tracker. At most one request is in flight; Reset is always
// accepted and supersedes whatever is outstanding.
type Orchestrator struct {
	mu      sync.Mutex
	api     API
	tracker *Tracker
	log     *MessageLog
	logger  zerolog.Logger
	welcome string
	now     func() time.Time

	state      State
	epoch      uint64
	assessment *TerminalAssessment
	lastErr    error
}

// NewOrchestrator wires the orchestrator to its collaborators.
func NewOrchestrator(api API, tracker *Tracker, log *MessageLog, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:     api,
		tracker: tracker,
		log:     log,
		logger:  logger,
		welcome: DefaultWelcomeMessage,
		now:     time.Now,
		state:   StateEmpty,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// View returns a snapshot of everything the UI renders.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := View{
		State:      o.state,
		Messages:   o.log.Messages(),
		Assessment: o.assessment,
		LastError:  o.lastErr,
	}
	if snap, ok := o.tracker.Current(); ok {
		v.Session = &snap
	}
	return v
}

// Start resumes the caller's active session if the service reports one,
// otherwise it seeds a welcome message. The lookup is a single best-effort
// attempt and its failure is not returned.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	switch o.state {
	case StateWaiting:
		o.mu.Unlock()
		return ErrBusy
	case StateEmpty:
	default:
		o.mu.Unlock()
		return nil
	}
	o.setState(StateWaiting)
	epoch := o.epoch
	o.mu.Unlock()

	sess, err := o.api.Current(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		o.logger.Warn().Msg("session lookup superseded by reset, ignoring result")
		return nil
	}
	if err != nil {
		o.logger.Warn().Err(err).Msg("failed to look up current session, starting fresh")
	} else if sess != nil && sess.Status == StatusActive && sess.SessionID != "" {
		if aerr := o.tracker.Adopt(sess.SessionID, *sess); aerr != nil {
			o.logger.Error().Err(aerr).Str("session_id", sess.SessionID).Msg("failed to adopt current session")
		} else {
			o.log.Append(RoleAssistant, resumeMessage(sess), nil, "")
			o.logger.Info().Str("session_id", sess.SessionID).Int("question_count", sess.QuestionCount).Msg("resumed session")
			o.setState(StateActive)
			return nil
		}
	}
	o.log.Append(RoleAssistant, o.welcome, nil, "")
	o.setState(StateActive)
	return nil
}

// Send posts a free-text answer. The user message is appended before the
// request is issued and stays in the log if the request fails.
func (o *Orchestrator) Send(ctx context.Context, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}

	o.mu.Lock()
	if err := o.checkTurnLocked(); err != nil {
		o.mu.Unlock()
		return Reply{}, err
	}
	o.log.Append(RoleUser, text, nil, "")
	req := ChatRequest{Message: text}
	if id := o.tracker.SessionID(); id != "" {
		req.SessionID = &id
	}
	epoch := o.beginLocked()
	o.mu.Unlock()

	raw, err := o.api.Chat(ctx, req)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.staleLocked(epoch, "send"); err != nil {
		return Reply{}, err
	}
	o.tracker.End()
	if err != nil {
		return Reply{}, o.failLocked("send", err)
	}
	reply, err := Classify(raw)
	if err != nil {
		return Reply{}, o.failLocked("send", err)
	}
	if req.SessionID == nil && o.tracker.SessionID() == "" {
		if err := o.tracker.Adopt(reply.SessionID(), Session{Status: StatusActive, StartedAt: o.now().UTC()}); err != nil {
			return Reply{}, o.rejectLocked("send", err)
		}
		o.logger.Info().Str("session_id", reply.SessionID()).Msg("adopted new session")
	}
	if err := o.applyLocked(reply); err != nil {
		return Reply{}, o.rejectLocked("send", err)
	}
	return reply, nil
}

// SelectOption answers with one of the offered options. Options are
// answers, so this is the same as Send.
func (o *Orchestrator) SelectOption(ctx context.Context, option string) (Reply, error) {
	return o.Send(ctx, option)
}

// ForceComplete ends the session early. It fails with ErrInsufficientData
// without calling the service unless the Completion Gate allows it.
func (o *Orchestrator) ForceComplete(ctx context.Context) (*TerminalAssessment, error) {
	o.mu.Lock()
	if err := o.checkTurnLocked(); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	snap, ok := o.tracker.Current()
	if !ok || !CanComplete(snap) {
		o.mu.Unlock()
		return nil, ErrInsufficientData
	}
	epoch := o.beginLocked()
	o.mu.Unlock()

	raw, err := o.api.Complete(ctx, snap.SessionID)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.staleLocked(epoch, "complete"); err != nil {
		return nil, err
	}
	o.tracker.End()
	if err != nil {
		return nil, o.failLocked("complete", err)
	}
	reply, err := Classify(raw)
	if err != nil {
		return nil, o.failLocked("complete", err)
	}
	if reply.Kind != ReplyTerminal {
		return nil, o.failLocked("complete", fmt.Errorf("%w: expected an assessment, got a question turn", ErrUnrecognizedReply))
	}
	if err := o.applyLocked(reply); err != nil {
		return nil, o.rejectLocked("complete", err)
	}
	return reply.Terminal, nil
}

// Reset discards the Message Log and session, then asks the service for a
// new session. It is accepted in every state.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	prev := o.tracker.SessionID()
	o.epoch++
	epoch := o.epoch
	o.tracker.Discard()
	o.log.Reset()
	o.assessment = nil
	o.lastErr = nil
	o.setState(StateWaiting)
	o.mu.Unlock()

	rr, err := o.api.Reset(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		o.logger.Warn().Msg("reset superseded by a newer reset, ignoring result")
		return fmt.Errorf("reset: %w", ErrSessionMismatch)
	}
	if err == nil {
		switch {
		case rr == nil || rr.SessionID == "":
			err = fmt.Errorf("%w: reset reply has no session_id", ErrUnrecognizedReply)
		case prev != "" && rr.SessionID == prev:
			err = fmt.Errorf("%w: reset returned the superseded session %q", ErrUnrecognizedReply, prev)
		}
	}
	if err != nil {
		o.log.Append(RoleAssistant, o.welcome, nil, "")
		o.setState(StateActive)
		ce := newChatError("reset", err)
		o.lastErr = ce
		o.logger.Warn().Err(err).Msg("reset failed, continuing without a session")
		return ce
	}

	if err := o.tracker.Adopt(rr.SessionID, Session{Status: StatusActive, StartedAt: o.now().UTC()}); err != nil {
		return o.rejectLocked("reset", err)
	}
	msg := rr.Message
	if strings.TrimSpace(msg) == "" {
		msg = o.welcome
	}
	o.log.Append(RoleAssistant, msg, nil, "")
	o.setState(StateActive)
	o.logger.Info().Str("session_id", rr.SessionID).Str("previous_session_id", prev).Msg("session reset")
	return nil
}

// checkTurnLocked validates that a user turn may be issued. A turn from
// Empty is allowed: the service opens the session on the first send.
func (o *Orchestrator) checkTurnLocked() error {
	switch o.state {
	case StateWaiting:
		return ErrBusy
	case StateCompleted:
		return ErrSessionClosed
	}
	return nil
}

func (o *Orchestrator) beginLocked() uint64 {
	o.tracker.Begin()
	o.lastErr = nil
	o.setState(StateWaiting)
	return o.epoch
}

// staleLocked rejects a reply issued before the latest reset.
func (o *Orchestrator) staleLocked(epoch uint64, op string) error {
	if epoch == o.epoch {
		return nil
	}
	o.logger.Error().Str("op", op).Msg("discarding reply from a session superseded by reset")
	return fmt.Errorf("%s: %w", op, ErrSessionMismatch)
}

func (o *Orchestrator) applyLocked(reply Reply) error {
	switch reply.Kind {
	case ReplyQuestion:
		q := reply.Question
		if err := o.tracker.ApplyQuestionTurn(q); err != nil {
			return err
		}
		o.log.Append(RoleAssistant, q.Message, q.Options, q.ContextReference)
		o.setState(StateActive)
	case ReplyTerminal:
		t := reply.Terminal
		if err := o.tracker.ApplyTerminalAssessment(t); err != nil {
			return err
		}
		msg := t.Message
		if strings.TrimSpace(msg) == "" {
			msg = assessmentReadyMessage
		}
		o.log.Append(RoleAssistant, msg, nil, "")
		o.assessment = t
		o.setState(StateCompleted)
		o.logger.Info().
			Str("session_id", t.SessionID).
			Str("overall_status", string(t.OverallStatus)).
			Int("conditions", len(t.Conditions)).
			Msg("assessment completed")
	default:
		return fmt.Errorf("%w: reply kind %d", ErrUnrecognizedReply, reply.Kind)
	}
	return nil
}

// failLocked records a recoverable remote failure.
func (o *Orchestrator) failLocked(op string, err error) error {
	ce := newChatError(op, err)
	o.lastErr = ce
	o.setState(StateError)
	o.logger.Warn().Err(err).Str("op", op).Msg("assessment request failed")
	return ce
}

// rejectLocked records a local invariant violation. The reply is dropped.
func (o *Orchestrator) rejectLocked(op string, err error) error {
	err = fmt.Errorf("%s: %w", op, err)
	o.lastErr = err
	o.setState(StateError)
	o.logger.Error().Err(err).Msg("discarding reply that failed the session guard")
	return err
}

func (o *Orchestrator) setState(s State) {
	if o.state != s {
		o.logger.Debug().Str("from", string(o.state)).Str("to", string(s)).Msg("state transition")
	}
	o.state = s
}

func resumeMessage(s *Session) string {
	if strings.TrimSpace(s.LastMessage) == "" {
		return "Welcome back! Let's continue your health assessment."
	}
	return "Welcome back! Let's continue where we left off.\n\n" + s.LastMessage
}
