package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/healthassist/internal/domain/assessment"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionNotActive     = errors.New("session is not active")
	ErrNotEnoughInformation = errors.New("not enough information to complete the assessment")
	ErrEmptyMessage         = errors.New("message must not be empty")
)

// ChatResult holds exactly one of a question turn or a terminal assessment.
type ChatResult struct {
	Question   *assessment.QuestionTurn
	Assessment *assessment.TerminalAssessment
}

// Body is the JSON payload for the result.
func (r *ChatResult) Body() interface{} {
	if r.Assessment != nil {
		return r.Assessment
	}
	return r.Question
}

// Service runs scripted assessment sessions for authenticated users.
type Service struct {
	repo   SessionRepository
	engine *Engine
	logger zerolog.Logger

	// mu serialises every read-modify-write of a session record.
	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

func NewService(repo SessionRepository, engine *Engine, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		engine: engine,
		logger: logger.With().Str("component", "sandbox").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Chat records one user turn. A nil sessionID abandons the user's active
// session and opens a new one.
func (s *Service) Chat(ctx context.Context, userID, message string, sessionID *string) (*ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sess *Session
		err  error
	)
	if sessionID == nil {
		if sess, err = s.open(ctx, userID, message); err != nil {
			return nil, err
		}
	} else {
		if sess, err = s.owned(ctx, userID, *sessionID); err != nil {
			return nil, err
		}
		if sess.Status != assessment.StatusActive {
			return nil, ErrSessionNotActive
		}
		s.answer(sess, message)
	}

	if s.engine.Exhausted(sess) {
		return s.finish(ctx, sess)
	}

	q := s.engine.NextQuestion(sess)
	sess.Turns = append(sess.Turns, Turn{
		QuestionID: q.ID,
		Question:   q.Text,
		Options:    append([]string(nil), q.Options...),
		AskedAt:    s.now(),
	})
	sess.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return &ChatResult{Question: s.engine.QuestionTurn(sess)}, nil
}

// Complete ends an active session early once the user answered enough
// questions.
func (s *Service) Complete(ctx context.Context, userID, sessionID string) (*assessment.TerminalAssessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != assessment.StatusActive {
		return nil, ErrSessionNotActive
	}
	if !s.engine.CanComplete(sess.Replies()) {
		return nil, ErrNotEnoughInformation
	}
	res, err := s.finish(ctx, sess)
	if err != nil {
		return nil, err
	}
	return res.Assessment, nil
}

// Reset abandons the user's active session and opens an empty one.
func (s *Service) Reset(ctx context.Context, userID string) (*assessment.ResetReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.open(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	return &assessment.ResetReply{SessionID: sess.ID, Message: s.engine.Welcome()}, nil
}

// Current returns the user's active session.
func (s *Service) Current(ctx context.Context, userID string) (*assessment.Session, error) {
	sess, err := s.repo.ActiveForUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess.ToSession(), nil
}

// History lists the user's sessions, most recent first.
func (s *Service) History(ctx context.Context, userID string, limit int, includeConversation bool) ([]assessment.SessionSummary, error) {
	items, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]assessment.SessionSummary, 0, len(items))
	for _, sess := range items {
		out = append(out, sess.ToSummary(includeConversation))
	}
	return out, nil
}

func (s *Service) HistorySession(ctx context.Context, userID, sessionID string, includeConversation bool) (*assessment.SessionSummary, error) {
	sess, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	out := sess.ToSummary(includeConversation)
	return &out, nil
}

// open abandons any active session of the user and stores a new one.
func (s *Service) open(ctx context.Context, userID, opening string) (*Session, error) {
	prev, err := s.repo.ActiveForUser(ctx, userID)
	switch {
	case err == nil:
		prev.Status = assessment.StatusAbandoned
		prev.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, prev); err != nil {
			return nil, fmt.Errorf("abandon session %s: %w", prev.ID, err)
		}
		s.logger.Info().Str("session_id", prev.ID).Str("user_id", userID).Msg("session abandoned")
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	now := s.now()
	sess := &Session{
		ID:        s.newID(),
		UserID:    userID,
		Status:    assessment.StatusActive,
		Opening:   opening,
		Symptoms:  s.engine.ExtractSymptoms(opening),
		Turns:     []Turn{},
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info().Str("session_id", sess.ID).Str("user_id", userID).Msg("session opened")
	return sess, nil
}

// owned loads a session and hides sessions of other users.
func (s *Service) owned(ctx context.Context, userID, sessionID string) (*Session, error) {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) answer(sess *Session, message string) {
	sess.Symptoms = MergeSymptoms(sess.Symptoms, s.engine.ExtractSymptoms(message))
	if IsSevere(message) {
		sess.Severe = true
	}
	t := sess.Pending()
	if t == nil {
		if sess.Opening == "" {
			sess.Opening = message
		}
		return
	}
	at := s.now()
	t.Answer = message
	t.Answered = true
	t.AnsweredAt = &at
}

func (s *Service) finish(ctx context.Context, sess *Session) (*ChatResult, error) {
	result := s.engine.Assess(sess)
	sess.Assessment = result
	sess.Status = assessment.StatusCompleted
	sess.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	s.logger.Info().
		Str("session_id", sess.ID).
		Int("question_count", result.QuestionCount).
		Str("overall_status", string(result.OverallStatus)).
		Msg("assessment completed")
	return &ChatResult{Assessment: result}, nil
}
