package sandbox

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ehr/healthassist/internal/domain/assessment"
)

// ErrNotFound is returned by repositories for an unknown session.
var ErrNotFound = errors.New("sandbox: session not found")

type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	// ActiveForUser returns ErrNotFound when the user has no active session.
	ActiveForUser(ctx context.Context, userID string) (*Session, error)
	// ListByUser returns the user's sessions, most recently started first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*Session, error)
}

type memoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryRepo returns a repository that keeps sessions in process memory.
func NewMemoryRepo() SessionRepository {
	return &memoryRepo{sessions: make(map[string]*Session)}
}

func (r *memoryRepo) Create(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return errors.New("sandbox: duplicate session id")
	}
	r.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (r *memoryRepo) Update(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	r.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *memoryRepo) ActiveForUser(ctx context.Context, userID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *Session
	for _, s := range r.sessions {
		if s.UserID != userID || s.Status != assessment.StatusActive {
			continue
		}
		if latest == nil || s.StartedAt.After(latest.StartedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneSession(latest), nil
}

func (r *memoryRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var items []*Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			items = append(items, cloneSession(s))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].StartedAt.Equal(items[j].StartedAt) {
			return items[i].StartedAt.After(items[j].StartedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
