package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/healthassist/internal/domain/assessment"
	"github.com/ehr/healthassist/internal/platform/auth"
)

const (
	defaultSeedSessions = 5
	maxSeedSessions     = 50
)

// ErrTooManySessions is returned when a seed request exceeds maxSeedSessions.
var ErrTooManySessions = fmt.Errorf("at most %d sessions can be seeded at once", maxSeedSessions)

// SeedConfig controls the volume and shape of generated past sessions.
type SeedConfig struct {
	Sessions int `json:"sessions"`
	// AbandonedEvery marks every Nth session abandoned; 0 disables.
	AbandonedEvery int   `json:"abandoned_every"`
	Seed           int64 `json:"seed"`
}

// SeedResult summarizes the output of a seed operation.
type SeedResult struct {
	Sessions  int           `json:"sessions"`
	Completed int           `json:"completed"`
	Abandoned int           `json:"abandoned"`
	Questions int           `json:"questions"`
	Duration  time.Duration `json:"duration"`
}

var (
	openingTemplates = []string{
		"I have %s",
		"I've been dealing with %s for a while",
		"Since yesterday I have %s",
		"I woke up with %s",
	}
	freeTextAnswers = []string{
		"Not really",
		"It comes and goes",
		"It started after a long week at work",
		"Nothing else that I can think of",
	}
)

// DataGenerator produces deterministic synthetic conversations.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// Opening produces a first message naming one or two known symptoms.
func (g *DataGenerator) Opening(symptoms []SymptomDef) string {
	first := symptoms[g.rng.Intn(len(symptoms))]
	phrase := g.pick(first.Keywords)
	if g.rng.Intn(2) == 0 {
		second := symptoms[g.rng.Intn(len(symptoms))]
		if second.Name != first.Name {
			phrase += " and " + g.pick(second.Keywords)
		}
	}
	return fmt.Sprintf(g.pick(openingTemplates), phrase)
}

// Answer picks one of the offered options, or free text when there are none.
func (g *DataGenerator) Answer(options []string) string {
	if len(options) == 0 {
		return g.pick(freeTextAnswers)
	}
	return g.pick(options)
}

// Seeder writes synthetic past sessions for a user through the repository.
type Seeder struct {
	repo   SessionRepository
	engine *Engine
	mu     sync.Mutex
	now    func() time.Time
}

func NewSeeder(repo SessionRepository, engine *Engine) *Seeder {
	return &Seeder{repo: repo, engine: engine, now: func() time.Time { return time.Now().UTC() }}
}

// Seed generates cfg.Sessions closed sessions for userID, one per day going
// back from now. The user's active session is left untouched.
func (s *Seeder) Seed(ctx context.Context, userID string, cfg SeedConfig) (*SeedResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if cfg.Sessions <= 0 {
		cfg.Sessions = defaultSeedSessions
	}
	if cfg.Sessions > maxSeedSessions {
		return nil, ErrTooManySessions
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	gen := NewDataGenerator(cfg.Seed)
	result := &SeedResult{}
	base := s.now()

	for i := 0; i < cfg.Sessions; i++ {
		startedAt := base.Add(-time.Duration(cfg.Sessions-i) * 24 * time.Hour)
		abandoned := cfg.AbandonedEvery > 0 && (i+1)%cfg.AbandonedEvery == 0
		sess := s.conversation(gen, userID, startedAt, abandoned)
		if err := s.repo.Create(ctx, sess); err != nil {
			return nil, fmt.Errorf("seed session %d: %w", i+1, err)
		}
		result.Sessions++
		result.Questions += sess.QuestionCount()
		if abandoned {
			result.Abandoned++
		} else {
			result.Completed++
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (s *Seeder) conversation(gen *DataGenerator, userID string, startedAt time.Time, abandoned bool) *Session {
	opening := gen.Opening(s.engine.k.Symptoms)
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    assessment.StatusActive,
		Opening:   opening,
		Symptoms:  s.engine.ExtractSymptoms(opening),
		Turns:     []Turn{},
		StartedAt: startedAt,
	}

	at := startedAt
	questions := assessment.MinQuestionsForCompletion + gen.rng.Intn(s.engine.MaxQuestions()-assessment.MinQuestionsForCompletion+1)
	if abandoned {
		questions = 1 + gen.rng.Intn(assessment.MinQuestionsForCompletion)
	}
	for n := 0; n < questions; n++ {
		q := s.engine.NextQuestion(sess)
		answer := gen.Answer(q.Options)
		asked := at
		at = at.Add(time.Duration(20+gen.rng.Intn(90)) * time.Second)
		answered := at
		sess.Turns = append(sess.Turns, Turn{
			QuestionID: q.ID,
			Question:   q.Text,
			Options:    append([]string(nil), q.Options...),
			Answer:     answer,
			Answered:   true,
			AskedAt:    asked,
			AnsweredAt: &answered,
		})
		sess.Symptoms = MergeSymptoms(sess.Symptoms, s.engine.ExtractSymptoms(answer))
		if IsSevere(answer) {
			sess.Severe = true
		}
	}

	sess.UpdatedAt = at
	if abandoned {
		sess.Status = assessment.StatusAbandoned
		return sess
	}
	sess.Assessment = s.engine.Assess(sess)
	sess.Status = assessment.StatusCompleted
	return sess
}

// SeedHandler exposes the seeder over HTTP for the authenticated user.
type SeedHandler struct {
	seeder *Seeder
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/sandbox/seed", h.handleSeed, auth.RequireRole(auth.RolePatient))
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var cfg SeedConfig
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	result, err := h.seeder.Seed(c.Request().Context(), userID, cfg)
	if err != nil {
		if errors.Is(err, ErrTooManySessions) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "seed failed").SetInternal(err)
	}
	return c.JSON(http.StatusCreated, result)
}
