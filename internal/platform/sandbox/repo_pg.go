package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/healthassist/internal/domain/assessment"
	"github.com/ehr/healthassist/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type sessionRepoPG struct{ conn queryable }

// NewSessionRepoPG stores sessions in the assessment_session table.
func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepoPG{conn: pool}
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return 0, fmt.Errorf("open embedded migrations: %w", err)
	}
	return db.NewMigrator(pool, sub).Up(ctx)
}

const sessionCols = `id, user_id, status, opening, symptoms, turns, severe, assessment, started_at, updated_at`

func (r *sessionRepoPG) scanSession(row pgx.Row) (*Session, error) {
	var (
		s                         Session
		status                    string
		symptoms, turns, assessed []byte
	)
	err := row.Scan(&s.ID, &s.UserID, &status, &s.Opening, &symptoms, &turns,
		&s.Severe, &assessed, &s.StartedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Status = assessment.SessionStatus(status)
	if err := json.Unmarshal(symptoms, &s.Symptoms); err != nil {
		return nil, fmt.Errorf("decode symptoms of %s: %w", s.ID, err)
	}
	if err := json.Unmarshal(turns, &s.Turns); err != nil {
		return nil, fmt.Errorf("decode turns of %s: %w", s.ID, err)
	}
	if len(assessed) > 0 {
		s.Assessment = &assessment.TerminalAssessment{}
		if err := json.Unmarshal(assessed, s.Assessment); err != nil {
			return nil, fmt.Errorf("decode assessment of %s: %w", s.ID, err)
		}
	}
	return &s, nil
}

// encode returns the JSONB column values of s.
func encode(s *Session) (symptoms, turns, assessed []byte, err error) {
	if symptoms, err = json.Marshal(nonNil(s.Symptoms)); err != nil {
		return nil, nil, nil, err
	}
	t := s.Turns
	if t == nil {
		t = []Turn{}
	}
	if turns, err = json.Marshal(t); err != nil {
		return nil, nil, nil, err
	}
	if s.Assessment != nil {
		if assessed, err = json.Marshal(s.Assessment); err != nil {
			return nil, nil, nil, err
		}
	}
	return symptoms, turns, assessed, nil
}

func (r *sessionRepoPG) Create(ctx context.Context, s *Session) error {
	symptoms, turns, assessed, err := encode(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = r.conn.Exec(ctx, `
		INSERT INTO assessment_session (id, user_id, status, opening, symptoms, turns,
			severe, assessment, started_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		s.ID, s.UserID, string(s.Status), s.Opening, symptoms, turns,
		s.Severe, assessed, s.StartedAt, s.UpdatedAt)
	return err
}

func (r *sessionRepoPG) GetByID(ctx context.Context, id string) (*Session, error) {
	return r.scanSession(r.conn.QueryRow(ctx, `SELECT `+sessionCols+` FROM assessment_session WHERE id = $1`, id))
}

func (r *sessionRepoPG) Update(ctx context.Context, s *Session) error {
	symptoms, turns, assessed, err := encode(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	tag, err := r.conn.Exec(ctx, `
		UPDATE assessment_session SET status=$2, opening=$3, symptoms=$4, turns=$5,
			severe=$6, assessment=$7, updated_at=$8
		WHERE id = $1`,
		s.ID, string(s.Status), s.Opening, symptoms, turns, s.Severe, assessed, s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sessionRepoPG) ActiveForUser(ctx context.Context, userID string) (*Session, error) {
	return r.scanSession(r.conn.QueryRow(ctx, `SELECT `+sessionCols+` FROM assessment_session
		WHERE user_id = $1 AND status = 'active' ORDER BY started_at DESC LIMIT 1`, userID))
}

func (r *sessionRepoPG) ListByUser(ctx context.Context, userID string, limit int) ([]*Session, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+sessionCols+` FROM assessment_session
		WHERE user_id = $1 ORDER BY started_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Session
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
