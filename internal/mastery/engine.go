// Package mastery keeps per-(user, skill) latent mastery and updates it with
// Bayesian Knowledge Tracing.
package mastery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/starford/tutorcore/internal/database"
	"github.com/starford/tutorcore/internal/models"
)

var tracer = otel.Tracer("github.com/starford/tutorcore/internal/mastery")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS mastery_states (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           TEXT NOT NULL,
	skill_id          TEXT NOT NULL,
	p_mastery_latent  REAL NOT NULL,
	last_practiced_at DATETIME,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL,
	UNIQUE (user_id, skill_id)
);

CREATE INDEX IF NOT EXISTS idx_mastery_states_user ON mastery_states(user_id);
`

// EnsureSchema creates the mastery table. It is idempotent.
func EnsureSchema(ctx context.Context, conn database.DBTX) error {
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("mastery: apply schema: %w", err)
	}
	return nil
}

// Engine reads and updates mastery rows over a caller-supplied connection.
type Engine struct {
	params Params
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine after validating params.
func New(params Params, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("mastery: params: %w", err)
	}
	e := &Engine{params: params, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Params returns the engine parameters.
func (e *Engine) Params() Params {
	return e.params
}

// GetOrInitMastery returns the stored state, creating it at the prior when
// the learner has never been seen on skill.
func (e *Engine) GetOrInitMastery(ctx context.Context, conn database.DBTX, userID, skillID string) (models.MasterySkillState, error) {
	now := e.now().UTC()
	if _, err := conn.ExecContext(ctx, `
		INSERT INTO mastery_states (user_id, skill_id, p_mastery_latent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, skill_id) DO NOTHING
	`, userID, skillID, e.params.PriorMastery, now, now); err != nil {
		return models.MasterySkillState{}, fmt.Errorf("mastery: init state: %w", err)
	}
	return e.load(ctx, conn, userID, skillID)
}

// BKTUpdate applies one graded observation and stamps last_practiced_at.
func (e *Engine) BKTUpdate(ctx context.Context, conn database.DBTX, userID, skillID string, correct bool) (models.MasterySkillState, error) {
	ctx, span := tracer.Start(ctx, "mastery.BKTUpdate")
	defer span.End()
	span.SetAttributes(
		attribute.String("mastery.skill_id", skillID),
		attribute.Bool("mastery.correct", correct),
	)

	st, err := e.GetOrInitMastery(ctx, conn, userID, skillID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return st, err
	}

	next := e.params.Step(st.PMasteryLatent, correct)
	now := e.now().UTC()
	if _, err := conn.ExecContext(ctx, `
		UPDATE mastery_states
		SET p_mastery_latent = ?, last_practiced_at = ?, updated_at = ?
		WHERE user_id = ? AND skill_id = ?
	`, next, now, now, userID, skillID); err != nil {
		err = fmt.Errorf("mastery: update state: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return st, err
	}

	span.SetAttributes(
		attribute.Float64("mastery.before", st.PMasteryLatent),
		attribute.Float64("mastery.after", next),
	)
	st.PMasteryLatent = next
	st.LastPracticedAt = &now
	st.UpdatedAt = now
	return st, nil
}

// EffectiveMastery returns the latent mastery discounted for time since last
// practice. It only reads: a skill the learner has no row for reports the
// prior and no row is created.
func (e *Engine) EffectiveMastery(ctx context.Context, conn database.DBTX, userID, skillID string) (float64, error) {
	st, err := e.load(ctx, conn, userID, skillID)
	if errors.Is(err, sql.ErrNoRows) {
		return e.params.PriorMastery, nil
	}
	if err != nil {
		return 0, err
	}
	return e.Effective(st), nil
}

// Effective applies retention decay to a loaded state.
func (e *Engine) Effective(st models.MasterySkillState) float64 {
	return e.params.Effective(st.PMasteryLatent, st.LastPracticedAt, e.now())
}

// States lists every stored state of a user, by skill id.
func (e *Engine) States(ctx context.Context, conn database.DBTX, userID string) ([]models.MasterySkillState, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT user_id, skill_id, p_mastery_latent, last_practiced_at, created_at, updated_at
		FROM mastery_states
		WHERE user_id = ?
		ORDER BY skill_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("mastery: states: %w", err)
	}
	defer rows.Close()

	out := []models.MasterySkillState{}
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (e *Engine) load(ctx context.Context, conn database.DBTX, userID, skillID string) (models.MasterySkillState, error) {
	row := conn.QueryRowContext(ctx, `
		SELECT user_id, skill_id, p_mastery_latent, last_practiced_at, created_at, updated_at
		FROM mastery_states
		WHERE user_id = ? AND skill_id = ?
	`, userID, skillID)
	st, err := scanState(row)
	if err != nil {
		return st, fmt.Errorf("mastery: load state: %w", err)
	}
	return st, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanState(sc scanner) (models.MasterySkillState, error) {
	var (
		st   models.MasterySkillState
		last sql.NullTime
	)
	if err := sc.Scan(&st.UserID, &st.SkillID, &st.PMasteryLatent, &last, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return st, err
	}
	if last.Valid {
		t := last.Time
		st.LastPracticedAt = &t
	}
	return st, nil
}
