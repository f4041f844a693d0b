// Package telemetry is the append-only ledger of learner actions and
// diagnosed error flags, and the metrics computed from it.
package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/tutorcore/internal/apperr"
	"github.com/starford/tutorcore/internal/database"
	"github.com/starford/tutorcore/internal/models"
)

// DefaultSeverity is stored when a flag arrives without one.
const DefaultSeverity = "medium"

// Log reads and appends telemetry rows. Rows are never updated or deleted.
type Log struct {
	now func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the time source used for defaulted timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New creates a Log.
func New(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

const eventColumns = `id, COALESCE(event_uid, ''), user_id, skill_id, source, correct, latency_ms, timestamp`

// LogEvent appends a practice event. A missing EventUID is generated and a
// zero Timestamp is set to now. Resubmitting a known EventUID stores nothing
// and returns the original event with inserted=false.
func (l *Log) LogEvent(ctx context.Context, conn database.DBTX, ev models.PracticeEvent) (models.PracticeEvent, bool, error) {
	ev.UserID = strings.TrimSpace(ev.UserID)
	ev.SkillID = strings.TrimSpace(ev.SkillID)
	if err := validation.ValidateStruct(&ev,
		validation.Field(&ev.UserID, validation.Required),
		validation.Field(&ev.SkillID, validation.Required),
		validation.Field(&ev.Source, validation.Required, validation.By(validSource)),
	); err != nil {
		return ev, false, fmt.Errorf("telemetry: %w: %v", apperr.ErrInvalidInput, err)
	}
	if ev.EventUID == "" {
		ev.EventUID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	if !ev.Source.Graded() {
		ev.Correct = false
	}

	res, err := conn.ExecContext(ctx, `
		INSERT INTO practice_events (event_uid, user_id, skill_id, source, correct, latency_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.EventUID, ev.UserID, ev.SkillID, string(ev.Source), database.BoolInt(ev.Correct), ev.LatencyMS, ev.Timestamp)
	if err != nil {
		if database.IsUniqueViolation(err) {
			existing, lookupErr := l.eventByUID(ctx, conn, ev.EventUID)
			if lookupErr != nil {
				return ev, false, lookupErr
			}
			return existing, false, nil
		}
		return ev, false, fmt.Errorf("telemetry: insert event: %w", err)
	}
	ev.ID, err = res.LastInsertId()
	if err != nil {
		return ev, false, fmt.Errorf("telemetry: event id: %w", err)
	}
	return ev, true, nil
}

func validSource(v any) error {
	s, _ := v.(models.PracticeSource)
	if !s.Valid() {
		return errors.New("must be one of attempt, hint, evaluate_work, teach_back")
	}
	return nil
}

func (l *Log) eventByUID(ctx context.Context, conn database.DBTX, uid string) (models.PracticeEvent, error) {
	row := conn.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM practice_events WHERE event_uid = ?`, uid)
	ev, err := scanEvent(row)
	if err != nil {
		return models.PracticeEvent{}, fmt.Errorf("telemetry: event by uid: %w", err)
	}
	return ev, nil
}

// Events returns a user's events on skill at or after since, oldest first.
// An empty skill matches every skill; sources, when given, filter by source.
func (l *Log) Events(ctx context.Context, conn database.DBTX, userID, skillID string, since time.Time, sources ...models.PracticeSource) ([]models.PracticeEvent, error) {
	q := `SELECT ` + eventColumns + ` FROM practice_events WHERE user_id = ? AND timestamp >= ?`
	args := []any{userID, since.UTC()}
	if skillID != "" {
		q += ` AND skill_id = ?`
		args = append(args, skillID)
	}
	if len(sources) > 0 {
		q += ` AND source IN (` + strings.TrimSuffix(strings.Repeat("?,", len(sources)), ",") + `)`
		for _, s := range sources {
			args = append(args, string(s))
		}
	}
	q += ` ORDER BY timestamp, id`

	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: events: %w", err)
	}
	defer rows.Close()

	var out []models.PracticeEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LogErrorFlag appends a diagnosed error flag.
func (l *Log) LogErrorFlag(ctx context.Context, conn database.DBTX, f models.ErrorFlag) (models.ErrorFlag, error) {
	f.UserID = strings.TrimSpace(f.UserID)
	f.SkillID = strings.TrimSpace(f.SkillID)
	f.ErrorType = strings.TrimSpace(f.ErrorType)
	if err := validation.ValidateStruct(&f,
		validation.Field(&f.UserID, validation.Required),
		validation.Field(&f.SkillID, validation.Required),
		validation.Field(&f.ErrorType, validation.Required),
	); err != nil {
		return f, fmt.Errorf("telemetry: %w: %v", apperr.ErrInvalidInput, err)
	}
	if f.Severity == "" {
		f.Severity = DefaultSeverity
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = l.now()
	}
	f.CreatedAt = f.CreatedAt.UTC()

	res, err := conn.ExecContext(ctx, `
		INSERT INTO error_flags (user_id, skill_id, error_type, severity, edge_id, evidence_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.UserID, f.SkillID, f.ErrorType, f.Severity, f.EdgeID, f.EvidenceRef, f.CreatedAt)
	if err != nil {
		return f, fmt.Errorf("telemetry: insert error flag: %w", err)
	}
	f.ID, err = res.LastInsertId()
	if err != nil {
		return f, fmt.Errorf("telemetry: error flag id: %w", err)
	}
	return f, nil
}

// RecentErrorFlags returns up to limit flags for (user, skill), newest first.
func (l *Log) RecentErrorFlags(ctx context.Context, conn database.DBTX, userID, skillID string, limit int) ([]models.ErrorFlag, error) {
	if limit <= 0 {
		return []models.ErrorFlag{}, nil
	}
	rows, err := conn.QueryContext(ctx, `
		SELECT id, user_id, skill_id, error_type, severity, edge_id, evidence_ref, created_at
		FROM error_flags
		WHERE user_id = ? AND skill_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, skillID, limit)
	if err != nil {
		return nil, fmt.Errorf("telemetry: recent error flags: %w", err)
	}
	defer rows.Close()

	out := []models.ErrorFlag{}
	for rows.Next() {
		var (
			f      models.ErrorFlag
			edgeID sql.NullInt64
		)
		if err := rows.Scan(&f.ID, &f.UserID, &f.SkillID, &f.ErrorType, &f.Severity, &edgeID, &f.EvidenceRef, &f.CreatedAt); err != nil {
			return nil, err
		}
		if edgeID.Valid {
			id := edgeID.Int64
			f.EdgeID = &id
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(sc scanner) (models.PracticeEvent, error) {
	var (
		ev      models.PracticeEvent
		source  string
		correct int
		latency sql.NullInt64
	)
	if err := sc.Scan(&ev.ID, &ev.EventUID, &ev.UserID, &ev.SkillID, &source, &correct, &latency, &ev.Timestamp); err != nil {
		return ev, err
	}
	ev.Source = models.PracticeSource(source)
	ev.Correct = correct == 1
	if latency.Valid {
		ms := latency.Int64
		ev.LatencyMS = &ms
	}
	return ev, nil
}
