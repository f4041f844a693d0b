package telemetry

import (
	"context"
	"fmt"

	"github.com/starford/tutorcore/internal/database"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS practice_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	event_uid   TEXT UNIQUE,
	user_id     TEXT NOT NULL,
	skill_id    TEXT NOT NULL,
	source      TEXT NOT NULL CHECK (source IN ('attempt', 'hint', 'evaluate_work', 'teach_back')),
	correct     INTEGER NOT NULL DEFAULT 0,
	latency_ms  INTEGER,
	timestamp   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_practice_events_user_skill ON practice_events(user_id, skill_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_practice_events_user_time ON practice_events(user_id, timestamp);

CREATE TABLE IF NOT EXISTS error_flags (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      TEXT NOT NULL,
	skill_id     TEXT NOT NULL,
	error_type   TEXT NOT NULL,
	severity     TEXT NOT NULL DEFAULT 'medium',
	edge_id      INTEGER,
	evidence_ref TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_error_flags_user_skill ON error_flags(user_id, skill_id, created_at);
`

// EnsureSchema creates the telemetry tables. It is idempotent.
func EnsureSchema(ctx context.Context, conn database.DBTX) error {
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("telemetry: apply schema: %w", err)
	}
	return nil
}
