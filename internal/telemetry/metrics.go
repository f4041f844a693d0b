package telemetry

import (
	"context"
	"time"

	"github.com/starford/tutorcore/internal/database"
	"github.com/starford/tutorcore/internal/models"
)

// Metrics aggregates a learner's recent practice.
type Metrics struct {
	UserID  string    `json:"user_id"`
	SkillID string    `json:"skill_id,omitempty"`
	Since   time.Time `json:"since"`
	// Attempts counts graded events: attempt, evaluate_work, teach_back.
	Attempts int     `json:"attempts"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
	Hints    int     `json:"hints"`
	// HintRatio is hints / (hints + attempts), the share of interactions that
	// leaned on a hint.
	HintRatio float64 `json:"hint_ratio"`
}

// Metrics computes accuracy and hint dependence over the window ending now.
// An empty skill aggregates every skill.
func (l *Log) Metrics(ctx context.Context, conn database.DBTX, userID, skillID string, window time.Duration) (Metrics, error) {
	since := l.now().Add(-window).UTC()
	events, err := l.Events(ctx, conn, userID, skillID, since)
	if err != nil {
		return Metrics{}, err
	}

	m := Metrics{UserID: userID, SkillID: skillID, Since: since}
	for _, ev := range events {
		switch {
		case ev.Source == models.SourceHint:
			m.Hints++
		case ev.Source.Graded():
			m.Attempts++
			if ev.Correct {
				m.Correct++
			}
		}
	}
	if m.Attempts > 0 {
		m.Accuracy = float64(m.Correct) / float64(m.Attempts)
	}
	if total := m.Hints + m.Attempts; total > 0 {
		m.HintRatio = float64(m.Hints) / float64(total)
	}
	return m, nil
}
