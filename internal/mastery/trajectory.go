package mastery

import (
	"time"

	"github.com/starford/tutorcore/internal/models"
)

// Point is the latent mastery right after one event.
type Point struct {
	EventID   int64                 `json:"event_id"`
	Timestamp time.Time             `json:"timestamp"`
	Source    models.PracticeSource `json:"source"`
	Correct   bool                  `json:"correct"`
	PMastery  float64               `json:"p_mastery"`
}

// Trajectory replays BKT from the prior over events, which must be in time
// order. Hint events are skipped since they carry no evidence.
func (p Params) Trajectory(events []models.PracticeEvent) []Point {
	out := make([]Point, 0, len(events))
	cur := p.PriorMastery
	for _, ev := range events {
		if !ev.Source.Graded() {
			continue
		}
		cur = p.Step(cur, ev.Correct)
		out = append(out, Point{
			EventID:   ev.ID,
			Timestamp: ev.Timestamp,
			Source:    ev.Source,
			Correct:   ev.Correct,
			PMastery:  cur,
		})
	}
	return out
}
