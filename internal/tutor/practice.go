package tutor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/tutorcore/internal/apperr"
	"github.com/starford/tutorcore/internal/curriculum"
	"github.com/starford/tutorcore/internal/database"
	"github.com/starford/tutorcore/internal/models"
	"github.com/starford/tutorcore/internal/sse"
)

// StatusChange is a skill whose status moved because of a practice event.
type StatusChange struct {
	SkillID string             `json:"skill_id"`
	From    models.SkillStatus `json:"from"`
	To      models.SkillStatus `json:"to"`
}

// PracticeResult is the outcome of RecordPractice.
type PracticeResult struct {
	Event    models.PracticeEvent `json:"event"`
	Inserted bool                 `json:"inserted"`
	// Mastery is set when the event was graded and new.
	Mastery       *MasteryView   `json:"mastery,omitempty"`
	StatusChanges []StatusChange `json:"status_changes"`
}

// RecordPractice appends a practice event and, for new graded events, applies
// one BKT update. The skill and its direct dependents are re-evaluated so
// status transitions can be announced. Hints are logged but never move
// mastery.
func (s *Service) RecordPractice(ctx context.Context, ev models.PracticeEvent) (*PracticeResult, error) {
	threshold := s.Session.DefaultThreshold
	res := &PracticeResult{StatusChanges: []StatusChange{}}

	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		logged, inserted, err := s.Telemetry.LogEvent(ctx, tx, ev)
		if err != nil {
			return err
		}
		res.Event, res.Inserted = logged, inserted
		if !inserted || !logged.Source.Graded() {
			return nil
		}

		watched := append([]string{logged.SkillID}, s.status.Dependents(logged.SkillID)...)
		before, err := s.snapshot(ctx, tx, logged.UserID, watched, threshold)
		if err != nil {
			return err
		}

		st, err := s.Mastery.BKTUpdate(ctx, tx, logged.UserID, logged.SkillID, logged.Correct)
		if err != nil {
			return err
		}
		res.Mastery = &MasteryView{MasterySkillState: st, EffectiveMastery: s.Mastery.Effective(st)}

		after, err := s.snapshot(ctx, tx, logged.UserID, watched, threshold)
		if err != nil {
			return err
		}
		for _, id := range watched {
			if before[id] != after[id] {
				res.StatusChanges = append(res.StatusChanges, StatusChange{SkillID: id, From: before[id], To: after[id]})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishPractice(res)
	return res, nil
}

func (s *Service) snapshot(ctx context.Context, conn database.DBTX, userID string, skills []string, threshold float64) (map[string]models.SkillStatus, error) {
	out := make(map[string]models.SkillStatus, len(skills))
	if s.status.Graph() == nil {
		return out, nil
	}
	for _, id := range skills {
		st, err := s.status.ComputeStatus(ctx, conn, userID, id, threshold)
		if err != nil {
			return nil, err
		}
		out[id] = st
	}
	return out, nil
}

func (s *Service) publishPractice(res *PracticeResult) {
	if s.Publisher == nil || res.Mastery == nil {
		return
	}
	s.Publisher.Publish(sse.Event{Type: sse.TypeMasteryUpdated, UserID: res.Mastery.UserID, Data: map[string]any{
		"user_id":           res.Mastery.UserID,
		"skill_id":          res.Mastery.SkillID,
		"p_mastery_latent":  res.Mastery.PMasteryLatent,
		"effective_mastery": res.Mastery.EffectiveMastery,
	}})
	for _, c := range res.StatusChanges {
		s.Publisher.Publish(sse.Event{Type: sse.TypeSkillStatusChanged, UserID: res.Event.UserID, Data: map[string]any{
			"user_id":  res.Event.UserID,
			"skill_id": c.SkillID,
			"from":     c.From,
			"to":       c.To,
		}})
	}
}

// Curriculum returns the loaded skills in topological order.
func (s *Service) Curriculum() []models.CurriculumNode {
	g := s.status.Graph()
	if g == nil {
		return []models.CurriculumNode{}
	}
	return g.Nodes()
}

// SetCurriculum validates nodes, persists them and makes them current.
func (s *Service) SetCurriculum(ctx context.Context, nodes []models.CurriculumNode) (*curriculum.Graph, error) {
	g, err := curriculum.New(nodes)
	if err != nil {
		return nil, err
	}
	if err := s.installCurriculum(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// LoadCurriculum installs the curriculum file at path, or the persisted
// curriculum when path is empty. A missing persisted curriculum is not an
// error.
func (s *Service) LoadCurriculum(ctx context.Context, path string) error {
	if path != "" {
		g, err := curriculum.LoadFile(path)
		if err != nil {
			return err
		}
		return s.installCurriculum(ctx, g)
	}

	g, err := curriculum.Load(ctx, s.DB)
	if errors.Is(err, apperr.ErrNotFound) {
		s.Logger.Info("tutor: no curriculum stored")
		return nil
	}
	if err != nil {
		return err
	}
	s.status.SetGraph(g)
	s.Logger.Info("tutor: curriculum loaded", slog.Int("skills", g.Len()))
	return nil
}

func (s *Service) installCurriculum(ctx context.Context, g *curriculum.Graph) error {
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		return curriculum.Save(ctx, tx, g)
	}); err != nil {
		return fmt.Errorf("tutor: save curriculum: %w", err)
	}
	s.status.SetGraph(g)
	s.Logger.Info("tutor: curriculum installed", slog.Int("skills", g.Len()))
	return nil
}
