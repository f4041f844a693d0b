package curriculum

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/starford/tutorcore/internal/apperr"
	"github.com/starford/tutorcore/internal/database"
	"github.com/starford/tutorcore/internal/models"
)

// MasterySource supplies effective mastery for gating.
type MasterySource interface {
	EffectiveMastery(ctx context.Context, conn database.DBTX, userID, skillID string) (float64, error)
}

// SkillState is a skill's status together with the values it was derived
// from.
type SkillState struct {
	SkillID          string             `json:"skill_id"`
	Name             string             `json:"name"`
	Status           models.SkillStatus `json:"status"`
	EffectiveMastery float64            `json:"effective_mastery"`
	Prereqs          []string           `json:"prereqs"`
}

// Evaluator derives skill statuses on read. Nothing about status is stored.
type Evaluator struct {
	graph   atomic.Pointer[Graph]
	mastery MasterySource
	unlock  float64
}

// NewEvaluator creates an Evaluator. g may be nil until a curriculum is
// loaded; every skill is unknown (locked) until then.
func NewEvaluator(g *Graph, mastery MasterySource, unlockThreshold float64) *Evaluator {
	e := &Evaluator{mastery: mastery, unlock: unlockThreshold}
	e.graph.Store(g)
	return e
}

// Graph returns the current curriculum, or nil.
func (e *Evaluator) Graph() *Graph {
	return e.graph.Load()
}

// SetGraph swaps the curriculum.
func (e *Evaluator) SetGraph(g *Graph) {
	e.graph.Store(g)
}

// UnlockThreshold returns the prerequisite gate.
func (e *Evaluator) UnlockThreshold() float64 {
	return e.unlock
}

// ComputeStatus returns locked when any prerequisite is below the unlock
// threshold, mastered when the skill's own effective mastery reaches
// masteryThreshold, unlocked otherwise. Unknown skills are locked.
func (e *Evaluator) ComputeStatus(ctx context.Context, conn database.DBTX, userID, skillID string, masteryThreshold float64) (models.SkillStatus, error) {
	st, err := e.State(ctx, conn, userID, skillID, masteryThreshold)
	if err != nil {
		return "", err
	}
	return st.Status, nil
}

// State is ComputeStatus with the skill's own effective mastery attached.
func (e *Evaluator) State(ctx context.Context, conn database.DBTX, userID, skillID string, masteryThreshold float64) (SkillState, error) {
	if masteryThreshold <= 0 || masteryThreshold > 1 {
		return SkillState{}, fmt.Errorf("curriculum: threshold %v: %w", masteryThreshold, apperr.ErrInvalidThreshold)
	}
	st := SkillState{SkillID: skillID, Name: skillID, Status: models.StatusLocked, Prereqs: []string{}}

	g := e.graph.Load()
	if g == nil {
		return st, nil
	}
	node, ok := g.Node(skillID)
	if !ok {
		return st, nil
	}
	st.Name = node.Name
	st.Prereqs = g.Prereqs(skillID)

	own, err := e.mastery.EffectiveMastery(ctx, conn, userID, skillID)
	if err != nil {
		return st, err
	}
	st.EffectiveMastery = own

	for _, p := range st.Prereqs {
		m, err := e.mastery.EffectiveMastery(ctx, conn, userID, p)
		if err != nil {
			return st, err
		}
		if m < e.unlock {
			st.Status = models.StatusLocked
			return st, nil
		}
	}
	if own >= masteryThreshold {
		st.Status = models.StatusMastered
	} else {
		st.Status = models.StatusUnlocked
	}
	return st, nil
}

// Statuses returns the state of every skill in topological order.
func (e *Evaluator) Statuses(ctx context.Context, conn database.DBTX, userID string, masteryThreshold float64) ([]SkillState, error) {
	g := e.graph.Load()
	if g == nil {
		return []SkillState{}, nil
	}
	out := make([]SkillState, 0, g.Len())
	for _, id := range g.Order() {
		st, err := e.State(ctx, conn, userID, id, masteryThreshold)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Dependents returns the skills that list id as a direct prerequisite, in
// topological order.
func (e *Evaluator) Dependents(id string) []string {
	g := e.graph.Load()
	if g == nil {
		return nil
	}
	var out []string
	for _, n := range g.Nodes() {
		for _, p := range n.Prereqs {
			if p == id {
				out = append(out, n.SkillID)
				break
			}
		}
	}
	return out
}
