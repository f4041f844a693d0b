// Package diagnosis explains why a skill is locked and orders the
// prerequisites a learner should revisit.
package diagnosis

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/starford/tutorcore/internal/curriculum"
	"github.com/starford/tutorcore/internal/database"
	"github.com/starford/tutorcore/internal/models"
)

// Flag limits per lookup.
const (
	PrereqFlagLimit = 5
	SkillFlagLimit  = 10
)

var tracer = otel.Tracer("github.com/starford/tutorcore/internal/diagnosis")

// FlagSource returns recent error flags, newest first.
type FlagSource interface {
	RecentErrorFlags(ctx context.Context, conn database.DBTX, userID, skillID string, limit int) ([]models.ErrorFlag, error)
}

// MissingPrereq is a prerequisite below the unlock threshold.
type MissingPrereq struct {
	SkillID          string             `json:"skill_id"`
	EffectiveMastery float64            `json:"effective_mastery"`
	Status           models.SkillStatus `json:"status"`
	Needed           float64            `json:"needed"`
}

// FlaggedPrereq is a prerequisite with recent error flags.
type FlaggedPrereq struct {
	SkillID string             `json:"skill_id"`
	Flags   []models.ErrorFlag `json:"flags"`
}

// Report is the answer to "why is this skill locked". Slices are never nil.
type Report struct {
	SkillID          string             `json:"skill_id"`
	Status           models.SkillStatus `json:"status"`
	Reason           string             `json:"reason,omitempty"`
	MissingPrereqs   []MissingPrereq    `json:"missing_prereqs"`
	FlaggedPrereqs   []FlaggedPrereq    `json:"flagged_prereqs"`
	RecentErrorFlags []models.ErrorFlag `json:"recent_error_flags"`
	RemediationPath  []string           `json:"remediation_path"`
}

// Localizer builds Reports from the curriculum, mastery and error flags.
type Localizer struct {
	status  *curriculum.Evaluator
	mastery curriculum.MasterySource
	flags   FlagSource
}

// NewLocalizer creates a Localizer.
func NewLocalizer(status *curriculum.Evaluator, mastery curriculum.MasterySource, flags FlagSource) *Localizer {
	return &Localizer{status: status, mastery: mastery, flags: flags}
}

// WhyLocked reports the skill's status, which direct prerequisites are below
// the unlock threshold, which carry recent error flags, the skill's own recent
// flags, and the missing prerequisites ordered weakest first. An unknown
// skill yields a locked report with a reason rather than an error.
func (l *Localizer) WhyLocked(ctx context.Context, conn database.DBTX, userID, skillID string, masteryThreshold float64) (*Report, error) {
	ctx, span := tracer.Start(ctx, "diagnosis.WhyLocked")
	defer span.End()
	span.SetAttributes(attribute.String("diagnosis.skill_id", skillID))

	rep := &Report{
		SkillID:          skillID,
		Status:           models.StatusLocked,
		MissingPrereqs:   []MissingPrereq{},
		FlaggedPrereqs:   []FlaggedPrereq{},
		RecentErrorFlags: []models.ErrorFlag{},
		RemediationPath:  []string{},
	}

	g := l.status.Graph()
	if g == nil {
		rep.Reason = "no curriculum is loaded"
		return rep, nil
	}
	if _, ok := g.Node(skillID); !ok {
		rep.Reason = "skill " + skillID + " is not in the curriculum"
		return rep, nil
	}

	fail := func(err error) (*Report, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	status, err := l.status.ComputeStatus(ctx, conn, userID, skillID, masteryThreshold)
	if err != nil {
		return fail(err)
	}
	rep.Status = status

	unlock := l.status.UnlockThreshold()
	for _, p := range g.Prereqs(skillID) {
		m, err := l.mastery.EffectiveMastery(ctx, conn, userID, p)
		if err != nil {
			return fail(err)
		}
		if m < unlock {
			pStatus, err := l.status.ComputeStatus(ctx, conn, userID, p, masteryThreshold)
			if err != nil {
				return fail(err)
			}
			rep.MissingPrereqs = append(rep.MissingPrereqs, MissingPrereq{
				SkillID:          p,
				EffectiveMastery: m,
				Status:           pStatus,
				Needed:           unlock,
			})
		}

		flags, err := l.flags.RecentErrorFlags(ctx, conn, userID, p, PrereqFlagLimit)
		if err != nil {
			return fail(err)
		}
		if len(flags) > 0 {
			rep.FlaggedPrereqs = append(rep.FlaggedPrereqs, FlaggedPrereq{SkillID: p, Flags: flags})
		}
	}

	own, err := l.flags.RecentErrorFlags(ctx, conn, userID, skillID, SkillFlagLimit)
	if err != nil {
		return fail(err)
	}
	if own != nil {
		rep.RecentErrorFlags = own
	}

	rep.RemediationPath = RemediationPath(rep.MissingPrereqs)
	switch {
	case len(rep.MissingPrereqs) > 0:
		rep.Reason = "prerequisites below the unlock threshold"
	case rep.Status != models.StatusLocked:
		rep.Reason = "skill is " + string(rep.Status)
	}

	span.SetAttributes(
		attribute.String("diagnosis.status", string(rep.Status)),
		attribute.Int("diagnosis.missing", len(rep.MissingPrereqs)),
	)
	return rep, nil
}

// RemediationPath orders missing prerequisites by ascending effective
// mastery. Ties keep declaration order.
func RemediationPath(missing []MissingPrereq) []string {
	sorted := append([]MissingPrereq(nil), missing...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectiveMastery < sorted[j].EffectiveMastery
	})
	out := make([]string, 0, len(sorted))
	for _, m := range sorted {
		out = append(out, m.SkillID)
	}
	return out
}
