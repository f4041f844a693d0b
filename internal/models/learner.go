package models

import "time"

// PracticeSource identifies the learner action behind a PracticeEvent.
type PracticeSource string

const (
	SourceAttempt      PracticeSource = "attempt"
	SourceHint         PracticeSource = "hint"
	SourceEvaluateWork PracticeSource = "evaluate_work"
	SourceTeachBack    PracticeSource = "teach_back"
)

// Valid reports whether s is one of the known sources.
func (s PracticeSource) Valid() bool {
	switch s {
	case SourceAttempt, SourceHint, SourceEvaluateWork, SourceTeachBack:
		return true
	}
	return false
}

// Graded reports whether events from s carry a meaningful correct flag.
func (s PracticeSource) Graded() bool {
	return s.Valid() && s != SourceHint
}

// MasterySkillState is the latent mastery estimate for one (user, skill) pair.
type MasterySkillState struct {
	UserID          string     `json:"user_id"`
	SkillID         string     `json:"skill_id"`
	PMasteryLatent  float64    `json:"p_mastery_latent"`
	LastPracticedAt *time.Time `json:"last_practiced_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// PracticeEvent is one entry of the append-only telemetry ledger.
type PracticeEvent struct {
	ID        int64          `json:"id"`
	EventUID  string         `json:"event_uid,omitempty"`
	UserID    string         `json:"user_id"`
	SkillID   string         `json:"skill_id"`
	Source    PracticeSource `json:"source"`
	Correct   bool           `json:"correct"`
	LatencyMS *int64         `json:"latency_ms,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ErrorFlag is a diagnosed learner error. EdgeID optionally names the
// prerequisite relationship implicated by the error.
type ErrorFlag struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	SkillID     string    `json:"skill_id"`
	ErrorType   string    `json:"error_type"`
	Severity    string    `json:"severity"`
	EdgeID      *int64    `json:"edge_id,omitempty"`
	EvidenceRef string    `json:"evidence_ref"`
	CreatedAt   time.Time `json:"created_at"`
}

// CurriculumNode is a skill with its ordered prerequisites.
type CurriculumNode struct {
	SkillID string   `json:"skill_id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Prereqs []string `json:"prereqs" yaml:"prereqs"`
}

// SkillStatus is the derived gating state of a skill for a learner.
type SkillStatus string

const (
	StatusLocked   SkillStatus = "locked"
	StatusUnlocked SkillStatus = "unlocked"
	StatusMastered SkillStatus = "mastered"
)
