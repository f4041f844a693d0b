package api

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tutorcore/internal/models"
	"github.com/starford/tutorcore/internal/tutor"
)

// RetrieveRequest is the request body for POST /retrieve.
type RetrieveRequest struct {
	Query        string `json:"query" example:"How does Stroke Volume affect Cardiac Output?" validate:"required"`
	K            int    `json:"k,omitempty" example:"5"`
	Hops         int    `json:"hops,omitempty" example:"1"`
	BudgetTokens int    `json:"budget_tokens,omitempty" example:"1500"`
}

// Validate validates the request.
func (r RetrieveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Query, validation.Required),
		validation.Field(&r.K, validation.Min(0), validation.Max(100)),
		validation.Field(&r.Hops, validation.Min(0), validation.Max(5)),
		validation.Field(&r.BudgetTokens, validation.Min(0)),
	)
}

func (r RetrieveRequest) toService() tutor.RetrieveRequest {
	return tutor.RetrieveRequest{Query: r.Query, K: r.K, Hops: r.Hops, BudgetTokens: r.BudgetTokens}
}

// PracticeRequest is the request body for POST /practice.
type PracticeRequest struct {
	EventUID  string     `json:"event_uid,omitempty" example:"4b1c7e1e-1f4e-4f57-9d2a-5a3f4d1d0c11"`
	UserID    string     `json:"user_id" example:"learner-1" validate:"required"`
	SkillID   string     `json:"skill_id" example:"stroke-volume" validate:"required"`
	Source    string     `json:"source" example:"attempt" enums:"attempt,hint,evaluate_work,teach_back" validate:"required"`
	Correct   bool       `json:"correct"`
	LatencyMS *int64     `json:"latency_ms,omitempty" example:"5400"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (r PracticeRequest) toEvent() models.PracticeEvent {
	ev := models.PracticeEvent{
		EventUID:  r.EventUID,
		UserID:    r.UserID,
		SkillID:   r.SkillID,
		Source:    models.PracticeSource(r.Source),
		Correct:   r.Correct,
		LatencyMS: r.LatencyMS,
	}
	if r.Timestamp != nil {
		ev.Timestamp = *r.Timestamp
	}
	return ev
}

// ErrorFlagRequest is the request body for POST /error-flags.
type ErrorFlagRequest struct {
	UserID      string `json:"user_id" example:"learner-1" validate:"required"`
	SkillID     string `json:"skill_id" example:"stroke-volume" validate:"required"`
	ErrorType   string `json:"error_type" example:"misconception" validate:"required"`
	Severity    string `json:"severity,omitempty" example:"medium"`
	EdgeID      *int64 `json:"edge_id,omitempty"`
	EvidenceRef string `json:"evidence_ref,omitempty" example:"session-12/turn-4"`
}

func (r ErrorFlagRequest) toFlag() models.ErrorFlag {
	return models.ErrorFlag{
		UserID:      r.UserID,
		SkillID:     r.SkillID,
		ErrorType:   r.ErrorType,
		Severity:    r.Severity,
		EdgeID:      r.EdgeID,
		EvidenceRef: r.EvidenceRef,
	}
}

// CurriculumRequest is the request body for PUT /curriculum.
type CurriculumRequest struct {
	Skills []models.CurriculumNode `json:"skills" validate:"required"`
}

// CurriculumResponse lists skills in topological order.
type CurriculumResponse struct {
	Skills []models.CurriculumNode `json:"skills" validate:"required"`
}

// GraphResponse wraps the knowledge graph.
type GraphResponse struct {
	Nodes []models.KGNode `json:"nodes" validate:"required"`
	Edges []models.KGEdge `json:"edges" validate:"required"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status" example:"ok" validate:"required"`
}
