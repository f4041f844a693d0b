package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tutorcore/internal/tutor"
)

// Handler holds API route handlers.
type Handler struct {
	svc *tutor.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *tutor.Service) *Handler {
	return &Handler{svc: svc}
}

// threshold reads the optional ?threshold= query parameter. Zero selects the
// session default.
func threshold(w http.ResponseWriter, r *http.Request) (float64, bool) {
	raw := r.URL.Query().Get("threshold")
	if raw == "" {
		return 0, true
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("threshold must be a number"))
		return 0, false
	}
	return t, true
}

// Health handles GET /health.
//
//	@Summary	Liveness probe
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Router		/health [get]
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Retrieve handles POST /retrieve.
//
//	@Summary		Build a concept context pack for a question
//	@Tags			retrieval
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RetrieveRequest	true	"Query"
//	@Success		200		{object}	retrieval.Result
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/retrieve [post]
func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	res, err := h.svc.Retrieve(r.Context(), req.toService())
	if err != nil {
		writeError(w, "retrieve", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RecordPractice handles POST /practice.
//
//	@Summary		Record a practice event and update mastery
//	@Tags			learner
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PracticeRequest	true	"Practice event"
//	@Success		201		{object}	tutor.PracticeResult
//	@Success		200		{object}	tutor.PracticeResult	"Duplicate event_uid"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/practice [post]
func (h *Handler) RecordPractice(w http.ResponseWriter, r *http.Request) {
	var req PracticeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.RecordPractice(r.Context(), req.toEvent())
	if err != nil {
		writeError(w, "record practice", err)
		return
	}
	status := http.StatusCreated
	if !res.Inserted {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// FlagError handles POST /error-flags.
//
//	@Summary		Record a diagnosed learner error
//	@Tags			learner
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ErrorFlagRequest	true	"Error flag"
//	@Success		201		{object}	models.ErrorFlag
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/error-flags [post]
func (h *Handler) FlagError(w http.ResponseWriter, r *http.Request) {
	var req ErrorFlagRequest
	if !decodeBody(w, r, &req) {
		return
	}
	f, err := h.svc.FlagError(r.Context(), req.toFlag())
	if err != nil {
		writeError(w, "flag error", err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// ListMastery handles GET /users/{user}/mastery.
func (h *Handler) ListMastery(w http.ResponseWriter, r *http.Request) {
	states, err := h.svc.MasteryStates(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, "list mastery", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mastery": states})
}

// GetMastery handles GET /users/{user}/mastery/{skill}.
//
//	@Summary		Get mastery of one skill, initializing it at the prior
//	@Tags			learner
//	@Produce		json
//	@Param			user	path		string	true	"User id"
//	@Param			skill	path		string	true	"Skill id"
//	@Success		200		{object}	tutor.MasteryView
//	@Security		BearerAuth
//	@Router			/users/{user}/mastery/{skill} [get]
func (h *Handler) GetMastery(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetMastery(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "skill"))
	if err != nil {
		writeError(w, "get mastery", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Statuses handles GET /users/{user}/skills.
func (h *Handler) Statuses(w http.ResponseWriter, r *http.Request) {
	t, ok := threshold(w, r)
	if !ok {
		return
	}
	states, err := h.svc.Statuses(r.Context(), chi.URLParam(r, "user"), t)
	if err != nil {
		writeError(w, "statuses", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": states})
}

// SkillStatus handles GET /users/{user}/skills/{skill}/status.
//
//	@Summary		Derive locked / unlocked / mastered for a skill
//	@Tags			curriculum
//	@Produce		json
//	@Param			user		path		string	true	"User id"
//	@Param			skill		path		string	true	"Skill id"
//	@Param			threshold	query		number	false	"Mastery threshold from the allowed set"
//	@Success		200			{object}	curriculum.SkillState
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/users/{user}/skills/{skill}/status [get]
func (h *Handler) SkillStatus(w http.ResponseWriter, r *http.Request) {
	t, ok := threshold(w, r)
	if !ok {
		return
	}
	st, err := h.svc.ComputeStatus(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "skill"), t)
	if err != nil {
		writeError(w, "skill status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// WhyLocked handles GET /users/{user}/skills/{skill}/why-locked.
//
//	@Summary		Explain why a skill is locked
//	@Tags			curriculum
//	@Produce		json
//	@Param			user		path		string	true	"User id"
//	@Param			skill		path		string	true	"Skill id"
//	@Param			threshold	query		number	false	"Mastery threshold from the allowed set"
//	@Success		200			{object}	diagnosis.Report
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/users/{user}/skills/{skill}/why-locked [get]
func (h *Handler) WhyLocked(w http.ResponseWriter, r *http.Request) {
	t, ok := threshold(w, r)
	if !ok {
		return
	}
	rep, err := h.svc.WhyLocked(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "skill"), t)
	if err != nil {
		writeError(w, "why locked", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Metrics handles GET /users/{user}/skills/{skill}/metrics.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("window must be a positive duration"))
			return
		}
		window = d
	}
	m, err := h.svc.Metrics(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "skill"), window)
	if err != nil {
		writeError(w, "metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Trajectory handles GET /users/{user}/skills/{skill}/trajectory.
func (h *Handler) Trajectory(w http.ResponseWriter, r *http.Request) {
	points, err := h.svc.Trajectory(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "skill"))
	if err != nil {
		writeError(w, "trajectory", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

// GetCurriculum handles GET /curriculum.
func (h *Handler) GetCurriculum(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CurriculumResponse{Skills: h.svc.Curriculum()})
}

// PutCurriculum handles PUT /curriculum.
//
//	@Summary		Replace the curriculum
//	@Tags			curriculum
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CurriculumRequest	true	"Skills with prerequisites"
//	@Success		200		{object}	CurriculumResponse
//	@Failure		400		{object}	errResponse	"Invalid or cyclic curriculum"
//	@Security		BearerAuth
//	@Router			/curriculum [put]
func (h *Handler) PutCurriculum(w http.ResponseWriter, r *http.Request) {
	var req CurriculumRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g, err := h.svc.SetCurriculum(r.Context(), req.Skills)
	if err != nil {
		writeError(w, "set curriculum", err)
		return
	}
	writeJSON(w, http.StatusOK, CurriculumResponse{Skills: g.Nodes()})
}

// Graph handles GET /graph.
//
//	@Summary		Get the concept graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, edges, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nodes, Edges: edges})
}

// SyncVault handles POST /vault/sync.
func (h *Handler) SyncVault(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Sync(r.Context())
	if err != nil {
		writeError(w, "vault sync", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
