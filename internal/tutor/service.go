// Package tutor wires the graph, mastery, curriculum and telemetry
// components into the operations the API, MCP server and CLI expose. Each
// call runs in its own transaction.
package tutor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/starford/tutorcore/internal/apperr"
	"github.com/starford/tutorcore/internal/curriculum"
	"github.com/starford/tutorcore/internal/database"
	"github.com/starford/tutorcore/internal/diagnosis"
	"github.com/starford/tutorcore/internal/kg"
	"github.com/starford/tutorcore/internal/mastery"
	"github.com/starford/tutorcore/internal/models"
	"github.com/starford/tutorcore/internal/retrieval"
	"github.com/starford/tutorcore/internal/sse"
	"github.com/starford/tutorcore/internal/telemetry"
	"github.com/starford/tutorcore/internal/vault"
)

// Publisher receives live update events. *sse.Broker implements it.
type Publisher interface {
	Publish(event sse.Event)
	PublishSync(stats any)
}

// Session holds the allowed mastery-crossing thresholds.
type Session struct {
	MasteryThresholds []float64
	DefaultThreshold  float64
}

// Deps are the collaborators of a Service. Syncer, Vectors, Dictionary and
// Publisher are optional.
type Deps struct {
	DB         *sql.DB
	KG         *kg.Store
	Syncer     *vault.Syncer
	Retriever  *retrieval.Retriever
	Vectors    *retrieval.VectorIndex
	Dictionary *retrieval.DictionaryCache
	Telemetry  *telemetry.Log
	Mastery    *mastery.Engine
	Publisher  Publisher
	Logger     *slog.Logger

	Session    Session
	Retrieval  retrieval.Options
	HintWindow time.Duration
}

// Service is the tutoring orchestrator.
type Service struct {
	Deps
	status    *curriculum.Evaluator
	localizer *diagnosis.Localizer
}

// New creates a Service with an empty curriculum.
func New(d Deps) (*Service, error) {
	if d.DB == nil || d.KG == nil || d.Retriever == nil || d.Telemetry == nil || d.Mastery == nil {
		return nil, errors.New("tutor: missing dependency")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Session.DefaultThreshold == 0 {
		d.Session.DefaultThreshold = 0.95
	}
	if len(d.Session.MasteryThresholds) == 0 {
		d.Session.MasteryThresholds = []float64{d.Session.DefaultThreshold}
	}
	if !slices.Contains(d.Session.MasteryThresholds, d.Session.DefaultThreshold) {
		return nil, fmt.Errorf("tutor: default threshold %v: %w", d.Session.DefaultThreshold, apperr.ErrInvalidThreshold)
	}
	if d.HintWindow <= 0 {
		d.HintWindow = 7 * 24 * time.Hour
	}

	s := &Service{Deps: d}
	s.status = curriculum.NewEvaluator(nil, d.Mastery, d.Mastery.Params().UnlockThreshold)
	s.localizer = diagnosis.NewLocalizer(s.status, d.Mastery, d.Telemetry)
	return s, nil
}

// EnsureSchemas creates every table the service uses.
func (s *Service) EnsureSchemas(ctx context.Context) error {
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		steps := []func(context.Context, database.DBTX) error{
			kg.EnsureSchema,
			vault.NewTableResolver().EnsureSchema,
			telemetry.EnsureSchema,
			mastery.EnsureSchema,
			curriculum.EnsureSchema,
		}
		for _, step := range steps {
			if err := step(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResolveThreshold maps 0 to the session default and rejects thresholds
// outside the allowed set.
func (s *Service) ResolveThreshold(t float64) (float64, error) {
	if t == 0 {
		return s.Session.DefaultThreshold, nil
	}
	if !slices.Contains(s.Session.MasteryThresholds, t) {
		return 0, fmt.Errorf("tutor: threshold %v not in %v: %w", t, s.Session.MasteryThresholds, apperr.ErrInvalidThreshold)
	}
	return t, nil
}

// Sync re-reads the vault into the graph and refreshes retrieval indexes.
func (s *Service) Sync(ctx context.Context) (vault.SyncStats, error) {
	if s.Syncer == nil {
		return vault.SyncStats{}, fmt.Errorf("tutor: vault sync: %w", apperr.ErrNotImplemented)
	}
	s.Syncer.Invalidate()
	stats, err := s.Syncer.Sync(ctx, s.DB)
	if err != nil {
		return stats, err
	}
	if !stats.Unchanged {
		s.AfterSync(ctx, stats)
	}
	return stats, nil
}

// AfterSync refreshes the dictionary and vector index and announces the sync.
// The vault watcher calls it after its own syncs.
func (s *Service) AfterSync(ctx context.Context, stats vault.SyncStats) {
	if s.Dictionary != nil {
		s.Dictionary.Reset()
	}
	if err := s.RebuildVectors(ctx); err != nil {
		s.Logger.Warn("tutor: vector rebuild failed", slog.String("error", err.Error()))
	}
	if s.Publisher != nil {
		s.Publisher.PublishSync(stats)
	}
}

// RebuildVectors re-embeds every graph node.
func (s *Service) RebuildVectors(ctx context.Context) error {
	if s.Vectors == nil {
		return nil
	}
	nodes, err := s.KG.AllNodes(ctx, s.DB)
	if err != nil {
		return err
	}
	return s.Vectors.Rebuild(ctx, nodes)
}

// RetrieveRequest overrides the configured retrieval options when non-zero.
type RetrieveRequest struct {
	Query        string `json:"query"`
	K            int    `json:"k,omitempty"`
	Hops         int    `json:"hops,omitempty"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Retrieve runs hybrid retrieval for a query.
func (s *Service) Retrieve(ctx context.Context, req RetrieveRequest) (*retrieval.Result, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("tutor: empty query: %w", apperr.ErrInvalidInput)
	}
	opts := s.Retrieval
	if req.K > 0 {
		opts.K = req.K
	}
	if req.Hops > 0 {
		opts.Hops = req.Hops
	}
	if req.BudgetTokens > 0 {
		opts.BudgetTokens = req.BudgetTokens
	}
	if s.Vectors != nil && opts.VectorSearch == nil {
		opts.VectorSearch = s.Vectors.Search
	}

	var res *retrieval.Result
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		res, err = s.Retriever.Retrieve(ctx, tx, req.Query, opts)
		return err
	})
	return res, err
}

// Graph returns every node and edge.
func (s *Service) Graph(ctx context.Context) ([]models.KGNode, []models.KGEdge, error) {
	return s.KG.Graph(ctx, s.DB)
}

// MasteryView is a stored mastery row with its decayed value.
type MasteryView struct {
	models.MasterySkillState
	EffectiveMastery float64 `json:"effective_mastery"`
}

// GetMastery returns the learner's mastery of skill, initializing it at the
// prior when unseen.
func (s *Service) GetMastery(ctx context.Context, userID, skillID string) (MasteryView, error) {
	var view MasteryView
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		st, err := s.Mastery.GetOrInitMastery(ctx, tx, userID, skillID)
		if err != nil {
			return err
		}
		view = MasteryView{MasterySkillState: st, EffectiveMastery: s.Mastery.Effective(st)}
		return nil
	})
	return view, err
}

// MasteryStates lists every stored mastery row of a user.
func (s *Service) MasteryStates(ctx context.Context, userID string) ([]MasteryView, error) {
	states, err := s.Mastery.States(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out := make([]MasteryView, len(states))
	for i, st := range states {
		out[i] = MasteryView{MasterySkillState: st, EffectiveMastery: s.Mastery.Effective(st)}
	}
	return out, nil
}

// ComputeStatus derives the status of one skill. threshold 0 uses the
// session default.
func (s *Service) ComputeStatus(ctx context.Context, userID, skillID string, threshold float64) (curriculum.SkillState, error) {
	t, err := s.ResolveThreshold(threshold)
	if err != nil {
		return curriculum.SkillState{}, err
	}
	var st curriculum.SkillState
	err = database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		st, err = s.status.State(ctx, tx, userID, skillID, t)
		return err
	})
	return st, err
}

// Statuses derives the status of every curriculum skill.
func (s *Service) Statuses(ctx context.Context, userID string, threshold float64) ([]curriculum.SkillState, error) {
	t, err := s.ResolveThreshold(threshold)
	if err != nil {
		return nil, err
	}
	var out []curriculum.SkillState
	err = database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		out, err = s.status.Statuses(ctx, tx, userID, t)
		return err
	})
	return out, err
}

// WhyLocked explains the status of skill.
func (s *Service) WhyLocked(ctx context.Context, userID, skillID string, threshold float64) (*diagnosis.Report, error) {
	t, err := s.ResolveThreshold(threshold)
	if err != nil {
		return nil, err
	}
	var rep *diagnosis.Report
	err = database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		rep, err = s.localizer.WhyLocked(ctx, tx, userID, skillID, t)
		return err
	})
	return rep, err
}

// FlagError records a diagnosed error.
func (s *Service) FlagError(ctx context.Context, f models.ErrorFlag) (models.ErrorFlag, error) {
	return s.Telemetry.LogErrorFlag(ctx, s.DB, f)
}

// Metrics aggregates recent practice. window 0 uses the configured window.
func (s *Service) Metrics(ctx context.Context, userID, skillID string, window time.Duration) (telemetry.Metrics, error) {
	if window <= 0 {
		window = s.HintWindow
	}
	return s.Telemetry.Metrics(ctx, s.DB, userID, skillID, window)
}

// Trajectory replays the learner's graded events on skill.
func (s *Service) Trajectory(ctx context.Context, userID, skillID string) ([]mastery.Point, error) {
	events, err := s.Telemetry.Events(ctx, s.DB, userID, skillID, time.Time{},
		models.SourceAttempt, models.SourceEvaluateWork, models.SourceTeachBack)
	if err != nil {
		return nil, err
	}
	return s.Mastery.Params().Trajectory(events), nil
}
