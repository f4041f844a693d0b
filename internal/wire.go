package internal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/tutorcore/internal/database"
	"github.com/starford/tutorcore/internal/kg"
	"github.com/starford/tutorcore/internal/mastery"
	"github.com/starford/tutorcore/internal/retrieval"
	"github.com/starford/tutorcore/internal/storage"
	"github.com/starford/tutorcore/internal/telemetry"
	"github.com/starford/tutorcore/internal/tutor"
	"github.com/starford/tutorcore/internal/vault"
)

// stack is the set of long-lived components shared by every command.
type stack struct {
	db      *sql.DB
	syncer  *vault.Syncer
	svc     *tutor.Service
	closers []func()
}

// Close releases caches and the database in reverse order of creation.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildStack opens the database and vault, wires the tutoring service,
// applies schemas and loads the curriculum. pub may be nil.
func buildStack(ctx context.Context, cfg *Config, logger *slog.Logger, pub tutor.Publisher) (*stack, error) {
	st := &stack{}
	ok := false
	defer func() {
		if !ok {
			st.Close()
		}
	}()

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := database.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	st.db = db
	st.closers = append(st.closers, func() { db.Close() })

	kgStore := kg.NewStore()

	cache, err := vault.NewIndexCache(cfg.Vault.CacheTTL)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, cache.Close)
	st.syncer = vault.NewSyncer(store, kgStore, cache, logger)

	var dict *retrieval.DictionaryCache
	if cfg.Retrieval.DictionaryScan {
		dict, err = retrieval.NewDictionaryCache(kgStore, cfg.Vault.CacheTTL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, dict.Close)
	}

	var vectors *retrieval.VectorIndex
	if cfg.Retrieval.VectorSearch {
		vectors = retrieval.NewVectorIndex(nil, retrieval.WithMinSimilarity(float32(cfg.Retrieval.MinSimilarity)))
	}

	engine, err := mastery.New(cfg.Mastery)
	if err != nil {
		return nil, fmt.Errorf("init mastery: %w", err)
	}

	st.svc, err = tutor.New(tutor.Deps{
		DB:         db,
		KG:         kgStore,
		Syncer:     st.syncer,
		Retriever:  retrieval.NewRetriever(kgStore, retrieval.NewExtractor(cfg.Retrieval.DropStopwords), dict, logger),
		Vectors:    vectors,
		Dictionary: dict,
		Telemetry:  telemetry.New(),
		Mastery:    engine,
		Publisher:  pub,
		Logger:     logger,
		Session: tutor.Session{
			MasteryThresholds: cfg.Session.MasteryThresholds,
			DefaultThreshold:  cfg.Session.DefaultMasteryThreshold,
		},
		Retrieval:  cfg.Retrieval.Options(),
		HintWindow: cfg.Metrics.HintWindow,
	})
	if err != nil {
		return nil, err
	}

	if err := st.svc.EnsureSchemas(ctx); err != nil {
		return nil, fmt.Errorf("apply schemas: %w", err)
	}
	if err := st.svc.LoadCurriculum(ctx, cfg.Curriculum.Path); err != nil {
		return nil, fmt.Errorf("load curriculum: %w", err)
	}

	ok = true
	return st, nil
}

// newLogger installs the structured JSON logger as the slog default.
func newLogger(app *application) *slog.Logger {
	out := app.logOutput
	if out == nil {
		out = os.Stdout
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}
