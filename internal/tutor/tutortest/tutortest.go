// Package tutortest builds a fully wired tutor.Service over a temporary
// database and the cardiac test vault.
package tutortest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/starford/tutorcore/internal/kg"
	"github.com/starford/tutorcore/internal/mastery"
	"github.com/starford/tutorcore/internal/models"
	"github.com/starford/tutorcore/internal/retrieval"
	"github.com/starford/tutorcore/internal/sse"
	"github.com/starford/tutorcore/internal/storage"
	"github.com/starford/tutorcore/internal/telemetry"
	"github.com/starford/tutorcore/internal/testutil"
	"github.com/starford/tutorcore/internal/tutor"
	"github.com/starford/tutorcore/internal/vault"
)

// Recorder is a tutor.Publisher that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []sse.Event
}

// Publish implements tutor.Publisher.
func (r *Recorder) Publish(e sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// PublishSync implements tutor.Publisher.
func (r *Recorder) PublishSync(stats any) {
	r.Publish(sse.Event{Type: sse.TypeVaultSynced, Data: stats})
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []sse.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sse.Event(nil), r.events...)
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Curriculum is the physiology curriculum matching the cardiac vault.
func Curriculum() []models.CurriculumNode {
	return []models.CurriculumNode{
		{SkillID: "preload", Name: "Preload"},
		{SkillID: "heart-rate", Name: "Heart Rate"},
		{SkillID: "stroke-volume", Name: "Stroke Volume", Prereqs: []string{"preload"}},
		{SkillID: "cardiac-output", Name: "Cardiac Output", Prereqs: []string{"stroke-volume", "heart-rate"}},
	}
}

// Env is a wired service and its parts.
type Env struct {
	Service  *tutor.Service
	Events   *Recorder
	VaultDir string
}

// New builds a service, applies schemas, syncs the cardiac vault and installs
// Curriculum.
func New(t *testing.T) *Env {
	t.Helper()
	ctx := context.Background()

	db := testutil.TestDB(t)
	dir := testutil.TestVault(t, testutil.CardiacVault())
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}

	logger := testutil.Logger()
	kgStore := kg.NewStore()
	cache, err := vault.NewIndexCache(time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(cache.Close)
	engine, err := mastery.New(mastery.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}

	rec := &Recorder{}
	svc, err := tutor.New(tutor.Deps{
		DB:         db,
		KG:         kgStore,
		Syncer:     vault.NewSyncer(fs, kgStore, cache, logger),
		Retriever:  retrieval.NewRetriever(kgStore, retrieval.NewExtractor(true), nil, logger),
		Vectors:    retrieval.NewVectorIndex(nil),
		Telemetry:  telemetry.New(),
		Mastery:    engine,
		Publisher:  rec,
		Logger:     logger,
		Session:    tutor.Session{MasteryThresholds: []float64{0.95, 0.98}, DefaultThreshold: 0.95},
		Retrieval:  retrieval.Options{K: 3, Hops: 1, BudgetTokens: 1500},
		HintWindow: 7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.EnsureSchemas(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SetCurriculum(ctx, Curriculum()); err != nil {
		t.Fatal(err)
	}
	rec.Reset()
	return &Env{Service: svc, Events: rec, VaultDir: dir}
}
