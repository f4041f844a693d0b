package tutor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tutorcore/internal/apperr"
	"github.com/starford/tutorcore/internal/models"
	"github.com/starford/tutorcore/internal/sse"
	"github.com/starford/tutorcore/internal/tutor"
	"github.com/starford/tutorcore/internal/tutor/tutortest"
)

func attempt(user, skill string, correct bool) models.PracticeEvent {
	return models.PracticeEvent{UserID: user, SkillID: skill, Source: models.SourceAttempt, Correct: correct}
}

func TestRecordPracticeAppliesBKT(t *testing.T) {
	env := tutortest.New(t)
	ctx := context.Background()

	res, err := env.Service.RecordPractice(ctx, attempt("u1", "preload", true))
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	require.NotNil(t, res.Mastery)
	assert.InDelta(t, 0.45735, res.Mastery.PMasteryLatent, 1e-4)
	assert.NotEmpty(t, res.Event.EventUID)
	assert.Empty(t, res.StatusChanges)
	assert.Equal(t, []string{sse.TypeMasteryUpdated}, env.Events.Types())
}

func TestRecordPracticeHintDoesNotMoveMastery(t *testing.T) {
	env := tutortest.New(t)
	ctx := context.Background()

	res, err := env.Service.RecordPractice(ctx, models.PracticeEvent{
		UserID: "u1", SkillID: "preload", Source: models.SourceHint, Correct: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.False(t, res.Event.Correct)
	assert.Nil(t, res.Mastery)
	assert.Empty(t, env.Events.Types())

	view, err := env.Service.GetMastery(ctx, "u1", "preload")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, view.PMasteryLatent, 1e-9)
}

func TestRecordPracticeDuplicateUID(t *testing.T) {
	env := tutortest.New(t)
	ctx := context.Background()

	ev := attempt("u1", "preload", true)
	ev.EventUID = "evt-1"
	first, err := env.Service.RecordPractice(ctx, ev)
	require.NoError(t, err)
	require.True(t, first.Inserted)

	second, err := env.Service.RecordPractice(ctx, ev)
	require.NoError(t, err)
	assert.False(t, second.Inserted)
	assert.Nil(t, second.Mastery)
	assert.Equal(t, first.Event.ID, second.Event.ID)

	view, err := env.Service.GetMastery(ctx, "u1", "preload")
	require.NoError(t, err)
	assert.InDelta(t, first.Mastery.PMasteryLatent, view.PMasteryLatent, 1e-9)
}

func TestRecordPracticeInvalidInput(t *testing.T) {
	env := tutortest.New(t)

	_, err := env.Service.RecordPractice(context.Background(), models.PracticeEvent{UserID: "u1", SkillID: "preload", Source: "guess"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	states, err := env.Service.MasteryStates(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestRecordPracticeUnlocksDependent(t *testing.T) {
	env := tutortest.New(t)
	ctx := context.Background()

	st, err := env.Service.ComputeStatus(ctx, "u1", "stroke-volume", 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLocked, st.Status)

	_, err = env.Service.RecordPractice(ctx, attempt("u1", "preload", true))
	require.NoError(t, err)
	res, err := env.Service.RecordPractice(ctx, attempt("u1", "preload", true))
	require.NoError(t, err)

	assert.Equal(t, []tutor.StatusChange{
		{SkillID: "stroke-volume", From: models.StatusLocked, To: models.StatusUnlocked},
	}, res.StatusChanges)
	assert.Contains(t, env.Events.Types(), sse.TypeSkillStatusChanged)

	st, err = env.Service.ComputeStatus(ctx, "u1", "stroke-volume", 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnlocked, st.Status)
}

func TestResolveThreshold(t *testing.T) {
	env := tutortest.New(t)

	got, err := env.Service.ResolveThreshold(0)
	require.NoError(t, err)
	assert.Equal(t, 0.95, got)

	got, err = env.Service.ResolveThreshold(0.98)
	require.NoError(t, err)
	assert.Equal(t, 0.98, got)

	_, err = env.Service.ResolveThreshold(0.5)
	assert.ErrorIs(t, err, apperr.ErrInvalidThreshold)

	_, err = env.Service.Statuses(context.Background(), "u1", 0.5)
	assert.ErrorIs(t, err, apperr.ErrInvalidThreshold)
}

func TestNewRejectsDefaultOutsideThresholds(t *testing.T) {
	env := tutortest.New(t)
	d := env.Service.Deps
	d.Session = tutor.Session{MasteryThresholds: []float64{0.9}, DefaultThreshold: 0.95}

	_, err := tutor.New(d)
	assert.ErrorIs(t, err, apperr.ErrInvalidThreshold)
}

func TestStatusReadsCreateNoMasteryRows(t *testing.T) {
	env := tutortest.New(t)
	ctx := context.Background()

	_, err := env.Service.RecordPractice(ctx, attempt("u1", "preload", true))
	require.NoError(t, err)
	_, err = env.Service.Statuses(ctx, "u1", 0)
	require.NoError(t, err)
	_, err = env.Service.WhyLocked(ctx, "u1", "cardiac-output", 0)
	require.NoError(t, err)

	states, err := env.Service.MasteryStates(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "preload", states[0].SkillID)
}

func TestPracticeEventsAreScopedToLearner(t *testing.T) {
	env := tutortest.New(t)

	_, err := env.Service.RecordPractice(context.Background(), attempt("u7", "preload", true))
	require.NoError(t, err)

	events := env.Events.Events()
	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, "u7", e.UserID, e.Type)
	}
}

func TestTrajectoryIncludesTeachBack(t *testing.T) {
	env := tutortest.New(t)
	ctx := context.Background()

	_, err := env.Service.RecordPractice(ctx, attempt("u1", "preload", true))
	require.NoError(t, err)
	_, err = env.Service.RecordPractice(ctx, models.PracticeEvent{UserID: "u1", SkillID: "preload", Source: models.SourceTeachBack, Correct: true})
	require.NoError(t, err)

	points, err := env.Service.Trajectory(ctx, "u1", "preload")
	require.NoError(t, err)
	require.Len(t, points, 2)

	view, err := env.Service.GetMastery(ctx, "u1", "preload")
	require.NoError(t, err)
	assert.InDelta(t, view.PMasteryLatent, points[1].PMastery, 1e-9)
}

func TestStatusesFollowCurriculumOrder(t *testing.T) {
	env := tutortest.New(t)

	states, err := env.Service.Statuses(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, states, 4)

	got := map[string]models.SkillStatus{}
	for _, s := range states {
		got[s.SkillID] = s.Status
	}
	assert.Equal(t, map[string]models.SkillStatus{
		"preload":        models.StatusUnlocked,
		"heart-rate":     models.StatusUnlocked,
		"stroke-volume":  models.StatusLocked,
		"cardiac-output": models.StatusLocked,
	}, got)
	assert.Equal(t, "cardiac-output", states[3].SkillID)
}

func TestWhyLocked(t *testing.T) {
	env := tutortest.New(t)
	ctx := context.Background()

	rep, err := env.Service.WhyLocked(ctx, "u1", "cardiac-output", 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLocked, rep.Status)
	assert.Len(t, rep.MissingPrereqs, 2)

	_, err = env.Service.WhyLocked(ctx, "u1", "cardiac-output", 0.42)
	assert.ErrorIs(t, err, apperr.ErrInvalidThreshold)
}

func TestSetCurriculumRejectsCycle(t *testing.T) {
	env := tutortest.New(t)

	_, err := env.Service.SetCurriculum(context.Background(), []models.CurriculumNode{
		{SkillID: "a", Prereqs: []string{"b"}},
		{SkillID: "b", Prereqs: []string{"a"}},
	})
	assert.ErrorIs(t, err, apperr.ErrCyclicCurriculum)
	assert.Len(t, env.Service.Curriculum(), 4)
}

func TestLoadCurriculum(t *testing.T) {
	env := tutortest.New(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "curriculum.yaml")
	require.NoError(t, os.WriteFile(path, []byte("skills:\n  - id: a\n    name: A\n  - id: b\n    name: B\n    prereqs: [a]\n"), 0o644))

	require.NoError(t, env.Service.LoadCurriculum(ctx, path))
	assert.Len(t, env.Service.Curriculum(), 2)

	// Reloading from the database restores the persisted copy.
	_, err := env.Service.SetCurriculum(ctx, tutortest.Curriculum())
	require.NoError(t, err)
	require.NoError(t, env.Service.LoadCurriculum(ctx, ""))
	assert.Len(t, env.Service.Curriculum(), 4)
}

func TestSyncPublishes(t *testing.T) {
	env := tutortest.New(t)
	ctx := context.Background()

	stats, err := env.Service.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Unchanged)
	assert.Empty(t, env.Events.Types())

	require.NoError(t, os.WriteFile(filepath.Join(env.VaultDir, "physiology", "Afterload.md"),
		[]byte("Afterload opposes [[Stroke Volume]] ejection.\n"), 0o644))
	stats, err = env.Service.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, stats.Unchanged)
	assert.Equal(t, []string{sse.TypeVaultSynced}, env.Events.Types())

	nodes, _, err := env.Service.Graph(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 5)
	assert.Equal(t, 5, env.Service.Vectors.Count())
}

func TestRetrieve(t *testing.T) {
	env := tutortest.New(t)
	ctx := context.Background()

	res, err := env.Service.Retrieve(ctx, tutor.RetrieveRequest{Query: "How does `Stroke Volume` affect Cardiac Output?"})
	require.NoError(t, err)
	assert.Contains(t, res.SeedEntities, "Stroke Volume")
	assert.Contains(t, res.ContextText, "## Concept Graph Context")

	_, err = env.Service.Retrieve(ctx, tutor.RetrieveRequest{})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestRetrieveUnrelatedQueryIsEmpty(t *testing.T) {
	env := tutortest.New(t)
	ctx := context.Background()
	require.Equal(t, 4, env.Service.Vectors.Count())

	res, err := env.Service.Retrieve(ctx, tutor.RetrieveRequest{Query: "what is the weather in paris today"})
	require.NoError(t, err)
	assert.Empty(t, res.SeedEntities)
	assert.NotNil(t, res.Nodes)
	assert.Empty(t, res.Nodes)
	assert.Empty(t, res.Edges)
	assert.Equal(t, "", res.ContextText)
}

func TestRetrieveVectorHitSeedsGraph(t *testing.T) {
	env := tutortest.New(t)

	res, err := env.Service.Retrieve(context.Background(), tutor.RetrieveRequest{Query: "ventricle ejection per beat"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Nodes)
	assert.Equal(t, "Stroke Volume", res.Nodes[0].Name)
	assert.True(t, res.Nodes[0].IsSeed)
}

func TestMetricsAndTrajectory(t *testing.T) {
	env := tutortest.New(t)
	ctx := context.Background()

	for _, correct := range []bool{true, false, true} {
		_, err := env.Service.RecordPractice(ctx, attempt("u1", "preload", correct))
		require.NoError(t, err)
	}
	_, err := env.Service.RecordPractice(ctx, models.PracticeEvent{UserID: "u1", SkillID: "preload", Source: models.SourceHint})
	require.NoError(t, err)

	m, err := env.Service.Metrics(ctx, "u1", "preload", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Attempts)
	assert.Equal(t, 2, m.Correct)
	assert.Equal(t, 1, m.Hints)

	points, err := env.Service.Trajectory(ctx, "u1", "preload")
	require.NoError(t, err)
	require.Len(t, points, 3)

	view, err := env.Service.GetMastery(ctx, "u1", "preload")
	require.NoError(t, err)
	assert.InDelta(t, view.PMasteryLatent, points[2].PMastery, 1e-9)
}

func TestFlagError(t *testing.T) {
	env := tutortest.New(t)
	ctx := context.Background()

	f, err := env.Service.FlagError(ctx, models.ErrorFlag{UserID: "u1", SkillID: "preload", ErrorType: "conceptual"})
	require.NoError(t, err)
	assert.NotZero(t, f.ID)
	assert.Equal(t, "medium", f.Severity)
}
