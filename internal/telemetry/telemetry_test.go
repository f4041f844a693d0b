package telemetry

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tutorcore/internal/apperr"
	"github.com/starford/tutorcore/internal/models"
	"github.com/starford/tutorcore/internal/testutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*sql.DB, *Log) {
	t.Helper()
	db := testutil.TestDB(t)
	require.NoError(t, EnsureSchema(context.Background(), db))
	require.NoError(t, EnsureSchema(context.Background(), db))
	return db, New(WithClock(func() time.Time { return t0 }))
}

func event(skill string, src models.PracticeSource, correct bool, at time.Time) models.PracticeEvent {
	return models.PracticeEvent{UserID: "u1", SkillID: skill, Source: src, Correct: correct, Timestamp: at}
}

func TestLogEvent_Defaults(t *testing.T) {
	db, l := setup(t)
	ms := int64(1200)

	ev, inserted, err := l.LogEvent(context.Background(), db, models.PracticeEvent{
		UserID: " u1 ", SkillID: "ohms-law", Source: models.SourceAttempt, Correct: true, LatencyMS: &ms,
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, ev.ID)
	assert.NotEmpty(t, ev.EventUID)
	assert.Equal(t, "u1", ev.UserID)
	assert.True(t, ev.Timestamp.Equal(t0))

	got, err := l.Events(context.Background(), db, "u1", "ohms-law", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ev.EventUID, got[0].EventUID)
	require.NotNil(t, got[0].LatencyMS)
	assert.EqualValues(t, 1200, *got[0].LatencyMS)
	assert.True(t, got[0].Correct)
}

func TestLogEvent_DuplicateUID(t *testing.T) {
	db, l := setup(t)
	ctx := context.Background()
	in := event("s", models.SourceAttempt, true, t0)
	in.EventUID = "client-1"

	first, inserted, err := l.LogEvent(ctx, db, in)
	require.NoError(t, err)
	require.True(t, inserted)

	in.Correct = false
	again, inserted, err := l.LogEvent(ctx, db, in)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.Correct, "original row is returned unchanged")

	got, err := l.Events(ctx, db, "u1", "", time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLogEvent_HintNeverCorrect(t *testing.T) {
	db, l := setup(t)
	ev, _, err := l.LogEvent(context.Background(), db, event("s", models.SourceHint, true, t0))
	require.NoError(t, err)
	assert.False(t, ev.Correct)
}

func TestLogEvent_Invalid(t *testing.T) {
	db, l := setup(t)
	ctx := context.Background()

	_, _, err := l.LogEvent(ctx, db, models.PracticeEvent{SkillID: "s", Source: models.SourceAttempt})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, _, err = l.LogEvent(ctx, db, models.PracticeEvent{UserID: "u", SkillID: "s", Source: "guess"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestEvents_FilterAndOrder(t *testing.T) {
	db, l := setup(t)
	ctx := context.Background()
	for _, ev := range []models.PracticeEvent{
		event("a", models.SourceAttempt, true, t0.Add(2*time.Minute)),
		event("a", models.SourceHint, false, t0.Add(1*time.Minute)),
		event("a", models.SourceEvaluateWork, false, t0.Add(3*time.Minute)),
		event("b", models.SourceAttempt, true, t0),
		event("a", models.SourceAttempt, false, t0.Add(-time.Hour)),
	} {
		_, _, err := l.LogEvent(ctx, db, ev)
		require.NoError(t, err)
	}

	got, err := l.Events(ctx, db, "u1", "a", t0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, models.SourceHint, got[0].Source)
	assert.Equal(t, models.SourceAttempt, got[1].Source)
	assert.Equal(t, models.SourceEvaluateWork, got[2].Source)

	graded, err := l.Events(ctx, db, "u1", "a", time.Time{}, models.SourceAttempt, models.SourceEvaluateWork)
	require.NoError(t, err)
	assert.Len(t, graded, 3)

	all, err := l.Events(ctx, db, "u1", "", time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestErrorFlags(t *testing.T) {
	db, l := setup(t)
	ctx := context.Background()
	edge := int64(7)

	for i := 0; i < 4; i++ {
		f := models.ErrorFlag{
			UserID: "u1", SkillID: "s", ErrorType: "sign_error",
			EvidenceRef: "attempt-" + string(rune('a'+i)), CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		}
		if i == 3 {
			f.EdgeID = &edge
			f.Severity = "high"
		}
		_, err := l.LogErrorFlag(ctx, db, f)
		require.NoError(t, err)
	}

	got, err := l.RecentErrorFlags(ctx, db, "u1", "s", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "attempt-d", got[0].EvidenceRef)
	assert.Equal(t, "high", got[0].Severity)
	require.NotNil(t, got[0].EdgeID)
	assert.EqualValues(t, 7, *got[0].EdgeID)
	assert.Equal(t, "attempt-c", got[1].EvidenceRef)
	assert.Equal(t, DefaultSeverity, got[1].Severity)
	assert.Nil(t, got[1].EdgeID)

	none, err := l.RecentErrorFlags(ctx, db, "u1", "other", 5)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = l.LogErrorFlag(ctx, db, models.ErrorFlag{UserID: "u1", SkillID: "s"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestMetrics(t *testing.T) {
	db, l := setup(t)
	ctx := context.Background()
	for _, ev := range []models.PracticeEvent{
		event("a", models.SourceAttempt, true, t0.Add(-time.Hour)),
		event("a", models.SourceAttempt, false, t0.Add(-2*time.Hour)),
		event("a", models.SourceTeachBack, true, t0.Add(-3*time.Hour)),
		event("a", models.SourceHint, false, t0.Add(-4*time.Hour)),
		event("b", models.SourceEvaluateWork, true, t0.Add(-5*time.Hour)),
		event("a", models.SourceAttempt, true, t0.Add(-30*24*time.Hour)),
	} {
		_, _, err := l.LogEvent(ctx, db, ev)
		require.NoError(t, err)
	}

	m, err := l.Metrics(ctx, db, "u1", "a", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Attempts)
	assert.Equal(t, 2, m.Correct)
	assert.InDelta(t, 2.0/3.0, m.Accuracy, 1e-9)
	assert.Equal(t, 1, m.Hints)
	assert.InDelta(t, 0.25, m.HintRatio, 1e-9)

	all, err := l.Metrics(ctx, db, "u1", "", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 4, all.Attempts)

	empty, err := l.Metrics(ctx, db, "nobody", "", time.Hour)
	require.NoError(t, err)
	assert.Zero(t, empty.Accuracy)
	assert.Zero(t, empty.HintRatio)
}
