package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tutorcore/internal/curriculum"
	"github.com/starford/tutorcore/internal/diagnosis"
	"github.com/starford/tutorcore/internal/models"
	"github.com/starford/tutorcore/internal/retrieval"
	"github.com/starford/tutorcore/internal/tutor"
	"github.com/starford/tutorcore/internal/tutor/tutortest"
)

// testEnv builds a wired service over the cardiac vault and a router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*tutortest.Env, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken, nil)
}

func testEnvWithSSE(t *testing.T, authToken string, sseHandler http.Handler) (*tutortest.Env, http.Handler) {
	t.Helper()
	env := tutortest.New(t)
	return env, NewRouter(env.Service, authToken != "", authToken, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	_, router := testEnv(t, "secret")

	w := do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRetrieve(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/retrieve", RetrieveRequest{Query: "How does `Stroke Volume` relate to Preload?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decode[retrieval.Result](t, w)
	assert.Contains(t, res.SeedEntities, "Stroke Volume")
	assert.Contains(t, res.ContextText, "**Stroke Volume** [SEED]")
	assert.NotEmpty(t, res.Edges)
}

func TestRetrieveValidation(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/retrieve", RetrieveRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/retrieve", RetrieveRequest{Query: "x", Hops: 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/retrieve", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordPracticeAndMastery(t *testing.T) {
	env, router := testEnv(t, "")

	body := PracticeRequest{EventUID: "evt-1", UserID: "u1", SkillID: "preload", Source: "attempt", Correct: true}
	w := do(t, router, http.MethodPost, "/practice", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[tutor.PracticeResult](t, w)
	require.NotNil(t, res.Mastery)
	assert.InDelta(t, 0.45735, res.Mastery.PMasteryLatent, 1e-4)

	// Same event_uid is accepted but not applied again.
	w = do(t, router, http.MethodPost, "/practice", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[tutor.PracticeResult](t, w).Inserted)

	w = do(t, router, http.MethodGet, "/users/u1/mastery/preload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[tutor.MasteryView](t, w)
	assert.InDelta(t, 0.45735, view.PMasteryLatent, 1e-4)

	w = do(t, router, http.MethodGet, "/users/u1/mastery", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[map[string][]tutor.MasteryView](t, w)
	assert.Len(t, list["mastery"], 1)

	assert.NotEmpty(t, env.Events.Types())
}

func TestRecordPracticeInvalidSource(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/practice", PracticeRequest{UserID: "u1", SkillID: "preload", Source: "guess"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFlagError(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/error-flags", ErrorFlagRequest{UserID: "u1", SkillID: "preload", ErrorType: "misconception"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	f := decode[models.ErrorFlag](t, w)
	assert.NotZero(t, f.ID)

	w = do(t, router, http.MethodPost, "/error-flags", ErrorFlagRequest{UserID: "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSkillStatusAndWhyLocked(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/users/u1/skills/stroke-volume/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusLocked, decode[curriculum.SkillState](t, w).Status)

	w = do(t, router, http.MethodGet, "/users/u1/skills/stroke-volume/why-locked?threshold=0.98", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rep := decode[diagnosis.Report](t, w)
	assert.Equal(t, []string{"preload"}, rep.RemediationPath)

	w = do(t, router, http.MethodGet, "/users/u1/skills", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]curriculum.SkillState](t, w)["skills"], 4)
}

func TestThresholdRejected(t *testing.T) {
	_, router := testEnv(t, "")

	for _, target := range []string{
		"/users/u1/skills/preload/status?threshold=0.5",
		"/users/u1/skills/preload/why-locked?threshold=abc",
		"/users/u1/skills?threshold=0.5",
	} {
		w := do(t, router, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestMetricsAndTrajectory(t *testing.T) {
	_, router := testEnv(t, "")

	for _, src := range []string{"attempt", "hint", "attempt"} {
		w := do(t, router, http.MethodPost, "/practice", PracticeRequest{UserID: "u1", SkillID: "preload", Source: src, Correct: true})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, router, http.MethodGet, "/users/u1/skills/preload/metrics?window=1h", nil)
	require.Equal(t, http.StatusOK, w.Code)
	m := decode[map[string]any](t, w)
	assert.EqualValues(t, 2, m["attempts"])
	assert.EqualValues(t, 1, m["hints"])

	w = do(t, router, http.MethodGet, "/users/u1/skills/preload/metrics?window=-1h", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/users/u1/skills/preload/trajectory", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]any](t, w)["points"], 2)
}

func TestCurriculumRoundTrip(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/curriculum", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[CurriculumResponse](t, w).Skills, 4)

	w = do(t, router, http.MethodPut, "/curriculum", CurriculumRequest{Skills: []models.CurriculumNode{
		{SkillID: "b", Name: "B", Prereqs: []string{"a"}},
		{SkillID: "a", Name: "A"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[CurriculumResponse](t, w)
	require.Len(t, got.Skills, 2)
	assert.Equal(t, "a", got.Skills[0].SkillID)
}

func TestCurriculumCycleRejected(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/curriculum", CurriculumRequest{Skills: []models.CurriculumNode{
		{SkillID: "a", Prereqs: []string{"b"}},
		{SkillID: "b", Prereqs: []string{"a"}},
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGraphEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	g := decode[GraphResponse](t, w)
	assert.Len(t, g.Nodes, 4)
	assert.Len(t, g.Edges, 3)
}

func TestVaultSync(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/vault/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["unchanged"])
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/graph", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/graph", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/graph", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// SSE endpoint auth tests.

func blockingSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, "secret", blockingSSE())

	w := do(t, router, http.MethodGet, "/events", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, "tok", blockingSSE())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
}
