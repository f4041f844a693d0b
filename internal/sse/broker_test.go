package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	assert.Equal(t, 0, b.ClientCount())

	ch := b.Subscribe()
	assert.Equal(t, 1, b.ClientCount())

	b.Unsubscribe(ch)
	assert.Equal(t, 0, b.ClientCount())
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeMasteryUpdated, Data: map[string]any{"skill_id": "ratios", "p_mastery": 0.5}})

	select {
	case msg := <-ch:
		s := string(msg)
		assert.True(t, strings.HasPrefix(s, "id: "), s)
		assert.Contains(t, s, "event: mastery.updated\n")
		assert.Contains(t, s, `"skill_id":"ratios"`)
		assert.True(t, strings.HasSuffix(s, "\n\n"))
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSubscribeUser_ScopesLearnerEvents(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	all := b.Subscribe()
	defer b.Unsubscribe(all)
	u1 := b.SubscribeUser("u1")
	defer b.Unsubscribe(u1)

	b.Publish(Event{Type: TypeMasteryUpdated, UserID: "u2", Data: map[string]any{"user_id": "u2"}})
	b.Publish(Event{Type: TypeMasteryUpdated, UserID: "u1", Data: map[string]any{"user_id": "u1"}})
	b.PublishSync(map[string]int{"edges_created": 1})

	require.Eventually(t, func() bool { return len(all) == 4 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(u1) == 3 }, time.Second, 10*time.Millisecond)

	got := strings.Join(drain(u1), "")
	assert.Contains(t, got, `"user_id":"u1"`)
	assert.NotContains(t, got, `"user_id":"u2"`)
	assert.Contains(t, got, "event: "+TypeVaultSynced)
}

func TestPublishSync_GraphThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishSync(map[string]int{"edges_created": 3})
	b.PublishSync(map[string]int{"edges_created": 1})

	time.Sleep(50 * time.Millisecond)
	var graph, synced int
	for _, msg := range drain(ch) {
		switch {
		case strings.Contains(msg, "event: "+TypeGraphUpdated):
			graph++
		case strings.Contains(msg, "event: "+TypeVaultSynced):
			synced++
		}
	}
	assert.Equal(t, 2, synced)
	assert.Equal(t, 1, graph, "graph.updated is throttled")
}

type syncRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *syncRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	b.Publish(Event{Type: TypeSkillStatusChanged, Data: map[string]string{"skill_id": "x", "status": "unlocked"}})
	require.Eventually(t, func() bool {
		return strings.Contains(w.body(), "event: skill.status_changed")
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Client buffer holds 64; the extra publishes must not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	require.Equal(t, 1, b.ClientCount())

	b.Close()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "subscriber channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	assert.Equal(t, 0, b.ClientCount())

	// No-ops after close.
	b.Publish(Event{Type: TypeMasteryUpdated})
	b.PublishSync(nil)
	b.Close()

	closed := b.Subscribe()
	_, ok := <-closed
	assert.False(t, ok)
}
