// Package sse streams learner progress to dashboards as Server-Sent Events.
// A stream may be scoped to one learner with ?user_id=.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeMasteryUpdated     = "mastery.updated"
	TypeSkillStatusChanged = "skill.status_changed"
	TypeVaultSynced        = "vault.synced"
	TypeGraphUpdated       = "graph.updated"
)

// Event represents an SSE event to broadcast. Events with a UserID reach
// unscoped streams and streams scoped to that learner; events without one
// reach every stream.
type Event struct {
	Type   string `json:"type"`
	UserID string `json:"-"`
	Data   any    `json:"data"`
}

type subscription struct {
	ch     chan []byte
	userID string
}

// Broker fans progress events out to dashboard streams. The run goroutine
// owns the stream set and the graph.updated throttle.
type Broker struct {
	graphMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	syncCh        chan any
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits graph.updated at most once per
// graphThrottle.
func NewBroker(graphThrottle time.Duration) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}

	b := &Broker{
		graphMin:      graphThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		syncCh:        make(chan any, 64),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	var lastGraph time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", uuid.NewString(), event.Type, payload))

		for ch, userID := range clients {
			if userID != "" && event.UserID != "" && userID != event.UserID {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than block the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.userID

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case stats := <-b.syncCh:
			broadcast(Event{Type: TypeVaultSynced, Data: stats})

			now := time.Now()
			if now.Sub(lastGraph) >= b.graphMin {
				lastGraph = now
				broadcast(Event{Type: TypeGraphUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the event loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds an unscoped stream and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeUser("")
}

// SubscribeUser adds a stream that only receives learner events for userID.
// An empty userID receives everything.
func (b *Broker) SubscribeUser(userID string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, userID: userID}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishSync announces a finished vault sync and a throttled graph.updated.
func (b *Broker) PublishSync(stats any) {
	if b.closed.Load() {
		return
	}
	select {
	case b.syncCh <- stats:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events[?user_id=]).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.SubscribeUser(r.URL.Query().Get("user_id"))
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
