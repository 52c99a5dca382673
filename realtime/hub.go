// Package realtime fans incentive events out to live subscribers such as
// WebSocket sessions.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"incentivekit/core"
	"incentivekit/engine"
)

// AllUsers subscribes to every user's events.
const AllUsers core.UserID = 0

type subscriber struct {
	user core.UserID
	ch   chan core.Event
}

// Hub broadcasts incentive events to channel subscribers, optionally
// filtered to a single user. Slow receivers drop events rather than block
// the pipeline.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

func NewHub() *Hub { return &Hub{subs: map[int]subscriber{}} }

// Subscribe registers a channel receiving events for the given user, or for
// everyone when user is AllUsers.
func (h *Hub) Subscribe(user core.UserID, buffer int) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan core.Event, buffer)
	h.subs[id] = subscriber{user: user, ch: ch}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Broadcast delivers the event to every matching subscriber without blocking.
// Sends stay under the read lock: Unsubscribe closes channels under the write
// lock, so a send can never race a close.
func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.user != AllUsers && sub.user != ev.UserID {
			continue
		}
		select {
		case sub.ch <- ev:
		default: /* drop if full */
		}
	}
}

// Attach subscribes the hub to every incentive event type on the bus and
// returns a detach func.
func (h *Hub) Attach(bus *engine.EventBus) func() {
	unsubs := []func(){
		bus.Subscribe(core.EventRewardGranted, h.Broadcast),
		bus.Subscribe(core.EventLevelUp, h.Broadcast),
		bus.Subscribe(core.EventBadgeEarned, h.Broadcast),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
