package session

import (
	"context"
	"sync"
)

// Hub keeps recent events per session in memory and fans them out to live
// subscribers. Slow subscribers drop events rather than block the run.
type Hub struct {
	mu       sync.Mutex
	limit    int
	events   map[string][]Event
	subs     map[string]map[chan Event]struct{}
	capacity int
}

// NewHub keeps at most limit events per session; limit <= 0 keeps all.
func NewHub(limit int) *Hub {
	return &Hub{
		limit:    limit,
		events:   make(map[string][]Event),
		subs:     make(map[string]map[chan Event]struct{}),
		capacity: 64,
	}
}

func (h *Hub) Write(_ context.Context, e Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	evs := append(h.events[e.SessionID], e)
	if h.limit > 0 && len(evs) > h.limit {
		evs = evs[len(evs)-h.limit:]
	}
	h.events[e.SessionID] = evs
	for ch := range h.subs[e.SessionID] {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

// Events returns the retained events of sessionID with Seq > after.
func (h *Hub) Events(sessionID string, after int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, e := range h.events[sessionID] {
		if e.Seq > after {
			out = append(out, e)
		}
	}
	return out
}

// Subscribe streams future events of sessionID until cancel is called.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, h.capacity)
	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[sessionID], ch)
			if len(h.subs[sessionID]) == 0 {
				delete(h.subs, sessionID)
			}
			close(ch)
		})
	}
}
