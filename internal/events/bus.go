package events

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Event is one domain occurrence fanned out to subscribers.
type Event struct {
	Topic      string
	EntityID   string
	Payload    any
	OccurredAt time.Time
}

// Handler reacts to an emitted event. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(ctx context.Context, ev Event)

// Bus is an in-process publish/subscribe fan-out keyed by topic. Subscribing
// after publishing misses earlier events; there is no replay.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Handler
	now  func() time.Time
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]Handler), now: time.Now}
}

// Subscribe registers a handler for the topic. Nil handlers are ignored.
func (b *Bus) Subscribe(topic string, h Handler) {
	topic = strings.TrimSpace(topic)
	if b == nil || topic == "" || h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

// Publish dispatches the event to every handler subscribed to its topic.
func (b *Bus) Publish(ctx context.Context, topic, entityID string, payload any) {
	if b == nil {
		return
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subs[topic]...)
	b.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}
	ev := Event{Topic: topic, EntityID: entityID, Payload: payload, OccurredAt: b.now()}
	for _, h := range handlers {
		h(ctx, ev)
	}
}
