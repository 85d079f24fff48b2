// Package bus fans turn events out to subscribers. The turn producer is
// never blocked: each subscriber gets its own bounded queue and a slow
// consumer loses events instead of stalling the model invocation.
package bus

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultQueueSize is the per-subscriber queue depth.
const DefaultQueueSize = 256

// Event is one turn event as it crosses the bus.
type Event struct {
	Type           string         `json:"type"`
	Payload        map[string]any `json:"payload,omitempty"`
	ConversationID string         `json:"conversationId"`
	TurnID         string         `json:"turnId"`
	Time           time.Time      `json:"time"`
	Terminal       bool           `json:"terminal,omitempty"` // end-of-turn marker
}

// Bus routes events by turn id. One turn has one producer and any number of
// independent subscribers.
type Bus struct {
	mu        sync.RWMutex
	turns     map[string]map[string]chan Event // turnID → subID → queue
	ended     map[string]bool
	queueSize int
}

// New creates a bus. queueSize <= 0 uses DefaultQueueSize.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		turns:     make(map[string]map[string]chan Event),
		ended:     make(map[string]bool),
		queueSize: queueSize,
	}
}

// Subscribe registers a subscriber for a turn and returns its queue. The
// channel is closed when the turn ends or the subscriber unsubscribes.
// Subscribing to an already-ended turn yields an immediately closed channel.
func (b *Bus) Subscribe(turnID, subID string) <-chan Event {
	ch := make(chan Event, b.queueSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ended[turnID] {
		close(ch)
		return ch
	}
	subs, ok := b.turns[turnID]
	if !ok {
		subs = make(map[string]chan Event)
		b.turns[turnID] = subs
	}
	subs[subID] = ch
	return ch
}

// Unsubscribe removes one subscriber and closes its queue. Remaining
// subscribers and the producer are unaffected.
func (b *Bus) Unsubscribe(turnID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.turns[turnID]
	if !ok {
		return
	}
	if ch, ok := subs[subID]; ok {
		delete(subs, subID)
		close(ch)
	}
	if len(subs) == 0 {
		delete(b.turns, turnID)
	}
}

// Publish delivers an event to every subscriber of its turn. Non-blocking:
// a full queue drops the event for that subscriber only.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, ch := range b.turns[ev.TurnID] {
		select {
		case ch <- ev:
		default:
			slog.Warn("event dropped for slow subscriber",
				"turn_id", ev.TurnID,
				"subscriber", subID,
				"type", ev.Type,
			)
		}
	}
}

// EndTurn closes all subscriber queues for a turn and marks it ended. Late
// subscribers observe the turn as already closed.
func (b *Bus) EndTurn(turnID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ended[turnID] {
		return
	}
	b.ended[turnID] = true
	for _, ch := range b.turns[turnID] {
		close(ch)
	}
	delete(b.turns, turnID)
}

// Forget drops the ended marker for a turn once no caller can subscribe to
// it anymore. Prevents unbounded growth of the ended set.
func (b *Bus) Forget(turnID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.ended, turnID)
}
