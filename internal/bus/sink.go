package bus

import (
	"sync/atomic"
	"time"
)

// TurnSink adapts the bus to the event sink consumed by the aggregator and
// phase controller. One sink exists per turn; End is idempotent and always
// terminates the turn on the bus, so no subscriber waits forever.
type TurnSink struct {
	bus            *Bus
	conversationID string
	turnID         string
	ended          atomic.Bool
}

// NewTurnSink creates the sink for one turn.
func NewTurnSink(b *Bus, conversationID, turnID string) *TurnSink {
	return &TurnSink{bus: b, conversationID: conversationID, turnID: turnID}
}

// Emit publishes one event. Events after End are discarded.
func (s *TurnSink) Emit(eventType string, payload map[string]any) {
	if s.ended.Load() {
		return
	}
	s.bus.Publish(Event{
		Type:           eventType,
		Payload:        payload,
		ConversationID: s.conversationID,
		TurnID:         s.turnID,
		Time:           time.Now(),
	})
}

// End publishes the terminal marker and closes the turn. Safe to call more
// than once; only the first call has effect.
func (s *TurnSink) End() {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	s.bus.Publish(Event{
		Type:           "turn.end",
		ConversationID: s.conversationID,
		TurnID:         s.turnID,
		Time:           time.Now(),
		Terminal:       true,
	})
	s.bus.EndTurn(s.turnID)
}

// TurnID returns the sink's turn id.
func (s *TurnSink) TurnID() string { return s.turnID }
