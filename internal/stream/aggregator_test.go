package stream

import (
	"testing"
)

// recordSink captures emitted events for assertions.
type recordSink struct {
	events []recordedEvent
	ended  bool
}

type recordedEvent struct {
	Type    string
	Payload map[string]any
}

func (s *recordSink) Emit(eventType string, payload map[string]any) {
	s.events = append(s.events, recordedEvent{Type: eventType, Payload: payload})
}

func (s *recordSink) End() { s.ended = true }

func (s *recordSink) ofType(t string) []recordedEvent {
	var out []recordedEvent
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestAggregator_DeltasThenRedundantRecap(t *testing.T) {
	sink := &recordSink{}
	agg := NewAggregator(sink)

	agg.Handle(Chunk{Kind: KindTextDelta, Text: "A"})
	agg.Handle(Chunk{Kind: KindTextDelta, Text: "B"})
	agg.Handle(Chunk{Kind: KindFullText, Text: "AB"})

	res := agg.Finalize()
	if res.ContentEvents != 2 {
		t.Errorf("expected 2 content events, got %d", res.ContentEvents)
	}
	if res.Content != "AB" {
		t.Errorf("expected content AB, got %q", res.Content)
	}
	if res.Reasoning != "" {
		t.Errorf("expected empty reasoning, got %q", res.Reasoning)
	}

	deltas := sink.ofType(EventAssistantDelta)
	if len(deltas) != 2 {
		t.Fatalf("expected 2 delta events, got %d", len(deltas))
	}
	if deltas[0].Payload["delta"] != "A" || deltas[1].Payload["delta"] != "B" {
		t.Errorf("delta events out of order: %v", deltas)
	}
}

func TestAggregator_FullMessageFallback(t *testing.T) {
	sink := &recordSink{}
	agg := NewAggregator(sink)

	agg.Handle(Chunk{Kind: KindFullText, Text: "hello"})

	res := agg.Finalize()
	if res.Content != "hello" {
		t.Errorf("expected content hello, got %q", res.Content)
	}
	if res.ContentEvents != 1 {
		t.Errorf("expected 1 content event, got %d", res.ContentEvents)
	}
	if len(sink.ofType(EventAssistantDelta)) != 1 {
		t.Error("fallback should emit exactly one delta event")
	}
}

func TestAggregator_ReasoningPromotion(t *testing.T) {
	sink := &recordSink{}
	agg := NewAggregator(sink)

	agg.Handle(Chunk{Kind: KindReasoningDelta, Text: "thinking"})

	res := agg.Finalize()
	if res.Content != "thinking" {
		t.Errorf("expected promoted content, got %q", res.Content)
	}
	if res.Reasoning != "" {
		t.Errorf("expected reasoning cleared after promotion, got %q", res.Reasoning)
	}

	finals := sink.ofType(EventAssistantFinal)
	if len(finals) != 1 {
		t.Fatalf("expected 1 final event, got %d", len(finals))
	}
	if finals[0].Payload["content"] != "thinking" {
		t.Errorf("final event content = %v", finals[0].Payload["content"])
	}
	if finals[0].Payload["reasoning"] != nil {
		t.Errorf("final event reasoning should be null, got %v", finals[0].Payload["reasoning"])
	}
}

func TestAggregator_NoPromotionWhenContentStreamed(t *testing.T) {
	sink := &recordSink{}
	agg := NewAggregator(sink)

	agg.Handle(Chunk{Kind: KindReasoningDelta, Text: "because"})
	agg.Handle(Chunk{Kind: KindTextDelta, Text: "answer"})

	res := agg.Finalize()
	if res.Content != "answer" {
		t.Errorf("expected content answer, got %q", res.Content)
	}
	if res.Reasoning != "because" {
		t.Errorf("expected reasoning kept, got %q", res.Reasoning)
	}
}

func TestAggregator_ToolResultDedup(t *testing.T) {
	sink := &recordSink{}
	agg := NewAggregator(sink)

	agg.Handle(Chunk{Kind: KindToolResult, ToolID: "call_1", Text: "result"})
	agg.Handle(Chunk{Kind: KindToolResult, ToolID: "call_1", Text: "result"})
	agg.Handle(Chunk{Kind: KindToolResult, ToolID: "call_2", Text: "other"})

	if len(agg.seenToolIDs) != 2 {
		t.Errorf("expected 2 distinct tool ids, got %d", len(agg.seenToolIDs))
	}
	// Tool results never become events of their own.
	if len(sink.events) != 0 {
		t.Errorf("tool results should not emit events, got %d", len(sink.events))
	}
}

func TestAggregator_UnknownChunkIgnored(t *testing.T) {
	sink := &recordSink{}
	agg := NewAggregator(sink)

	agg.Handle(Chunk{Kind: KindUnknown, Text: "???"})
	agg.Handle(Chunk{Kind: KindTextDelta, Text: "ok"})

	res := agg.Finalize()
	if res.Content != "ok" {
		t.Errorf("unknown chunk should not affect state, content = %q", res.Content)
	}
}

func TestAggregator_FinalizeTwiceReturnsSameResult(t *testing.T) {
	sink := &recordSink{}
	agg := NewAggregator(sink)

	agg.Handle(Chunk{Kind: KindTextDelta, Text: "x"})
	first := agg.Finalize()
	second := agg.Finalize()

	if first != second {
		t.Errorf("repeated finalize diverged: %+v vs %+v", first, second)
	}
	if len(sink.ofType(EventAssistantFinal)) != 1 {
		t.Error("final event must be emitted exactly once")
	}
}
