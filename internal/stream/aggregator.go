package stream

import (
	"log/slog"
	"strings"
)

// Result is the aggregated outcome of one model invocation.
type Result struct {
	Content         string
	Reasoning       string
	ContentEvents   int
	ReasoningEvents int
}

// Aggregator consumes one invocation's classified chunks and emits ordered
// delta events plus a single terminal final event. Handle is called once per
// chunk from a single goroutine; Finalize runs exactly once afterwards.
type Aggregator struct {
	sink Sink

	content   strings.Builder
	reasoning strings.Builder

	contentEvents   int
	reasoningEvents int

	seenToolIDs map[string]bool

	finalized bool
	result    Result
}

// NewAggregator creates an aggregator writing to sink. The aggregator never
// closes the sink; the turn owner does that after the final event.
func NewAggregator(sink Sink) *Aggregator {
	return &Aggregator{
		sink:        sink,
		seenToolIDs: make(map[string]bool),
	}
}

// Handle processes one chunk. Delta events go out in the exact order their
// chunks arrive, each carrying only the increment.
func (a *Aggregator) Handle(c Chunk) {
	switch c.Kind {
	case KindTextDelta:
		a.appendText(c.Text)

	case KindReasoningDelta:
		a.appendReasoning(c.Text)

	case KindFullText:
		// Whole-message recap. Only useful when nothing streamed; otherwise
		// it duplicates deltas already emitted.
		if a.contentEvents == 0 && c.Text != "" {
			a.appendText(c.Text)
		}

	case KindFullReasoning:
		if a.reasoningEvents == 0 && c.Text != "" {
			a.appendReasoning(c.Text)
		}

	case KindToolResult:
		if a.seenToolIDs[c.ToolID] {
			slog.Debug("duplicate tool result dropped", "tool_id", c.ToolID)
			return
		}
		a.seenToolIDs[c.ToolID] = true
		// Tool-visible events are emitted by the capability layer; the
		// aggregator only tracks ids for dedup.

	default:
		slog.Debug("unrecognized chunk ignored", "kind", c.Kind.String())
	}
}

func (a *Aggregator) appendText(delta string) {
	a.content.WriteString(delta)
	a.contentEvents++
	a.sink.Emit(EventAssistantDelta, map[string]any{"delta": delta})
}

func (a *Aggregator) appendReasoning(delta string) {
	a.reasoning.WriteString(delta)
	a.reasoningEvents++
	a.sink.Emit(EventReasoningDelta, map[string]any{"delta": delta})
}

// Finalize emits the terminal final event and returns the aggregate. When no
// text was streamed but reasoning was, reasoning is promoted into content so
// the caller never receives an empty answer alongside a non-empty turn.
func (a *Aggregator) Finalize() Result {
	if a.finalized {
		slog.Warn("finalize called twice on one invocation")
		return a.result
	}
	a.finalized = true

	content := a.content.String()
	reasoning := a.reasoning.String()
	if a.contentEvents == 0 && reasoning != "" {
		content = reasoning
		reasoning = ""
	}

	var reasoningField any
	if reasoning != "" {
		reasoningField = reasoning
	}
	a.sink.Emit(EventAssistantFinal, map[string]any{
		"content":   content,
		"reasoning": reasoningField,
	})

	a.result = Result{
		Content:         content,
		Reasoning:       reasoning,
		ContentEvents:   a.contentEvents,
		ReasoningEvents: a.reasoningEvents,
	}
	return a.result
}
