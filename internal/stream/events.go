// Package stream reassembles one model invocation's incremental output into
// an ordered, deduplicated event stream. Chunks arrive from a provider, get
// classified into tagged variants, and an aggregator turns them into delta
// and final events on a caller-supplied sink.
package stream

// Event types written to the sink. The transport behind the sink (SSE,
// WebSocket, channel fan-out) is the caller's concern.
const (
	EventAssistantDelta  = "assistant.delta"
	EventReasoningDelta  = "assistant.reasoning.delta"
	EventAssistantFinal  = "assistant.final"
	EventToolStart       = "tool.start"
	EventToolEnd         = "tool.end"
	EventPhaseTools      = "phase.tools"
	EventPhaseChanged    = "phase.changed"
	EventIntentExtracted = "intent.extracted"
	EventSearchResults   = "search.results.found"
	EventError           = "error"
)

// Sink receives turn events. Emit must be safe to call from the turn's
// goroutine only; End signals that no further events will follow. Every turn
// ends with exactly one End call, on success, error, and cancellation alike.
type Sink interface {
	Emit(eventType string, payload map[string]any)
	End()
}
