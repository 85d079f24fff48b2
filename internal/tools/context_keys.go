package tools

import "context"

// Per-call values are injected into the context rather than set on tool
// structs, so tool instances stay immutable and safe for concurrent turns.

type ctxKey int

const (
	ctxKeyConversationID ctxKey = iota
	ctxKeyTurnID
)

// WithToolConversationID attaches the owning conversation id to a tool call.
func WithToolConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyConversationID, id)
}

// ToolConversationID returns the conversation id for the current tool call.
func ToolConversationID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyConversationID).(string)
	return v
}

// WithToolTurnID attaches the turn id to a tool call.
func WithToolTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyTurnID, id)
}

// ToolTurnID returns the turn id for the current tool call.
func ToolTurnID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyTurnID).(string)
	return v
}
