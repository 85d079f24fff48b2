package store

import "context"

type contextKey string

const (
	// ConversationIDKey is the context key for the conversation thread ID.
	ConversationIDKey contextKey = "skillbase_conversation_id"
	// TurnIDKey is the context key for the current turn ID.
	TurnIDKey contextKey = "skillbase_turn_id"
)

// WithConversationID returns a new context with the given conversation ID.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ConversationIDKey, id)
}

// ConversationIDFromContext extracts the conversation ID. Returns "" if not set.
func ConversationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ConversationIDKey).(string); ok {
		return v
	}
	return ""
}

// WithTurnID returns a new context with the given turn ID.
func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TurnIDKey, id)
}

// TurnIDFromContext extracts the turn ID. Returns "" if not set.
func TurnIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(TurnIDKey).(string); ok {
		return v
	}
	return ""
}
