// Package store defines the persistence interfaces and record types shared by
// the Postgres (managed mode) and SQLite (standalone mode) backends.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Skill is a short knowledge artifact that can be retrieved and injected
// into a conversation. Immutable during a single search.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Category    string   `json:"category"`
	Keywords    []string `json:"keywords"`
	Active      bool     `json:"active"`
}

// SkillStore manages skill discovery and loading.
// In standalone mode, backed by a markdown skill directory.
// In managed mode, backed by Postgres.
type SkillStore interface {
	// ListActive returns all active skills, eligible for search.
	ListActive(ctx context.Context) ([]Skill, error)
	// Get returns a skill by ID regardless of active state.
	Get(ctx context.Context, id string) (*Skill, error)
	// Version is bumped whenever the skill set changes; consumers compare
	// it to cached state to detect staleness.
	Version() int64
	BumpVersion()
}

// Conversation is one chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is a single persisted chat message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"` // "user", "assistant"
	Content        string    `json:"content"`
	Reasoning      string    `json:"reasoning,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CheckpointVersion is the schema version written with every phase
// checkpoint. Readers must treat unknown versions as absent state.
const CheckpointVersion = 1

// PhaseCheckpoint is the persisted per-conversation retrieval state.
// Only the phase controller's transition function mutates it.
type PhaseCheckpoint struct {
	Version  int      `json:"version"`
	Phase    string   `json:"phase"`
	Keywords []string `json:"keywords,omitempty"`
	SkillIDs []string `json:"skillIds,omitempty"`
}

// ConversationStore persists conversations, messages, and the per-conversation
// phase checkpoint. The checkpoint read-modify-write is one atomic step per
// model-invocation boundary; concurrent turns on the same conversation must be
// serialized by the caller.
type ConversationStore interface {
	CreateConversation(ctx context.Context, title string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]Conversation, error)
	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)

	// LoadCheckpoint returns nil (not an error) when no checkpoint exists
	// or the stored payload is unreadable.
	LoadCheckpoint(ctx context.Context, conversationID string) (*PhaseCheckpoint, error)
	SaveCheckpoint(ctx context.Context, conversationID string, cp *PhaseCheckpoint) error
}

// TraceData is one turn-level trace record.
type TraceData struct {
	ID             uuid.UUID
	ConversationID string
	Status         string // "running", "ok", "error"
	Error          string
	InputPreview   string
	OutputPreview  string
	StartTime      time.Time
	EndTime        *time.Time
}

// SpanData is one operation inside a trace (phase transition, tool run,
// model invocation).
type SpanData struct {
	ID        uuid.UUID
	TraceID   uuid.UUID
	SpanType  string // "phase", "tool", "llm"
	Name      string
	Status    string
	Preview   string
	StartTime time.Time
	EndTime   time.Time
	CreatedAt time.Time
}

// TracingStore receives traces and batched spans from the collector.
type TracingStore interface {
	CreateTrace(ctx context.Context, trace *TraceData) error
	UpdateTrace(ctx context.Context, traceID uuid.UUID, updates map[string]any) error
	BatchCreateSpans(ctx context.Context, spans []SpanData) error
}

// GenNewID returns a new random UUID for store records.
func GenNewID() uuid.UUID {
	return uuid.New()
}
