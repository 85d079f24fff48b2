package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/skillbase/internal/store"
)

// ConversationStore implements store.ConversationStore backed by Postgres.
// The phase checkpoint is a JSONB column on the conversation row, so the
// checkpoint write after each model invocation is one UPDATE.
type ConversationStore struct {
	db *sql.DB
}

var _ store.ConversationStore = (*ConversationStore)(nil)

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func (s *ConversationStore) CreateConversation(ctx context.Context, title string) (*store.Conversation, error) {
	conv := &store.Conversation{
		ID:        store.GenNewID().String(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		conv.ID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	var conv store.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = $1`, id,
	).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *ConversationStore) ListConversations(ctx context.Context, limit int) ([]store.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations
		  ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []store.Conversation
	for rows.Next() {
		var conv store.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, conv)
	}
	return result, rows.Err()
}

func (s *ConversationStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = store.GenNewID().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, reasoning, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.Reasoning, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = NOW() WHERE id = $1`, msg.ConversationID)
	return err
}

func (s *ConversationStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	// Newest N in chronological order.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, reasoning, created_at FROM (
		   SELECT id, conversation_id, role, content, reasoning, created_at
		     FROM messages WHERE conversation_id = $1
		    ORDER BY created_at DESC LIMIT $2
		 ) recent ORDER BY created_at ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Reasoning, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// LoadCheckpoint returns nil when no checkpoint exists or the payload is
// unreadable. A corrupt checkpoint must never fail the turn.
func (s *ConversationStore) LoadCheckpoint(ctx context.Context, conversationID string) (*store.PhaseCheckpoint, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT checkpoint FROM conversations WHERE id = $1`, conversationID,
	).Scan(&raw)
	if err == sql.ErrNoRows || len(raw) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cp store.PhaseCheckpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		slog.Warn("unreadable phase checkpoint, ignoring", "conversation_id", conversationID, "error", err)
		return nil, nil
	}
	return &cp, nil
}

func (s *ConversationStore) SaveCheckpoint(ctx context.Context, conversationID string, cp *store.PhaseCheckpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET checkpoint = $1, updated_at = NOW() WHERE id = $2`,
		raw, conversationID)
	return err
}
