// Package sqlite implements the standalone-mode conversation and tracing
// stores on a single local database file. Skills come from the markdown
// loader in standalone mode, so there is no skill table here.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/skillbase/internal/store"
)

// Store implements store.ConversationStore and store.TracingStore on SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ store.ConversationStore = (*Store)(nil)
	_ store.TracingStore      = (*Store)(nil)
)

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent turns.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("sqlite store opened", "path", path)
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			checkpoint TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			reasoning TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS traces (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'running',
			error TEXT NOT NULL DEFAULT '',
			input_preview TEXT NOT NULL DEFAULT '',
			output_preview TEXT NOT NULL DEFAULT '',
			start_time INTEGER NOT NULL,
			end_time INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS spans (
			id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL,
			span_type TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			preview TEXT NOT NULL DEFAULT '',
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_trace ON spans(trace_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 40)], err)
		}
	}
	return nil
}

// --- ConversationStore ---

func (s *Store) CreateConversation(ctx context.Context, title string) (*store.Conversation, error) {
	now := time.Now().UTC()
	conv := &store.Conversation{
		ID:        store.GenNewID().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.Title, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	var conv store.Conversation
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.Title, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	conv.CreatedAt = time.UnixMilli(created).UTC()
	conv.UpdatedAt = time.UnixMilli(updated).UTC()
	return &conv, nil
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]store.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations
		  ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []store.Conversation
	for rows.Next() {
		var conv store.Conversation
		var created, updated int64
		if err := rows.Scan(&conv.ID, &conv.Title, &created, &updated); err != nil {
			return nil, err
		}
		conv.CreatedAt = time.UnixMilli(created).UTC()
		conv.UpdatedAt = time.UnixMilli(updated).UTC()
		result = append(result, conv)
	}
	return result, rows.Err()
}

func (s *Store) AppendMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = store.GenNewID().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, reasoning, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.Reasoning, msg.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().UnixMilli(), msg.ConversationID)
	return err
}

func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, reasoning, created_at FROM (
		   SELECT id, conversation_id, role, content, reasoning, created_at
		     FROM messages WHERE conversation_id = ?
		    ORDER BY created_at DESC LIMIT ?
		 ) ORDER BY created_at ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []store.Message
	for rows.Next() {
		var m store.Message
		var created int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Reasoning, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = time.UnixMilli(created).UTC()
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) LoadCheckpoint(ctx context.Context, conversationID string) (*store.PhaseCheckpoint, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT checkpoint FROM conversations WHERE id = ?`, conversationID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	var cp store.PhaseCheckpoint
	if err := json.Unmarshal([]byte(raw.String), &cp); err != nil {
		slog.Warn("unreadable phase checkpoint, ignoring", "conversation_id", conversationID, "error", err)
		return nil, nil
	}
	return &cp, nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, conversationID string, cp *store.PhaseCheckpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET checkpoint = ?, updated_at = ? WHERE id = ?`,
		string(raw), time.Now().UTC().UnixMilli(), conversationID)
	return err
}

// --- TracingStore ---

func (s *Store) CreateTrace(ctx context.Context, trace *store.TraceData) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traces (id, conversation_id, status, error, input_preview, output_preview, start_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		trace.ID.String(), trace.ConversationID, trace.Status, trace.Error,
		trace.InputPreview, trace.OutputPreview, trace.StartTime.UnixMilli())
	return err
}

func (s *Store) UpdateTrace(ctx context.Context, traceID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	var setClauses []string
	var args []any
	for col, val := range updates {
		if t, ok := val.(time.Time); ok {
			val = t.UnixMilli()
		}
		setClauses = append(setClauses, col+" = ?")
		args = append(args, val)
	}
	args = append(args, traceID.String())
	q := "UPDATE traces SET " + strings.Join(setClauses, ", ") + " WHERE id = ?"
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

func (s *Store) BatchCreateSpans(ctx context.Context, spans []store.SpanData) error {
	if len(spans) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, sp := range spans {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO spans (id, trace_id, span_type, name, status, preview, start_time, end_time, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sp.ID.String(), sp.TraceID.String(), sp.SpanType, sp.Name, sp.Status,
			sp.Preview, sp.StartTime.UnixMilli(), sp.EndTime.UnixMilli(), sp.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert span: %w", err)
		}
	}
	return tx.Commit()
}
