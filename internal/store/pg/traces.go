package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/skillbase/internal/store"
)

// TracingStore implements store.TracingStore backed by Postgres.
// Spans arrive in batches from the collector's flush loop.
type TracingStore struct {
	db *sql.DB
}

var _ store.TracingStore = (*TracingStore)(nil)

func NewTracingStore(db *sql.DB) *TracingStore {
	return &TracingStore{db: db}
}

func (s *TracingStore) CreateTrace(ctx context.Context, trace *store.TraceData) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traces (id, conversation_id, status, error, input_preview, output_preview, start_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		trace.ID, trace.ConversationID, trace.Status, trace.Error,
		trace.InputPreview, trace.OutputPreview, trace.StartTime)
	return err
}

// UpdateTrace applies a column→value map as one dynamic UPDATE.
func (s *TracingStore) UpdateTrace(ctx context.Context, traceID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	var setClauses []string
	var args []any
	i := 1
	for col, val := range updates {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	args = append(args, traceID)
	q := fmt.Sprintf("UPDATE traces SET %s WHERE id = $%d", strings.Join(setClauses, ", "), i)
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

// BatchCreateSpans inserts all spans in a single transaction.
func (s *TracingStore) BatchCreateSpans(ctx context.Context, spans []store.SpanData) error {
	if len(spans) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO spans (id, trace_id, span_type, name, status, preview, start_time, end_time, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sp := range spans {
		if _, err := stmt.ExecContext(ctx, sp.ID, sp.TraceID, sp.SpanType, sp.Name,
			sp.Status, sp.Preview, sp.StartTime, sp.EndTime, sp.CreatedAt); err != nil {
			return fmt.Errorf("insert span: %w", err)
		}
	}
	return tx.Commit()
}
