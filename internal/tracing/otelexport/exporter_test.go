package otelexport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/skillbase/internal/store"
)

func TestNew_EmptyEndpoint(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Error("expected error for empty endpoint")
	}
}

func TestExporter_ExportSpans_NilExporter(t *testing.T) {
	// Should not panic
	var exp *Exporter
	exp.ExportSpans(context.Background(), []store.SpanData{{
		ID:        uuid.New(),
		TraceID:   uuid.New(),
		SpanType:  "llm",
		Name:      "test",
		StartTime: time.Now(),
		EndTime:   time.Now(),
	}})
}

func TestExporter_Shutdown_NilExporter(t *testing.T) {
	var exp *Exporter
	if err := exp.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
