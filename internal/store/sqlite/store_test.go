package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/skillbase/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConversationRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "first chat")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Title != "first chat" {
		t.Errorf("Title = %q", got.Title)
	}

	if _, err := s.GetConversation(ctx, "nope"); err == nil {
		t.Error("expected error for unknown conversation")
	}
}

func TestMessagesChronological(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, _ := s.CreateConversation(ctx, "")
	base := time.Now().UTC()
	for i, content := range []string{"one", "two", "three"} {
		err := s.AppendMessage(ctx, &store.Message{
			ConversationID: conv.ID,
			Role:           "user",
			Content:        content,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := s.ListMessages(ctx, conv.ID, 2)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	// Newest two, oldest first.
	if msgs[0].Content != "two" || msgs[1].Content != "three" {
		t.Errorf("got %q, %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, _ := s.CreateConversation(ctx, "")

	cp, err := s.LoadCheckpoint(ctx, conv.ID)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if cp != nil {
		t.Fatal("fresh conversation should have no checkpoint")
	}

	want := &store.PhaseCheckpoint{
		Version:  store.CheckpointVersion,
		Phase:    "EXECUTION",
		Keywords: []string{"decorator", "python"},
		SkillIDs: []string{"py-decorator"},
	}
	if err := s.SaveCheckpoint(ctx, conv.ID, want); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	cp, err = s.LoadCheckpoint(ctx, conv.ID)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if cp == nil {
		t.Fatal("checkpoint should exist")
	}
	if cp.Phase != "EXECUTION" || len(cp.Keywords) != 2 || len(cp.SkillIDs) != 1 {
		t.Errorf("checkpoint = %+v", cp)
	}
}

func TestCheckpointUnknownConversation(t *testing.T) {
	s := openTestStore(t)
	cp, err := s.LoadCheckpoint(context.Background(), "missing")
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if cp != nil {
		t.Error("missing conversation should yield nil checkpoint")
	}
}

func TestTraceLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	traceID := store.GenNewID()
	err := s.CreateTrace(ctx, &store.TraceData{
		ID:             traceID,
		ConversationID: "conv-1",
		Status:         "running",
		InputPreview:   "how to use decorators",
		StartTime:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateTrace: %v", err)
	}

	err = s.UpdateTrace(ctx, traceID, map[string]any{
		"status":   "ok",
		"end_time": time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("UpdateTrace: %v", err)
	}

	spans := []store.SpanData{
		{ID: store.GenNewID(), TraceID: traceID, SpanType: "llm", Name: "step-1",
			StartTime: time.Now().UTC(), EndTime: time.Now().UTC(), CreatedAt: time.Now().UTC()},
		{ID: store.GenNewID(), TraceID: traceID, SpanType: "tool", Name: "search_skills",
			StartTime: time.Now().UTC(), EndTime: time.Now().UTC(), CreatedAt: time.Now().UTC()},
	}
	if err := s.BatchCreateSpans(ctx, spans); err != nil {
		t.Fatalf("BatchCreateSpans: %v", err)
	}
}
