package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nextlevelbuilder/skillbase/internal/search"
	"github.com/nextlevelbuilder/skillbase/internal/store"
	"github.com/nextlevelbuilder/skillbase/internal/stream"
)

// fakeSkillStore is an in-memory SkillStore for tool tests.
type fakeSkillStore struct {
	skills  []store.Skill
	version atomic.Int64
	getErr  error
	gets    atomic.Int64
}

func (f *fakeSkillStore) ListActive(_ context.Context) ([]store.Skill, error) {
	var out []store.Skill
	for _, s := range f.skills {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSkillStore) Get(_ context.Context, id string) (*store.Skill, error) {
	f.gets.Add(1)
	if f.getErr != nil {
		return nil, f.getErr
	}
	for i := range f.skills {
		if f.skills[i].ID == id {
			return &f.skills[i], nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeSkillStore) Version() int64 { return f.version.Load() }
func (f *fakeSkillStore) BumpVersion()   { f.version.Add(1) }

type eventSink struct {
	types []string
}

func (s *eventSink) Emit(eventType string, _ map[string]any) {
	s.types = append(s.types, eventType)
}
func (s *eventSink) End() {}

func testStore() *fakeSkillStore {
	return &fakeSkillStore{skills: []store.Skill{
		{
			ID: "py-decorator", Name: "Python Decorator Guide",
			Description: "Writing decorators",
			Content:     "Use a decorator to wrap a function.",
			Category:    "python", Active: true,
		},
		{ID: "hidden", Name: "Hidden", Content: "decorator", Active: false},
	}}
}

func TestExtractKeywordsTool(t *testing.T) {
	sink := &eventSink{}
	tool := NewExtractKeywordsTool(search.NewExtractor(nil), sink)

	res := tool.Execute(context.Background(), map[string]interface{}{
		"text": "how to use decorator in python",
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}

	var parsed search.IntentResult
	if err := json.Unmarshal([]byte(res.ForLLM), &parsed); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if parsed.Intent != "search" || len(parsed.Keywords) != 3 {
		t.Errorf("parsed = %+v", parsed)
	}

	if len(sink.types) != 1 || sink.types[0] != stream.EventIntentExtracted {
		t.Errorf("expected intent.extracted event, got %v", sink.types)
	}
}

func TestExtractKeywordsTool_MissingText(t *testing.T) {
	tool := NewExtractKeywordsTool(search.NewExtractor(nil), nil)
	if res := tool.Execute(context.Background(), nil); !res.IsError {
		t.Error("expected error for missing text")
	}
}

func TestSearchSkillsTool(t *testing.T) {
	sink := &eventSink{}
	tool := NewSearchSkillsTool(testStore(), sink)

	res := tool.Execute(context.Background(), map[string]interface{}{
		"keywords": []interface{}{"decorator", "python"},
		"intent":   "search",
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}

	var parsed struct {
		Matches []search.Match `json:"matches"`
		Count   int            `json:"count"`
	}
	if err := json.Unmarshal([]byte(res.ForLLM), &parsed); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if parsed.Count != 1 || parsed.Matches[0].SkillID != "py-decorator" {
		t.Errorf("parsed = %+v", parsed)
	}

	if len(sink.types) != 1 || sink.types[0] != stream.EventSearchResults {
		t.Errorf("expected search.results.found event, got %v", sink.types)
	}
}

func TestSearchSkillsTool_EntityArgs(t *testing.T) {
	tool := NewSearchSkillsTool(testStore(), nil)

	res := tool.Execute(context.Background(), map[string]interface{}{
		"keywords": []interface{}{"decorator"},
		"entities": []interface{}{
			map[string]interface{}{"type": "language", "value": "python"},
			"garbage entry",
		},
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}
	// The language entity biases the python-category skill; it still matches.
	if !strings.Contains(res.ForLLM, "py-decorator") {
		t.Errorf("expected match in result, got %s", res.ForLLM)
	}
}

// recordingHandler captures slog attributes for log assertions.
type recordingHandler struct {
	mu    sync.Mutex
	attrs map[string]string
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r.Attrs(func(a slog.Attr) bool {
		h.attrs[a.Key] = a.Value.String()
		return true
	})
	return nil
}
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestSearchSkillsTool_LogsCallContext(t *testing.T) {
	handler := &recordingHandler{attrs: make(map[string]string)}
	prev := slog.Default()
	slog.SetDefault(slog.New(handler))
	defer slog.SetDefault(prev)

	r := NewRegistry()
	r.Register(NewSearchSkillsTool(testStore(), nil))

	res := r.ExecuteWithContext(context.Background(), "search_skills", map[string]interface{}{
		"keywords": []interface{}{"decorator"},
	}, "conv-1", "turn-1")
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if handler.attrs["conversation_id"] != "conv-1" {
		t.Errorf("conversation_id = %q", handler.attrs["conversation_id"])
	}
	if handler.attrs["turn_id"] != "turn-1" {
		t.Errorf("turn_id = %q", handler.attrs["turn_id"])
	}
}

func TestSearchSkillsTool_MissingKeywords(t *testing.T) {
	tool := NewSearchSkillsTool(testStore(), nil)
	if res := tool.Execute(context.Background(), map[string]interface{}{}); !res.IsError {
		t.Error("expected error for missing keywords")
	}
}

func TestSearchSkillsTool_NoMatches(t *testing.T) {
	tool := NewSearchSkillsTool(testStore(), nil)
	res := tool.Execute(context.Background(), map[string]interface{}{
		"keywords": []interface{}{"quantum", "chromodynamics"},
	})
	if res.IsError {
		t.Fatalf("no matches should not be an error: %s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "No skills found") {
		t.Errorf("result = %q", res.ForLLM)
	}
}

func TestGetSkillContentTool(t *testing.T) {
	st := testStore()
	tool := NewGetSkillContentTool(st)

	res := tool.Execute(context.Background(), map[string]interface{}{"skill_id": "py-decorator"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "wrap a function") {
		t.Errorf("content missing from result: %s", res.ForLLM)
	}

	// Second fetch is served from cache.
	tool.Execute(context.Background(), map[string]interface{}{"skill_id": "py-decorator"})
	if got := st.gets.Load(); got != 1 {
		t.Errorf("expected 1 store hit, got %d", got)
	}

	// A version bump invalidates the cached entry.
	st.BumpVersion()
	tool.Execute(context.Background(), map[string]interface{}{"skill_id": "py-decorator"})
	if got := st.gets.Load(); got != 2 {
		t.Errorf("expected cache miss after version bump, got %d store hits", got)
	}
}

func TestGetSkillContentTool_UnknownSkill(t *testing.T) {
	tool := NewGetSkillContentTool(testStore())
	if res := tool.Execute(context.Background(), map[string]interface{}{"skill_id": "nope"}); !res.IsError {
		t.Error("expected error for unknown skill")
	}
}

func TestSkillTool(t *testing.T) {
	skill := store.Skill{ID: "py-decorator", Name: "Python Decorator Guide", Content: "the content"}
	tool := NewSkillTool(skill)

	if tool.Name() != "skill_py-decorator" {
		t.Errorf("name = %q", tool.Name())
	}
	res := tool.Execute(context.Background(), nil)
	if res.ForLLM != "the content" {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}
