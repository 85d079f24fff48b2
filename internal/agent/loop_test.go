package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/skillbase/internal/bus"
	"github.com/nextlevelbuilder/skillbase/internal/phase"
	"github.com/nextlevelbuilder/skillbase/internal/providers"
	"github.com/nextlevelbuilder/skillbase/internal/store"
	"github.com/nextlevelbuilder/skillbase/internal/stream"
)

// scriptStep is one scripted model invocation.
type scriptStep struct {
	chunks []providers.StreamChunk
	resp   providers.ChatResponse
	err    error
}

// scriptProvider replays scripted steps and records the tool definitions
// offered at each step.
type scriptProvider struct {
	mu         sync.Mutex
	steps      []scriptStep
	step       int
	offeredSet [][]string
}

func (p *scriptProvider) Name() string         { return "script" }
func (p *scriptProvider) SupportsBlocks() bool { return false }

func (p *scriptProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return p.ChatStream(ctx, req, nil)
}

func (p *scriptProvider) ChatStream(_ context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	p.mu.Lock()
	var names []string
	for _, t := range req.Tools {
		names = append(names, t.Function.Name)
	}
	p.offeredSet = append(p.offeredSet, names)
	if p.step >= len(p.steps) {
		p.mu.Unlock()
		return &providers.ChatResponse{}, nil
	}
	step := p.steps[p.step]
	p.step++
	p.mu.Unlock()

	if step.err != nil {
		return nil, step.err
	}
	if onChunk != nil {
		for _, c := range step.chunks {
			onChunk(c)
		}
		onChunk(providers.StreamChunk{Done: true})
	}
	resp := step.resp
	return &resp, nil
}

// memConvStore is an in-memory ConversationStore.
type memConvStore struct {
	mu          sync.Mutex
	messages    map[string][]store.Message
	checkpoints map[string]*store.PhaseCheckpoint
	listErr     error
}

func newMemConvStore() *memConvStore {
	return &memConvStore{
		messages:    make(map[string][]store.Message),
		checkpoints: make(map[string]*store.PhaseCheckpoint),
	}
}

func (m *memConvStore) CreateConversation(_ context.Context, title string) (*store.Conversation, error) {
	return &store.Conversation{ID: "conv", Title: title}, nil
}
func (m *memConvStore) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	return &store.Conversation{ID: id}, nil
}
func (m *memConvStore) ListConversations(_ context.Context, _ int) ([]store.Conversation, error) {
	return nil, nil
}
func (m *memConvStore) AppendMessage(_ context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)
	return nil
}
func (m *memConvStore) ListMessages(_ context.Context, conversationID string, _ int) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]store.Message(nil), m.messages[conversationID]...), nil
}
func (m *memConvStore) LoadCheckpoint(_ context.Context, conversationID string) (*store.PhaseCheckpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkpoints[conversationID], nil
}
func (m *memConvStore) SaveCheckpoint(_ context.Context, conversationID string, cp *store.PhaseCheckpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[conversationID] = cp
	return nil
}

// memSkillStore is an in-memory SkillStore.
type memSkillStore struct {
	skills []store.Skill
}

func (m *memSkillStore) ListActive(_ context.Context) ([]store.Skill, error) {
	var out []store.Skill
	for _, s := range m.skills {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}
func (m *memSkillStore) Get(_ context.Context, id string) (*store.Skill, error) {
	for i := range m.skills {
		if m.skills[i].ID == id {
			return &m.skills[i], nil
		}
	}
	return nil, errors.New("not found")
}
func (m *memSkillStore) Version() int64 { return 1 }
func (m *memSkillStore) BumpVersion()   {}

func testLoop(p providers.Provider, convs *memConvStore) (*Loop, *bus.Bus) {
	b := bus.New(512)
	loop := NewLoop(Config{
		Provider:      p,
		Model:         "test-model",
		Skills:        &memSkillStore{skills: []store.Skill{decoratorSkill()}},
		Conversations: convs,
		Bus:           b,
	})
	return loop, b
}

func decoratorSkill() store.Skill {
	return store.Skill{
		ID: "py-decorator", Name: "Python Decorator Guide",
		Description: "Writing decorators",
		Content:     "Use a decorator to wrap a function.",
		Category:    "python", Active: true,
	}
}

func collect(ch <-chan bus.Event) []bus.Event {
	var out []bus.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
}

func eventTypes(events []bus.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestRun_StagedPipeline(t *testing.T) {
	p := &scriptProvider{steps: []scriptStep{
		{resp: providers.ChatResponse{ToolCalls: []providers.ToolCall{{
			ID: "c1", Name: "extract_keywords",
			Args: map[string]any{"text": "how to use decorator in python"},
		}}}},
		{resp: providers.ChatResponse{ToolCalls: []providers.ToolCall{{
			ID: "c2", Name: "search_skills",
			Args: map[string]any{"keywords": []interface{}{"use", "decorator", "python"}},
		}}}},
		{resp: providers.ChatResponse{ToolCalls: []providers.ToolCall{{
			ID: "c3", Name: "get_skill_content",
			Args: map[string]any{"skill_id": "py-decorator"},
		}}}},
		{
			chunks: []providers.StreamChunk{{Content: "Use @ syntax "}, {Content: "to apply it."}},
			resp:   providers.ChatResponse{Content: "Use @ syntax to apply it."},
		},
	}}

	convs := newMemConvStore()
	loop, b := testLoop(p, convs)
	events := b.Subscribe("turn-1", "test")

	res, err := loop.Run(context.Background(), RunRequest{
		ConversationID: "conv-1", TurnID: "turn-1",
		Input: "how to use decorator in python",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if res.Content != "Use @ syntax to apply it." {
		t.Errorf("content = %q", res.Content)
	}
	if res.Phase != phase.Execution {
		t.Errorf("final phase = %s, want EXECUTION", res.Phase)
	}
	if res.Steps != 4 {
		t.Errorf("steps = %d, want 4", res.Steps)
	}

	// Checkpoint reflects the completed pipeline.
	cp := convs.checkpoints["conv-1"]
	if cp == nil || cp.Phase != string(phase.Execution) {
		t.Fatalf("checkpoint = %+v", cp)
	}
	if len(cp.Keywords) != 3 || len(cp.SkillIDs) != 1 || cp.SkillIDs[0] != "py-decorator" {
		t.Errorf("checkpoint state = %+v", cp)
	}

	// Tool exposure is phase-appropriate and additive per step.
	wantLast := []string{"extract_keywords", "search_skills", "get_skill_content", "skill_py-decorator"}
	for i, want := range wantLast {
		if got := p.offeredSet[i][len(p.offeredSet[i])-1]; got != want {
			t.Errorf("step %d last offered tool = %q, want %q", i, got, want)
		}
	}

	all := collect(events)
	types := eventTypes(all)

	// Turn always terminates with exactly one terminal marker.
	if all[len(all)-1].Type != "turn.end" || !all[len(all)-1].Terminal {
		t.Errorf("last event = %+v", all[len(all)-1])
	}
	counts := map[string]int{}
	for _, ty := range types {
		counts[ty]++
	}
	if counts[stream.EventPhaseTools] != 4 {
		t.Errorf("phase.tools events = %d, want 4 (one per step)", counts[stream.EventPhaseTools])
	}
	if counts[stream.EventPhaseChanged] != 3 {
		t.Errorf("phase.changed events = %d, want 3", counts[stream.EventPhaseChanged])
	}
	if counts[stream.EventIntentExtracted] != 1 || counts[stream.EventSearchResults] != 1 {
		t.Errorf("retrieval events = %v", counts)
	}
	if counts[stream.EventToolStart] != 3 || counts[stream.EventToolEnd] != 3 {
		t.Errorf("tool events = %v", counts)
	}
	if counts[stream.EventAssistantDelta] != 2 {
		t.Errorf("delta events = %d, want 2", counts[stream.EventAssistantDelta])
	}
	if counts[stream.EventAssistantFinal] != 1 {
		t.Errorf("final events = %d, want 1", counts[stream.EventAssistantFinal])
	}

	// Conversation transcript has the user message and the final answer.
	msgs := convs.messages["conv-1"]
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("persisted messages = %+v", msgs)
	}
}

func TestRun_ModelErrorStillClosesSink(t *testing.T) {
	p := &scriptProvider{steps: []scriptStep{
		{err: errors.New("upstream exploded")},
	}}
	loop, b := testLoop(p, newMemConvStore())
	events := b.Subscribe("turn-1", "test")

	_, err := loop.Run(context.Background(), RunRequest{
		ConversationID: "conv-1", TurnID: "turn-1", Input: "hello",
	})
	if err == nil {
		t.Fatal("expected error")
	}

	all := collect(events)
	types := eventTypes(all)
	sawError := false
	for _, ty := range types {
		if ty == stream.EventError {
			sawError = true
		}
		if ty == stream.EventAssistantFinal {
			t.Error("aggregator must not finalize on a failed stream")
		}
	}
	if !sawError {
		t.Errorf("expected an error event, got %v", types)
	}
	if len(all) == 0 || !all[len(all)-1].Terminal {
		t.Error("sink must still be closed with a terminal marker")
	}
}

func TestRun_ReasoningOnlyPromoted(t *testing.T) {
	p := &scriptProvider{steps: []scriptStep{
		{
			chunks: []providers.StreamChunk{{Reasoning: "thinking"}},
			resp:   providers.ChatResponse{Reasoning: "thinking"},
		},
	}}
	loop, _ := testLoop(p, newMemConvStore())

	res, err := loop.Run(context.Background(), RunRequest{
		ConversationID: "conv-1", TurnID: "turn-1", Input: "hi",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Content != "thinking" || res.Reasoning != "" {
		t.Errorf("promotion failed: content=%q reasoning=%q", res.Content, res.Reasoning)
	}
}

func TestRun_DuplicateRequestRejected(t *testing.T) {
	p := &scriptProvider{steps: []scriptStep{
		{resp: providers.ChatResponse{Content: "first"}},
		{resp: providers.ChatResponse{Content: "second"}},
	}}
	convs := newMemConvStore()
	b := bus.New(64)
	loop := NewLoop(Config{
		Provider:      p,
		Skills:        &memSkillStore{},
		Conversations: convs,
		Bus:           b,
		Dedupe:        bus.NewDedupeCache(time.Minute, 100),
	})

	if _, err := loop.Run(context.Background(), RunRequest{
		ConversationID: "conv-1", TurnID: "turn-1", RequestID: "req-1", Input: "hi",
	}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if _, err := loop.Run(context.Background(), RunRequest{
		ConversationID: "conv-1", TurnID: "turn-2", RequestID: "req-1", Input: "hi",
	}); !errors.Is(err, ErrDuplicateTurn) {
		t.Errorf("expected ErrDuplicateTurn, got %v", err)
	}
}

func TestRun_UnrelatedToolDoesNotAdvance(t *testing.T) {
	p := &scriptProvider{steps: []scriptStep{
		{resp: providers.ChatResponse{ToolCalls: []providers.ToolCall{{
			ID: "c1", Name: "search_skills",
			Args: map[string]any{"keywords": []interface{}{"decorator"}},
		}}}},
		{resp: providers.ChatResponse{Content: "done"}},
	}}
	convs := newMemConvStore()
	loop, _ := testLoop(p, convs)

	res, err := loop.Run(context.Background(), RunRequest{
		ConversationID: "conv-1", TurnID: "turn-1", Input: "hi",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	// search_skills called from INIT leaves the phase unchanged.
	if res.Phase != phase.Init {
		t.Errorf("phase = %s, want INIT", res.Phase)
	}
}

func TestRouter_AbortRun(t *testing.T) {
	r := NewRouter()
	ctx, cancel := context.WithCancel(context.Background())
	r.RegisterRun("turn-1", "conv-1", cancel)

	if r.AbortRun("turn-1", "conv-other") {
		t.Error("abort must validate the conversation id")
	}
	if !r.AbortRun("turn-1", "conv-1") {
		t.Error("abort should succeed for the owning conversation")
	}
	if ctx.Err() == nil {
		t.Error("cancel func was not invoked")
	}
	if r.AbortRun("turn-1", "conv-1") {
		t.Error("second abort should report not found")
	}
}
