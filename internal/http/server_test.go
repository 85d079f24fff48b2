package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/skillbase/internal/agent"
	"github.com/nextlevelbuilder/skillbase/internal/bus"
	"github.com/nextlevelbuilder/skillbase/internal/config"
	"github.com/nextlevelbuilder/skillbase/internal/phase"
	"github.com/nextlevelbuilder/skillbase/internal/store"
	"github.com/nextlevelbuilder/skillbase/internal/stream"
)

// fakeAgent runs a canned turn: it emits a couple of events on the turn's
// sink and returns a fixed result.
type fakeAgent struct {
	b   *bus.Bus
	err error
}

func (f *fakeAgent) Run(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error) {
	sink := bus.NewTurnSink(f.b, req.ConversationID, req.TurnID)
	defer sink.End()

	if f.err != nil {
		sink.Emit(stream.EventError, map[string]any{"error": f.err.Error()})
		return nil, f.err
	}
	sink.Emit(stream.EventAssistantDelta, map[string]any{"delta": "hello"})
	sink.Emit(stream.EventAssistantFinal, map[string]any{"content": "hello"})
	return &agent.RunResult{Content: "hello", Phase: phase.Execution, Steps: 2}, nil
}

func (f *fakeAgent) Model() string { return "test-model" }

type fakeSkillStore struct {
	skills []store.Skill
}

func (f *fakeSkillStore) ListActive(ctx context.Context) ([]store.Skill, error) {
	return f.skills, nil
}

func (f *fakeSkillStore) Get(ctx context.Context, id string) (*store.Skill, error) {
	for i := range f.skills {
		if f.skills[i].ID == id {
			return &f.skills[i], nil
		}
	}
	return nil, fmt.Errorf("skill not found: %s", id)
}

func (f *fakeSkillStore) Version() int64 { return 1 }
func (f *fakeSkillStore) BumpVersion()   {}

type fakeConvStore struct {
	convs map[string]*store.Conversation
	msgs  map[string][]store.Message
}

func newFakeConvStore() *fakeConvStore {
	return &fakeConvStore{
		convs: make(map[string]*store.Conversation),
		msgs:  make(map[string][]store.Message),
	}
}

func (f *fakeConvStore) CreateConversation(ctx context.Context, title string) (*store.Conversation, error) {
	conv := &store.Conversation{ID: store.GenNewID().String(), Title: title, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.convs[conv.ID] = conv
	return conv, nil
}

func (f *fakeConvStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	conv, ok := f.convs[id]
	if !ok {
		return nil, fmt.Errorf("conversation not found: %s", id)
	}
	return conv, nil
}

func (f *fakeConvStore) ListConversations(ctx context.Context, limit int) ([]store.Conversation, error) {
	var out []store.Conversation
	for _, c := range f.convs {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeConvStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	f.msgs[msg.ConversationID] = append(f.msgs[msg.ConversationID], *msg)
	return nil
}

func (f *fakeConvStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]store.Message, error) {
	return f.msgs[conversationID], nil
}

func (f *fakeConvStore) LoadCheckpoint(ctx context.Context, conversationID string) (*store.PhaseCheckpoint, error) {
	return nil, nil
}

func (f *fakeConvStore) SaveCheckpoint(ctx context.Context, conversationID string, cp *store.PhaseCheckpoint) error {
	return nil
}

func testServer(t *testing.T, token string) (*Server, *bus.Bus) {
	t.Helper()
	b := bus.New(0)
	deps := ServerDeps{
		Loop:   &fakeAgent{b: b},
		Bus:    b,
		Router: agent.NewRouter(),
		Skills: &fakeSkillStore{skills: []store.Skill{
			{ID: "py-decorator", Name: "Python Decorators", Category: "python", Active: true},
		}},
		Conversations: newFakeConvStore(),
		Config:        config.Default(),
		Token:         token,
	}
	return NewServer("127.0.0.1:0", deps), b
}

func serveMux(s *Server) http.Handler { return s.srv.Handler }

func TestChat_NonStream(t *testing.T) {
	s, _ := testServer(t, "")

	body := `{"conversation_id":"conv-1","message":"hi"}`
	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	serveMux(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hello" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Phase != "EXECUTION" {
		t.Errorf("Phase = %q", resp.Phase)
	}
	if resp.TurnID == "" {
		t.Error("TurnID missing")
	}
}

func TestChat_Stream(t *testing.T) {
	s, _ := testServer(t, "")

	body := `{"conversation_id":"conv-1","message":"hi","stream":true}`
	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	serveMux(s).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	out := rec.Body.String()
	if !strings.Contains(out, "event: assistant.delta") {
		t.Errorf("missing delta event in stream:\n%s", out)
	}
	if !strings.Contains(out, "event: assistant.final") {
		t.Errorf("missing final event in stream:\n%s", out)
	}
	if !strings.Contains(out, "data: [DONE]") {
		t.Errorf("missing DONE marker:\n%s", out)
	}
}

// blockingAgent registers with the router like the real loop and blocks
// until its run context is cancelled.
type blockingAgent struct {
	b       *bus.Bus
	router  *agent.Router
	started chan struct{}
}

func (a *blockingAgent) Run(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.router.RegisterRun(req.TurnID, req.ConversationID, cancel)
	defer a.router.UnregisterRun(req.TurnID)

	sink := bus.NewTurnSink(a.b, req.ConversationID, req.TurnID)
	defer sink.End()

	close(a.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (a *blockingAgent) Model() string { return "test-model" }

func TestChat_Stream_ClientDisconnectAbortsTurn(t *testing.T) {
	b := bus.New(0)
	router := agent.NewRouter()
	ag := &blockingAgent{b: b, router: router, started: make(chan struct{})}
	deps := ServerDeps{
		Loop:          ag,
		Bus:           b,
		Router:        router,
		Skills:        &fakeSkillStore{},
		Conversations: newFakeConvStore(),
		Config:        config.Default(),
	}
	s := NewServer("127.0.0.1:0", deps)

	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	body := `{"conversation_id":"conv-1","message":"hi","stream":true}`
	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(body)).WithContext(reqCtx)
	rec := httptest.NewRecorder()

	served := make(chan struct{})
	go func() {
		serveMux(s).ServeHTTP(rec, req)
		close(served)
	}()

	<-ag.started
	cancel() // client drops the connection

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("handler still blocked after client disconnect; run was not aborted")
	}
}

func TestChat_MissingFields(t *testing.T) {
	s, _ := testServer(t, "")

	for _, body := range []string{`{}`, `{"conversation_id":"c"}`, `{"message":"m"}`} {
		req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(body))
		rec := httptest.NewRecorder()
		serveMux(s).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d", body, rec.Code)
		}
	}
}

func TestAuth_Rejected(t *testing.T) {
	s, _ := testServer(t, "secret-token")

	req := httptest.NewRequest("GET", "/v1/skills", nil)
	rec := httptest.NewRecorder()
	serveMux(s).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/v1/skills", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	serveMux(s).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d", rec.Code)
	}
}

func TestSkills_ListAndGet(t *testing.T) {
	s, _ := testServer(t, "")

	req := httptest.NewRequest("GET", "/v1/skills", nil)
	rec := httptest.NewRecorder()
	serveMux(s).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var list struct {
		Skills []map[string]any `json:"skills"`
	}
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list.Skills) != 1 {
		t.Fatalf("expected 1 skill, got %d", len(list.Skills))
	}
	if _, hasContent := list.Skills[0]["content"]; hasContent {
		t.Error("listing should not include skill content")
	}

	req = httptest.NewRequest("GET", "/v1/skills/py-decorator", nil)
	rec = httptest.NewRecorder()
	serveMux(s).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("get: status = %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/v1/skills/missing", nil)
	rec = httptest.NewRecorder()
	serveMux(s).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get missing: status = %d", rec.Code)
	}
}

func TestSkills_WriteRequiresManagedMode(t *testing.T) {
	s, _ := testServer(t, "")

	req := httptest.NewRequest("PUT", "/v1/skills/new-skill", strings.NewReader(`{"name":"New"}`))
	rec := httptest.NewRecorder()
	serveMux(s).ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestConversations_CreateAndList(t *testing.T) {
	s, _ := testServer(t, "")

	req := httptest.NewRequest("POST", "/v1/conversations", strings.NewReader(`{"title":"test chat"}`))
	rec := httptest.NewRecorder()
	serveMux(s).ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d", rec.Code)
	}
	var conv store.Conversation
	json.Unmarshal(rec.Body.Bytes(), &conv)
	if conv.ID == "" || conv.Title != "test chat" {
		t.Errorf("conv = %+v", conv)
	}

	req = httptest.NewRequest("GET", "/v1/conversations/"+conv.ID, nil)
	rec = httptest.NewRecorder()
	serveMux(s).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("get: status = %d", rec.Code)
	}
}

func TestAbort_UnknownTurn(t *testing.T) {
	s, _ := testServer(t, "")

	req := httptest.NewRequest("POST", "/v1/turns/nope/abort", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	serveMux(s).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestConfigEndpoint_Masked(t *testing.T) {
	b := bus.New(0)
	cfg := config.Default()
	cfg.Provider.APIKey = "sk-secret"
	deps := ServerDeps{
		Loop:          &fakeAgent{b: b},
		Bus:           b,
		Router:        agent.NewRouter(),
		Skills:        &fakeSkillStore{},
		Conversations: newFakeConvStore(),
		Config:        cfg,
	}
	s := NewServer("127.0.0.1:0", deps)

	req := httptest.NewRequest("GET", "/v1/config", nil)
	rec := httptest.NewRecorder()
	serveMux(s).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "sk-secret") {
		t.Error("API key leaked in config response")
	}
}
