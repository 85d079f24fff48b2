package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/skillbase/internal/bus"
	"github.com/nextlevelbuilder/skillbase/internal/phase"
	"github.com/nextlevelbuilder/skillbase/internal/providers"
	"github.com/nextlevelbuilder/skillbase/internal/search"
	"github.com/nextlevelbuilder/skillbase/internal/store"
	"github.com/nextlevelbuilder/skillbase/internal/stream"
	"github.com/nextlevelbuilder/skillbase/internal/tools"
	"github.com/nextlevelbuilder/skillbase/internal/tracing"
)

const (
	defaultMaxSteps     = 8
	defaultHistoryLimit = 50
)

// ErrDuplicateTurn is returned when a request id was already processed
// within the dedup window.
var ErrDuplicateTurn = errors.New("duplicate turn request")

const defaultSystemPrompt = `You are a knowledge-base assistant. Answer using the skills in the knowledge base.

Work in stages: first call extract_keywords on the user's question, then search_skills with the extracted keywords, then get_skill_content for the best match. Base your answer on the retrieved content. If no skill matches, say so and answer from general knowledge.`

// Config wires a Loop. Provider, Skills, Conversations, and Bus are
// required; everything else has defaults.
type Config struct {
	Provider      providers.Provider
	Model         string
	SystemPrompt  string
	Skills        store.SkillStore
	Conversations store.ConversationStore
	Bus           *bus.Bus
	Router        *Router
	BaseTools     *tools.Registry // always-available tools; may be empty
	Extractor     *search.Extractor
	Dedupe        *bus.DedupeCache   // nil = no request dedup
	Tracer        *tracing.Collector // nil = tracing disabled
	MaxSteps      int
	ContextWindow int
}

// Loop is the turn orchestrator. One Run call handles one user message:
// phase-gated tool exposure, staged retrieval via the model's tool calls,
// and streaming aggregation onto the turn's event sink.
type Loop struct {
	provider      providers.Provider
	model         string
	systemPrompt  string
	skills        store.SkillStore
	convs         store.ConversationStore
	bus           *bus.Bus
	router        *Router
	baseTools     *tools.Registry
	extractor     *search.Extractor
	contentTool   *tools.GetSkillContentTool
	dedupe        *bus.DedupeCache
	tracer        *tracing.Collector
	maxSteps      int
	contextWindow int
}

// NewLoop creates a turn loop from the config.
func NewLoop(cfg Config) *Loop {
	l := &Loop{
		provider:      cfg.Provider,
		model:         cfg.Model,
		systemPrompt:  cfg.SystemPrompt,
		skills:        cfg.Skills,
		convs:         cfg.Conversations,
		bus:           cfg.Bus,
		router:        cfg.Router,
		baseTools:     cfg.BaseTools,
		extractor:     cfg.Extractor,
		dedupe:        cfg.Dedupe,
		tracer:        cfg.Tracer,
		maxSteps:      cfg.MaxSteps,
		contextWindow: cfg.ContextWindow,
	}
	if l.systemPrompt == "" {
		l.systemPrompt = defaultSystemPrompt
	}
	if l.router == nil {
		l.router = NewRouter()
	}
	if l.baseTools == nil {
		l.baseTools = tools.NewRegistry()
	}
	if l.extractor == nil {
		l.extractor = search.NewExtractor(nil)
	}
	if l.maxSteps <= 0 {
		l.maxSteps = defaultMaxSteps
	}
	l.contentTool = tools.NewGetSkillContentTool(l.skills)
	return l
}

// Model returns the configured model name.
func (l *Loop) Model() string { return l.model }

// Run executes one turn. The turn's event sink is always closed before Run
// returns, on success, model failure, and cancellation alike.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.TurnID == "" {
		req.TurnID = uuid.NewString()
	}
	if l.dedupe != nil && req.RequestID != "" && l.dedupe.IsDuplicate(req.RequestID) {
		return nil, ErrDuplicateTurn
	}

	// One turn at a time per conversation.
	unlock := l.router.LockConversation(req.ConversationID)
	defer unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.router.RegisterRun(req.TurnID, req.ConversationID, cancel)
	defer l.router.UnregisterRun(req.TurnID)

	sink := bus.NewTurnSink(l.bus, req.ConversationID, req.TurnID)
	defer sink.End()

	traceID := store.GenNewID()
	if l.tracer != nil {
		l.tracer.StartTrace(ctx, req.ConversationID, traceID, req.Input)
	}

	result, err := l.runTurn(ctx, req, sink, traceID)

	if l.tracer != nil {
		status, errMsg, preview := "ok", "", ""
		if err != nil {
			status, errMsg = "error", err.Error()
		} else {
			preview = result.Content
		}
		l.tracer.FinishTrace(context.WithoutCancel(ctx), traceID, status, errMsg, preview)
	}
	return result, err
}

func (l *Loop) runTurn(ctx context.Context, req RunRequest, sink stream.Sink, traceID uuid.UUID) (*RunResult, error) {
	msgs, err := l.buildMessages(ctx, req)
	if err != nil {
		sink.Emit(stream.EventError, map[string]any{"error": err.Error()})
		return nil, err
	}

	l.appendStored(ctx, &store.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		Role:           "user",
		Content:        req.Input,
		CreatedAt:      time.Now().UTC(),
	})

	// A new user message restarts the retrieval pipeline from the top; the
	// checkpoint only carries state between steps inside the turn.
	state := phase.State{Phase: phase.Init}
	controller := phase.NewController(sink)

	// Classification strategy is fixed per model instance.
	classifier := stream.NewClassifier(l.provider.SupportsBlocks())
	agg := stream.NewAggregator(sink)

	baseNames := l.baseTools.List()
	sort.Strings(baseNames)

	var usage providers.Usage
	steps := 0

	for steps < l.maxSteps {
		steps++

		injected := controller.Expose(state)
		reg := l.turnRegistry(ctx, state, sink)
		defs := reg.ProviderDefs(append(append([]string{}, baseNames...), injected...))

		msgs = pruneHistory(msgs, l.contextWindow)

		llmStart := time.Now()
		resp, err := l.provider.ChatStream(ctx, providers.ChatRequest{
			Model:    l.model,
			Messages: msgs,
			Tools:    defs,
		}, func(chunk providers.StreamChunk) {
			for _, c := range classifier.Classify(chunk) {
				agg.Handle(c)
			}
		})
		l.emitSpan(traceID, tracing.SpanLLM, l.provider.Name(), err, llmStart)

		if err != nil {
			// Turn-fatal: the caller still gets a terminal error event and
			// a closed sink; the aggregator is not finalized on a
			// half-consumed stream.
			sink.Emit(stream.EventError, map[string]any{"error": err.Error()})
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("model invocation: %w", err)
		}

		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens
		usage.TotalTokens += resp.Usage.TotalTokens

		// Recap chunks only land when nothing streamed for their kind.
		for _, c := range stream.Recap(resp.Content, resp.Reasoning) {
			agg.Handle(c)
		}

		if len(resp.ToolCalls) == 0 {
			break
		}

		msgs = append(msgs, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		called := make([]string, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			if ctx.Err() != nil {
				sink.Emit(stream.EventError, map[string]any{"error": ctx.Err().Error()})
				return nil, ctx.Err()
			}

			sink.Emit(stream.EventToolStart, map[string]any{"tool": tc.Name, "id": tc.ID})
			toolStart := time.Now()
			res := reg.ExecuteWithContext(ctx, tc.Name, tc.Args, req.ConversationID, req.TurnID)
			l.emitSpan(traceID, tracing.SpanTool, tc.Name, res.Err, toolStart)
			sink.Emit(stream.EventToolEnd, map[string]any{
				"tool": tc.Name, "id": tc.ID, "is_error": res.IsError,
			})

			agg.Handle(stream.Chunk{Kind: stream.KindToolResult, ToolID: tc.ID})
			msgs = append(msgs, providers.Message{
				Role:       "tool",
				Content:    res.ForLLM,
				ToolCallID: tc.ID,
			})
			called = append(called, tc.Name)
			l.observeToolResult(&state, tc.Name, res)
		}

		prev := state.Phase
		state = controller.Advance(state, called)
		if state.Phase != prev {
			l.emitSpan(traceID, tracing.SpanPhase, string(state.Phase), nil, time.Now())
		}

		cp := state.Checkpoint()
		if err := l.convs.SaveCheckpoint(ctx, req.ConversationID, &cp); err != nil {
			slog.Warn("checkpoint save failed", "conversation_id", req.ConversationID, "error", err)
		}
	}

	final := agg.Finalize()

	l.appendStored(ctx, &store.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		Role:           "assistant",
		Content:        final.Content,
		Reasoning:      final.Reasoning,
		CreatedAt:      time.Now().UTC(),
	})

	return &RunResult{
		Content:   final.Content,
		Reasoning: final.Reasoning,
		Phase:     state.Phase,
		Steps:     steps,
		Usage:     usage,
	}, nil
}

// buildMessages assembles the system prompt, prior history, and the new
// user input.
func (l *Loop) buildMessages(ctx context.Context, req RunRequest) ([]providers.Message, error) {
	history, err := l.convs.ListMessages(ctx, req.ConversationID, defaultHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	msgs := make([]providers.Message, 0, len(history)+2)
	msgs = append(msgs, providers.Message{Role: "system", Content: l.systemPrompt})
	for _, m := range history {
		msgs = append(msgs, providers.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, providers.Message{Role: "user", Content: req.Input})
	return msgs, nil
}

// turnRegistry builds the tool registry for one model step: the base tools
// plus the staged tools bound to this turn's sink, plus one tool per
// matched skill during EXECUTION.
func (l *Loop) turnRegistry(ctx context.Context, state phase.State, sink stream.Sink) *tools.Registry {
	reg := l.baseTools.Clone()
	reg.Register(tools.NewExtractKeywordsTool(l.extractor, sink))
	reg.Register(tools.NewSearchSkillsTool(l.skills, sink))
	reg.Register(l.contentTool)

	if state.Phase == phase.Execution {
		for _, id := range state.SkillIDs {
			skill, err := l.skills.Get(ctx, id)
			if err != nil {
				slog.Warn("matched skill vanished before execution", "skill_id", id, "error", err)
				continue
			}
			reg.Register(tools.NewSkillTool(*skill))
		}
	}
	return reg
}

// observeToolResult folds staged tool output back into the phase state so
// later phases know the extracted keywords and matched skills.
func (l *Loop) observeToolResult(state *phase.State, toolName string, res *tools.Result) {
	if res.IsError || !strings.HasPrefix(res.ForLLM, "{") {
		return
	}
	switch toolName {
	case phase.ToolExtractKeywords:
		var parsed search.IntentResult
		if err := json.Unmarshal([]byte(res.ForLLM), &parsed); err != nil {
			slog.Warn("extract_keywords result unparseable", "error", err)
			return
		}
		state.Keywords = parsed.Keywords

	case phase.ToolSearchSkills:
		var parsed struct {
			Matches []search.Match `json:"matches"`
		}
		if err := json.Unmarshal([]byte(res.ForLLM), &parsed); err != nil {
			slog.Warn("search_skills result unparseable", "error", err)
			return
		}
		ids := make([]string, 0, len(parsed.Matches))
		for _, m := range parsed.Matches {
			ids = append(ids, m.SkillID)
		}
		state.SkillIDs = ids
	}
}

func (l *Loop) appendStored(ctx context.Context, msg *store.Message) {
	if err := l.convs.AppendMessage(ctx, msg); err != nil {
		slog.Warn("message persistence failed",
			"conversation_id", msg.ConversationID, "role", msg.Role, "error", err)
	}
}

func (l *Loop) emitSpan(traceID uuid.UUID, spanType, name string, err error, start time.Time) {
	if l.tracer == nil {
		return
	}
	status := "ok"
	preview := ""
	if err != nil {
		status = "error"
		preview = err.Error()
	}
	l.tracer.EmitSpan(store.SpanData{
		TraceID:   traceID,
		SpanType:  spanType,
		Name:      name,
		Status:    status,
		Preview:   preview,
		StartTime: start,
		EndTime:   time.Now(),
	})
}
