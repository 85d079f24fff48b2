package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	anthropicDefaultBase  = "https://api.anthropic.com"
	anthropicDefaultModel = "claude-sonnet-4-20250514"
	anthropicVersion      = "2023-06-01"
)

// AnthropicProvider is a Messages API client. It speaks the structured
// multi-block output representation: every delta is tagged with its block
// type (text, thinking, tool_use), so SupportsBlocks reports true.
type AnthropicProvider struct {
	apiKey       string
	apiBase      string
	defaultModel string
	client       *http.Client
	limiter      *rate.Limiter
}

// NewAnthropicProvider creates an Anthropic Messages API provider.
func NewAnthropicProvider(apiKey, apiBase, defaultModel string) *AnthropicProvider {
	if apiBase == "" {
		apiBase = anthropicDefaultBase
	}
	if defaultModel == "" {
		defaultModel = anthropicDefaultModel
	}
	return &AnthropicProvider{
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 5 * time.Minute},
		limiter:      rate.NewLimiter(requestsPerSecond, requestBurst),
	}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) SupportsBlocks() bool { return true }

// --- wire types (Anthropic messages) ---

type anthContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// Thinking blocks carry their content here, not in "text".
	Thinking string          `json:"thinking,omitempty"`
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`

	// tool_result fields (outgoing)
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type anthMessage struct {
	Role    string             `json:"role"`
	Content []anthContentBlock `json:"content"`
}

type anthTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthRequest struct {
	Model     string        `json:"model"`
	System    string        `json:"system,omitempty"`
	Messages  []anthMessage `json:"messages"`
	Tools     []anthTool    `json:"tools,omitempty"`
	MaxTokens int           `json:"max_tokens"`
	Stream    bool          `json:"stream,omitempty"`
}

type anthStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
	ContentBlock anthContentBlock `json:"content_block"`
	Usage        struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthResponse struct {
	Content []anthContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat performs a non-streaming completion.
func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := p.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: read response: %w", err)
	}

	var parsed anthResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("anthropic: api error: %s", parsed.Error.Message)
	}

	resp := &ChatResponse{Usage: Usage{
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
		TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}}
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "thinking":
			resp.Reasoning += block.Thinking
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &args)
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Args: args})
		}
	}
	return resp, nil
}

// ChatStream performs a streaming completion, emitting block-tagged chunks.
func (p *AnthropicProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	body, err := p.do(ctx, req, true)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var content, reasoning strings.Builder
	usage := Usage{}

	// Open tool_use blocks accumulate partial JSON by stream index.
	type pendingCall struct {
		id, name string
		args     strings.Builder
	}
	pending := map[int]*pendingCall{}
	var order []int

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var event anthStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			slog.Debug("stream event skipped", "provider", "anthropic", "error", err)
			continue
		}

		switch event.Type {
		case "content_block_start":
			if event.ContentBlock.Type == "tool_use" {
				pending[event.Index] = &pendingCall{id: event.ContentBlock.ID, name: event.ContentBlock.Name}
				order = append(order, event.Index)
			}

		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				content.WriteString(event.Delta.Text)
				if onChunk != nil {
					onChunk(StreamChunk{Blocks: []Block{{Type: BlockText, Text: event.Delta.Text}}})
				}
			case "thinking_delta":
				reasoning.WriteString(event.Delta.Thinking)
				if onChunk != nil {
					onChunk(StreamChunk{Blocks: []Block{{Type: BlockThinking, Text: event.Delta.Thinking}}})
				}
			case "input_json_delta":
				if call, ok := pending[event.Index]; ok {
					call.args.WriteString(event.Delta.PartialJSON)
				}
			}

		case "message_delta":
			if event.Usage.OutputTokens > 0 {
				usage.CompletionTokens = event.Usage.OutputTokens
			}

		case "message_start":
			if event.Usage.InputTokens > 0 {
				usage.PromptTokens = event.Usage.InputTokens
			}

		case "message_stop":
			if onChunk != nil {
				onChunk(StreamChunk{Done: true})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: read stream: %w", err)
	}

	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	resp := &ChatResponse{
		Content:   content.String(),
		Reasoning: reasoning.String(),
		Usage:     usage,
	}
	for _, idx := range order {
		call := pending[idx]
		args := map[string]any{}
		if raw := call.args.String(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				slog.Warn("tool call arguments unparseable", "tool", call.name, "error", err)
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: call.id, Name: call.name, Args: args})
	}
	return resp, nil
}

func (p *AnthropicProvider) do(ctx context.Context, req ChatRequest, stream bool) (io.ReadCloser, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	wire := anthRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Stream:    stream,
	}

	cleaned := CleanToolSchemas("anthropic", req.Tools)
	for _, t := range cleaned {
		wire.Tools = append(wire.Tools, anthTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			wire.System = m.Content
		case "tool":
			wire.Messages = append(wire.Messages, anthMessage{
				Role: "user",
				Content: []anthContentBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		case "assistant":
			blocks := []anthContentBlock{}
			if m.Content != "" {
				blocks = append(blocks, anthContentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input, _ := json.Marshal(tc.Args)
				blocks = append(blocks, anthContentBlock{
					Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input,
				})
			}
			wire.Messages = append(wire.Messages, anthMessage{Role: "assistant", Content: blocks})
		default:
			wire.Messages = append(wire.Messages, anthMessage{
				Role:    "user",
				Content: []anthContentBlock{{Type: "text", Text: m.Content}},
			})
		}
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp.Body, nil
}
