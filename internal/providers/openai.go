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
	openaiDefaultBase  = "https://api.openai.com/v1"
	openaiDefaultModel = "gpt-4o-mini"

	// Client-side throttle: generous enough for interactive chat, strict
	// enough that a retry loop can't hammer the upstream API.
	requestsPerSecond = 2
	requestBurst      = 4
)

// OpenAIProvider is an OpenAI-compatible chat completions client. It speaks
// the legacy output representation: plain content deltas with reasoning on
// the reasoning_content side channel.
type OpenAIProvider struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	client       *http.Client
	limiter      *rate.Limiter
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
// name identifies the provider in logs and schema cleaning ("openai",
// "deepseek", "dashscope", ...).
func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = openaiDefaultBase
	}
	if defaultModel == "" {
		defaultModel = openaiDefaultModel
	}
	return &OpenAIProvider{
		name:         name,
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 5 * time.Minute},
		limiter:      rate.NewLimiter(requestsPerSecond, requestBurst),
	}
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) SupportsBlocks() bool { return false }

// --- wire types (OpenAI chat completions) ---

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
}

type oaToolCall struct {
	Index    int    `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type oaRequest struct {
	Model       string           `json:"model"`
	Messages    []oaMessage      `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
}

type oaChoice struct {
	Message struct {
		Content          string       `json:"content"`
		ReasoningContent string       `json:"reasoning_content"`
		ToolCalls        []oaToolCall `json:"tool_calls"`
	} `json:"message"`
	Delta struct {
		Content          string       `json:"content"`
		ReasoningContent string       `json:"reasoning_content"`
		ToolCalls        []oaToolCall `json:"tool_calls"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type oaResponse struct {
	Choices []oaChoice `json:"choices"`
	Usage   Usage      `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat performs a non-streaming completion.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := p.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", p.name, err)
	}

	var parsed oaResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%s: api error: %s", p.name, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty choices", p.name)
	}

	choice := parsed.Choices[0]
	return &ChatResponse{
		Content:   choice.Message.Content,
		Reasoning: choice.Message.ReasoningContent,
		ToolCalls: convertToolCalls(choice.Message.ToolCalls),
		Usage:     parsed.Usage,
	}, nil
}

// ChatStream performs a streaming completion, invoking onChunk for every
// SSE delta. Returns the accumulated response as a recap.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	body, err := p.do(ctx, req, true)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var content, reasoning strings.Builder
	pending := map[int]*oaToolCall{} // index → accumulating tool call
	var order []int
	usage := Usage{}

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
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk oaResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Debug("stream chunk skipped", "provider", p.name, "error", err)
			continue
		}
		if chunk.Usage.TotalTokens > 0 {
			usage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" || delta.ReasoningContent != "" {
			content.WriteString(delta.Content)
			reasoning.WriteString(delta.ReasoningContent)
			if onChunk != nil {
				onChunk(StreamChunk{Content: delta.Content, Reasoning: delta.ReasoningContent})
			}
		}

		for _, tc := range delta.ToolCalls {
			acc, ok := pending[tc.Index]
			if !ok {
				cp := tc
				pending[tc.Index] = &cp
				order = append(order, tc.Index)
				continue
			}
			if tc.ID != "" {
				acc.ID = tc.ID
			}
			if tc.Function.Name != "" {
				acc.Function.Name = tc.Function.Name
			}
			acc.Function.Arguments += tc.Function.Arguments
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: read stream: %w", p.name, err)
	}

	if onChunk != nil {
		onChunk(StreamChunk{Done: true})
	}

	var calls []oaToolCall
	for _, idx := range order {
		calls = append(calls, *pending[idx])
	}

	return &ChatResponse{
		Content:   content.String(),
		Reasoning: reasoning.String(),
		ToolCalls: convertToolCalls(calls),
		Usage:     usage,
	}, nil
}

// do issues the HTTP request and returns the response body.
func (p *OpenAIProvider) do(ctx context.Context, req ChatRequest, stream bool) (io.ReadCloser, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	wire := oaRequest{
		Model:       model,
		Messages:    convertMessages(req.Messages),
		Tools:       CleanToolSchemas(p.name, req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%s: status %d: %s", p.name, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp.Body, nil
}

func convertMessages(msgs []Message) []oaMessage {
	out := make([]oaMessage, len(msgs))
	for i, m := range msgs {
		wire := oaMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Args)
			call := oaToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Name
			call.Function.Arguments = string(args)
			wire.ToolCalls = append(wire.ToolCalls, call)
		}
		out[i] = wire
	}
	return out
}

func convertToolCalls(calls []oaToolCall) []ToolCall {
	var out []ToolCall
	for _, tc := range calls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				slog.Warn("tool call arguments unparseable", "tool", tc.Function.Name, "error", err)
			}
		}
		out = append(out, ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return out
}
