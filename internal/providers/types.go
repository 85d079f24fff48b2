// Package providers implements LLM provider clients that yield typed output
// chunks for one model invocation. Providers are black boxes to the rest of
// the system: the aggregator consumes their chunk streams, the intent
// extractor their plain completions.
package providers

import "context"

// Message is one conversation message in a chat request.
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on role=tool messages
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // set on assistant messages that called tools
}

// ToolCall is a model-requested capability invocation.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolFunctionSchema describes one callable function to the model.
type ToolFunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolDefinition is the provider-level wrapper around a function schema.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function ToolFunctionSchema `json:"function"`
}

// ChatRequest is one model invocation.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float64
}

// Usage reports token consumption for one invocation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the full (recap) result of one invocation, also returned
// at the end of a streamed call.
type ChatResponse struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCall
	Usage     Usage
}

// BlockType tags one output block in the structured multi-block scheme.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolResult BlockType = "tool_result"
)

// Block is one tagged output unit from a block-capable provider.
type Block struct {
	Type BlockType `json:"type"`
	Text string    `json:"text,omitempty"`
	ID   string    `json:"id,omitempty"`
}

// StreamChunk is one increment of model output. Block-capable providers
// populate Blocks; legacy providers populate Content and carry reasoning on
// the Reasoning side channel.
type StreamChunk struct {
	Content   string  `json:"content,omitempty"`
	Reasoning string  `json:"reasoning,omitempty"`
	Blocks    []Block `json:"blocks,omitempty"`
	Done      bool    `json:"done,omitempty"`
}

// Provider is a chat-completion backend.
//
// SupportsBlocks is the capability flag checked once per model instance to
// select the chunk classification strategy; it must not vary per call.
type Provider interface {
	Name() string
	SupportsBlocks() bool
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error)
}

// Inferer adapts a Provider to the plain text-completion capability used by
// the intent extractor's augmentation path.
type Inferer struct {
	provider Provider
}

// NewInferer wraps a provider as a single-prompt completion client.
func NewInferer(p Provider) *Inferer {
	return &Inferer{provider: p}
}

// Infer sends one user prompt and returns the model's text.
func (i *Inferer) Infer(ctx context.Context, prompt string) (string, error) {
	resp, err := i.provider.Chat(ctx, ChatRequest{
		Messages: []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
