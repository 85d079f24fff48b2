package tools

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/skillbase/internal/providers"
)

// Registry manages tool registration and execution. It is safe for
// concurrent use; per-skill execution tools come and go as conversations
// move through phases.
type Registry struct {
	tools       map[string]Tool
	mu          sync.RWMutex
	rateLimiter *ToolRateLimiter // nil = no rate limiting
	scrubbing   bool             // scrub credentials from output (default true)
}

func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		scrubbing: true,
	}
}

// SetRateLimiter enables per-conversation tool rate limiting.
func (r *Registry) SetRateLimiter(rl *ToolRateLimiter) {
	r.rateLimiter = rl
}

// SetScrubbing enables or disables credential scrubbing on tool output.
func (r *Registry) SetScrubbing(enabled bool) {
	r.scrubbing = enabled
}

// Register adds a tool to the registry, replacing any tool of the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Unregister removes a tool from the registry by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Execute runs a tool by name with the given arguments.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) *Result {
	return r.ExecuteWithContext(ctx, name, args, "", "")
}

// ExecuteWithContext runs a tool with conversation/turn context. The ids are
// injected into ctx so tools can read them without mutable fields, keeping
// tool instances safe for concurrent execution.
func (r *Registry) ExecuteWithContext(ctx context.Context, name string, args map[string]interface{}, conversationID, turnID string) *Result {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return ErrorResult("unknown tool: " + name)
	}

	if conversationID != "" {
		ctx = WithToolConversationID(ctx, conversationID)
	}
	if turnID != "" {
		ctx = WithToolTurnID(ctx, turnID)
	}

	// Rate limit check (per conversation)
	if r.rateLimiter != nil && conversationID != "" {
		if err := r.rateLimiter.Allow(conversationID); err != nil {
			return ErrorResult(err.Error())
		}
	}

	start := time.Now()
	result := tool.Execute(ctx, args)
	duration := time.Since(start)

	// Scrub credentials from tool output before returning to the LLM
	if r.scrubbing {
		if result.ForLLM != "" {
			result.ForLLM = ScrubCredentials(result.ForLLM)
		}
		if result.ForUser != "" {
			result.ForUser = ScrubCredentials(result.ForUser)
		}
	}

	slog.Debug("tool executed",
		"tool", name,
		"duration_ms", duration.Milliseconds(),
		"is_error", result.IsError,
	)

	return result
}

// ProviderDefs returns definitions for the named tools, in the given order.
// Unknown names are skipped; the phase controller may expose a skill tool a
// beat before registration completes.
func (r *Registry) ProviderDefs(names []string) []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			defs = append(defs, ToProviderDef(tool))
		}
	}
	return defs
}

// List returns all registered tool names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Clone creates a shallow copy of the registry with all registered tools.
// The clone shares the rate limiter (thread-safe) and scrubbing setting.
// Each turn clones the base registry before layering phase-specific tools,
// so concurrent conversations never see each other's skill tools.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &Registry{
		tools:       make(map[string]Tool, len(r.tools)),
		rateLimiter: r.rateLimiter,
		scrubbing:   r.scrubbing,
	}
	for name, tool := range r.tools {
		clone.tools[name] = tool
	}
	return clone
}
