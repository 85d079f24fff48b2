package tools

import (
	"fmt"
	"sync"
	"time"
)

const defaultRateWindow = time.Hour

// ToolRateLimiter caps tool executions per conversation over a sliding
// window. It backs the registry's per-conversation budget; a runaway model
// looping on tool calls exhausts its budget instead of the backing store.
type ToolRateLimiter struct {
	mu     sync.Mutex
	calls  map[string][]time.Time // conversation id -> call times in window
	limit  int
	window time.Duration
}

// NewToolRateLimiter creates a limiter allowing maxPerWindow executions per
// conversation within the window. A non-positive max returns nil, which the
// registry treats as unlimited. A non-positive window defaults to one hour.
func NewToolRateLimiter(maxPerWindow int, window time.Duration) *ToolRateLimiter {
	if maxPerWindow <= 0 {
		return nil
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return &ToolRateLimiter{
		calls:  make(map[string][]time.Time),
		limit:  maxPerWindow,
		window: window,
	}
}

// Allow records one execution for the conversation, or returns an error when
// the budget is spent. Expired entries are pruned on the way in.
func (rl *ToolRateLimiter) Allow(conversationID string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	fresh := rl.prune(rl.calls[conversationID], now.Add(-rl.window))

	if len(fresh) >= rl.limit {
		return fmt.Errorf("tool budget exhausted: %d calls per %s for conversation %s",
			rl.limit, rl.window, conversationID)
	}

	rl.calls[conversationID] = append(fresh, now)
	return nil
}

// Cleanup drops conversations whose entries have all aged out. Call
// periodically; Allow only prunes the conversation it touches.
func (rl *ToolRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	for id, entries := range rl.calls {
		fresh := rl.prune(entries, cutoff)
		if len(fresh) == 0 {
			delete(rl.calls, id)
		} else {
			rl.calls[id] = fresh
		}
	}
}

// prune drops entries before the cutoff. Entries are appended in time order,
// so the survivors are a suffix.
func (rl *ToolRateLimiter) prune(entries []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(entries) && entries[i].Before(cutoff) {
		i++
	}
	return entries[i:]
}
