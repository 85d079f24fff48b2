package agent

import (
	"context"
	"sync"
	"time"
)

// Router serializes turns per conversation and tracks active runs so they
// can be aborted. The turn loop assumes one turn at a time per conversation;
// the router is where that assumption is enforced.
type Router struct {
	mu    sync.Mutex
	locks map[string]*conversationLock

	activeRuns sync.Map // turnID → *ActiveRun
}

type conversationLock struct {
	mu       sync.Mutex
	lastUsed time.Time
}

func NewRouter() *Router {
	return &Router{locks: make(map[string]*conversationLock)}
}

// LockConversation blocks until no other turn is running on the
// conversation, then returns an unlock func.
func (r *Router) LockConversation(conversationID string) func() {
	r.mu.Lock()
	cl, ok := r.locks[conversationID]
	if !ok {
		cl = &conversationLock{}
		r.locks[conversationID] = cl
	}
	cl.lastUsed = time.Now()
	r.mu.Unlock()

	cl.mu.Lock()
	return cl.mu.Unlock
}

// Prune drops conversation locks idle longer than maxIdle. Call
// periodically; a lock held by a running turn is never pruned because
// lastUsed is refreshed on acquisition.
func (r *Router) Prune(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, cl := range r.locks {
		if cl.lastUsed.Before(cutoff) && cl.mu.TryLock() {
			cl.mu.Unlock()
			delete(r.locks, id)
		}
	}
}

// ActiveRun tracks a running turn so it can be aborted.
type ActiveRun struct {
	TurnID         string
	ConversationID string
	Cancel         context.CancelFunc
	StartedAt      time.Time
}

// RegisterRun records an active turn so it can be aborted later.
func (r *Router) RegisterRun(turnID, conversationID string, cancel context.CancelFunc) {
	r.activeRuns.Store(turnID, &ActiveRun{
		TurnID:         turnID,
		ConversationID: conversationID,
		Cancel:         cancel,
		StartedAt:      time.Now(),
	})
}

// UnregisterRun removes a completed or cancelled turn from tracking.
func (r *Router) UnregisterRun(turnID string) {
	r.activeRuns.Delete(turnID)
}

// AbortRun cancels a single turn by id. conversationID is validated before
// aborting so one client cannot cancel another conversation's turn.
// Returns true if the turn was found and cancelled.
func (r *Router) AbortRun(turnID, conversationID string) bool {
	val, ok := r.activeRuns.Load(turnID)
	if !ok {
		return false
	}
	run := val.(*ActiveRun)

	if conversationID != "" && run.ConversationID != conversationID {
		return false
	}

	run.Cancel()
	r.activeRuns.Delete(turnID)
	return true
}

// AbortRunsForConversation cancels all active turns for a conversation.
// Returns the aborted turn ids.
func (r *Router) AbortRunsForConversation(conversationID string) []string {
	var aborted []string
	r.activeRuns.Range(func(key, val interface{}) bool {
		run := val.(*ActiveRun)
		if run.ConversationID == conversationID {
			run.Cancel()
			r.activeRuns.Delete(key)
			aborted = append(aborted, run.TurnID)
		}
		return true
	})
	return aborted
}
