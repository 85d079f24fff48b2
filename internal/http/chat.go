package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/skillbase/internal/agent"
	"github.com/nextlevelbuilder/skillbase/internal/bus"
)

// ChatHandler handles POST /v1/chat: one user turn, streamed as SSE or
// returned as a single JSON response.
type ChatHandler struct {
	loop   agent.Agent
	bus    *bus.Bus
	router *agent.Router
}

func NewChatHandler(loop agent.Agent, b *bus.Bus, router *agent.Router) *ChatHandler {
	return &ChatHandler{loop: loop, bus: b, router: router}
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	RequestID      string `json:"request_id,omitempty"`
	Stream         bool   `json:"stream"`
}

type chatResponse struct {
	TurnID    string `json:"turn_id"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
	Phase     string `json:"phase"`
	Steps     int    `json:"steps"`
	Usage     struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	turnID := uuid.NewString()
	runReq := agent.RunRequest{
		ConversationID: req.ConversationID,
		TurnID:         turnID,
		RequestID:      req.RequestID,
		Input:          req.Message,
	}

	slog.Info("chat request", "conversation_id", req.ConversationID, "turn_id", turnID, "stream", req.Stream)

	if req.Stream {
		h.handleStream(w, r, runReq)
		return
	}

	result, err := h.loop.Run(r.Context(), runReq)
	if err != nil {
		if errors.Is(err, agent.ErrDuplicateTurn) {
			writeError(w, http.StatusConflict, "duplicate request")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := chatResponse{
		TurnID:    turnID,
		Content:   result.Content,
		Reasoning: result.Reasoning,
		Phase:     string(result.Phase),
		Steps:     result.Steps,
	}
	resp.Usage.PromptTokens = result.Usage.PromptTokens
	resp.Usage.CompletionTokens = result.Usage.CompletionTokens
	resp.Usage.TotalTokens = result.Usage.TotalTokens
	writeJSON(w, http.StatusOK, resp)
}

// handleStream subscribes to the turn's event feed before starting the run,
// then relays every event as an SSE message until the terminal marker.
func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request, runReq agent.RunRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	subID := uuid.NewString()
	events := h.bus.Subscribe(runReq.TurnID, subID)
	defer h.bus.Unsubscribe(runReq.TurnID, subID)
	defer h.bus.Forget(runReq.TurnID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	runErr := make(chan error, 1)
	go func() {
		// Detach from the request context: cancellation on disconnect goes
		// through the router below, the same path the abort endpoint takes.
		_, err := h.loop.Run(context.WithoutCancel(r.Context()), runReq)
		runErr <- err
	}()

	// This handler is the turn's consumer; when the client drops the
	// connection, abort the run instead of letting it finish unobserved.
	clientGone := r.Context().Done()

	var turnErr error
	turnDone := false

relay:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break relay
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		case turnErr = <-runErr:
			turnDone = true
			runErr = nil
			// Dedup rejection happens before the sink exists; nothing more
			// will arrive on events.
			if errors.Is(turnErr, agent.ErrDuplicateTurn) {
				break relay
			}
		case <-clientGone:
			if h.router.AbortRun(runReq.TurnID, runReq.ConversationID) {
				slog.Info("turn aborted on client disconnect", "turn_id", runReq.TurnID)
			}
			clientGone = nil
		}
	}

	if !turnDone {
		turnErr = <-runErr
	}
	if turnErr != nil && !errors.Is(turnErr, agent.ErrDuplicateTurn) {
		slog.Warn("streamed turn failed", "turn_id", runReq.TurnID, "error", turnErr)
	}
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// AbortHandler handles POST /v1/turns/{turnID}/abort.
type AbortHandler struct {
	router *agent.Router
}

func NewAbortHandler(router *agent.Router) *AbortHandler {
	return &AbortHandler{router: router}
}

func (h *AbortHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	turnID := r.PathValue("turnID")

	var req struct {
		ConversationID string `json:"conversation_id"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	if !h.router.AbortRun(turnID, req.ConversationID) {
		writeError(w, http.StatusNotFound, "no active turn with that id")
		return
	}
	slog.Info("turn aborted", "turn_id", turnID)
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}
