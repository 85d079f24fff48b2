package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/skillbase/internal/store"
)

// ConversationsHandler serves conversation and message listings.
type ConversationsHandler struct {
	convs store.ConversationStore
}

func NewConversationsHandler(convs store.ConversationStore) *ConversationsHandler {
	return &ConversationsHandler{convs: convs}
}

func (h *ConversationsHandler) RegisterRoutes(mux *http.ServeMux, mw func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /v1/conversations", mw(h.handleList))
	mux.HandleFunc("POST /v1/conversations", mw(h.handleCreate))
	mux.HandleFunc("GET /v1/conversations/{id}", mw(h.handleGet))
	mux.HandleFunc("GET /v1/conversations/{id}/messages", mw(h.handleMessages))
}

func (h *ConversationsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	convs, err := h.convs.ListConversations(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (h *ConversationsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	conv, err := h.convs.CreateConversation(r.Context(), req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *ConversationsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	conv, err := h.convs.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationsHandler) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := h.convs.ListMessages(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
