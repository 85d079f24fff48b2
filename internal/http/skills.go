package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/skillbase/internal/config"
	"github.com/nextlevelbuilder/skillbase/internal/store"
	"github.com/nextlevelbuilder/skillbase/internal/store/pg"
)

// SkillsHandler serves skill reads in both modes and skill writes in
// managed mode. In standalone mode skills are edited on disk; the writer
// field stays nil and mutating endpoints return 405.
type SkillsHandler struct {
	skills store.SkillStore
	writer *pg.SkillStore // nil in standalone mode
}

func NewSkillsHandler(skills store.SkillStore, writer *pg.SkillStore) *SkillsHandler {
	return &SkillsHandler{skills: skills, writer: writer}
}

func (h *SkillsHandler) RegisterRoutes(mux *http.ServeMux, mw func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /v1/skills", mw(h.handleList))
	mux.HandleFunc("GET /v1/skills/{id}", mw(h.handleGet))
	mux.HandleFunc("PUT /v1/skills/{id}", mw(h.handleUpsert))
	mux.HandleFunc("POST /v1/skills/{id}/active", mw(h.handleSetActive))
	mux.HandleFunc("DELETE /v1/skills/{id}", mw(h.handleDelete))
}

func (h *SkillsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	skills, err := h.skills.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Content is large and not needed for listings.
	summaries := make([]map[string]any, 0, len(skills))
	for _, s := range skills {
		summaries = append(summaries, map[string]any{
			"id":          s.ID,
			"name":        s.Name,
			"description": s.Description,
			"category":    s.Category,
			"keywords":    s.Keywords,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"skills":  summaries,
		"version": h.skills.Version(),
	})
}

func (h *SkillsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	skill, err := h.skills.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, skill)
}

func (h *SkillsHandler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	if h.writer == nil {
		writeError(w, http.StatusMethodNotAllowed, "skill writes require managed mode")
		return
	}

	id := config.NormalizeSkillID(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid skill id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var skill store.Skill
	if err := json.NewDecoder(r.Body).Decode(&skill); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	skill.ID = id
	if skill.Name == "" {
		skill.Name = id
	}

	if err := h.writer.Upsert(r.Context(), &skill); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.Info("skill upserted", "id", id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "version": h.skills.Version()})
}

func (h *SkillsHandler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	if h.writer == nil {
		writeError(w, http.StatusMethodNotAllowed, "skill writes require managed mode")
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	id := r.PathValue("id")
	if err := h.writer.SetActive(r.Context(), id, req.Active); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}

func (h *SkillsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if h.writer == nil {
		writeError(w, http.StatusMethodNotAllowed, "skill writes require managed mode")
		return
	}

	id := r.PathValue("id")
	if err := h.writer.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	slog.Info("skill deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}
