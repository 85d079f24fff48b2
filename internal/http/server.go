package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/skillbase/internal/agent"
	"github.com/nextlevelbuilder/skillbase/internal/bus"
	"github.com/nextlevelbuilder/skillbase/internal/config"
	"github.com/nextlevelbuilder/skillbase/internal/store"
	"github.com/nextlevelbuilder/skillbase/internal/store/pg"
)

// ServerDeps holds everything the HTTP server routes to.
type ServerDeps struct {
	Loop          agent.Agent
	Bus           *bus.Bus
	Router        *agent.Router
	Skills        store.SkillStore
	SkillWriter   *pg.SkillStore // nil in standalone mode
	Conversations store.ConversationStore
	Config        *config.Config
	Token         string // bearer token; empty disables auth
}

// Server is the HTTP API server.
type Server struct {
	srv   *http.Server
	token string
}

// NewServer builds the mux and wraps it in an http.Server.
func NewServer(addr string, deps ServerDeps) *Server {
	s := &Server{token: deps.Token}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chat := NewChatHandler(deps.Loop, deps.Bus, deps.Router)
	mux.HandleFunc("POST /v1/chat", s.auth(chat.ServeHTTP))

	abort := NewAbortHandler(deps.Router)
	mux.HandleFunc("POST /v1/turns/{turnID}/abort", s.auth(abort.ServeHTTP))

	NewSkillsHandler(deps.Skills, deps.SkillWriter).RegisterRoutes(mux, s.auth)
	NewConversationsHandler(deps.Conversations).RegisterRoutes(mux, s.auth)

	mux.HandleFunc("GET /v1/config", s.auth(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"config": deps.Config.MaskedCopy(),
			"hash":   deps.Config.Hash(),
		})
	}))

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: SSE turns stream for as long as the model runs.
	}
	return s
}

// auth wraps a handler with bearer token validation.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !tokenMatch(extractBearerToken(r), s.token) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// Start begins serving. Blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
