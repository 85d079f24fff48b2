// Package agent runs the turn loop: phase-gated tool exposure, staged
// retrieval, and streaming aggregation for one user message at a time.
package agent

import (
	"context"

	"github.com/nextlevelbuilder/skillbase/internal/phase"
	"github.com/nextlevelbuilder/skillbase/internal/providers"
)

// Agent is the core abstraction for the turn execution loop.
// Implemented by *Loop; extracted as an interface for testability.
type Agent interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
	Model() string
}

// RunRequest is one user turn.
type RunRequest struct {
	ConversationID string
	TurnID         string
	RequestID      string // client-supplied id for retry dedup; optional
	Input          string
}

// RunResult is the aggregated outcome of one turn.
type RunResult struct {
	Content   string
	Reasoning string
	Phase     phase.Phase
	Steps     int
	Usage     providers.Usage
}
