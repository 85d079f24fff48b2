package phase

import (
	"log/slog"

	"github.com/nextlevelbuilder/skillbase/internal/stream"
)

// Controller decides which phase-specific tools each model step may see and
// advances the phase after steps that called a staged tool. It holds no
// per-conversation state of its own; callers pass State in and out, and the
// surrounding turn serializes access.
type Controller struct {
	sink stream.Sink
}

// NewController creates a controller writing observability events to sink.
// sink may be nil when no observer cares (tests, offline scoring).
func NewController(sink stream.Sink) *Controller {
	return &Controller{sink: sink}
}

// Expose returns the names of the phase-specific tools to inject for the
// next model step. These are additive to the base tool set, never a
// replacement. Every call emits a phase.tools observability event.
func (c *Controller) Expose(state State) []string {
	var injected []string
	switch state.Phase {
	case Init, IntentAnalysis:
		injected = []string{ToolExtractKeywords}
	case SkillRetrieval:
		injected = []string{ToolSearchSkills}
	case ToolPreparation:
		injected = []string{ToolGetSkillContent}
	case Execution:
		for _, id := range state.SkillIDs {
			injected = append(injected, SkillToolName(id))
		}
	}

	if c.sink != nil {
		c.sink.Emit(stream.EventPhaseTools, map[string]any{
			"phase": string(state.Phase),
			"tools": injected,
		})
	}
	return injected
}

// Advance inspects the tool names called by the most recent model step and
// returns the next state. Transitions are forward-only: the expected staged
// tool called from its own phase moves the machine one step; anything else
// leaves the phase unchanged. A step with no tool calls never transitions.
func (c *Controller) Advance(state State, calledTools []string) State {
	next := state.Phase
	for _, name := range calledTools {
		switch {
		case (state.Phase == Init || state.Phase == IntentAnalysis) && name == ToolExtractKeywords:
			next = SkillRetrieval
		case state.Phase == SkillRetrieval && name == ToolSearchSkills:
			next = ToolPreparation
		case state.Phase == ToolPreparation && name == ToolGetSkillContent:
			next = Execution
		}
	}

	if next == state.Phase {
		return state
	}

	slog.Info("phase transition", "from", state.Phase, "to", next)
	if c.sink != nil {
		c.sink.Emit(stream.EventPhaseChanged, map[string]any{
			"from": string(state.Phase),
			"to":   string(next),
		})
	}
	out := state
	out.Phase = next
	return out
}
