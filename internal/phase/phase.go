// Package phase implements the phase-gated tool-injection state machine for
// one conversation. A turn moves forward through retrieval phases as the
// model calls the staged tools; each phase decides which extra tools the
// next model step may see.
package phase

import (
	"log/slog"

	"github.com/nextlevelbuilder/skillbase/internal/store"
)

// Phase is one state of the retrieval state machine.
type Phase string

const (
	Init            Phase = "INIT"
	IntentAnalysis  Phase = "INTENT_ANALYSIS"
	SkillRetrieval  Phase = "SKILL_RETRIEVAL"
	ToolPreparation Phase = "TOOL_PREPARATION"
	Execution       Phase = "EXECUTION" // terminal, self-loops
)

// Staged tool names. The controller keys transitions on these, so the tool
// implementations must register under exactly these names.
const (
	ToolExtractKeywords = "extract_keywords"
	ToolSearchSkills    = "search_skills"
	ToolGetSkillContent = "get_skill_content"
)

// SkillToolName is the registry name of the per-skill content tool exposed
// during EXECUTION.
func SkillToolName(skillID string) string {
	return "skill_" + skillID
}

// Parse maps a persisted phase value to a Phase. Unrecognized or foreign
// values default to INIT rather than failing the turn.
func Parse(s string) Phase {
	switch Phase(s) {
	case Init, IntentAnalysis, SkillRetrieval, ToolPreparation, Execution:
		return Phase(s)
	case "":
		return Init
	default:
		slog.Warn("unrecognized phase value, defaulting to INIT", "value", s)
		return Init
	}
}

// State is the per-conversation retrieval state carried across model steps.
// Keywords and SkillIDs accumulate as the staged tools run.
type State struct {
	Phase    Phase
	Keywords []string
	SkillIDs []string
}

// FromCheckpoint restores state from a persisted checkpoint, validating the
// phase value. A nil checkpoint yields the initial state.
func FromCheckpoint(cp *store.PhaseCheckpoint) State {
	if cp == nil {
		return State{Phase: Init}
	}
	if cp.Version != store.CheckpointVersion {
		slog.Warn("checkpoint schema version mismatch, resetting state",
			"got", cp.Version, "want", store.CheckpointVersion)
		return State{Phase: Init}
	}
	return State{
		Phase:    Parse(cp.Phase),
		Keywords: cp.Keywords,
		SkillIDs: cp.SkillIDs,
	}
}

// Checkpoint converts the state to its persisted form.
func (s State) Checkpoint() store.PhaseCheckpoint {
	return store.PhaseCheckpoint{
		Version:  store.CheckpointVersion,
		Phase:    string(s.Phase),
		Keywords: s.Keywords,
		SkillIDs: s.SkillIDs,
	}
}
