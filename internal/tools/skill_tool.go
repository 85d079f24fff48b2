package tools

import (
	"context"

	"github.com/nextlevelbuilder/skillbase/internal/phase"
	"github.com/nextlevelbuilder/skillbase/internal/store"
)

// SkillTool exposes one matched skill as a directly callable tool during
// EXECUTION. It takes no arguments and returns the skill's content, so the
// model can pull the material it needs without another search round.
type SkillTool struct {
	skill store.Skill
}

// NewSkillTool wraps a skill as an execution-phase tool.
func NewSkillTool(skill store.Skill) *SkillTool {
	return &SkillTool{skill: skill}
}

func (t *SkillTool) Name() string { return phase.SkillToolName(t.skill.ID) }

func (t *SkillTool) Description() string {
	return "Knowledge skill: " + t.skill.Name + ". " + t.skill.Description
}

func (t *SkillTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *SkillTool) Execute(_ context.Context, _ map[string]interface{}) *Result {
	return SilentResult(t.skill.Content)
}
