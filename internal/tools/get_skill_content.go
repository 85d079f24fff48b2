package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/skillbase/internal/store"
)

const skillContentCacheSize = 128

// GetSkillContentTool fetches the full content of a previously matched
// skill. Exposed during TOOL_PREPARATION; calling it moves the conversation
// into EXECUTION.
//
// Content is cached per (skill id, store version) so hot skills don't hit
// the backing store on every turn; a version bump from the watcher
// invalidates all cached entries implicitly.
type GetSkillContentTool struct {
	skills store.SkillStore
	cache  *lru.Cache[string, string]
}

// NewGetSkillContentTool creates the get_skill_content tool.
func NewGetSkillContentTool(skills store.SkillStore) *GetSkillContentTool {
	cache, _ := lru.New[string, string](skillContentCacheSize)
	return &GetSkillContentTool{skills: skills, cache: cache}
}

func (t *GetSkillContentTool) Name() string { return "get_skill_content" }

func (t *GetSkillContentTool) Description() string {
	return "Fetch the full content of a skill by id. Use the skill ids returned by search_skills."
}

func (t *GetSkillContentTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"skill_id": map[string]interface{}{
				"type":        "string",
				"description": "Id of the skill to fetch",
			},
		},
		"required": []string{"skill_id"},
	}
}

func (t *GetSkillContentTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	skillID, _ := args["skill_id"].(string)
	if skillID == "" {
		return ErrorResult("skill_id parameter is required")
	}

	cacheKey := fmt.Sprintf("%s@%d", skillID, t.skills.Version())
	if content, ok := t.cache.Get(cacheKey); ok {
		slog.Debug("skill content cache hit", "skill_id", skillID)
		return SilentResult(content)
	}

	skill, err := t.skills.Get(ctx, skillID)
	if err != nil {
		return ErrorResult("skill not found: " + skillID).WithError(err)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"skill_id": skill.ID,
		"name":     skill.Name,
		"category": skill.Category,
		"content":  skill.Content,
	})
	if err != nil {
		return ErrorResult("failed to encode skill content").WithError(err)
	}

	t.cache.Add(cacheKey, string(payload))
	return SilentResult(string(payload))
}
