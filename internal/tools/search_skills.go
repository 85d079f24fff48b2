package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/skillbase/internal/search"
	"github.com/nextlevelbuilder/skillbase/internal/store"
	"github.com/nextlevelbuilder/skillbase/internal/stream"
)

// SearchSkillsTool builds a weighted query from extracted keywords and
// scores it against the active skill set. Exposed during SKILL_RETRIEVAL.
type SearchSkillsTool struct {
	builder *search.QueryBuilder
	scorer  *search.Scorer
	skills  store.SkillStore
	sink    stream.Sink
}

// NewSearchSkillsTool creates the search_skills tool.
func NewSearchSkillsTool(skills store.SkillStore, sink stream.Sink) *SearchSkillsTool {
	return &SearchSkillsTool{
		builder: search.NewQueryBuilder(),
		scorer:  search.NewScorer(),
		skills:  skills,
		sink:    sink,
	}
}

func (t *SearchSkillsTool) Name() string { return "search_skills" }

func (t *SearchSkillsTool) Description() string {
	return "Search the knowledge base for skills matching the extracted keywords. Returns ranked matches with skill ids for get_skill_content."
}

func (t *SearchSkillsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"keywords": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Keywords from extract_keywords",
			},
			"intent": map[string]interface{}{
				"type":        "string",
				"description": "Intent label from extract_keywords (learn, search, compare, ask, create)",
			},
			"entities": map[string]interface{}{
				"type":        "array",
				"description": "Entities from extract_keywords",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"type":  map[string]interface{}{"type": "string"},
						"value": map[string]interface{}{"type": "string"},
					},
				},
			},
		},
		"required": []string{"keywords"},
	}
}

func (t *SearchSkillsTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	intent := intentFromArgs(args)
	if len(intent.Keywords) == 0 {
		return ErrorResult("keywords parameter is required")
	}

	candidates, err := t.skills.ListActive(ctx)
	if err != nil {
		return ErrorResult("skill store unavailable: " + err.Error()).WithError(err)
	}

	query := t.builder.Build(intent)
	matches := t.scorer.Search(query, candidates)

	slog.Info("search_skills executed",
		"conversation_id", ToolConversationID(ctx),
		"turn_id", ToolTurnID(ctx),
		"keywords", intent.Keywords,
		"candidates", len(candidates),
		"matches", len(matches),
	)

	if t.sink != nil {
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		t.sink.Emit(stream.EventSearchResults, map[string]any{
			"count":  len(matches),
			"skills": names,
		})
	}

	if len(matches) == 0 {
		return NewResult(fmt.Sprintf("No skills found for keywords: %v", intent.Keywords))
	}

	data, err := json.Marshal(map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	})
	if err != nil {
		return ErrorResult("failed to encode matches").WithError(err)
	}
	return SilentResult(string(data))
}

// intentFromArgs rebuilds an IntentResult from the model's tool arguments.
// The model echoes back what extract_keywords returned; malformed entries
// are dropped rather than failing the call.
func intentFromArgs(args map[string]interface{}) search.IntentResult {
	out := search.IntentResult{Intent: "search"}

	if kws, ok := args["keywords"].([]interface{}); ok {
		for _, kw := range kws {
			if s, ok := kw.(string); ok && s != "" {
				out.Keywords = append(out.Keywords, s)
			}
		}
	}
	if s, ok := args["intent"].(string); ok && s != "" {
		out.Intent = s
	}
	if ents, ok := args["entities"].([]interface{}); ok {
		for _, e := range ents {
			m, ok := e.(map[string]interface{})
			if !ok {
				continue
			}
			typ, _ := m["type"].(string)
			val, _ := m["value"].(string)
			if typ != "" && val != "" {
				out.Entities = append(out.Entities, search.Entity{Type: typ, Value: val})
			}
		}
	}
	return out
}
