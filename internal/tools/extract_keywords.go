package tools

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/skillbase/internal/search"
	"github.com/nextlevelbuilder/skillbase/internal/stream"
)

// ExtractKeywordsTool runs intent extraction over the user's question. It is
// the only tool exposed during INIT/INTENT_ANALYSIS; calling it moves the
// conversation into SKILL_RETRIEVAL.
type ExtractKeywordsTool struct {
	extractor *search.Extractor
	sink      stream.Sink // nil = no observability events
}

// NewExtractKeywordsTool creates the extract_keywords tool.
func NewExtractKeywordsTool(extractor *search.Extractor, sink stream.Sink) *ExtractKeywordsTool {
	return &ExtractKeywordsTool{extractor: extractor, sink: sink}
}

func (t *ExtractKeywordsTool) Name() string { return "extract_keywords" }

func (t *ExtractKeywordsTool) Description() string {
	return "Extract search keywords, intent, and entities from the user's question. Call this first, before searching for skills."
}

func (t *ExtractKeywordsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{
				"type":        "string",
				"description": "The user's question, verbatim",
			},
		},
		"required": []string{"text"},
	}
}

func (t *ExtractKeywordsTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	text, _ := args["text"].(string)
	if text == "" {
		return ErrorResult("text parameter is required")
	}

	result := t.extractor.Extract(ctx, text)

	if t.sink != nil {
		t.sink.Emit(stream.EventIntentExtracted, map[string]any{
			"keywords": result.Keywords,
			"intent":   result.Intent,
		})
	}

	data, err := json.Marshal(result)
	if err != nil {
		return ErrorResult("failed to encode extraction result").WithError(err)
	}
	return SilentResult(string(data))
}
