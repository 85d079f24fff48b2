package providers

import (
	"testing"
)

func TestCleanToolSchemas_Anthropic(t *testing.T) {
	tools := []ToolDefinition{{
		Type: "function",
		Function: ToolFunctionSchema{
			Name:        "test",
			Description: "desc",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": map[string]interface{}{
						"type": "string",
						"$ref": "#/$defs/URL",
					},
				},
				"$defs":                map[string]interface{}{"URL": "..."},
				"additionalProperties": false,
				"default":              "x",
			},
		},
	}}

	cleaned := CleanToolSchemas("anthropic", tools)
	if len(cleaned) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(cleaned))
	}
	params := cleaned[0].Function.Parameters

	if _, ok := params["$defs"]; ok {
		t.Error("expected $defs removed for anthropic")
	}
	props := params["properties"].(map[string]interface{})
	urlSchema := props["url"].(map[string]interface{})
	if _, ok := urlSchema["$ref"]; ok {
		t.Error("expected nested $ref removed for anthropic")
	}

	// Anthropic accepts everything else
	if _, ok := params["additionalProperties"]; !ok {
		t.Error("expected additionalProperties to remain for anthropic")
	}
	if _, ok := params["default"]; !ok {
		t.Error("expected default to remain for anthropic")
	}
}

func TestCleanToolSchemas_OpenAICompatible(t *testing.T) {
	tools := []ToolDefinition{{
		Type: "function",
		Function: ToolFunctionSchema{
			Name: "test",
			Parameters: map[string]interface{}{
				"$ref":    "something",
				"default": "val",
			},
		},
	}}

	// openai and dashscope take full JSON Schema; the slice comes back as-is.
	for _, name := range []string{"openai", "dashscope"} {
		cleaned := CleanToolSchemas(name, tools)
		if _, ok := cleaned[0].Function.Parameters["$ref"]; !ok {
			t.Errorf("%s: expected $ref to remain", name)
		}
	}
}

func TestCleanToolSchemas_Empty(t *testing.T) {
	cleaned := CleanToolSchemas("anthropic", nil)
	if cleaned != nil {
		t.Error("expected nil for nil tools")
	}
}

func TestCleanSchema_NilParams(t *testing.T) {
	result := CleanSchemaForProvider("anthropic", nil)
	if result != nil {
		t.Error("expected nil for nil params")
	}
}

func TestCleanSchema_NestedArray(t *testing.T) {
	params := map[string]interface{}{
		"anyOf": []interface{}{
			map[string]interface{}{
				"type": "string",
			},
			map[string]interface{}{
				"type": "number",
				"$ref": "#/$defs/Num",
			},
		},
	}

	cleaned := CleanSchemaForProvider("anthropic", params)
	anyOf := cleaned["anyOf"].([]interface{})
	if len(anyOf) != 2 {
		t.Fatalf("expected 2 items, got %d", len(anyOf))
	}

	second := anyOf[1].(map[string]interface{})
	if _, ok := second["$ref"]; ok {
		t.Error("expected '$ref' removed in array item")
	}
	if _, ok := second["type"]; !ok {
		t.Error("expected 'type' to remain in array item")
	}
}

func TestCleanSchema_DeepNesting(t *testing.T) {
	params := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"config": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"nested": map[string]interface{}{
						"type": "string",
						"$ref": "#/deep",
					},
				},
			},
		},
	}

	cleaned := CleanSchemaForProvider("anthropic", params)
	props := cleaned["properties"].(map[string]interface{})
	config := props["config"].(map[string]interface{})
	innerProps := config["properties"].(map[string]interface{})
	nested := innerProps["nested"].(map[string]interface{})

	if _, ok := nested["$ref"]; ok {
		t.Error("expected deeply nested '$ref' removed")
	}
	if _, ok := nested["type"]; !ok {
		t.Error("expected 'type' to remain at deep level")
	}
}
