// Package tools implements the capability registry and the staged retrieval
// tools the model calls during a turn.
package tools

import (
	"context"

	"github.com/nextlevelbuilder/skillbase/internal/providers"
)

// Tool is the interface all tools must implement. Execute never panics and
// never returns a nil Result; failures come back as error results so the
// model can react to them.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// ToProviderDef converts a Tool to a providers.ToolDefinition for LLM APIs.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}
