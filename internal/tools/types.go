package tools

import (
	"context"

	"github.com/nextlevelbuilder/aide/internal/providers"
)

// Tool is the interface all tools must implement. Parameters returns a JSON
// Schema object describing the accepted arguments; the agent core validates
// arguments against it before Execute is ever called.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// ActionTool is implemented by multi-action tools. The worker extracts the
// "action" discriminator from raw arguments and passes it as a sub-selector
// instead of leaving it among the plain fields.
type ActionTool interface {
	Tool
	ExecuteAction(ctx context.Context, action string, args map[string]interface{}) *Result
}

// ToProviderDef converts a Tool to the wire definition LLM APIs expect.
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
