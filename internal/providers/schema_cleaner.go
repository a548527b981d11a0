package providers

import "strings"

// Some providers reject JSON Schema keywords in tool parameter schemas.
// Gemini-compatible endpoints refuse $ref/$defs/additionalProperties/
// examples/default; Anthropic-compatible ones refuse $ref/$defs.
var unsupportedSchemaKeys = map[string][]string{
	"gemini":    {"$ref", "$defs", "additionalProperties", "examples", "default"},
	"anthropic": {"$ref", "$defs"},
}

// CleanToolSchemas returns a copy of tools with schema keywords the named
// provider cannot accept stripped from each tool's parameters. Providers
// without known restrictions get the original slice back untouched.
func CleanToolSchemas(providerName string, tools []ToolDefinition) []ToolDefinition {
	remove := keysToRemove(providerName)
	if remove == nil || len(tools) == 0 {
		return tools
	}

	cleaned := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		cleaned[i] = ToolDefinition{
			Type: t.Type,
			Function: ToolFunctionSchema{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  stripSchemaKeys(t.Function.Parameters, remove),
			},
		}
	}
	return cleaned
}

func keysToRemove(providerName string) []string {
	if keys, ok := unsupportedSchemaKeys[providerName]; ok {
		return keys
	}
	// Family-prefixed names ("gemini-flash", "anthropic-proxy") inherit
	// the family's restrictions.
	for family, keys := range unsupportedSchemaKeys {
		if strings.HasPrefix(providerName, family+"-") {
			return keys
		}
	}
	return nil
}

// stripSchemaKeys removes the given keys from a schema map, recursing into
// nested schemas and keyword arrays (anyOf/oneOf/allOf).
func stripSchemaKeys(schema map[string]interface{}, remove []string) map[string]interface{} {
	if schema == nil {
		return nil
	}

	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		if containsKey(remove, k) {
			continue
		}
		switch val := v.(type) {
		case map[string]interface{}:
			out[k] = stripSchemaKeys(val, remove)
		case []interface{}:
			items := make([]interface{}, len(val))
			for i, item := range val {
				if m, ok := item.(map[string]interface{}); ok {
					items[i] = stripSchemaKeys(m, remove)
				} else {
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
