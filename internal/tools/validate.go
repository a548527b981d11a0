package tools

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/aide/internal/providers"
)

// ValidationError reports why a tool call's arguments were rejected. Issues
// are human-readable and meant to be replayed to the model verbatim so it can
// self-correct; Raw preserves the original arguments for that replay.
type ValidationError struct {
	Tool   string
	Issues []string
	Raw    map[string]interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Issues, "; "))
}

// ValidateArgs checks a tool call's raw arguments against the tool's declared
// schema in the catalog. On success it returns a new argument map with
// numeric-looking strings coerced and declared defaults filled in, safe to
// execute. Deterministic and side-effect-free: validating the same call twice
// yields identical outcomes.
func ValidateArgs(toolName string, raw map[string]interface{}, catalog []providers.ToolDefinition) (map[string]interface{}, error) {
	var schema map[string]interface{}
	found := false
	for _, def := range catalog {
		if def.Function.Name == toolName {
			schema = def.Function.Parameters
			found = true
			break
		}
	}
	if !found {
		names := make([]string, 0, len(catalog))
		for _, def := range catalog {
			names = append(names, def.Function.Name)
		}
		sort.Strings(names)
		return nil, &ValidationError{
			Tool:   toolName,
			Issues: []string{fmt.Sprintf("Unknown tool: %q. Valid tools: %s", toolName, strings.Join(names, ", "))},
			Raw:    raw,
		}
	}

	if raw == nil {
		raw = map[string]interface{}{}
	}

	properties, _ := schema["properties"].(map[string]interface{})
	var issues []string
	coerced := make(map[string]interface{}, len(raw))

	// Walk properties in sorted order so issue lists are stable.
	propNames := make([]string, 0, len(properties))
	for name := range properties {
		propNames = append(propNames, name)
	}
	sort.Strings(propNames)

	for _, name := range propNames {
		propSchema, _ := properties[name].(map[string]interface{})
		value, present := raw[name]

		if !present {
			if def, ok := propSchema["default"]; ok {
				coerced[name] = def
			}
			continue
		}

		value, issue := coerceValue(name, value, propSchema)
		if issue != "" {
			issues = append(issues, issue)
			continue
		}
		coerced[name] = value
	}

	// Required fields, after defaults were applied.
	for _, req := range requiredFields(schema) {
		if _, ok := coerced[req]; !ok {
			if _, inRaw := raw[req]; !inRaw {
				issues = append(issues, fmt.Sprintf("Missing required property: %q", req))
			}
		}
	}

	// Unknown fields are rejected only for closed schemas.
	if allowExtra, ok := schema["additionalProperties"].(bool); ok && !allowExtra {
		extra := make([]string, 0)
		for name := range raw {
			if _, known := properties[name]; !known {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		for _, name := range extra {
			issues = append(issues, fmt.Sprintf("Unknown property: %q", name))
		}
	} else {
		// Open schema: pass unknown fields through untouched.
		for name, value := range raw {
			if _, known := properties[name]; !known {
				coerced[name] = value
			}
		}
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Tool: toolName, Issues: issues, Raw: raw}
	}
	return coerced, nil
}

// coerceValue checks one value against its property schema, coercing
// primitives where the intent is unambiguous. Returns the (possibly
// converted) value, or a non-empty issue string on rejection.
func coerceValue(name string, value interface{}, propSchema map[string]interface{}) (interface{}, string) {
	if propSchema == nil {
		return value, ""
	}
	expectedType, _ := propSchema["type"].(string)

	switch expectedType {
	case "number", "integer":
		switch v := value.(type) {
		case float64:
			if expectedType == "integer" && v != float64(int64(v)) {
				return nil, fmt.Sprintf("Property %q must be an integer", name)
			}
		case int:
			value = float64(v)
		case string:
			// Models frequently send numbers as strings.
			n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Sprintf("Property %q must be of type %s", name, expectedType)
			}
			if expectedType == "integer" && n != float64(int64(n)) {
				return nil, fmt.Sprintf("Property %q must be an integer", name)
			}
			value = n
		default:
			return nil, fmt.Sprintf("Property %q must be of type %s", name, expectedType)
		}

	case "string":
		if _, ok := value.(string); !ok {
			return nil, fmt.Sprintf("Property %q must be of type string", name)
		}

	case "boolean":
		switch v := value.(type) {
		case bool:
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Sprintf("Property %q must be of type boolean", name)
			}
			value = b
		default:
			return nil, fmt.Sprintf("Property %q must be of type boolean", name)
		}

	case "array":
		if _, ok := value.([]interface{}); !ok {
			return nil, fmt.Sprintf("Property %q must be of type array", name)
		}

	case "object":
		if _, ok := value.(map[string]interface{}); !ok {
			return nil, fmt.Sprintf("Property %q must be of type object", name)
		}
	}

	if issue := checkEnum(name, value, propSchema); issue != "" {
		return nil, issue
	}
	return value, ""
}

func checkEnum(name string, value interface{}, propSchema map[string]interface{}) string {
	rawEnum, ok := propSchema["enum"]
	if !ok {
		return ""
	}

	var allowed []interface{}
	switch e := rawEnum.(type) {
	case []interface{}:
		allowed = e
	case []string:
		for _, s := range e {
			allowed = append(allowed, s)
		}
	default:
		return ""
	}

	labels := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if a == value {
			return ""
		}
		labels = append(labels, fmt.Sprintf("%v", a))
	}
	return fmt.Sprintf("Property %q must be one of: %s", name, strings.Join(labels, ", "))
}

func requiredFields(schema map[string]interface{}) []string {
	var out []string
	switch req := schema["required"].(type) {
	case []interface{}:
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, req...)
	}
	sort.Strings(out)
	return out
}
