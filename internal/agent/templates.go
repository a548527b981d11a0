package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Template is a named preset for spawning sub-agents: a tool set plus an
// iteration budget, so callers can say "research" instead of enumerating
// tools on every spawn.
type Template struct {
	ID            string   `yaml:"id"`
	Description   string   `yaml:"description"`
	Tools         []string `yaml:"tools"`
	MaxIterations int      `yaml:"maxIterations"`
}

// builtinTemplates ship with the binary and are always available.
func builtinTemplates() map[string]Template {
	return map[string]Template{
		"research": {
			ID:            "research",
			Description:   "Web research: fetch pages and summarize findings",
			Tools:         []string{"web_search", "web_fetch", "current_time"},
			MaxIterations: 8,
		},
		"scheduler": {
			ID:            "scheduler",
			Description:   "Task planning: manage todos and time lookups",
			Tools:         []string{"todo", "current_time"},
			MaxIterations: 5,
		},
	}
}

// LoadTemplates merges user-defined templates from a YAML file over the
// builtins. A missing file is not an error; a malformed one is.
func LoadTemplates(path string) (map[string]Template, error) {
	merged := builtinTemplates()
	if path == "" {
		return merged, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return merged, nil
		}
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var file struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	for _, t := range file.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("template without id in %s", path)
		}
		merged[t.ID] = t
	}
	return merged, nil
}
