package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nextlevelbuilder/aide/internal/tools"
	"github.com/nextlevelbuilder/aide/internal/tracing"
)

// SpawnTool exposes the supervisor as a tool so a top-level loop can
// delegate bounded tasks to sub-agents.
type SpawnTool struct {
	supervisor *Supervisor
}

func NewSpawnTool(s *Supervisor) *SpawnTool { return &SpawnTool{supervisor: s} }

func (t *SpawnTool) Name() string { return DelegationToolName }

func (t *SpawnTool) Description() string {
	ids := make([]string, 0, len(t.supervisor.Templates()))
	for id := range t.supervisor.Templates() {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("Delegate a self-contained task to a sub-agent with its own tool set "+
		"and iteration budget. Templates: %s. Use for research or multi-step side tasks; "+
		"do not delegate trivial single-tool work.", strings.Join(ids, ", "))
}

func (t *SpawnTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task": map[string]interface{}{
				"type":        "string",
				"description": "Complete, self-contained task statement for the sub-agent",
			},
			"tools": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Tool names the sub-agent may use; omit when using a template",
			},
			"template": map[string]interface{}{
				"type":        "string",
				"description": "Spawn preset providing tools and an iteration budget",
			},
			"maxIterations": map[string]interface{}{
				"type":        "number",
				"description": "Iteration budget, 1-15; must be lower than the parent's",
			},
			"timeoutSeconds": map[string]interface{}{
				"type":        "number",
				"description": "Wall-clock limit in seconds, minimum 5; default 120",
			},
		},
		"required": []string{"task"},
	}
}

func (t *SpawnTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	cfg := SpawnConfig{ParentFlowID: tracing.FlowIDFromContext(ctx)}
	cfg.Task, _ = args["task"].(string)
	cfg.Template, _ = args["template"].(string)
	if raw, ok := args["tools"].([]interface{}); ok {
		for _, v := range raw {
			if name, ok := v.(string); ok {
				cfg.Tools = append(cfg.Tools, name)
			}
		}
	}
	if n, ok := args["maxIterations"].(float64); ok {
		cfg.MaxIterations = int(n)
	}
	if secs, ok := args["timeoutSeconds"].(float64); ok {
		cfg.Timeout = time.Duration(secs) * time.Second
	}

	res, err := t.supervisor.Spawn(ctx, cfg)
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			return tools.ErrorResult("All sub-agent slots are busy right now. Retry later or do the task yourself.")
		}
		return tools.ErrorResult("Sub-agent spawn rejected: " + err.Error())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sub-agent finished with status %s after %d iteration(s).\n", res.Status, res.Iterations)
	if len(res.ToolsUsed) > 0 {
		fmt.Fprintf(&b, "Tools used: %s\n", strings.Join(res.ToolsUsed, ", "))
	}
	if res.Output != "" {
		b.WriteString("\n" + res.Output)
	}
	if res.Error != "" {
		b.WriteString("\nError: " + res.Error)
	}
	return tools.NewResult(b.String())
}
