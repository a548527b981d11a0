package agent

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// buildSystemPrompt assembles the system message for a top-level loop.
func buildSystemPrompt(agentID, workspace string, toolNames []string) string {
	var b strings.Builder
	b.WriteString("You are aide, a personal assistant agent.\n\n")
	fmt.Fprintf(&b, "Agent ID: %s\n", agentID)
	if workspace != "" {
		fmt.Fprintf(&b, "Workspace: %s\n", workspace)
	}
	fmt.Fprintf(&b, "Current time: %s\n\n", time.Now().Format(time.RFC1123))

	if len(toolNames) > 0 {
		names := append([]string(nil), toolNames...)
		sort.Strings(names)
		b.WriteString("Available tools: " + strings.Join(names, ", ") + "\n")
		b.WriteString("Use tools when they help. When no tool is needed, answer directly.\n")
	}
	b.WriteString("Keep answers concise. Report tool failures honestly instead of guessing.\n")
	return b.String()
}

// buildSubAgentPrompt assembles the narrower prompt for a delegated task.
// Sub-agents get the task statement up front and no delegation guidance.
func buildSubAgentPrompt(task string, toolNames []string) string {
	var b strings.Builder
	b.WriteString("You are a focused sub-agent working on a single delegated task.\n\n")
	b.WriteString("Task: " + task + "\n\n")
	if len(toolNames) > 0 {
		names := append([]string(nil), toolNames...)
		sort.Strings(names)
		b.WriteString("Available tools: " + strings.Join(names, ", ") + "\n")
	}
	b.WriteString("Complete the task and reply with your findings. Do not ask questions;\n")
	b.WriteString("make reasonable assumptions and state them.\n")
	return b.String()
}
