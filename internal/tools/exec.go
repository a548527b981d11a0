package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	shellwords "github.com/mattn/go-shellwords"
)

const (
	execDefaultTimeout = 10 * time.Second
	execMaxTimeout     = 120 * time.Second
	execOutputMaxChars = 20000
)

// ExecTool runs a shell command inside the workspace with a hard timeout.
// Execution is stateless: each call is a fresh process group, output is
// captured and truncated, and the process is killed when the budget expires.
type ExecTool struct {
	workspace string
	restrict  bool
}

func NewExecTool(workspace string, restrictToWorkspace bool) *ExecTool {
	return &ExecTool{workspace: workspace, restrict: restrictToWorkspace}
}

func (t *ExecTool) Name() string { return "exec" }

func (t *ExecTool) Description() string {
	return "Execute a shell command in the workspace and return its output. Commands are killed after the timeout."
}

func (t *ExecTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Command line to execute.",
			},
			"timeoutSeconds": map[string]interface{}{
				"type":        "number",
				"description": "Wall-clock budget in seconds (max 120).",
				"default":     float64(10),
			},
			"workingDir": map[string]interface{}{
				"type":        "string",
				"description": "Working directory, relative to the workspace.",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return ErrorResult("command is required")
	}

	words, err := shellwords.Parse(command)
	if err != nil {
		return ErrorResult(fmt.Sprintf("cannot parse command: %v", err))
	}
	if len(words) == 0 {
		return ErrorResult("empty command")
	}

	timeout := execDefaultTimeout
	if ts, ok := args["timeoutSeconds"].(float64); ok && ts > 0 {
		timeout = time.Duration(ts) * time.Second
		if timeout > execMaxTimeout {
			timeout = execMaxTimeout
		}
	}

	dir := t.workspace
	if wd, ok := args["workingDir"].(string); ok && wd != "" {
		resolved := filepath.Join(t.workspace, wd)
		if t.restrict && !strings.HasPrefix(filepath.Clean(resolved)+string(filepath.Separator), filepath.Clean(t.workspace)+string(filepath.Separator)) {
			return ErrorResult(fmt.Sprintf("workingDir escapes the workspace: %s", wd))
		}
		dir = resolved
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, words[0], words[1:]...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start).Round(time.Millisecond)

	output := out.String()
	if len(output) > execOutputMaxChars {
		output = output[:execOutputMaxChars] + "\n[output truncated]"
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return ErrorResult(fmt.Sprintf("command timed out after %s\n%s", timeout, output))
	}
	if err != nil {
		return ErrorResult(fmt.Sprintf("command failed (%v) after %s\n%s", err, elapsed, output)).WithError(err)
	}
	if output == "" {
		output = "(no output)"
	}
	return NewResult(output)
}
