package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/aide/internal/tools"
)

// WorkerStatus tracks a single tool execution.
type WorkerStatus string

const (
	WorkerPending WorkerStatus = "pending"
	WorkerRunning WorkerStatus = "running"
	WorkerSuccess WorkerStatus = "success"
	WorkerFailed  WorkerStatus = "failed"
	WorkerTimeout WorkerStatus = "timeout"
)

// DefaultWorkerTimeout bounds a single tool call unless overridden.
const DefaultWorkerTimeout = 30 * time.Second

// WorkerResult is the uniform envelope for one tool execution. A failed
// execution carries the original params so the caller can replay or debug
// the call without re-deriving its inputs.
type WorkerResult struct {
	AgentID       string
	ToolName      string
	Status        WorkerStatus
	Data          string
	Error         string
	Params        map[string]interface{}
	ExecutionTime time.Duration
	Timestamp     time.Time
}

// Worker executes one tool call with a timeout. A timed-out call is
// abandoned: the tool goroutine keeps running but its result is discarded.
type Worker struct {
	agentID  string
	registry *tools.Registry
	timeout  time.Duration
}

func NewWorker(agentID string, registry *tools.Registry, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = DefaultWorkerTimeout
	}
	return &Worker{agentID: agentID, registry: registry, timeout: timeout}
}

// Execute runs the named tool with validated args and returns a terminal
// WorkerResult. When args carry an "action" discriminator it is lifted out
// of the payload and routed to the tool's action dispatch.
func (w *Worker) Execute(ctx context.Context, toolName string, args map[string]interface{}) *WorkerResult {
	started := time.Now()
	res := &WorkerResult{
		AgentID:   w.agentID,
		ToolName:  toolName,
		Status:    WorkerRunning,
		Timestamp: started,
	}

	action, callArgs := splitAction(args)

	type outcome struct{ result *tools.Result }
	done := make(chan outcome, 1)
	go func() {
		done <- outcome{w.registry.Execute(ctx, toolName, action, callArgs, w.agentID)}
	}()

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		res.ExecutionTime = time.Since(started)
		if out.result == nil || out.result.IsError {
			res.Status = WorkerFailed
			res.Params = args
			if out.result != nil {
				res.Error = out.result.ForLLM
			} else {
				res.Error = "tool returned no result"
			}
		} else {
			res.Status = WorkerSuccess
			res.Data = out.result.ForLLM
		}
	case <-timer.C:
		res.Status = WorkerTimeout
		res.Params = args
		res.ExecutionTime = time.Since(started)
		res.Error = fmt.Sprintf("tool %q timed out after %s", toolName, w.timeout)
		slog.Warn("tool execution abandoned", "agent", w.agentID, "tool", toolName, "timeout", w.timeout)
	case <-ctx.Done():
		res.Status = WorkerFailed
		res.Params = args
		res.ExecutionTime = time.Since(started)
		res.Error = fmt.Sprintf("tool %q aborted: %v", toolName, ctx.Err())
	}
	return res
}

// splitAction lifts the "action" discriminator out of multi-action tool
// arguments. Tools without actions see their args unchanged.
func splitAction(args map[string]interface{}) (string, map[string]interface{}) {
	raw, ok := args["action"]
	if !ok {
		return "", args
	}
	action, ok := raw.(string)
	if !ok {
		return "", args
	}
	rest := make(map[string]interface{}, len(args)-1)
	for k, v := range args {
		if k != "action" {
			rest[k] = v
		}
	}
	return action, rest
}
