package agent

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/aide/internal/tools"
)

func TestWorkerSuccess(t *testing.T) {
	reg := newTestRegistry(&stubTool{
		name: "echo",
		fn: func(_ context.Context, args map[string]interface{}) *tools.Result {
			s, _ := args["text"].(string)
			return tools.NewResult("echo: " + s)
		},
	})
	w := NewWorker("main", reg, 0)

	res := w.Execute(context.Background(), "echo", map[string]interface{}{"text": "hi"})
	if res.Status != WorkerSuccess {
		t.Fatalf("status = %s, want success (%s)", res.Status, res.Error)
	}
	if res.Data != "echo: hi" {
		t.Errorf("data = %q", res.Data)
	}
	if res.Params != nil {
		t.Errorf("params attached on success: %v", res.Params)
	}
	if res.ToolName != "echo" || res.AgentID != "main" {
		t.Errorf("envelope = %+v", res)
	}
}

func TestWorkerFailureKeepsParams(t *testing.T) {
	reg := newTestRegistry(&stubTool{
		name: "boom",
		fn: func(context.Context, map[string]interface{}) *tools.Result {
			return tools.ErrorResult("disk full")
		},
	})
	w := NewWorker("main", reg, 0)

	args := map[string]interface{}{"path": "/tmp/x"}
	res := w.Execute(context.Background(), "boom", args)
	if res.Status != WorkerFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if res.Error != "disk full" {
		t.Errorf("error = %q", res.Error)
	}
	if res.Params["path"] != "/tmp/x" {
		t.Errorf("params not preserved on failure: %v", res.Params)
	}
}

func TestWorkerTimeoutAbandonsTool(t *testing.T) {
	release := make(chan struct{})
	reg := newTestRegistry(&stubTool{
		name: "slow",
		fn: func(context.Context, map[string]interface{}) *tools.Result {
			<-release
			return tools.NewResult("too late")
		},
	})
	defer close(release)

	w := NewWorker("main", reg, 50*time.Millisecond)
	start := time.Now()
	res := w.Execute(context.Background(), "slow", map[string]interface{}{"n": float64(1)})
	elapsed := time.Since(start)

	if res.Status != WorkerTimeout {
		t.Fatalf("status = %s, want timeout", res.Status)
	}
	if res.Params == nil {
		t.Error("timeout result should carry params")
	}
	if res.Data != "" {
		t.Errorf("abandoned tool leaked data: %q", res.Data)
	}
	if elapsed > time.Second {
		t.Errorf("worker blocked past its timeout: %s", elapsed)
	}
}

func TestWorkerUnknownTool(t *testing.T) {
	w := NewWorker("main", newTestRegistry(), 0)
	res := w.Execute(context.Background(), "nope", nil)
	if res.Status != WorkerFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
}

func TestSplitAction(t *testing.T) {
	action, rest := splitAction(map[string]interface{}{
		"action": "create",
		"title":  "buy milk",
	})
	if action != "create" {
		t.Errorf("action = %q", action)
	}
	if _, ok := rest["action"]; ok {
		t.Error("action left in args")
	}
	if rest["title"] != "buy milk" {
		t.Errorf("rest = %v", rest)
	}

	action, rest = splitAction(map[string]interface{}{"title": "x"})
	if action != "" || rest["title"] != "x" {
		t.Errorf("no-action args mangled: %q %v", action, rest)
	}

	// Non-string action stays in the payload.
	action, rest = splitAction(map[string]interface{}{"action": float64(3)})
	if action != "" {
		t.Errorf("action = %q, want empty", action)
	}
	if _, ok := rest["action"]; !ok {
		t.Error("non-string action removed from args")
	}
}
