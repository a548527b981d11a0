package tools

import (
	"context"
	"strings"
	"testing"
)

func TestTodoTool_CreateCompleteList(t *testing.T) {
	tool := NewTodoTool()
	ctx := context.Background()

	created := tool.ExecuteAction(ctx, "create", map[string]interface{}{
		"title":    "book flights",
		"priority": float64(1),
	})
	if created.IsError {
		t.Fatalf("create failed: %s", created.ForLLM)
	}

	// "Created task <id>: ..."
	fields := strings.Fields(created.ForLLM)
	id := strings.TrimSuffix(fields[2], ":")

	done := tool.ExecuteAction(ctx, "complete", map[string]interface{}{"id": id})
	if done.IsError {
		t.Fatalf("complete failed: %s", done.ForLLM)
	}

	listed := tool.ExecuteAction(ctx, "list", nil)
	if !strings.Contains(listed.ForLLM, "[x]") {
		t.Errorf("expected completed marker in list, got %q", listed.ForLLM)
	}
}

func TestTodoTool_CreateRequiresTitle(t *testing.T) {
	tool := NewTodoTool()
	result := tool.ExecuteAction(context.Background(), "create", map[string]interface{}{})
	if !result.IsError || !strings.Contains(result.ForLLM, `"title"`) {
		t.Errorf("expected title error, got %+v", result)
	}
}

func TestTodoTool_UnknownAction(t *testing.T) {
	tool := NewTodoTool()
	result := tool.ExecuteAction(context.Background(), "destroy", nil)
	if !result.IsError || !strings.Contains(result.ForLLM, "unknown todo action") {
		t.Errorf("expected unknown-action error, got %+v", result)
	}
}

func TestTodoTool_CompleteUnknownID(t *testing.T) {
	tool := NewTodoTool()
	result := tool.ExecuteAction(context.Background(), "complete", map[string]interface{}{"id": "nope"})
	if !result.IsError {
		t.Error("expected error for unknown id")
	}
}
