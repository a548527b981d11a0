package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TodoTool is a multi-action task list: the model calls "todo.create",
// "todo.list" or "todo.complete" and the worker routes the action suffix
// here as a sub-selector. Items live in memory for the process lifetime;
// durable storage belongs to the persistence layer, not this core.
type TodoTool struct {
	mu    sync.Mutex
	items map[string]*todoItem
}

type todoItem struct {
	id        string
	title     string
	priority  int
	done      bool
	createdAt time.Time
}

func NewTodoTool() *TodoTool {
	return &TodoTool{items: make(map[string]*todoItem)}
}

func (t *TodoTool) Name() string { return "todo" }

func (t *TodoTool) Description() string {
	return "Manage the user's task list. Actions: create (requires title), list, complete (requires id)."
}

func (t *TodoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"title": map[string]interface{}{
				"type":        "string",
				"description": "Task title (create).",
			},
			"priority": map[string]interface{}{
				"type":        "number",
				"description": "Priority 1 (highest) to 5.",
				"default":     float64(3),
			},
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Task id (complete).",
			},
		},
	}
}

// Execute without an action behaves as "list".
func (t *TodoTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	return t.ExecuteAction(ctx, "list", args)
}

func (t *TodoTool) ExecuteAction(_ context.Context, action string, args map[string]interface{}) *Result {
	switch action {
	case "create":
		title, _ := args["title"].(string)
		if strings.TrimSpace(title) == "" {
			return ErrorResult(`Missing required property: "title"`)
		}
		priority := 3
		if p, ok := args["priority"].(float64); ok && p >= 1 && p <= 5 {
			priority = int(p)
		}
		item := &todoItem{
			id:        uuid.NewString()[:8],
			title:     title,
			priority:  priority,
			createdAt: time.Now(),
		}
		t.mu.Lock()
		t.items[item.id] = item
		t.mu.Unlock()
		return NewResult(fmt.Sprintf("Created task %s: %s (priority %d)", item.id, item.title, item.priority))

	case "list", "":
		t.mu.Lock()
		items := make([]*todoItem, 0, len(t.items))
		for _, item := range t.items {
			items = append(items, item)
		}
		t.mu.Unlock()
		if len(items) == 0 {
			return NewResult("No tasks.")
		}
		sort.Slice(items, func(i, j int) bool {
			if items[i].priority != items[j].priority {
				return items[i].priority < items[j].priority
			}
			return items[i].createdAt.Before(items[j].createdAt)
		})
		var sb strings.Builder
		for _, item := range items {
			status := " "
			if item.done {
				status = "x"
			}
			fmt.Fprintf(&sb, "[%s] %s p%d %s\n", status, item.id, item.priority, item.title)
		}
		return NewResult(sb.String())

	case "complete":
		id, _ := args["id"].(string)
		t.mu.Lock()
		item, ok := t.items[id]
		if ok {
			item.done = true
		}
		t.mu.Unlock()
		if !ok {
			return ErrorResult(fmt.Sprintf("no task with id %q", id))
		}
		return NewResult(fmt.Sprintf("Completed task %s: %s", item.id, item.title))

	default:
		return ErrorResult(fmt.Sprintf("unknown todo action %q (valid: create, list, complete)", action))
	}
}
