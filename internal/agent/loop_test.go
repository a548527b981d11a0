package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/aide/internal/providers"
	"github.com/nextlevelbuilder/aide/internal/tools"
)

// scriptedProvider replays a fixed sequence of responses and records every
// request it receives.
type scriptedProvider struct {
	mu       sync.Mutex
	steps    []scriptedStep
	requests []providers.ChatRequest
}

type scriptedStep struct {
	resp *providers.ChatResponse
	err  error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.steps) == 0 {
		return &providers.ChatResponse{Content: "done"}, nil
	}
	step := p.steps[0]
	p.steps = p.steps[1:]
	return step.resp, step.err
}

func textResponse(s string) scriptedStep {
	return scriptedStep{resp: &providers.ChatResponse{Content: s}}
}

func toolCallResponse(calls ...providers.ToolCall) scriptedStep {
	return scriptedStep{resp: &providers.ChatResponse{ToolCalls: calls}}
}

// stubTool is a minimal Tool for loop tests.
type stubTool struct {
	name   string
	params map[string]interface{}
	fn     func(ctx context.Context, args map[string]interface{}) *tools.Result
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub " + t.name }

func (t *stubTool) Parameters() map[string]interface{} {
	if t.params != nil {
		return t.params
	}
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func (t *stubTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if t.fn != nil {
		return t.fn(ctx, args)
	}
	return tools.NewResult("ok")
}

func newTestRegistry(ts ...tools.Tool) *tools.Registry {
	reg := tools.NewRegistry()
	for _, t := range ts {
		reg.Register(t)
	}
	return reg
}

func weatherTool(t *testing.T) *stubTool {
	t.Helper()
	return &stubTool{
		name: "weather",
		params: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"city": map[string]interface{}{"type": "string"},
			},
			"required": []string{"city"},
		},
		fn: func(_ context.Context, args map[string]interface{}) *tools.Result {
			city, _ := args["city"].(string)
			return tools.NewResult("Sunny in " + city + ", 21C")
		},
	}
}

func TestLoopCompletesWithoutTools(t *testing.T) {
	p := &scriptedProvider{steps: []scriptedStep{textResponse("hello there")}}
	loop, err := NewLoop(LoopConfig{ID: "main", Provider: p, Registry: newTestRegistry()})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	res, err := loop.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success || res.Status != LoopCompleted {
		t.Errorf("status = %s success = %v, want completed/true", res.Status, res.Success)
	}
	if res.Output != "hello there" {
		t.Errorf("output = %q", res.Output)
	}
	if res.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", res.Iterations)
	}
	if len(res.ToolsUsed) != 0 {
		t.Errorf("tools used = %v, want none", res.ToolsUsed)
	}
}

func TestLoopExecutesToolAndAnswers(t *testing.T) {
	p := &scriptedProvider{steps: []scriptedStep{
		toolCallResponse(providers.ToolCall{
			ID: "c1", Name: "weather",
			Arguments: map[string]interface{}{"city": "Paris"},
		}),
		textResponse("It is sunny in Paris, 21C."),
	}}
	loop, err := NewLoop(LoopConfig{ID: "main", Provider: p, Registry: newTestRegistry(weatherTool(t))})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	res, err := loop.Run(context.Background(), "weather in paris?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	if res.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", res.Iterations)
	}
	if len(res.ToolsUsed) != 1 || res.ToolsUsed[0] != "weather" {
		t.Errorf("tools used = %v", res.ToolsUsed)
	}

	// Second request must carry the tool result back to the model.
	second := p.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != providers.RoleTool || !strings.Contains(last.Content, "Sunny in Paris") {
		t.Errorf("tool message not fed back: role=%s content=%q", last.Role, last.Content)
	}
	if last.ToolCallID != "c1" {
		t.Errorf("tool call id = %q, want c1", last.ToolCallID)
	}
}

func TestLoopAbsorbsValidationFailure(t *testing.T) {
	p := &scriptedProvider{steps: []scriptedStep{
		toolCallResponse(providers.ToolCall{
			ID: "c1", Name: "weather",
			Arguments: map[string]interface{}{}, // missing required city
		}),
		toolCallResponse(providers.ToolCall{
			ID: "c2", Name: "weather",
			Arguments: map[string]interface{}{"city": "Paris"},
		}),
		textResponse("Sunny in Paris."),
	}}
	loop, err := NewLoop(LoopConfig{ID: "main", Provider: p, Registry: newTestRegistry(weatherTool(t))})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	res, err := loop.Run(context.Background(), "weather in paris?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	if res.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", res.Iterations)
	}

	// The validation error travels back as a tool message, not an abort.
	second := p.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if !strings.Contains(last.Content, "Missing required property") {
		t.Errorf("validation feedback missing, got %q", last.Content)
	}
}

func TestLoopRejectsOutOfCatalogTool(t *testing.T) {
	p := &scriptedProvider{steps: []scriptedStep{
		toolCallResponse(providers.ToolCall{
			ID: "c1", Name: "shell",
			Arguments: map[string]interface{}{"cmd": "ls"},
		}),
		textResponse("cannot do that"),
	}}
	// shell is registered but not in this loop's allow list.
	reg := newTestRegistry(weatherTool(t), &stubTool{name: "shell"})
	loop, err := NewLoop(LoopConfig{
		ID: "main", Provider: p, Registry: reg,
		AllowedTools: []string{"weather"},
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	res, err := loop.Run(context.Background(), "run ls")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	second := p.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if !strings.Contains(last.Content, "not available") {
		t.Errorf("rejection feedback missing, got %q", last.Content)
	}
}

func TestLoopToolsUsedExcludesRejectedCalls(t *testing.T) {
	// A call turned away at the catalog gate must not show up in the
	// tools-used record, even when the run dies before answering.
	p := &scriptedProvider{steps: []scriptedStep{
		toolCallResponse(providers.ToolCall{
			ID: "c1", Name: "shell",
			Arguments: map[string]interface{}{"cmd": "ls"},
		}),
		{err: errors.New("upstream 502")},
	}}
	reg := newTestRegistry(weatherTool(t), &stubTool{name: "shell"})
	loop, err := NewLoop(LoopConfig{
		ID: "main", Provider: p, Registry: reg,
		AllowedTools: []string{"weather"},
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	res, err := loop.Run(context.Background(), "run ls")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != LoopFailed {
		t.Errorf("status = %s, want %s", res.Status, LoopFailed)
	}
	if len(res.ToolsUsed) != 0 {
		t.Errorf("rejected call recorded as used: %v", res.ToolsUsed)
	}
}

func TestLoopToolsUsedExcludesInvalidArgs(t *testing.T) {
	p := &scriptedProvider{steps: []scriptedStep{
		toolCallResponse(providers.ToolCall{
			ID: "c1", Name: "weather",
			Arguments: map[string]interface{}{}, // missing required city
		}),
		{err: errors.New("upstream 502")},
	}}
	loop, err := NewLoop(LoopConfig{ID: "main", Provider: p, Registry: newTestRegistry(weatherTool(t))})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	res, err := loop.Run(context.Background(), "weather?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.ToolsUsed) != 0 {
		t.Errorf("call with invalid args recorded as used: %v", res.ToolsUsed)
	}
}

func TestSubAgentLoopRejectsDelegation(t *testing.T) {
	p := &scriptedProvider{steps: []scriptedStep{
		toolCallResponse(providers.ToolCall{
			ID: "c1", Name: DelegationToolName,
			Arguments: map[string]interface{}{"task": "recurse"},
		}),
		textResponse("understood"),
	}}
	loop, err := NewLoop(LoopConfig{
		ID: "sub-1", Provider: p, Registry: newTestRegistry(weatherTool(t)),
		IsSubAgent: true,
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	res, err := loop.Run(context.Background(), "do the thing")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	second := p.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if !strings.Contains(last.Content, "cannot spawn") {
		t.Errorf("delegation rejection missing, got %q", last.Content)
	}
	if len(res.ToolsUsed) != 0 {
		t.Errorf("rejected delegation recorded as used: %v", res.ToolsUsed)
	}
}

func TestLoopStopsAtMaxIterations(t *testing.T) {
	call := providers.ToolCall{
		ID: "c", Name: "weather",
		Arguments: map[string]interface{}{"city": "Paris"},
	}
	p := &scriptedProvider{steps: []scriptedStep{
		toolCallResponse(call), toolCallResponse(call), toolCallResponse(call),
		toolCallResponse(call), toolCallResponse(call),
	}}
	loop, err := NewLoop(LoopConfig{
		ID: "main", Provider: p, Registry: newTestRegistry(weatherTool(t)),
		MaxIterations: 3,
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	res, err := loop.Run(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Error("expected non-success at iteration cap")
	}
	if res.Status != LoopMaxIterations {
		t.Errorf("status = %s, want %s", res.Status, LoopMaxIterations)
	}
	if res.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", res.Iterations)
	}
	if !strings.Contains(res.Output, "weather") {
		t.Errorf("summary should name tools used, got %q", res.Output)
	}
}

func TestLoopModelErrorFirstIteration(t *testing.T) {
	p := &scriptedProvider{steps: []scriptedStep{{err: errors.New("upstream 500")}}}
	loop, err := NewLoop(LoopConfig{ID: "main", Provider: p, Registry: newTestRegistry()})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	res, err := loop.Run(context.Background(), "hi")
	if err == nil {
		t.Fatalf("expected error, got result %+v", res)
	}
	if !strings.Contains(err.Error(), "upstream 500") {
		t.Errorf("error = %v", err)
	}
}

func TestLoopModelErrorKeepsPartialProgress(t *testing.T) {
	p := &scriptedProvider{steps: []scriptedStep{
		toolCallResponse(providers.ToolCall{
			ID: "c1", Name: "weather",
			Arguments: map[string]interface{}{"city": "Paris"},
		}),
		{err: errors.New("upstream 503")},
	}}
	loop, err := NewLoop(LoopConfig{ID: "main", Provider: p, Registry: newTestRegistry(weatherTool(t))})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	res, err := loop.Run(context.Background(), "weather?")
	if err != nil {
		t.Fatalf("mid-run model error must not propagate: %v", err)
	}
	if res.Success || res.Status != LoopFailed {
		t.Errorf("status = %s success = %v, want failed/false", res.Status, res.Success)
	}
	if res.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", res.Iterations)
	}
	if len(res.ToolsUsed) != 1 || res.ToolsUsed[0] != "weather" {
		t.Errorf("partial tools used lost: %v", res.ToolsUsed)
	}
}

func TestLoopEmitsEvents(t *testing.T) {
	p := &scriptedProvider{steps: []scriptedStep{
		toolCallResponse(providers.ToolCall{
			ID: "c1", Name: "weather",
			Arguments: map[string]interface{}{"city": "Oslo"},
		}),
		textResponse("Sunny."),
	}}
	var mu sync.Mutex
	var types []string
	loop, err := NewLoop(LoopConfig{
		ID: "main", Provider: p, Registry: newTestRegistry(weatherTool(t)),
		OnEvent: func(ev Event) {
			mu.Lock()
			types = append(types, ev.Type)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if _, err := loop.Run(context.Background(), "weather?"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := map[string]bool{
		EventRunStarted: false, EventIteration: false,
		EventToolCall: false, EventToolResult: false, EventRunCompleted: false,
	}
	for _, typ := range types {
		if _, ok := want[typ]; ok {
			want[typ] = true
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Errorf("event %s never emitted (got %v)", typ, types)
		}
	}
}

func TestLoopDistinguishesCancellationFromTimeout(t *testing.T) {
	newLoop := func() *Loop {
		loop, err := NewLoop(LoopConfig{ID: "main", Provider: &scriptedProvider{}, Registry: newTestRegistry()})
		if err != nil {
			t.Fatalf("NewLoop: %v", err)
		}
		return loop
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := newLoop().Run(ctx, "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != LoopFailed {
		t.Errorf("status = %s, want %s", res.Status, LoopFailed)
	}
	if !strings.Contains(res.Error, "cancelled") || strings.Contains(res.Error, "exceeded") {
		t.Errorf("cancellation reported as %q", res.Error)
	}

	dctx, dcancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer dcancel()
	res, err = newLoop().Run(dctx, "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != LoopTimeout {
		t.Errorf("status = %s, want %s", res.Status, LoopTimeout)
	}
	if !strings.Contains(res.Error, "deadline") {
		t.Errorf("deadline expiry reported as %q", res.Error)
	}
}
