package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/aide/internal/providers"
	"github.com/nextlevelbuilder/aide/internal/tools"
	"github.com/nextlevelbuilder/aide/internal/tracing"
)

// DefaultMaxIterations bounds a top-level loop unless configured otherwise.
const DefaultMaxIterations = 20

// DelegationToolName is the tool a top-level loop uses to spawn sub-agents.
// Sub-agent loops reject calls to it.
const DelegationToolName = "spawn_subagent"

var (
	ErrNoProvider = errors.New("agent: no provider configured")
	ErrNoRegistry = errors.New("agent: no tool registry configured")
)

// LoopConfig configures a single agent loop.
type LoopConfig struct {
	ID            string
	Provider      providers.Provider
	Model         string
	Registry      *tools.Registry
	AllowedTools  []string // subset of registered tools; empty means all
	SystemPrompt  string   // built from ID/Workspace when empty
	Workspace     string
	MaxIterations int
	Timeout       time.Duration // wall clock for the whole run; 0 disables
	WorkerTimeout time.Duration
	ContextWindow int // tokens; 0 disables pruning
	Prune         PruneConfig
	IsSubAgent    bool
	Collector     *tracing.Collector
	OnEvent       EventHandler
}

// Loop drives one conversation: model call, tool dispatch, repeat until a
// plain-text answer, the iteration cap, or the deadline.
type Loop struct {
	cfg     LoopConfig
	worker  *Worker
	catalog []providers.ToolDefinition
	flowID  uuid.UUID
}

func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Provider == nil {
		return nil, ErrNoProvider
	}
	if cfg.Registry == nil {
		return nil, ErrNoRegistry
	}
	if cfg.ID == "" {
		cfg.ID = "main"
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Loop{
		cfg:     cfg,
		worker:  NewWorker(cfg.ID, cfg.Registry, cfg.WorkerTimeout),
		catalog: cfg.Registry.Definitions(cfg.AllowedTools...),
	}, nil
}

// FlowID returns the flow identifier of the last (or current) run.
func (l *Loop) FlowID() uuid.UUID { return l.flowID }

// Run executes the loop for one user input and always produces exactly one
// Result. The returned error is non-nil only when the very first model call
// fails: no useful partial state exists at that point. A model failure on a
// later iteration is folded into a failed Result that keeps the progress
// made so far.
func (l *Loop) Run(ctx context.Context, input string) (*Result, error) {
	started := time.Now()
	l.flowID = uuid.New()
	ctx = tracing.WithFlowID(ctx, l.flowID)
	ctx = tracing.WithCollector(ctx, l.cfg.Collector)

	kind := "agent_loop"
	if l.cfg.IsSubAgent {
		kind = "subagent_loop"
	}
	l.cfg.Collector.StartFlow(l.flowID, kind)
	l.emit(Event{Type: EventRunStarted, AgentID: l.cfg.ID, FlowID: l.flowID,
		Data: map[string]interface{}{"input": tracing.Preview(input)}})

	scanInput(l.cfg.ID, input)

	messages := []providers.Message{{Role: providers.RoleUser, Content: input}}
	res := l.iterate(ctx, started, messages)
	if res.err != nil {
		l.cfg.Collector.CompleteFlow(l.flowID, tracing.FlowFailed, res.err.Error())
		return nil, res.err
	}

	out := res.result
	out.ExecutionTime = time.Since(started)
	flowStatus := tracing.FlowCompleted
	if !out.Success {
		flowStatus = tracing.FlowFailed
		if out.Status == LoopTimeout {
			flowStatus = tracing.FlowTimeout
		}
	}
	l.cfg.Collector.CompleteFlow(l.flowID, flowStatus, out.Error)
	l.emit(Event{Type: EventRunCompleted, AgentID: l.cfg.ID, FlowID: l.flowID,
		Data: map[string]interface{}{
			"status":     string(out.Status),
			"iterations": out.Iterations,
			"tools_used": out.ToolsUsed,
		}})
	return out, nil
}

type loopOutcome struct {
	result *Result
	err    error
}

func (l *Loop) iterate(ctx context.Context, started time.Time, messages []providers.Message) loopOutcome {
	system := l.cfg.SystemPrompt
	if system == "" {
		system = buildSystemPrompt(l.cfg.ID, l.cfg.Workspace, l.cfg.Registry.Names())
	}

	var (
		toolsUsed []string
		seenTools = map[string]bool{}
	)

	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			status, msg := LoopFailed, fmt.Sprintf("run cancelled: %v", err)
			if errors.Is(err, context.DeadlineExceeded) {
				status, msg = LoopTimeout, "run deadline exceeded"
			}
			return loopOutcome{result: &Result{
				Status:     status,
				Error:      msg,
				ToolsUsed:  toolsUsed,
				Iterations: iteration - 1,
			}}
		}
		if l.cfg.Timeout > 0 && time.Since(started) >= l.cfg.Timeout {
			return loopOutcome{result: &Result{
				Status:     LoopTimeout,
				Error:      fmt.Sprintf("run exceeded %s", l.cfg.Timeout),
				ToolsUsed:  toolsUsed,
				Iterations: iteration - 1,
			}}
		}

		if l.cfg.ContextWindow > 0 {
			messages = pruneMessages(messages, l.cfg.ContextWindow, l.cfg.Prune)
		}

		l.emit(Event{Type: EventIteration, AgentID: l.cfg.ID, FlowID: l.flowID,
			Data: map[string]interface{}{"iteration": iteration}})

		req := providers.ChatRequest{
			Model:    l.cfg.Model,
			Messages: append([]providers.Message{{Role: providers.RoleSystem, Content: system}}, messages...),
			Tools:    l.catalog,
		}
		iterStart := time.Now()
		resp, err := l.cfg.Provider.Chat(ctx, req)
		if err != nil {
			if iteration == 1 {
				return loopOutcome{err: fmt.Errorf("model call failed: %w", err)}
			}
			slog.Warn("model call failed mid-run", "agent", l.cfg.ID, "iteration", iteration, "error", err)
			return loopOutcome{result: &Result{
				Status:     LoopFailed,
				Error:      fmt.Sprintf("model call failed at iteration %d: %v", iteration, err),
				ToolsUsed:  toolsUsed,
				Iterations: iteration - 1,
			}}
		}
		l.track("model_call", "success", map[string]interface{}{
			"iteration":  iteration,
			"tool_calls": len(resp.ToolCalls),
		}, iterStart)

		if !resp.HasToolCalls() {
			output := resp.Content
			if strings.TrimSpace(output) == "" {
				output = "(no response)"
			}
			return loopOutcome{result: &Result{
				Success:    true,
				Status:     LoopCompleted,
				Output:     output,
				ToolsUsed:  toolsUsed,
				Iterations: iteration,
			}}
		}

		messages = append(messages, providers.Message{
			Role:      providers.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			reply, dispatched := l.dispatch(ctx, call)
			if dispatched && !seenTools[call.Name] {
				seenTools[call.Name] = true
				toolsUsed = append(toolsUsed, call.Name)
			}
			messages = append(messages, providers.Message{
				Role:       providers.RoleTool,
				Content:    reply,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	summary := fmt.Sprintf("Stopped after reaching the limit of %d iterations.", l.cfg.MaxIterations)
	if len(toolsUsed) > 0 {
		summary += " Tools used: " + strings.Join(toolsUsed, ", ") + "."
	}
	return loopOutcome{result: &Result{
		Status:     LoopMaxIterations,
		Output:     summary,
		Error:      "max iterations reached",
		ToolsUsed:  toolsUsed,
		Iterations: l.cfg.MaxIterations,
	}}
}

// dispatch validates and executes one tool call, returning the tool-role
// message content fed back to the model and whether the call made it past
// the gates to a worker. Every failure mode comes back as text the model
// can react to; nothing aborts the loop. Rejected calls are not dispatched
// and do not count toward the tools-used record.
func (l *Loop) dispatch(ctx context.Context, call providers.ToolCall) (string, bool) {
	if l.cfg.IsSubAgent && call.Name == DelegationToolName {
		l.track("tool_call", "rejected", map[string]interface{}{
			"tool": call.Name, "reason": "subagent_delegation",
		}, time.Now())
		return "Sub-agents cannot spawn further sub-agents. Complete the task with your own tools.", false
	}

	if !l.inCatalog(call.Name) {
		l.track("tool_call", "rejected", map[string]interface{}{
			"tool": call.Name, "reason": "not_in_catalog",
		}, time.Now())
		return fmt.Sprintf("Tool %q is not available to this agent. Available tools: %s",
			call.Name, strings.Join(l.catalogNames(), ", ")), false
	}

	args, err := tools.ValidateArgs(call.Name, call.Arguments, l.catalog)
	if err != nil {
		l.track("tool_call", "invalid_args", map[string]interface{}{
			"tool": call.Name, "error": tracing.Preview(err.Error()),
		}, time.Now())
		return "Tool call rejected: " + err.Error() + " Fix the arguments and try again.", false
	}

	l.emit(Event{Type: EventToolCall, AgentID: l.cfg.ID, FlowID: l.flowID,
		Data: map[string]interface{}{"tool": call.Name}})

	wstart := time.Now()
	wres := l.worker.Execute(ctx, call.Name, args)
	l.track("tool_call", string(wres.Status), map[string]interface{}{
		"tool":   call.Name,
		"result": tracing.Preview(wres.Data),
		"error":  wres.Error,
	}, wstart)
	l.emit(Event{Type: EventToolResult, AgentID: l.cfg.ID, FlowID: l.flowID,
		Data: map[string]interface{}{"tool": call.Name, "status": string(wres.Status)}})

	switch wres.Status {
	case WorkerSuccess:
		return wres.Data, true
	default:
		return fmt.Sprintf("Tool %q failed: %s", call.Name, wres.Error), true
	}
}

func (l *Loop) inCatalog(name string) bool {
	for _, def := range l.catalog {
		if def.Function.Name == name {
			return true
		}
	}
	return false
}

func (l *Loop) catalogNames() []string {
	names := make([]string, 0, len(l.catalog))
	for _, def := range l.catalog {
		names = append(names, def.Function.Name)
	}
	return names
}

func (l *Loop) emit(ev Event) {
	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(ev)
	}
}

func (l *Loop) track(stage, status string, data map[string]interface{}, since time.Time) {
	l.cfg.Collector.TrackEvent(tracing.StageEvent{
		FlowID:     l.flowID,
		Stage:      stage,
		Status:     status,
		Data:       data,
		DurationMS: int(time.Since(since).Milliseconds()),
	})
}
