package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/aide/internal/providers"
	"github.com/nextlevelbuilder/aide/internal/tools"
	"github.com/nextlevelbuilder/aide/internal/tracing"
)

const (
	// DefaultMaxConcurrentSubAgents bounds simultaneously running sub-agents.
	DefaultMaxConcurrentSubAgents = 3
	// MaxSubAgentIterations is the hard ceiling no spawn may exceed.
	MaxSubAgentIterations = 15
	// MinSubAgentTimeout is the lowest accepted per-spawn timeout.
	MinSubAgentTimeout = 5 * time.Second
	// DefaultSubAgentTimeout bounds a sub-agent run when none is given.
	DefaultSubAgentTimeout = 120 * time.Second
	// subAgentGracePeriod keeps terminal statuses queryable before removal.
	subAgentGracePeriod = 60 * time.Second
)

var (
	ErrCapacityExceeded = errors.New("subagent: concurrency limit reached")
	ErrInvalidSpawn     = errors.New("subagent: invalid spawn config")
)

// SubAgentState follows a spawned sub-agent through its lifetime.
type SubAgentState string

const (
	SubAgentRunning   SubAgentState = "running"
	SubAgentCompleted SubAgentState = "completed"
	SubAgentFailed    SubAgentState = "failed"
	SubAgentTimeout   SubAgentState = "timeout"
)

// SubAgentStatus is the live view of one spawned sub-agent.
type SubAgentStatus struct {
	ID           uuid.UUID
	ParentFlowID uuid.UUID
	Task         string
	Template     string
	State        SubAgentState
	Iteration    int
	ToolsUsed    []string
	StartedAt    time.Time
	EndedAt      *time.Time
}

// SpawnConfig describes a delegation request.
type SpawnConfig struct {
	Task          string
	Tools         []string
	Template      string
	MaxIterations int
	Timeout       time.Duration
	ParentFlowID  uuid.UUID
}

// SupervisorConfig wires a Supervisor to the parent agent's resources.
type SupervisorConfig struct {
	Provider            providers.Provider
	Model               string
	Registry            *tools.Registry
	Collector           *tracing.Collector
	MaxConcurrent       int
	ParentMaxIterations int
	WorkerTimeout       time.Duration
	ContextWindow       int
	Templates           map[string]Template

	// MinTimeout and DefaultTimeout bound per-spawn wall-clock limits.
	// Zero values fall back to MinSubAgentTimeout and DefaultSubAgentTimeout.
	MinTimeout     time.Duration
	DefaultTimeout time.Duration

	// OnEvent, when set, receives EventSubAgent notifications as spawns
	// start and reach a terminal state.
	OnEvent EventHandler
}

// Supervisor admits, runs, and tracks sub-agent loops. Admission and
// status transitions all happen under one mutex so the concurrency
// ceiling cannot be raced past.
type Supervisor struct {
	cfg SupervisorConfig

	mu    sync.Mutex
	table map[uuid.UUID]*SubAgentStatus
}

func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrentSubAgents
	}
	if cfg.ParentMaxIterations <= 0 {
		cfg.ParentMaxIterations = DefaultMaxIterations
	}
	if cfg.Templates == nil {
		cfg.Templates = builtinTemplates()
	}
	if cfg.MinTimeout <= 0 {
		cfg.MinTimeout = MinSubAgentTimeout
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultSubAgentTimeout
	}
	return &Supervisor{cfg: cfg, table: make(map[uuid.UUID]*SubAgentStatus)}
}

// Templates returns the available spawn presets.
func (s *Supervisor) Templates() map[string]Template { return s.cfg.Templates }

// Statuses returns a snapshot of all tracked sub-agents, running and
// recently finished.
func (s *Supervisor) Statuses() []SubAgentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SubAgentStatus, 0, len(s.table))
	for _, st := range s.table {
		cp := *st
		cp.ToolsUsed = append([]string(nil), st.ToolsUsed...)
		out = append(out, cp)
	}
	return out
}

// Spawn validates the request, admits it against the concurrency ceiling,
// and runs a sub-agent loop to completion. The returned Result covers
// successful and failed runs alike; the error return is reserved for
// requests that never started (bad config, capacity).
func (s *Supervisor) Spawn(ctx context.Context, cfg SpawnConfig) (*Result, error) {
	resolved, err := s.resolve(cfg)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	status := &SubAgentStatus{
		ID:           id,
		ParentFlowID: cfg.ParentFlowID,
		Task:         cfg.Task,
		Template:     cfg.Template,
		State:        SubAgentRunning,
		StartedAt:    time.Now(),
	}

	s.mu.Lock()
	running := 0
	for _, st := range s.table {
		if st.State == SubAgentRunning {
			running++
		}
	}
	if running >= s.cfg.MaxConcurrent {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d of %d slots in use", ErrCapacityExceeded, running, s.cfg.MaxConcurrent)
	}
	s.table[id] = status
	s.mu.Unlock()

	slog.Info("subagent spawned", "id", id, "task", tracing.Preview(cfg.Task),
		"tools", resolved.tools, "max_iterations", resolved.maxIterations)
	s.notify(id, cfg.ParentFlowID, string(SubAgentRunning))

	loop, err := NewLoop(LoopConfig{
		ID:            "sub-" + id.String()[:8],
		Provider:      s.cfg.Provider,
		Model:         s.cfg.Model,
		Registry:      s.cfg.Registry,
		AllowedTools:  resolved.tools,
		SystemPrompt:  buildSubAgentPrompt(cfg.Task, resolved.tools),
		MaxIterations: resolved.maxIterations,
		WorkerTimeout: s.cfg.WorkerTimeout,
		ContextWindow: s.cfg.ContextWindow,
		IsSubAgent:    true,
		Collector:     s.cfg.Collector,
		OnEvent:       s.progressHandler(id),
	})
	if err != nil {
		s.finish(id, SubAgentFailed)
		return nil, err
	}

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("subagent panicked: %v", r)}
			}
		}()
		res, err := loop.Run(context.WithoutCancel(ctx), cfg.Task)
		done <- outcome{result: res, err: err}
	}()

	timer := time.NewTimer(resolved.timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			s.finish(id, SubAgentFailed)
			return &Result{
				Status: LoopFailed,
				Error:  out.err.Error(),
			}, nil
		}
		state := SubAgentCompleted
		if !out.result.Success {
			state = SubAgentFailed
			if out.result.Status == LoopTimeout {
				state = SubAgentTimeout
			}
		}
		s.finish(id, state)
		return out.result, nil
	case <-timer.C:
		// The loop goroutine is abandoned; its late result is discarded.
		s.finish(id, SubAgentTimeout)
		slog.Warn("subagent abandoned after timeout", "id", id, "timeout", resolved.timeout)
		return &Result{
			Status:        LoopTimeout,
			Error:         fmt.Sprintf("sub-agent timed out after %s", resolved.timeout),
			ExecutionTime: resolved.timeout,
		}, nil
	}
}

type resolvedSpawn struct {
	tools         []string
	maxIterations int
	timeout       time.Duration
}

// resolve applies the template, fills defaults, and validates the spawn
// request before it touches the supervision table.
func (s *Supervisor) resolve(cfg SpawnConfig) (resolvedSpawn, error) {
	r := resolvedSpawn{
		tools:         cfg.Tools,
		maxIterations: cfg.MaxIterations,
		timeout:       cfg.Timeout,
	}
	if cfg.Template != "" {
		tpl, ok := s.cfg.Templates[cfg.Template]
		if !ok {
			return r, fmt.Errorf("%w: unknown template %q", ErrInvalidSpawn, cfg.Template)
		}
		if len(r.tools) == 0 {
			r.tools = tpl.Tools
		}
		if r.maxIterations == 0 {
			r.maxIterations = tpl.MaxIterations
		}
	}
	if cfg.Task == "" {
		return r, fmt.Errorf("%w: task must not be empty", ErrInvalidSpawn)
	}
	if len(r.tools) == 0 {
		return r, fmt.Errorf("%w: at least one tool is required", ErrInvalidSpawn)
	}
	for _, name := range r.tools {
		if name == DelegationToolName {
			return r, fmt.Errorf("%w: sub-agents cannot be granted %q", ErrInvalidSpawn, DelegationToolName)
		}
	}
	if r.maxIterations == 0 {
		r.maxIterations = 5
	}
	if r.maxIterations < 1 || r.maxIterations > MaxSubAgentIterations {
		return r, fmt.Errorf("%w: maxIterations must be between 1 and %d", ErrInvalidSpawn, MaxSubAgentIterations)
	}
	if r.maxIterations >= s.cfg.ParentMaxIterations {
		return r, fmt.Errorf("%w: maxIterations %d must be lower than the parent's %d",
			ErrInvalidSpawn, r.maxIterations, s.cfg.ParentMaxIterations)
	}
	if r.timeout == 0 {
		r.timeout = s.cfg.DefaultTimeout
	}
	if r.timeout < s.cfg.MinTimeout {
		return r, fmt.Errorf("%w: timeout must be at least %s", ErrInvalidSpawn, s.cfg.MinTimeout)
	}
	return r, nil
}

// progressHandler keeps the status table current as the sub-agent runs.
func (s *Supervisor) progressHandler(id uuid.UUID) EventHandler {
	return func(ev Event) {
		s.mu.Lock()
		defer s.mu.Unlock()
		st, ok := s.table[id]
		if !ok || st.State != SubAgentRunning {
			return
		}
		switch ev.Type {
		case EventIteration:
			if n, ok := ev.Data["iteration"].(int); ok {
				st.Iteration = n
			}
		case EventToolCall:
			name, _ := ev.Data["tool"].(string)
			if name == "" {
				return
			}
			for _, used := range st.ToolsUsed {
				if used == name {
					return
				}
			}
			st.ToolsUsed = append(st.ToolsUsed, name)
		}
	}
}

// finish moves a sub-agent to a terminal state exactly once and schedules
// its removal from the table after the grace period.
func (s *Supervisor) finish(id uuid.UUID, state SubAgentState) {
	s.mu.Lock()
	st, ok := s.table[id]
	if !ok || st.State != SubAgentRunning {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	st.State = state
	st.EndedAt = &now
	parent := st.ParentFlowID
	s.mu.Unlock()

	time.AfterFunc(subAgentGracePeriod, func() {
		s.mu.Lock()
		delete(s.table, id)
		s.mu.Unlock()
	})
	s.notify(id, parent, string(state))
}

// notify reports a sub-agent lifecycle transition to the config handler.
func (s *Supervisor) notify(id, parentFlowID uuid.UUID, state string) {
	if s.cfg.OnEvent == nil {
		return
	}
	s.cfg.OnEvent(Event{
		Type:    EventSubAgent,
		AgentID: "sub-" + id.String()[:8],
		FlowID:  parentFlowID,
		Data:    map[string]interface{}{"id": id.String(), "state": state},
	})
}
