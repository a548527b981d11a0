package agent

import (
	"time"

	"github.com/google/uuid"
)

// LoopStatus is the terminal status of a loop run.
type LoopStatus string

const (
	LoopCompleted     LoopStatus = "completed"
	LoopFailed        LoopStatus = "failed"
	LoopTimeout       LoopStatus = "timeout"
	LoopMaxIterations LoopStatus = "max_iterations_reached"
)

// Result is what every loop run produces, success or not.
type Result struct {
	Success       bool
	Status        LoopStatus
	Output        string
	Error         string
	ToolsUsed     []string
	Iterations    int
	ExecutionTime time.Duration
}

// Event types emitted through the OnEvent callback.
const (
	EventRunStarted   = "run.started"
	EventRunCompleted = "run.completed"
	EventIteration    = "iteration"
	EventToolCall     = "tool.call"
	EventToolResult   = "tool.result"
	EventSubAgent     = "subagent"
)

// Event carries a loop progress notification to the embedding surface.
type Event struct {
	Type    string
	AgentID string
	FlowID  uuid.UUID
	Data    map[string]interface{}
}

// EventHandler receives loop events. Handlers must not block.
type EventHandler func(Event)
