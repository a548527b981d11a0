package tracing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Flow lifecycle statuses.
const (
	FlowRunning   = "running"
	FlowCompleted = "completed"
	FlowFailed    = "failed"
	FlowTimeout   = "timeout"
)

// FlowData is one tracked request flow: a top-level agent run or a sub-agent
// delegation.
type FlowData struct {
	ID        uuid.UUID
	Kind      string // "agent_run", "subagent", "worker"
	Status    string
	Error     string
	StartTime time.Time
	EndTime   *time.Time
}

// StageEvent records one stage boundary inside a flow (iteration, model call,
// tool dispatch, completion). Data is free-form diagnostic payload.
type StageEvent struct {
	ID         uuid.UUID
	FlowID     uuid.UUID
	Stage      string
	Status     string
	Data       map[string]interface{}
	DurationMS int
	CreatedAt  time.Time
}

// FlowStore persists flows and stage events. Implementations must tolerate
// bursts: events arrive in batches from the collector's flush loop.
type FlowStore interface {
	CreateFlow(ctx context.Context, flow FlowData) error
	UpdateFlow(ctx context.Context, id uuid.UUID, status, errMsg string, endTime *time.Time) error
	BatchCreateEvents(ctx context.Context, events []StageEvent) error
}

// MemoryFlowStore keeps flows and events in memory, bounded per flow. It is
// the default store; a durable backend lives behind the same interface.
type MemoryFlowStore struct {
	mu           sync.RWMutex
	flows        map[uuid.UUID]FlowData
	events       map[uuid.UUID][]StageEvent
	maxPerFlow   int
	totalDropped int
}

const defaultMaxEventsPerFlow = 500

func NewMemoryFlowStore() *MemoryFlowStore {
	return &MemoryFlowStore{
		flows:      make(map[uuid.UUID]FlowData),
		events:     make(map[uuid.UUID][]StageEvent),
		maxPerFlow: defaultMaxEventsPerFlow,
	}
}

func (s *MemoryFlowStore) CreateFlow(_ context.Context, flow FlowData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flow.ID] = flow
	return nil
}

func (s *MemoryFlowStore) UpdateFlow(_ context.Context, id uuid.UUID, status, errMsg string, endTime *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[id]
	if !ok {
		return nil
	}
	flow.Status = status
	if errMsg != "" {
		flow.Error = errMsg
	}
	if endTime != nil {
		flow.EndTime = endTime
	}
	s.flows[id] = flow
	return nil
}

func (s *MemoryFlowStore) BatchCreateEvents(_ context.Context, events []StageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		list := s.events[ev.FlowID]
		if len(list) >= s.maxPerFlow {
			s.totalDropped++
			continue
		}
		s.events[ev.FlowID] = append(list, ev)
	}
	return nil
}

// Flow returns a flow by id.
func (s *MemoryFlowStore) Flow(id uuid.UUID) (FlowData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flow, ok := s.flows[id]
	return flow, ok
}

// Events returns the stage events recorded for a flow, oldest first.
func (s *MemoryFlowStore) Events(flowID uuid.UUID) []StageEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StageEvent, len(s.events[flowID]))
	copy(out, s.events[flowID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
