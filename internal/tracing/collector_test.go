package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCollector_FlowLifecycle(t *testing.T) {
	store := NewMemoryFlowStore()
	c := NewCollector(store)
	c.Start()

	flowID := uuid.New()
	c.StartFlow(flowID, "agent_run")

	flow, ok := store.Flow(flowID)
	if !ok {
		t.Fatal("flow not created")
	}
	if flow.Status != FlowRunning || flow.Kind != "agent_run" {
		t.Errorf("unexpected flow: %+v", flow)
	}

	c.TrackEvent(StageEvent{FlowID: flowID, Stage: "iteration", Status: "started"})
	c.TrackEvent(StageEvent{FlowID: flowID, Stage: "tool_dispatch", Status: "completed"})
	c.CompleteFlow(flowID, FlowCompleted, "")
	c.Stop()

	events := store.Events(flowID)
	if len(events) != 2 {
		t.Fatalf("expected 2 events after flush, got %d", len(events))
	}
	if events[0].Stage != "iteration" {
		t.Errorf("expected event order preserved, got %q first", events[0].Stage)
	}

	flow, _ = store.Flow(flowID)
	if flow.Status != FlowCompleted || flow.EndTime == nil {
		t.Errorf("expected completed flow with end time, got %+v", flow)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	// None of these may panic or block.
	c.Start()
	c.StartFlow(uuid.New(), "agent_run")
	c.TrackEvent(StageEvent{Stage: "x"})
	c.CompleteFlow(uuid.New(), FlowFailed, "boom")
	c.Stop()
	if c.Verbose() {
		t.Error("nil collector must not report verbose")
	}
}

type failingStore struct{}

func (failingStore) CreateFlow(context.Context, FlowData) error { return errors.New("down") }
func (failingStore) UpdateFlow(context.Context, uuid.UUID, string, string, *time.Time) error {
	return errors.New("down")
}
func (failingStore) BatchCreateEvents(context.Context, []StageEvent) error {
	return errors.New("down")
}

func TestCollector_StoreFailureDoesNotPropagate(t *testing.T) {
	c := NewCollector(failingStore{})
	c.Start()

	flowID := uuid.New()
	c.StartFlow(flowID, "agent_run")
	c.TrackEvent(StageEvent{FlowID: flowID, Stage: "iteration"})
	c.CompleteFlow(flowID, FlowFailed, "err")
	c.Stop() // must not panic or deadlock
}

func TestMemoryFlowStore_PerFlowCap(t *testing.T) {
	store := NewMemoryFlowStore()
	store.maxPerFlow = 3
	flowID := uuid.New()

	var batch []StageEvent
	for i := 0; i < 5; i++ {
		batch = append(batch, StageEvent{ID: uuid.New(), FlowID: flowID, Stage: "s", CreatedAt: time.Now()})
	}
	if err := store.BatchCreateEvents(context.Background(), batch); err != nil {
		t.Fatal(err)
	}
	if got := len(store.Events(flowID)); got != 3 {
		t.Errorf("expected cap of 3 events, got %d", got)
	}
}

func TestContextCarriers(t *testing.T) {
	c := NewCollector(NewMemoryFlowStore())
	id := uuid.New()

	ctx := WithCollector(context.Background(), c)
	ctx = WithFlowID(ctx, id)

	if CollectorFromContext(ctx) != c {
		t.Error("collector not carried through context")
	}
	if FlowIDFromContext(ctx) != id {
		t.Error("flow id not carried through context")
	}
	if CollectorFromContext(context.Background()) != nil {
		t.Error("expected nil collector for empty context")
	}
}
