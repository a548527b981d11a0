package tracing

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	collectorKey contextKey = "aide_flow_collector"
	flowIDKey    contextKey = "aide_flow_id"
)

// WithCollector attaches a collector to the context so nested components
// (workers, sub-agents) can emit events into the same flow tree.
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey, c)
}

// CollectorFromContext extracts the collector. Returns nil if not set;
// a nil collector is safe to call.
func CollectorFromContext(ctx context.Context) *Collector {
	if c, ok := ctx.Value(collectorKey).(*Collector); ok {
		return c
	}
	return nil
}

// WithFlowID attaches the current flow id to the context.
func WithFlowID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, flowIDKey, id)
}

// FlowIDFromContext extracts the flow id. Returns uuid.Nil if not set.
func FlowIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(flowIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
