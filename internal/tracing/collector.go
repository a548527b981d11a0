package tracing

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBufferSize    = 1000
	previewMaxLen        = 500
)

// EventExporter is implemented by backends that receive stage events
// alongside the FlowStore (e.g. OpenTelemetry OTLP). Keeping this as an
// interface lets the OTel dependency live in a separate sub-package.
type EventExporter interface {
	ExportEvents(ctx context.Context, events []StageEvent)
	Shutdown(ctx context.Context) error
}

// Collector is the flow tracker. Flows are created synchronously (one per
// agent run or sub-agent spawn), while stage events are buffered in memory
// and flushed to the FlowStore in batches. Every method is safe on a nil
// receiver and swallows store errors: tracking never influences control flow.
type Collector struct {
	store FlowStore

	eventCh chan StageEvent
	stopCh  chan struct{}
	wg      sync.WaitGroup

	verbose  bool          // when true, event data includes full payloads
	exporter EventExporter // optional external exporter (nil = disabled)
}

// NewCollector creates a flow collector backed by the given store.
// Set AIDE_TRACE_VERBOSE=1 to include full payloads in stage events.
func NewCollector(store FlowStore) *Collector {
	verbose := os.Getenv("AIDE_TRACE_VERBOSE") != ""
	if verbose {
		slog.Info("tracing: verbose mode enabled (AIDE_TRACE_VERBOSE)")
	}
	return &Collector{
		store:   store,
		eventCh: make(chan StageEvent, defaultBufferSize),
		stopCh:  make(chan struct{}),
		verbose: verbose,
	}
}

// Verbose reports whether full payloads are recorded.
func (c *Collector) Verbose() bool { return c != nil && c.verbose }

// SetExporter attaches an external event exporter (e.g. OpenTelemetry OTLP).
func (c *Collector) SetExporter(exp EventExporter) {
	if c != nil {
		c.exporter = exp
	}
}

// Start begins the background flush loop.
func (c *Collector) Start() {
	if c == nil {
		return
	}
	c.wg.Add(1)
	go c.flushLoop()
	slog.Info("flow collector started")
}

// Stop gracefully shuts down the collector, flushing remaining events.
func (c *Collector) Stop() {
	if c == nil {
		return
	}
	close(c.stopCh)
	c.wg.Wait()

	if c.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.exporter.Shutdown(ctx); err != nil {
			slog.Warn("tracing: exporter shutdown failed", "error", err)
		}
	}
	slog.Info("flow collector stopped")
}

// StartFlow synchronously registers a new flow of the given kind.
func (c *Collector) StartFlow(id uuid.UUID, kind string) {
	if c == nil {
		return
	}
	flow := FlowData{
		ID:        id,
		Kind:      kind,
		Status:    FlowRunning,
		StartTime: time.Now().UTC(),
	}
	if err := c.store.CreateFlow(context.Background(), flow); err != nil {
		slog.Warn("tracing: create flow failed", "flow_id", id, "error", err)
	}
}

// TrackEvent enqueues a stage event for async batch insertion.
// Non-blocking: drops the event if the buffer is full.
func (c *Collector) TrackEvent(ev StageEvent) {
	if c == nil {
		return
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	select {
	case c.eventCh <- ev:
	default:
		slog.Warn("tracing: event buffer full, dropping event",
			"stage", ev.Stage, "flow_id", ev.FlowID)
	}
}

// CompleteFlow marks a flow terminal.
func (c *Collector) CompleteFlow(id uuid.UUID, status, errMsg string) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	if err := c.store.UpdateFlow(context.Background(), id, status, truncatePreview(errMsg), &now); err != nil {
		slog.Warn("tracing: complete flow failed", "flow_id", id, "error", err)
	}
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stopCh:
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	var events []StageEvent
	for {
		select {
		case ev := <-c.eventCh:
			events = append(events, ev)
		default:
			if len(events) == 0 {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := c.store.BatchCreateEvents(ctx, events); err != nil {
				slog.Warn("tracing: batch event insert failed", "count", len(events), "error", err)
			} else {
				slog.Debug("tracing: flushed events", "count", len(events))
			}
			if c.exporter != nil {
				c.exporter.ExportEvents(ctx, events)
			}
			return
		}
	}
}

// Preview truncates a string for inclusion in event data.
func Preview(s string) string { return truncatePreview(s) }

// truncatePreview sanitizes and truncates a string to previewMaxLen bytes.
func truncatePreview(s string) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= previewMaxLen {
		return s
	}
	maxLen := previewMaxLen
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
