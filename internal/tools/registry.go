package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/aide/internal/providers"
)

// Registry manages tool registration and execution.
type Registry struct {
	tools       map[string]Tool
	mu          sync.RWMutex
	rateLimiter *RateLimiter // nil = no rate limiting
	scrubbing   bool         // scrub credentials from output (default true)
}

func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		scrubbing: true,
	}
}

// SetRateLimiter enables per-key tool rate limiting.
func (r *Registry) SetRateLimiter(rl *RateLimiter) {
	r.rateLimiter = rl
}

// SetScrubbing enables or disables credential scrubbing on tool output.
func (r *Registry) SetScrubbing(enabled bool) {
	r.scrubbing = enabled
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Unregister removes a tool from the registry by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns wire definitions for the named subset. Unknown names
// are skipped. With no names given, all registered tools are returned.
func (r *Registry) Definitions(names ...string) []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(names) == 0 {
		names = make([]string, 0, len(r.tools))
		for name := range r.tools {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			defs = append(defs, ToProviderDef(t))
		}
	}
	return defs
}

// Execute runs a tool by name with the given arguments. The action selector
// is non-empty for multi-action tools; limitKey identifies the caller for
// rate limiting (typically "agent:user"). Output is credential-scrubbed
// before it reaches the conversation.
func (r *Registry) Execute(ctx context.Context, name, action string, args map[string]interface{}, limitKey string) *Result {
	tool, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool: %s", name))
	}

	if r.rateLimiter != nil && limitKey != "" {
		if err := r.rateLimiter.Allow(limitKey); err != nil {
			slog.Warn("tool rate limited", "tool", name, "key", limitKey)
			return ErrorResult(err.Error())
		}
	}

	start := time.Now()
	var result *Result
	if at, ok := tool.(ActionTool); ok && action != "" {
		result = at.ExecuteAction(ctx, action, args)
	} else {
		result = tool.Execute(ctx, args)
	}
	if result == nil {
		result = ErrorResult(fmt.Sprintf("tool %s returned no result", name))
	}

	if r.scrubbing {
		result.ForLLM = ScrubCredentials(result.ForLLM)
		if result.ForUser != "" {
			result.ForUser = ScrubCredentials(result.ForUser)
		}
	}

	slog.Debug("tool executed",
		"tool", name,
		"action", action,
		"error", result.IsError,
		"duration", time.Since(start).Round(time.Millisecond))
	return result
}
