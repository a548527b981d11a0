package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nextlevelbuilder/aide/internal/agent"
	"github.com/nextlevelbuilder/aide/internal/config"
	"github.com/nextlevelbuilder/aide/internal/providers"
	"github.com/nextlevelbuilder/aide/internal/tools"
	"github.com/nextlevelbuilder/aide/internal/tracing"
	"github.com/nextlevelbuilder/aide/internal/tracing/otelexport"
)

// appRuntime holds everything a chat session needs: providers, tools, the
// supervisor, and the loops addressable by agent ID.
type appRuntime struct {
	cfg        *config.Config
	providers  *providers.Registry
	registry   *tools.Registry
	store      *tracing.MemoryFlowStore
	collector  *tracing.Collector
	exporter   *otelexport.Exporter
	supervisor *agent.Supervisor
	router     *agent.Router

	mu sync.Mutex
}

func buildRuntime(cfg *config.Config) (*appRuntime, error) {
	rt := &appRuntime{cfg: cfg}

	rt.providers = providers.NewRegistry()
	for name, pc := range cfg.Providers {
		if pc.APIKey == "" {
			continue
		}
		rt.providers.Register(providers.NewOpenAIProvider(name, pc.APIKey, pc.APIBase, pc.Model))
	}

	defaultProvider, err := rt.providers.Get(cfg.Agents.Defaults.Provider)
	if err != nil {
		return nil, err
	}
	model := cfg.Agents.Defaults.Model
	if model == "" {
		model = "gpt-4.1-mini"
	}

	rt.registry = buildToolRegistry(cfg)

	rt.store = tracing.NewMemoryFlowStore()
	rt.collector = tracing.NewCollector(rt.store)
	if cfg.Tracing.Enabled && cfg.Tracing.OTLP.Endpoint != "" {
		exp, err := otelexport.New(context.Background(), otelexport.Config{
			Endpoint: cfg.Tracing.OTLP.Endpoint,
			Protocol: cfg.Tracing.OTLP.Protocol,
			Insecure: cfg.Tracing.OTLP.Insecure,
			Headers:  cfg.Tracing.OTLP.Headers,
		})
		if err != nil {
			slog.Warn("otlp exporter disabled", "error", err)
		} else {
			rt.exporter = exp
			rt.collector.SetExporter(exp)
		}
	}
	rt.collector.Start()

	templates, err := agent.LoadTemplates(cfg.SubAgents.TemplatesFile)
	if err != nil {
		return nil, err
	}
	rt.supervisor = agent.NewSupervisor(agent.SupervisorConfig{
		Provider:            defaultProvider,
		Model:               model,
		Registry:            rt.registry,
		Collector:           rt.collector,
		MaxConcurrent:       cfg.SubAgents.MaxConcurrent,
		ParentMaxIterations: cfg.Agents.Defaults.MaxIterations,
		WorkerTimeout:       time.Duration(cfg.Agents.Defaults.WorkerTimeoutSecs) * time.Second,
		ContextWindow:       cfg.Agents.Defaults.ContextWindow,
		Templates:           templates,
		DefaultTimeout:      time.Duration(cfg.SubAgents.TimeoutSecs) * time.Second,
		OnEvent:             printEvent,
	})
	rt.registry.Register(agent.NewSpawnTool(rt.supervisor))

	rt.router = agent.NewRouter()
	if err := rt.addLoop(config.DefaultAgentID, config.AgentConfig{}); err != nil {
		return nil, err
	}
	for name, ac := range cfg.Agents.Named {
		if err := rt.addLoop(config.NormalizeAgentID(name), ac); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

func (rt *appRuntime) addLoop(id string, ac config.AgentConfig) error {
	d := rt.cfg.Agents.Defaults

	providerName := ac.Provider
	if providerName == "" {
		providerName = d.Provider
	}
	p, err := rt.providers.Get(providerName)
	if err != nil {
		return fmt.Errorf("agent %q: %w", id, err)
	}

	model := ac.Model
	if model == "" {
		model = d.Model
	}
	maxIter := ac.MaxIterations
	if maxIter <= 0 {
		maxIter = d.MaxIterations
	}
	prompt := ac.SystemPrompt
	if prompt == "" {
		prompt = d.SystemPrompt
	}
	allowed := ac.AllowedTools
	if len(allowed) == 0 {
		allowed = d.AllowedTools
	}

	loop, err := agent.NewLoop(agent.LoopConfig{
		ID:            id,
		Provider:      p,
		Model:         model,
		Registry:      rt.registry,
		AllowedTools:  allowed,
		SystemPrompt:  prompt,
		Workspace:     d.Workspace,
		MaxIterations: maxIter,
		WorkerTimeout: time.Duration(d.WorkerTimeoutSecs) * time.Second,
		ContextWindow: d.ContextWindow,
		Collector:     rt.collector,
		OnEvent:       printEvent,
	})
	if err != nil {
		return fmt.Errorf("agent %q: %w", id, err)
	}
	rt.router.Register(id, loop)
	return nil
}

func buildToolRegistry(cfg *config.Config) *tools.Registry {
	reg := tools.NewRegistry()
	reg.Register(tools.NewWebFetchTool(tools.WebFetchConfig{
		MaxChars:     cfg.Tools.Web.MaxChars,
		CacheEntries: cfg.Tools.Web.CacheEntries,
		CacheTTL:     time.Duration(cfg.Tools.Web.CacheTTLSecs) * time.Second,
	}))
	reg.Register(tools.NewWebSearchTool(tools.WebSearchConfig{
		BraveAPIKey: cfg.Tools.Web.SearchAPIKey,
		CacheTTL:    time.Duration(cfg.Tools.Web.CacheTTLSecs) * time.Second,
	}))
	reg.Register(tools.NewTodoTool())
	reg.Register(tools.NewClockTool())
	if cfg.Tools.Exec.Enabled {
		reg.Register(tools.NewExecTool(cfg.Agents.Defaults.Workspace, cfg.Tools.Exec.RestrictToWorkspace))
	}
	if cfg.Tools.RatePerMin > 0 {
		reg.SetRateLimiter(tools.NewRateLimiter(cfg.Tools.RatePerMin, cfg.Tools.RateBurst))
	}
	if cfg.Tools.Scrubbing != nil {
		reg.SetScrubbing(*cfg.Tools.Scrubbing)
	}
	return reg
}

// reload swaps in loops built from a changed config. Tool and provider
// wiring stays as it was; only agent-level settings take effect live.
func (rt *appRuntime) reload(cfg *config.Config) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	old := rt.cfg
	rt.cfg = cfg
	if err := rt.addLoop(config.DefaultAgentID, config.AgentConfig{}); err != nil {
		rt.cfg = old
		slog.Error("config change not applied", "error", err)
		return
	}
	for name, ac := range cfg.Agents.Named {
		if err := rt.addLoop(config.NormalizeAgentID(name), ac); err != nil {
			slog.Error("config change not applied for agent", "agent", name, "error", err)
		}
	}
	slog.Info("agent settings reloaded")
}

func (rt *appRuntime) loop(agentID string) (*agent.Loop, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	l, ok := rt.router.Get(config.NormalizeAgentID(agentID))
	if !ok {
		return nil, fmt.Errorf("unknown agent %q (have: %v)", agentID, rt.router.IDs())
	}
	return l, nil
}

func (rt *appRuntime) Close() {
	rt.collector.Stop()
	if rt.exporter != nil {
		if err := rt.exporter.Shutdown(context.Background()); err != nil {
			slog.Warn("otlp shutdown", "error", err)
		}
	}
}

// printEvent shows loop progress on stderr so the answer on stdout stays
// pipeable.
func printEvent(ev agent.Event) {
	switch ev.Type {
	case agent.EventToolCall:
		fmt.Fprintf(os.Stderr, "  [tool] %v\n", ev.Data["tool"])
	case agent.EventToolResult:
		if status, ok := ev.Data["status"].(string); ok && status != "success" {
			fmt.Fprintf(os.Stderr, "  [tool] %v -> %s\n", ev.Data["tool"], status)
		}
	case agent.EventSubAgent:
		fmt.Fprintf(os.Stderr, "  [subagent] %s %v\n", ev.AgentID, ev.Data["state"])
	}
}
