package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

// Defaults applied when the config file omits a value.
const (
	DefaultMaxIterations     = 20
	DefaultContextWindow     = 128000
	DefaultWorkerTimeoutSecs = 30
	DefaultSubAgentTimeout   = 120
	DefaultMaxConcurrentSubs = 3
)

// Config is the root configuration, loaded from ~/.aide/config.json5.
// JSON5 so users can keep comments and trailing commas in their config.
type Config struct {
	Agents    AgentsConfig              `json:"agents"`
	Providers map[string]ProviderConfig `json:"providers"`
	Tools     ToolsConfig               `json:"tools"`
	SubAgents SubAgentsConfig           `json:"subagents"`
	Tracing   TracingConfig             `json:"tracing"`
}

type AgentsConfig struct {
	Defaults AgentDefaults          `json:"defaults"`
	Named    map[string]AgentConfig `json:"named"`
}

// AgentDefaults apply to every agent unless overridden per agent.
type AgentDefaults struct {
	Provider          string   `json:"provider"`
	Model             string   `json:"model"`
	Workspace         string   `json:"workspace"`
	MaxIterations     int      `json:"maxIterations"`
	ContextWindow     int      `json:"contextWindow"`
	WorkerTimeoutSecs int      `json:"workerTimeoutSeconds"`
	SystemPrompt      string   `json:"systemPrompt"`
	AllowedTools      []string `json:"allowedTools"`
}

// AgentConfig overrides defaults for one named agent.
type AgentConfig struct {
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	SystemPrompt  string   `json:"systemPrompt"`
	MaxIterations int      `json:"maxIterations"`
	AllowedTools  []string `json:"allowedTools"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	APIBase string `json:"apiBase"`
	Model   string `json:"model"`
}

type ToolsConfig struct {
	Web        WebToolConfig  `json:"web"`
	Exec       ExecToolConfig `json:"exec"`
	RatePerMin int            `json:"ratePerMinute"`
	RateBurst  int            `json:"rateBurst"`
	Scrubbing  *bool          `json:"scrubCredentials"`
}

type WebToolConfig struct {
	MaxChars     int    `json:"maxChars"`
	CacheEntries int    `json:"cacheEntries"`
	CacheTTLSecs int    `json:"cacheTtlSeconds"`
	SearchAPIKey string `json:"searchApiKey"` // Brave; DuckDuckGo needs none
}

type ExecToolConfig struct {
	Enabled             bool `json:"enabled"`
	RestrictToWorkspace bool `json:"restrictToWorkspace"`
}

type SubAgentsConfig struct {
	MaxConcurrent int    `json:"maxConcurrent"`
	MaxIterations int    `json:"maxIterations"`
	TimeoutSecs   int    `json:"timeoutSeconds"`
	TemplatesFile string `json:"templatesFile"`
}

type TracingConfig struct {
	Enabled bool       `json:"enabled"`
	OTLP    OTLPConfig `json:"otlp"`
}

type OTLPConfig struct {
	Endpoint string            `json:"endpoint"`
	Protocol string            `json:"protocol"` // "grpc" or "http"
	Insecure bool              `json:"insecure"`
	Headers  map[string]string `json:"headers"`
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".aide", "config.json5")
	}
	return filepath.Join(home, ".aide", "config.json5")
}

// Load reads and parses a config file, applying defaults. A missing file
// yields a pure-defaults config so first runs work without setup.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := &c.Agents.Defaults
	if d.Provider == "" {
		d.Provider = "openai"
	}
	if d.MaxIterations <= 0 {
		d.MaxIterations = DefaultMaxIterations
	}
	if d.ContextWindow <= 0 {
		d.ContextWindow = DefaultContextWindow
	}
	if d.WorkerTimeoutSecs <= 0 {
		d.WorkerTimeoutSecs = DefaultWorkerTimeoutSecs
	}
	if d.Workspace == "" {
		d.Workspace = filepath.Join(baseDir(), "workspace")
	}
	d.Workspace = ExpandHome(d.Workspace)

	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	// Environment wins over file for credentials.
	for name, pc := range c.Providers {
		if pc.APIKey == "" {
			envKey := "AIDE_" + strings.ToUpper(name) + "_API_KEY"
			pc.APIKey = os.Getenv(envKey)
			c.Providers[name] = pc
		}
	}

	if c.Tools.Web.MaxChars <= 0 {
		c.Tools.Web.MaxChars = 50000
	}
	if c.Tools.Web.CacheEntries <= 0 {
		c.Tools.Web.CacheEntries = 100
	}
	if c.Tools.Web.CacheTTLSecs <= 0 {
		c.Tools.Web.CacheTTLSecs = 900
	}
	if c.SubAgents.MaxConcurrent <= 0 {
		c.SubAgents.MaxConcurrent = DefaultMaxConcurrentSubs
	}
	if c.SubAgents.MaxIterations <= 0 {
		c.SubAgents.MaxIterations = 5
	}
	if c.SubAgents.TimeoutSecs <= 0 {
		c.SubAgents.TimeoutSecs = DefaultSubAgentTimeout
	}
	c.SubAgents.TemplatesFile = ExpandHome(c.SubAgents.TemplatesFile)

	if c.Tracing.OTLP.Protocol == "" {
		c.Tracing.OTLP.Protocol = "grpc"
	}
}

// ProviderFor resolves the provider settings for a provider name.
func (c *Config) ProviderFor(name string) (ProviderConfig, error) {
	pc, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("provider %q not in config", name)
	}
	if pc.APIKey == "" {
		return ProviderConfig{}, fmt.Errorf("provider %q has no API key (set AIDE_%s_API_KEY)",
			name, strings.ToUpper(name))
	}
	return pc, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aide"
	}
	return filepath.Join(home, ".aide")
}
