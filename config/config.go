// Package config provides configuration types and loading for the
// roundtable supervisor.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default values applied by SetDefaults.
const (
	DefaultModel        = "gpt-4o-mini"
	DefaultCallTimeout  = 60  // seconds, per outbound remote/LLM call
	DefaultIdleTimeout  = 900 // seconds before an idle session binding is evicted
	DefaultServerHost   = "0.0.0.0"
	DefaultServerPort   = 8000
	DefaultSessionStore = "memory"

	// AgentURLsEnvVar holds a comma-separated agent URL list; lowest
	// priority after the direct parameter and the config file.
	AgentURLsEnvVar = "ROUNDTABLE_AGENT_URLS"
)

// Config is the single configuration entry point.
type Config struct {
	Version     string `yaml:"version,omitempty"`
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`

	Supervisor SupervisorConfig             `yaml:"supervisor"`
	LLMs       map[string]LLMProviderConfig `yaml:"llms,omitempty"`
	Server     ServerConfig                 `yaml:"server,omitempty"`
	Sessions   SessionConfig                `yaml:"sessions,omitempty"`
	Roster     []RosterEntry                `yaml:"roster,omitempty"`
	Tracing    TracingConfig                `yaml:"tracing,omitempty"`
}

// SupervisorConfig configures the delegation core.
type SupervisorConfig struct {
	Name        string   `yaml:"name,omitempty"`
	Description string   `yaml:"description,omitempty"`
	AgentURLs   []string `yaml:"agent_urls,omitempty"`
	LLM         string   `yaml:"llm,omitempty"`          // key into Config.LLMs
	Streaming   *bool    `yaml:"streaming,omitempty"`    // stream delegated responses
	CallTimeout int      `yaml:"call_timeout,omitempty"` // seconds per outbound call
}

// LLMProviderConfig configures one completion provider.
type LLMProviderConfig struct {
	Type        string  `yaml:"type"`    // "openai", "ollama"
	Model       string  `yaml:"model"`   // model name
	APIKey      string  `yaml:"api_key"` // for OpenAI-compatible endpoints
	Host        string  `yaml:"host"`    // endpoint base URL
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     int     `yaml:"timeout"` // seconds
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"` // public URL advertised on the agent card
}

// SessionConfig configures the session binding store.
type SessionConfig struct {
	Enabled     *bool  `yaml:"enabled,omitempty"`
	Store       string `yaml:"store,omitempty"` // "memory" or "sqlite"
	Path        string `yaml:"path,omitempty"`  // sqlite file path
	IdleTimeout int    `yaml:"idle_timeout,omitempty"` // seconds
}

// RosterEntry maps a themed codename onto a real agent name. Pure data;
// consumed by the selection policy's alias matching and prompt builder.
type RosterEntry struct {
	Codename    string   `yaml:"codename"`
	Agent       string   `yaml:"agent"`
	Expertise   string   `yaml:"expertise,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Specialties []string `yaml:"specialties,omitempty"`
}

// TracingConfig configures span export for delegations.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled,omitempty"`
	ServiceName  string  `yaml:"service_name,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`
}

// ============================================================================
// DEFAULTS & VALIDATION
// ============================================================================

// SetDefaults fills unset fields with working defaults.
func (c *Config) SetDefaults() {
	c.Supervisor.SetDefaults()
	for name := range c.LLMs {
		llm := c.LLMs[name]
		llm.SetDefaults()
		c.LLMs[name] = llm
	}
	c.Server.SetDefaults()
	c.Sessions.SetDefaults()
	c.Tracing.SetDefaults()
}

// Validate checks the whole configuration tree.
func (c *Config) Validate() error {
	if err := c.Supervisor.Validate(); err != nil {
		return fmt.Errorf("supervisor validation failed: %w", err)
	}
	for name, llm := range c.LLMs {
		if err := llm.Validate(); err != nil {
			return fmt.Errorf("LLM '%s' validation failed: %w", name, err)
		}
	}
	if c.Supervisor.LLM != "" {
		if _, ok := c.LLMs[c.Supervisor.LLM]; !ok {
			return fmt.Errorf("supervisor references unknown LLM '%s'", c.Supervisor.LLM)
		}
	}
	if err := c.Sessions.Validate(); err != nil {
		return fmt.Errorf("sessions validation failed: %w", err)
	}
	for i, entry := range c.Roster {
		if entry.Codename == "" || entry.Agent == "" {
			return fmt.Errorf("roster entry %d must set codename and agent", i)
		}
	}
	return nil
}

func (c *SupervisorConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "roundtable"
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.Streaming == nil {
		streaming := true
		c.Streaming = &streaming
	}
}

func (c *SupervisorConfig) Validate() error {
	for _, raw := range c.AgentURLs {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid agent URL %q: %w", raw, err)
		}
	}
	return nil
}

func (c *LLMProviderConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Temperature == 0 {
		c.Temperature = 0.1
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 256
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultCallTimeout
	}
	if c.Host == "" {
		switch c.Type {
		case "openai":
			c.Host = "https://api.openai.com/v1"
		case "ollama":
			c.Host = "http://localhost:11434"
		}
	}
}

func (c *LLMProviderConfig) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("type is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = DefaultServerHost
	}
	if c.Port == 0 {
		c.Port = DefaultServerPort
	}
}

func (c *SessionConfig) SetDefaults() {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	if c.Store == "" {
		c.Store = DefaultSessionStore
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
}

func (c *SessionConfig) Validate() error {
	switch c.Store {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unsupported session store: %s", c.Store)
	}
	if c.Store == "sqlite" && c.Path == "" {
		return fmt.Errorf("sqlite session store requires a path")
	}
	return nil
}

func (c *TracingConfig) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "roundtable"
	}
	if c.SamplingRate <= 0 || c.SamplingRate > 1 {
		c.SamplingRate = 1.0
	}
}

// ============================================================================
// LOADING
// ============================================================================

// Load reads, env-expands, and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML config bytes after environment variable expansion.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveAgentURLs resolves the configured agent URL list by priority:
// direct parameter, then config file, then the ROUNDTABLE_AGENT_URLS
// environment variable (comma-separated).
func ResolveAgentURLs(direct []string, cfg *Config) []string {
	if urls := cleanURLs(direct); len(urls) > 0 {
		return urls
	}
	if cfg != nil {
		if urls := cleanURLs(cfg.Supervisor.AgentURLs); len(urls) > 0 {
			return urls
		}
	}
	return cleanURLs(strings.Split(os.Getenv(AgentURLsEnvVar), ","))
}

func cleanURLs(raw []string) []string {
	urls := make([]string, 0, len(raw))
	for _, u := range raw {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}
