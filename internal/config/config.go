// Package config loads and validates valet configuration.
// Configuration lives in .valet/config.yaml under the workspace root;
// environment variables override file values for secrets and paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all valet configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM classifier configuration
	LLM LLMConfig `yaml:"llm"`

	// Assistant behavior
	Assistant AssistantConfig `yaml:"assistant"`

	// Draft/transcript store
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the intent classification client.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, keyword
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// AssistantConfig configures turn handling behavior.
type AssistantConfig struct {
	// PageSize is the default limit per page for paged tool results.
	PageSize int `yaml:"page_size"`

	// HistoryWindow is how many prior turns feed the classifier as context.
	HistoryWindow int `yaml:"history_window"`

	// ToolTimeout is the maximum time for a single tool execution.
	ToolTimeout string `yaml:"tool_timeout"`
}

// StoreConfig configures the SQLite draft/transcript store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "valet",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			Timeout:  "30s",
		},

		Assistant: AssistantConfig{
			PageSize:      50,
			HistoryWindow: 10,
			ToolTimeout:   "60s",
		},

		Store: StoreConfig{
			DatabasePath: ".valet/valet.db",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// LoadFromWorkspace loads .valet/config.yaml relative to the workspace root.
func LoadFromWorkspace(workspace string) (*Config, error) {
	return Load(filepath.Join(workspace, ".valet", "config.yaml"))
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "gemini"
		}
	}
	if model := os.Getenv("VALET_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("VALET_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

// GetLLMTimeout returns the classifier timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetToolTimeout returns the tool execution timeout as a duration.
func (c *Config) GetToolTimeout() time.Duration {
	d, err := time.ParseDuration(c.Assistant.ToolTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Assistant.PageSize <= 0 {
		return fmt.Errorf("assistant.page_size must be positive, got %d", c.Assistant.PageSize)
	}
	if c.Assistant.HistoryWindow < 0 {
		return fmt.Errorf("assistant.history_window must not be negative, got %d", c.Assistant.HistoryWindow)
	}
	switch c.LLM.Provider {
	case "gemini", "keyword", "":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	return nil
}
