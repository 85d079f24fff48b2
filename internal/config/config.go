// Package config loads and watches the JSON5 configuration file.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Config is the full application configuration.
type Config struct {
	// Mode selects the storage backend: "standalone" (markdown skills +
	// SQLite) or "managed" (Postgres for everything).
	Mode string `json:"mode"`

	Server   ServerConfig   `json:"server"`
	Provider ProviderConfig `json:"provider"`
	Database DatabaseConfig `json:"database"`
	Skills   SkillsConfig   `json:"skills"`
	Agent    AgentConfig    `json:"agent"`
	Tracing  TracingConfig  `json:"tracing"`
	Logging  LoggingConfig  `json:"logging"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ProviderConfig struct {
	// Type is "openai", "anthropic", or "dashscope".
	Type    string `json:"type"`
	BaseURL string `json:"baseUrl"`
	APIKey  string `json:"apiKey"`
	Model   string `json:"model"`
}

type DatabaseConfig struct {
	PostgresDSN string `json:"postgresDsn"`
	SQLitePath  string `json:"sqlitePath"`
}

type SkillsConfig struct {
	// Dirs are skill root directories, scanned in order; later dirs win
	// on ID collision. Standalone mode only.
	Dirs []string `json:"dirs"`
}

type AgentConfig struct {
	MaxSteps      int    `json:"maxSteps"`
	ContextWindow int    `json:"contextWindow"`
	SystemPrompt  string `json:"systemPrompt"`
	// ToolCallsPerHour caps tool executions per conversation per hour.
	// 0 disables the cap.
	ToolCallsPerHour int `json:"toolCallsPerHour"`
}

type TracingConfig struct {
	Enabled bool `json:"enabled"`
	// OTLP exporter settings; empty endpoint disables export.
	OTLPEndpoint string `json:"otlpEndpoint"`
	OTLPProtocol string `json:"otlpProtocol"` // "grpc" or "http"
}

type LoggingConfig struct {
	Level string `json:"level"` // "debug", "info", "warn", "error"
}

// Default returns a config with sensible standalone-mode defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".skillbase")
	return &Config{
		Mode: "standalone",
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Provider: ProviderConfig{
			Type:  "openai",
			Model: "gpt-4o-mini",
		},
		Database: DatabaseConfig{
			SQLitePath: filepath.Join(base, "skillbase.db"),
		},
		Skills: SkillsConfig{
			Dirs: []string{filepath.Join(base, "skills")},
		},
		Agent: AgentConfig{
			MaxSteps:         8,
			ContextWindow:    32000,
			ToolCallsPerHour: 120,
		},
		Tracing: TracingConfig{
			Enabled:      true,
			OTLPProtocol: "grpc",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a JSON5 config file and applies env overrides on top.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Save writes the config as indented JSON (valid JSON5).
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// ApplyEnvOverrides lets environment variables win over file values.
// Useful for containers and for keeping the API key out of the file.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SKILLBASE_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("SKILLBASE_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("SKILLBASE_PROVIDER"); v != "" {
		c.Provider.Type = v
	}
	if v := os.Getenv("SKILLBASE_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("SKILLBASE_POSTGRES_DSN"); v != "" {
		c.Database.PostgresDSN = v
		c.Mode = "managed"
	}
	if v := os.Getenv("SKILLBASE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SKILLBASE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Hash returns a short fingerprint of the current config, used for
// optimistic concurrency when applying updates over the API.
func (c *Config) Hash() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// MaskedCopy returns a copy safe to return over the API.
func (c *Config) MaskedCopy() *Config {
	cp := *c
	if cp.Provider.APIKey != "" {
		cp.Provider.APIKey = "********"
	}
	if cp.Database.PostgresDSN != "" {
		cp.Database.PostgresDSN = "********"
	}
	return &cp
}

// Managed reports whether the Postgres-backed managed mode is active.
func (c *Config) Managed() bool {
	return c.Mode == "managed" && c.Database.PostgresDSN != ""
}
