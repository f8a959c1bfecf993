package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/slighter12/qualityos-mcp-go/mcp"
)

// Config represents the Quality OS server configuration
type Config struct {
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	Description string      `json:"description"`
	Server      Server      `json:"server"`
	Transports  []Transport `json:"transports"`
	Logging     Logging     `json:"logging"`
	RuleCatalog RuleCatalog `json:"rule_catalog"`
	Engine      Engine      `json:"engine"`
	Metrics     Metrics     `json:"metrics"`
}

// Server represents server configuration
type Server struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Debug bool   `json:"debug"`
}

// Transport represents a transport configuration
type Transport struct {
	Type    string            `json:"type"`
	Enabled bool              `json:"enabled"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Logging represents logging configuration
type Logging struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Path   string `json:"path"`
	// Console is stdout, stderr or none.
	Console string `json:"console"`
}

// RuleCatalog controls where rule bundles are loaded from.
type RuleCatalog struct {
	Enabled bool `json:"enabled"`
	// Paths are files, directories or doublestar globs.
	Paths        []string              `json:"paths"`
	AllowedRoots []string              `json:"allowed_roots"`
	AutoReload   RuleCatalogAutoReload `json:"auto_reload"`
}

// RuleCatalogAutoReload controls file-watch based catalog reloads.
type RuleCatalogAutoReload struct {
	Enabled        bool `json:"enabled"`
	DebounceMillis int  `json:"debounce_millis"`
}

// Engine carries the run defaults handed to the quality engine.
type Engine struct {
	DefaultMaxPasses int     `json:"default_max_passes"`
	MaxPasses        int     `json:"max_passes"`
	DefaultCutoff    float64 `json:"default_cutoff"`
	RedactionMarker  string  `json:"redaction_marker"`
	FallbackCTA      string  `json:"fallback_cta"`
	BatchConcurrency int     `json:"batch_concurrency"`
}

// Metrics controls the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

const (
	ConsoleStdout = "stdout"
	ConsoleStderr = "stderr"
	ConsoleNone   = "none"

	defaultDebounceMillis   = 300
	defaultBatchConcurrency = 4
	maxPassCeiling          = 50
)

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return &Config{
		Name:        "qualityos-mcp-go",
		Version:     "0.1.0",
		Description: "Deterministic marketing copy quality engine over MCP",
		Server: Server{
			Host:  "localhost",
			Port:  9080,
			Debug: false,
		},
		Transports: []Transport{
			{
				Type:    "stdio",
				Enabled: true,
			},
			{
				Type:    "streamable_http",
				Enabled: true,
				URL:     "http://localhost:9080/mcp",
				Headers: map[string]string{
					"Accept":               "application/json, text/event-stream",
					"Content-Type":         "application/json",
					"MCP-Protocol-Version": mcp.ProtocolVersion,
				},
			},
		},
		Logging: Logging{
			Level:   "info",
			Format:  "json",
			Path:    filepath.Join(home, ".qualityos", "logs", "qualityos.log"),
			Console: ConsoleStdout,
		},
		RuleCatalog: RuleCatalog{
			Enabled:      true,
			Paths:        []string{},
			AllowedRoots: []string{},
			AutoReload: RuleCatalogAutoReload{
				Enabled:        false,
				DebounceMillis: defaultDebounceMillis,
			},
		},
		Engine: Engine{
			DefaultMaxPasses: 3,
			MaxPasses:        10,
			DefaultCutoff:    80,
			RedactionMarker:  "[REDACTED]",
			FallbackCTA:      "지금 문의하세요.",
			BatchConcurrency: defaultBatchConcurrency,
		},
		Metrics: Metrics{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LoadConfig loads the configuration from a file
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Override with environment variables (highest priority).
	applyEnvOverrides(cfg)
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a file
func SaveConfig(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) {
	envInt("QOS_PORT", &cfg.Server.Port)
	envString("QOS_HOST", &cfg.Server.Host)
	envBool("QOS_DEBUG", &cfg.Server.Debug)

	envString("QOS_LOG_LEVEL", &cfg.Logging.Level)
	envString("QOS_LOG_PATH", &cfg.Logging.Path)
	envString("QOS_LOG_CONSOLE", &cfg.Logging.Console)

	envBool("QOS_RULE_CATALOG_ENABLED", &cfg.RuleCatalog.Enabled)
	if paths := os.Getenv("QOS_RULE_CATALOG_PATHS"); paths != "" {
		cfg.RuleCatalog.Paths = parseCSV(paths)
	}
	if roots := os.Getenv("QOS_RULE_CATALOG_ALLOWED_ROOTS"); roots != "" {
		cfg.RuleCatalog.AllowedRoots = parseCSV(roots)
	}
	envBool("QOS_RULE_CATALOG_AUTO_RELOAD_ENABLED", &cfg.RuleCatalog.AutoReload.Enabled)
	envInt("QOS_RULE_CATALOG_DEBOUNCE_MILLIS", &cfg.RuleCatalog.AutoReload.DebounceMillis)

	envInt("QOS_ENGINE_DEFAULT_MAX_PASSES", &cfg.Engine.DefaultMaxPasses)
	envInt("QOS_ENGINE_MAX_PASSES", &cfg.Engine.MaxPasses)
	envFloat("QOS_ENGINE_DEFAULT_CUTOFF", &cfg.Engine.DefaultCutoff)
	envString("QOS_ENGINE_FALLBACK_CTA", &cfg.Engine.FallbackCTA)
	envInt("QOS_ENGINE_BATCH_CONCURRENCY", &cfg.Engine.BatchConcurrency)

	envBool("QOS_METRICS_ENABLED", &cfg.Metrics.Enabled)
}

func envString(key string, dst *string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func envBool(key string, dst *bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("warning: ignoring invalid %s value %q: %v", key, raw, err)
		return
	}
	*dst = parsed
}

func envInt(key string, dst *int) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("warning: ignoring invalid %s value %q: %v", key, raw, err)
		return
	}
	*dst = parsed
}

func envFloat(key string, dst *float64) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("warning: ignoring invalid %s value %q: %v", key, raw, err)
		return
	}
	*dst = parsed
}

// Normalize canonicalizes config values so downstream validation and runtime
// logic operate on stable representations.
func (c *Config) Normalize() {
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Path = strings.TrimSpace(c.Logging.Path)
	c.Logging.Console = strings.ToLower(strings.TrimSpace(c.Logging.Console))
	if c.Logging.Console == "" {
		c.Logging.Console = ConsoleStdout
	}
	c.RuleCatalog.Paths = normalizePaths(c.RuleCatalog.Paths)
	c.RuleCatalog.AllowedRoots = normalizePaths(c.RuleCatalog.AllowedRoots)
	if c.RuleCatalog.AutoReload.DebounceMillis == 0 {
		c.RuleCatalog.AutoReload.DebounceMillis = defaultDebounceMillis
	}
	c.Engine.RedactionMarker = strings.TrimSpace(c.Engine.RedactionMarker)
	c.Engine.FallbackCTA = strings.TrimSpace(c.Engine.FallbackCTA)
	if c.Engine.BatchConcurrency == 0 {
		c.Engine.BatchConcurrency = defaultBatchConcurrency
	}
	c.Metrics.Path = strings.TrimSpace(c.Metrics.Path)
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	for i := range c.Transports {
		c.Transports[i].Type = strings.ToLower(strings.TrimSpace(c.Transports[i].Type))
		c.Transports[i].URL = strings.TrimSpace(c.Transports[i].URL)
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid port number")
	}

	if c.Server.Host == "" {
		return errors.New("host cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return errors.New("invalid log level")
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return errors.New("invalid log format")
	}

	validConsoles := map[string]bool{
		ConsoleStdout: true,
		ConsoleStderr: true,
		ConsoleNone:   true,
	}
	if !validConsoles[c.Logging.Console] {
		return fmt.Errorf("invalid log console %q: expected one of [stdout stderr none]", c.Logging.Console)
	}

	if len(c.Transports) == 0 {
		return errors.New("at least one transport must be enabled")
	}

	validTransportTypes := map[string]bool{
		"stdio":           true,
		"streamable_http": true,
	}

	enabledTransports := 0
	for _, t := range c.Transports {
		if !validTransportTypes[t.Type] {
			return fmt.Errorf("invalid transport type: %s", t.Type)
		}
		if t.Enabled {
			enabledTransports++
		}
	}

	if enabledTransports == 0 {
		return errors.New("at least one transport must be enabled")
	}

	if d := c.RuleCatalog.AutoReload.DebounceMillis; d < 50 || d > 60000 {
		return fmt.Errorf("invalid rule catalog debounce millis %d: expected range 50..60000", d)
	}

	if c.Engine.DefaultMaxPasses < 1 || c.Engine.MaxPasses < c.Engine.DefaultMaxPasses || c.Engine.MaxPasses > maxPassCeiling {
		return fmt.Errorf(
			"invalid engine passes default=%d max=%d: expected 1 <= default <= max <= %d",
			c.Engine.DefaultMaxPasses, c.Engine.MaxPasses, maxPassCeiling,
		)
	}

	if c.Engine.DefaultCutoff <= 0 || c.Engine.DefaultCutoff > 100 {
		return fmt.Errorf("invalid engine default cutoff %v: expected range (0, 100]", c.Engine.DefaultCutoff)
	}

	if c.Engine.BatchConcurrency < 1 || c.Engine.BatchConcurrency > 64 {
		return fmt.Errorf("invalid engine batch concurrency %d: expected range 1..64", c.Engine.BatchConcurrency)
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics path %q: must start with /", c.Metrics.Path)
	}

	return nil
}

// ResolveConfigPath returns the path that should be used for configuration.
func ResolveConfigPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv("QOS_CONFIG_PATH")); path != "" {
		return path, nil
	}

	if _, err := os.Stat("config/qualityos.json"); err == nil {
		return "config/qualityos.json", nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".qualityos", "config", "qualityos.json"), nil
}

// EnsureDefaultConfig creates a default config file if one does not exist.
func EnsureDefaultConfig(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path cannot be empty")
	}

	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	defaultConfig := NewConfig()
	defaultConfig.Normalize()
	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	return nil
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
