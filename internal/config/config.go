// ABOUTME: Configuration loading and saving for mcp-feedback
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/mcp-feedback/internal/invocation"
)

// Defaults
const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 7423
	DefaultTimeout      = 30 * time.Second
	DefaultRestartDelay = 2 * time.Second
	DefaultOrphanPolicy = "keep"
)

// EnvConfigPath names the environment variable overriding the config path.
const EnvConfigPath = "MCP_FEEDBACK_CONFIG"

// ErrExists is returned by WriteDefault when the file is already present.
var ErrExists = errors.New("config file already exists")

// Config represents the complete mcp-feedback configuration
type Config struct {
	Host           string          `yaml:"host" toml:"host"`
	Port           int             `yaml:"port" toml:"port"`
	EnabledTools   map[string]bool `yaml:"enabled_tools" toml:"enabled_tools"`
	AutoRestart    bool            `yaml:"auto_restart" toml:"auto_restart"`
	EnforceTimeout bool            `yaml:"enforce_timeout" toml:"enforce_timeout"`
	OrphanPolicy   string          `yaml:"orphan_policy" toml:"orphan_policy"`

	Timeout      time.Duration `yaml:"-" toml:"-"`
	RestartDelay time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TimeoutRaw      string `yaml:"timeout" toml:"timeout"`
	RestartDelayRaw string `yaml:"restart_delay" toml:"restart_delay"`

	History HistoryConfig `yaml:"history" toml:"history"`
	Audit   AuditConfig   `yaml:"audit" toml:"audit"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// HistoryConfig bounds the in-memory invocation history
type HistoryConfig struct {
	MaxEntries int `yaml:"max_entries" toml:"max_entries"`
}

// AuditConfig holds the optional SQLite audit ledger configuration
type AuditConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Settings is the part of the configuration the human surface can change.
type Settings struct {
	EnabledTools   map[invocation.ToolName]bool
	Timeout        time.Duration
	Port           int
	AutoRestart    bool
	EnforceTimeout bool
	OrphanPolicy   string
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	cfg := &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		EnabledTools: make(map[string]bool),
		OrphanPolicy: DefaultOrphanPolicy,
		Timeout:      DefaultTimeout,
		RestartDelay: DefaultRestartDelay,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
	for _, tool := range invocation.AllTools {
		cfg.EnabledTools[string(tool)] = true
	}
	cfg.syncRaw()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Fields absent from the file keep their defaults.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Defaults()
	if isTOML(path) {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if cfg.EnabledTools == nil {
		cfg.EnabledTools = make(map[string]bool)
	}
	for _, tool := range invocation.AllTools {
		if _, ok := cfg.EnabledTools[string(tool)]; !ok {
			cfg.EnabledTools[string(tool)] = true
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	return cfg, err
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Validate checks that all configuration fields are valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RestartDelay < 0 {
		return fmt.Errorf("restart_delay must not be negative")
	}
	switch c.OrphanPolicy {
	case "keep", "cancel":
	default:
		return fmt.Errorf("orphan_policy must be keep or cancel, got %q", c.OrphanPolicy)
	}
	for name := range c.EnabledTools {
		if !invocation.ToolName(name).Valid() {
			return fmt.Errorf("enabled_tools: %w: %q", invocation.ErrUnknownTool, name)
		}
	}
	if c.History.MaxEntries < 0 {
		return fmt.Errorf("history.max_entries must not be negative")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.TimeoutRaw != "" {
		cfg.Timeout, err = time.ParseDuration(cfg.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.TimeoutRaw, err)
		}
	}

	if cfg.RestartDelayRaw != "" {
		cfg.RestartDelay, err = time.ParseDuration(cfg.RestartDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing restart_delay %q: %w", cfg.RestartDelayRaw, err)
		}
	}

	return nil
}

// syncRaw writes the parsed durations back to their raw fields.
func (c *Config) syncRaw() {
	c.TimeoutRaw = c.Timeout.String()
	c.RestartDelayRaw = c.RestartDelay.String()
}

// Settings returns the user-adjustable settings.
func (c *Config) Settings() Settings {
	enabled := make(map[invocation.ToolName]bool, len(c.EnabledTools))
	for name, on := range c.EnabledTools {
		enabled[invocation.ToolName(name)] = on
	}
	return Settings{
		EnabledTools:   enabled,
		Timeout:        c.Timeout,
		Port:           c.Port,
		AutoRestart:    c.AutoRestart,
		EnforceTimeout: c.EnforceTimeout,
		OrphanPolicy:   c.OrphanPolicy,
	}
}

// ApplySettings validates s and copies it into the configuration. On error
// the configuration is left unchanged.
func (c *Config) ApplySettings(s Settings) error {
	next := *c
	next.EnabledTools = maps.Clone(c.EnabledTools)
	for name, on := range s.EnabledTools {
		next.EnabledTools[string(name)] = on
	}
	next.Timeout = s.Timeout
	next.Port = s.Port
	next.AutoRestart = s.AutoRestart
	next.EnforceTimeout = s.EnforceTimeout
	if s.OrphanPolicy != "" {
		next.OrphanPolicy = s.OrphanPolicy
	}

	if err := next.Validate(); err != nil {
		return err
	}
	next.syncRaw()
	*c = next
	return nil
}

// Encode renders the configuration as YAML, or TOML when toTOML is set.
func (c *Config) Encode(toTOML bool) ([]byte, error) {
	out := *c
	out.syncRaw()

	if toTOML {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(out); err != nil {
			return nil, fmt.Errorf("encoding toml: %w", err)
		}
		return buf.Bytes(), nil
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	return data, nil
}

// Save writes the configuration to path in the format implied by its
// extension. The file is replaced atomically.
func (c *Config) Save(path string) error {
	data, err := c.Encode(isTOML(path))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("setting config permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

// WriteDefault writes the default configuration to path unless a file is
// already there.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	return Defaults().Save(path)
}

// ResolvePath returns the config path to use.
// Priority: explicit path > MCP_FEEDBACK_CONFIG env var >
// XDG_CONFIG_HOME/mcp-feedback/config.yaml > ~/.config/mcp-feedback/config.yaml
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "mcp-feedback", "config.yaml")
}
