// ABOUTME: Configuration loading and parsing for chorus
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/chorus/internal/orchestrator"
)

// Config represents the complete chorus configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Completion CompletionConfig `yaml:"completion" toml:"completion"`
	Engine     EngineConfig     `yaml:"engine" toml:"engine"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// AuthConfig holds API authentication configuration.
// An empty JWTSecret leaves the API open.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// CompletionConfig points at the completion service
type CompletionConfig struct {
	URL     string            `yaml:"url" toml:"url"`
	Headers map[string]string `yaml:"headers" toml:"headers"`
}

// EngineConfig holds the turn engine's timing configuration.
// Unset values fall back to orchestrator.DefaultTiming.
type EngineConfig struct {
	DebounceDelay    time.Duration `yaml:"-" toml:"-"`
	ReactionInterval time.Duration `yaml:"-" toml:"-"`
	TypingDelayMin   time.Duration `yaml:"-" toml:"-"`
	TypingDelayMax   time.Duration `yaml:"-" toml:"-"`
	TurnDelay        time.Duration `yaml:"-" toml:"-"`
	WrapUpDelay      time.Duration `yaml:"-" toml:"-"`
	SilenceDelay     time.Duration `yaml:"-" toml:"-"`
	SweepInterval    time.Duration `yaml:"-" toml:"-"`
	IdleTTL          time.Duration `yaml:"-" toml:"-"`

	MaxAutonomousTurns int `yaml:"max_autonomous_turns" toml:"max_autonomous_turns"`

	// Raw string values for unmarshaling
	DebounceDelayRaw    string `yaml:"debounce_delay" toml:"debounce_delay"`
	ReactionIntervalRaw string `yaml:"reaction_interval" toml:"reaction_interval"`
	TypingDelayMinRaw   string `yaml:"typing_delay_min" toml:"typing_delay_min"`
	TypingDelayMaxRaw   string `yaml:"typing_delay_max" toml:"typing_delay_max"`
	TurnDelayRaw        string `yaml:"turn_delay" toml:"turn_delay"`
	WrapUpDelayRaw      string `yaml:"wrap_up_delay" toml:"wrap_up_delay"`
	SilenceDelayRaw     string `yaml:"silence_delay" toml:"silence_delay"`
	SweepIntervalRaw    string `yaml:"sweep_interval" toml:"sweep_interval"`
	IdleTTLRaw          string `yaml:"idle_ttl" toml:"idle_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	t := orchestrator.DefaultTiming()
	return &Config{
		Server:     ServerConfig{HTTPAddr: "127.0.0.1:8080"},
		Database:   DatabaseConfig{Path: "chorus.db"},
		Completion: CompletionConfig{URL: "http://127.0.0.1:9090/complete"},
		Engine: EngineConfig{
			MaxAutonomousTurns:  t.MaxAutonomousTurns,
			DebounceDelayRaw:    t.DebounceDelay.String(),
			ReactionIntervalRaw: t.ReactionInterval.String(),
			TypingDelayMinRaw:   t.TypingDelayMin.String(),
			TypingDelayMaxRaw:   t.TypingDelayMax.String(),
			TurnDelayRaw:        t.TurnDelay.String(),
			WrapUpDelayRaw:      t.WrapUpDelay.String(),
			SilenceDelayRaw:     t.SilenceDelay.String(),
			SweepIntervalRaw:    t.SweepInterval.String(),
			IdleTTLRaw:          t.IdleTTL.String(),
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Marshal renders cfg as YAML, used by `chorus init`.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Completion.URL == "" {
		return fmt.Errorf("completion.url is required")
	}
	if !strings.HasPrefix(c.Completion.URL, "http://") && !strings.HasPrefix(c.Completion.URL, "https://") {
		return fmt.Errorf("completion.url must be an http(s) URL, got %q", c.Completion.URL)
	}

	if c.Engine.MaxAutonomousTurns < 0 {
		return fmt.Errorf("engine.max_autonomous_turns must not be negative")
	}

	if c.Engine.TypingDelayMin > 0 && c.Engine.TypingDelayMax > 0 && c.Engine.TypingDelayMax < c.Engine.TypingDelayMin {
		return fmt.Errorf("engine.typing_delay_max (%s) is shorter than engine.typing_delay_min (%s)",
			c.Engine.TypingDelayMax, c.Engine.TypingDelayMin)
	}

	return nil
}

// Timing converts the engine section into orchestrator timing, filling
// unset values from the defaults.
func (e EngineConfig) Timing() orchestrator.Timing {
	t := orchestrator.DefaultTiming()
	set := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}
	set(&t.DebounceDelay, e.DebounceDelay)
	set(&t.ReactionInterval, e.ReactionInterval)
	set(&t.TypingDelayMin, e.TypingDelayMin)
	set(&t.TypingDelayMax, e.TypingDelayMax)
	set(&t.TurnDelay, e.TurnDelay)
	set(&t.WrapUpDelay, e.WrapUpDelay)
	set(&t.SilenceDelay, e.SilenceDelay)
	set(&t.SweepInterval, e.SweepInterval)
	set(&t.IdleTTL, e.IdleTTL)
	if e.MaxAutonomousTurns > 0 {
		t.MaxAutonomousTurns = e.MaxAutonomousTurns
	}
	if t.TypingDelayMax < t.TypingDelayMin {
		t.TypingDelayMax = t.TypingDelayMin
	}
	return t
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"debounce_delay", cfg.Engine.DebounceDelayRaw, &cfg.Engine.DebounceDelay},
		{"reaction_interval", cfg.Engine.ReactionIntervalRaw, &cfg.Engine.ReactionInterval},
		{"typing_delay_min", cfg.Engine.TypingDelayMinRaw, &cfg.Engine.TypingDelayMin},
		{"typing_delay_max", cfg.Engine.TypingDelayMaxRaw, &cfg.Engine.TypingDelayMax},
		{"turn_delay", cfg.Engine.TurnDelayRaw, &cfg.Engine.TurnDelay},
		{"wrap_up_delay", cfg.Engine.WrapUpDelayRaw, &cfg.Engine.WrapUpDelay},
		{"silence_delay", cfg.Engine.SilenceDelayRaw, &cfg.Engine.SilenceDelay},
		{"sweep_interval", cfg.Engine.SweepIntervalRaw, &cfg.Engine.SweepInterval},
		{"idle_ttl", cfg.Engine.IdleTTLRaw, &cfg.Engine.IdleTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %q", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
