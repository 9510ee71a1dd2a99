// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, duration parsing, and engine timing defaults

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2389/chorus/internal/orchestrator"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "chorus.yaml", `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

completion:
  url: "http://localhost:9090/complete"
  headers:
    X-Api-Key: "secret"

engine:
  max_autonomous_turns: 4
  debounce_delay: "250ms"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Completion.URL != "http://localhost:9090/complete" {
		t.Errorf("Completion.URL = %q", cfg.Completion.URL)
	}
	if cfg.Completion.Headers["X-Api-Key"] != "secret" {
		t.Errorf("Completion.Headers[X-Api-Key] = %q, want %q", cfg.Completion.Headers["X-Api-Key"], "secret")
	}
	if cfg.Engine.MaxAutonomousTurns != 4 {
		t.Errorf("Engine.MaxAutonomousTurns = %d, want 4", cfg.Engine.MaxAutonomousTurns)
	}
	if cfg.Engine.DebounceDelay != 250*time.Millisecond {
		t.Errorf("Engine.DebounceDelay = %v, want 250ms", cfg.Engine.DebounceDelay)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "chorus.toml", `
[server]
http_addr = "127.0.0.1:7000"

[database]
path = "chorus.db"

[completion]
url = "https://completion.example.com/v1"

[completion.headers]
Authorization = "Bearer abc"

[engine]
idle_ttl = "2h"
max_autonomous_turns = 3
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:7000" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Completion.Headers["Authorization"] != "Bearer abc" {
		t.Errorf("Completion.Headers[Authorization] = %q", cfg.Completion.Headers["Authorization"])
	}
	if cfg.Engine.IdleTTL != 2*time.Hour {
		t.Errorf("Engine.IdleTTL = %v, want 2h", cfg.Engine.IdleTTL)
	}
	if cfg.Engine.MaxAutonomousTurns != 3 {
		t.Errorf("Engine.MaxAutonomousTurns = %d, want 3", cfg.Engine.MaxAutonomousTurns)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_CHORUS_KEY", "from-env")
	t.Setenv("TEST_CHORUS_DB", "/tmp/env.db")
	t.Setenv("TEST_CHORUS_SECRET", "a-secret-of-sufficient-length")

	configPath := writeConfig(t, "chorus.yaml", `
server:
  http_addr: "0.0.0.0:8080"
auth:
  jwt_secret: "${TEST_CHORUS_SECRET}"
database:
  path: "${TEST_CHORUS_DB}"
completion:
  url: "http://localhost:9090/complete"
  headers:
    X-Api-Key: "${TEST_CHORUS_KEY}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/env.db")
	}
	if cfg.Auth.JWTSecret != "a-secret-of-sufficient-length" {
		t.Errorf("Auth.JWTSecret = %q, want expanded value", cfg.Auth.JWTSecret)
	}
	if cfg.Completion.Headers["X-Api-Key"] != "from-env" {
		t.Errorf("Completion.Headers[X-Api-Key] = %q, want %q", cfg.Completion.Headers["X-Api-Key"], "from-env")
	}
}

func TestLoad_DurationParsing(t *testing.T) {
	configPath := writeConfig(t, "chorus.yaml", `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
completion:
  url: "http://localhost:9090/complete"
engine:
  debounce_delay: "500ms"
  reaction_interval: "1s"
  typing_delay_min: "2s"
  typing_delay_max: "3s"
  turn_delay: "1500ms"
  wrap_up_delay: "2s"
  silence_delay: "750ms"
  sweep_interval: "30m"
  idle_ttl: "24h"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"DebounceDelay", cfg.Engine.DebounceDelay, 500 * time.Millisecond},
		{"ReactionInterval", cfg.Engine.ReactionInterval, time.Second},
		{"TypingDelayMin", cfg.Engine.TypingDelayMin, 2 * time.Second},
		{"TypingDelayMax", cfg.Engine.TypingDelayMax, 3 * time.Second},
		{"TurnDelay", cfg.Engine.TurnDelay, 1500 * time.Millisecond},
		{"WrapUpDelay", cfg.Engine.WrapUpDelay, 2 * time.Second},
		{"SilenceDelay", cfg.Engine.SilenceDelay, 750 * time.Millisecond},
		{"SweepInterval", cfg.Engine.SweepInterval, 30 * time.Minute},
		{"IdleTTL", cfg.Engine.IdleTTL, 24 * time.Hour},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("Engine.%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/chorus.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "chorus.yaml", `
server:
  http_addr "missing colon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"garbage", "invalid-duration"},
		{"negative", "-5s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, "chorus.yaml", `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
completion:
  url: "http://localhost:9090/complete"
engine:
  debounce_delay: "`+tt.value+`"
`)

			_, err := Load(configPath)
			if err == nil {
				t.Errorf("Load() expected error for duration %q, got nil", tt.value)
			}
		})
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
		wantErrSubstr string
	}{
		{
			name: "missing http_addr",
			configContent: `
database:
  path: "./test.db"
completion:
  url: "http://localhost:9090/complete"
`,
			wantErrSubstr: "server.http_addr",
		},
		{
			name: "missing database path",
			configContent: `
server:
  http_addr: "0.0.0.0:8080"
completion:
  url: "http://localhost:9090/complete"
`,
			wantErrSubstr: "database.path",
		},
		{
			name: "short jwt secret",
			configContent: `
server:
  http_addr: "0.0.0.0:8080"
auth:
  jwt_secret: "short"
database:
  path: "./test.db"
completion:
  url: "http://localhost:9090/complete"
`,
			wantErrSubstr: "auth.jwt_secret",
		},
		{
			name: "missing completion url",
			configContent: `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
`,
			wantErrSubstr: "completion.url",
		},
		{
			name: "non-http completion url",
			configContent: `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
completion:
  url: "ftp://localhost/complete"
`,
			wantErrSubstr: "http(s) URL",
		},
		{
			name: "typing delay max below min",
			configContent: `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
completion:
  url: "http://localhost:9090/complete"
engine:
  typing_delay_min: "3s"
  typing_delay_max: "1s"
`,
			wantErrSubstr: "typing_delay_max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, "chorus.yaml", tt.configContent)

			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Load() error = %q, want substring %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("ANOTHER", "other")

	tests := []struct {
		input string
		want  string
	}{
		{"${TEST_VAR}", "value"},
		{"prefix-${TEST_VAR}-suffix", "prefix-value-suffix"},
		{"${TEST_VAR} and ${ANOTHER}", "value and other"},
		{"${UNSET_CHORUS_VAR_XYZ}", ""},
		{"no vars here", "no vars here"},
		{"$TEST_VAR", "$TEST_VAR"},
	}

	for _, tt := range tests {
		if got := expandEnvVars(tt.input); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestEngineTiming_FillsDefaults(t *testing.T) {
	defaults := orchestrator.DefaultTiming()

	got := EngineConfig{DebounceDelay: 100 * time.Millisecond}.Timing()
	if got.DebounceDelay != 100*time.Millisecond {
		t.Errorf("DebounceDelay = %v, want 100ms", got.DebounceDelay)
	}
	if got.IdleTTL != defaults.IdleTTL {
		t.Errorf("IdleTTL = %v, want default %v", got.IdleTTL, defaults.IdleTTL)
	}
	if got.MaxAutonomousTurns != defaults.MaxAutonomousTurns {
		t.Errorf("MaxAutonomousTurns = %d, want default %d", got.MaxAutonomousTurns, defaults.MaxAutonomousTurns)
	}

	got = EngineConfig{TypingDelayMin: 5 * time.Second}.Timing()
	if got.TypingDelayMax < got.TypingDelayMin {
		t.Errorf("TypingDelayMax %v below TypingDelayMin %v", got.TypingDelayMax, got.TypingDelayMin)
	}
}

func TestDefault_RoundTripsThroughLoad(t *testing.T) {
	data, err := Marshal(Default())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	configPath := writeConfig(t, "chorus.yaml", string(data))

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.Timing() != orchestrator.DefaultTiming() {
		t.Errorf("Timing() = %+v, want defaults %+v", cfg.Engine.Timing(), orchestrator.DefaultTiming())
	}
}
