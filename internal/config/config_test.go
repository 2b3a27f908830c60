package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
)

func TestLoadPolicyFile(t *testing.T) {
	content := `settings:
  debounce: 100ms
  max_delay: 3s
  safety_interval: 5m
  command_timeout: 2s
  shutdown_timeout: 15s
  reconnect:
    initial: 250ms
    mode: linear
    max: 10s
    budget: 4

logging:
  level: debug
  format: json

state:
  dir: /tmp/hywoma-test-state

relay:
  enabled: true
  url: nats://relay.local:4222
  subject_prefix: desk

telemetry:
  listen: 127.0.0.1:9187

monitors:
  - match: DP-1
    exclusive: true
    workspaces:
      - id: 1
        name: code
        default: true
      - id: 2
        name: web
  - match: "*"
    workspaces:
      - id: 9
`

	path := filepath.Join(t.TempDir(), "hywoma.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Settings.Debounce != 100*time.Millisecond {
		t.Errorf("expected debounce 100ms, got %v", cfg.Settings.Debounce)
	}
	if cfg.Settings.MaxDelay != 3*time.Second {
		t.Errorf("expected max_delay 3s, got %v", cfg.Settings.MaxDelay)
	}
	if cfg.Settings.SafetyInterval != 5*time.Minute {
		t.Errorf("expected safety_interval 5m, got %v", cfg.Settings.SafetyInterval)
	}
	if cfg.Settings.CommandTimeout != 2*time.Second {
		t.Errorf("expected command_timeout 2s, got %v", cfg.Settings.CommandTimeout)
	}
	if cfg.Settings.ShutdownTimeout != 15*time.Second {
		t.Errorf("expected shutdown_timeout 15s, got %v", cfg.Settings.ShutdownTimeout)
	}
	if cfg.Settings.Reconnect.Mode != RetryBackoffLinear {
		t.Errorf("expected linear reconnect mode, got %q", cfg.Settings.Reconnect.Mode)
	}
	if cfg.Settings.Reconnect.Initial != 250*time.Millisecond {
		t.Errorf("expected reconnect initial 250ms, got %v", cfg.Settings.Reconnect.Initial)
	}
	if cfg.Settings.Reconnect.Max != 10*time.Second {
		t.Errorf("expected reconnect max 10s, got %v", cfg.Settings.Reconnect.Max)
	}
	if cfg.Settings.Reconnect.Budget != 4 {
		t.Errorf("expected reconnect budget 4, got %d", cfg.Settings.Reconnect.Budget)
	}

	if cfg.Logging.Level != LogLevelDebug {
		t.Errorf("expected debug log level, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != LogFormatJSON {
		t.Errorf("expected json log format, got %q", cfg.Logging.Format)
	}

	if cfg.State.Dir != "/tmp/hywoma-test-state" {
		t.Errorf("expected state dir override, got %q", cfg.State.Dir)
	}
	if !cfg.Relay.Enabled {
		t.Errorf("expected relay enabled")
	}
	if cfg.Relay.URL != "nats://relay.local:4222" {
		t.Errorf("expected relay url override, got %q", cfg.Relay.URL)
	}
	if cfg.Relay.SubjectPrefix != "desk" {
		t.Errorf("expected relay subject prefix desk, got %q", cfg.Relay.SubjectPrefix)
	}
	if cfg.Telemetry.Listen != "127.0.0.1:9187" {
		t.Errorf("expected telemetry listen address, got %q", cfg.Telemetry.Listen)
	}

	if len(cfg.Rules.Monitors) != 2 {
		t.Fatalf("expected 2 monitor rules, got %d", len(cfg.Rules.Monitors))
	}
	first := cfg.Rules.Monitors[0]
	if first.Match != "DP-1" || !first.Exclusive {
		t.Errorf("unexpected first rule: %+v", first)
	}
	if len(first.Workspaces) != 2 {
		t.Fatalf("expected 2 workspaces on first rule, got %d", len(first.Workspaces))
	}
	if first.Workspaces[0].ID != 1 || first.Workspaces[0].Name != "code" || !first.Workspaces[0].Default {
		t.Errorf("unexpected workspace rule: %+v", first.Workspaces[0])
	}
}

func TestParseDefaultsApplied(t *testing.T) {
	content := `monitors:
  - match: "*"
    workspaces:
      - id: 1
`

	cfg, err := Parse([]byte(content), "inline")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Settings.Debounce != defaultDebounce {
		t.Errorf("expected default debounce %v, got %v", defaultDebounce, cfg.Settings.Debounce)
	}
	if cfg.Settings.MaxDelay != defaultMaxDelay {
		t.Errorf("expected default max_delay %v, got %v", defaultMaxDelay, cfg.Settings.MaxDelay)
	}
	if cfg.Settings.SafetyInterval != defaultSafetyInterval {
		t.Errorf("expected default safety_interval %v, got %v", defaultSafetyInterval, cfg.Settings.SafetyInterval)
	}
	if cfg.Settings.CommandTimeout != defaultCommandTimeout {
		t.Errorf("expected default command_timeout %v, got %v", defaultCommandTimeout, cfg.Settings.CommandTimeout)
	}
	if cfg.Settings.ShutdownTimeout != defaultShutdownTimeout {
		t.Errorf("expected default shutdown_timeout %v, got %v", defaultShutdownTimeout, cfg.Settings.ShutdownTimeout)
	}
	if cfg.Settings.Reconnect.Mode != RetryBackoffExponential {
		t.Errorf("expected default exponential mode, got %q", cfg.Settings.Reconnect.Mode)
	}
	if cfg.Settings.Reconnect.Initial != defaultReconnectInitial {
		t.Errorf("expected default reconnect initial %v, got %v", defaultReconnectInitial, cfg.Settings.Reconnect.Initial)
	}
	if cfg.Settings.Reconnect.Max != defaultReconnectMax {
		t.Errorf("expected default reconnect max %v, got %v", defaultReconnectMax, cfg.Settings.Reconnect.Max)
	}
	if cfg.Settings.Reconnect.Budget != defaultReconnectBudget {
		t.Errorf("expected default reconnect budget %d, got %d", defaultReconnectBudget, cfg.Settings.Reconnect.Budget)
	}
	if cfg.Logging.Level != defaultLogLevel {
		t.Errorf("expected default log level %q, got %q", defaultLogLevel, cfg.Logging.Level)
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Errorf("expected default log format %q, got %q", defaultLogFormat, cfg.Logging.Format)
	}
	if cfg.Relay.Enabled {
		t.Errorf("expected relay disabled by default")
	}
	if cfg.Relay.URL != defaultRelayURL {
		t.Errorf("expected default relay url, got %q", cfg.Relay.URL)
	}
	if cfg.Relay.SubjectPrefix != defaultRelaySubjectPrefix {
		t.Errorf("expected default subject prefix, got %q", cfg.Relay.SubjectPrefix)
	}
	if cfg.State.Dir == "" {
		t.Errorf("expected state dir to be defaulted")
	}
	if cfg.Telemetry.Listen != "" {
		t.Errorf("expected telemetry disabled by default, got %q", cfg.Telemetry.Listen)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	content := `monitors:
  - match: "*"
    workspases:
      - id: 1
`

	_, err := Parse([]byte(content), "inline")
	if err == nil {
		t.Fatalf("expected error for misspelled field")
	}
	if !ferrors.HasCategory(err, ferrors.CategoryPolicy) {
		t.Errorf("expected policy category, got %v", err)
	}
}

func TestParseInvalidDuration(t *testing.T) {
	content := `settings:
  debounce: soon

monitors:
  - match: "*"
    workspaces:
      - id: 1
`

	_, err := Parse([]byte(content), "inline")
	if err == nil {
		t.Fatalf("expected error for unparseable duration")
	}
	if !ferrors.HasCategory(err, ferrors.CategoryPolicy) {
		t.Errorf("expected policy category, got %v", err)
	}
}

func TestParseNonPositiveDuration(t *testing.T) {
	content := `settings:
  command_timeout: 0s

monitors:
  - match: "*"
    workspaces:
      - id: 1
`

	_, err := Parse([]byte(content), "inline")
	if err == nil {
		t.Fatalf("expected error for zero duration")
	}
}

func TestParseDebounceExceedsMaxDelay(t *testing.T) {
	content := `settings:
  debounce: 5s
  max_delay: 1s

monitors:
  - match: "*"
    workspaces:
      - id: 1
`

	_, err := Parse([]byte(content), "inline")
	if err == nil {
		t.Fatalf("expected error for debounce > max_delay")
	}
}

func TestParseInvalidReconnectMode(t *testing.T) {
	content := `settings:
  reconnect:
    mode: quadratic

monitors:
  - match: "*"
    workspaces:
      - id: 1
`

	_, err := Parse([]byte(content), "inline")
	if err == nil {
		t.Fatalf("expected error for unknown reconnect mode")
	}
}

func TestParseInvalidLogLevel(t *testing.T) {
	content := `logging:
  level: chatty

monitors:
  - match: "*"
    workspaces:
      - id: 1
`

	_, err := Parse([]byte(content), "inline")
	if err == nil {
		t.Fatalf("expected error for unknown log level")
	}
	if !ferrors.HasCategory(err, ferrors.CategoryPolicy) {
		t.Errorf("expected policy category, got %v", err)
	}
}

func TestParseInvalidLogFormat(t *testing.T) {
	content := `logging:
  format: xml

monitors:
  - match: "*"
    workspaces:
      - id: 1
`

	_, err := Parse([]byte(content), "inline")
	if err == nil {
		t.Fatalf("expected error for unknown log format")
	}
}

func TestParseReconnectBudgetTooSmall(t *testing.T) {
	content := `settings:
  reconnect:
    budget: 0

monitors:
  - match: "*"
    workspaces:
      - id: 1
`

	_, err := Parse([]byte(content), "inline")
	if err == nil {
		t.Fatalf("expected error for budget < 1")
	}
}

func TestParseEnvExpansion(t *testing.T) {
	t.Setenv("HYWOMA_TEST_PRIMARY", "eDP-1")

	content := `monitors:
  - match: ${HYWOMA_TEST_PRIMARY}
    workspaces:
      - id: 1
`

	cfg, err := Parse([]byte(content), "inline")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Rules.Monitors[0].Match != "eDP-1" {
		t.Errorf("expected env-expanded match, got %q", cfg.Rules.Monitors[0].Match)
	}
}

func TestParseRuleValidationPropagates(t *testing.T) {
	content := `monitors:
  - match: DP-1
    workspaces:
      - id: 3
  - match: DP-2
    workspaces:
      - id: 3
`

	_, err := Parse([]byte(content), "inline")
	if err == nil {
		t.Fatalf("expected validation error for duplicate workspace id across rules")
	}
	if !ferrors.HasCategory(err, ferrors.CategoryPolicy) {
		t.Errorf("expected policy category, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing policy file")
	}
	if !ferrors.HasCategory(err, ferrors.CategoryConfig) {
		t.Errorf("expected config category, got %v", err)
	}
}

func TestNormalizeRetryBackoff(t *testing.T) {
	cases := map[string]RetryBackoffMode{
		"fixed":        RetryBackoffFixed,
		"LINEAR":       RetryBackoffLinear,
		" Exponential": RetryBackoffExponential,
		"":             "",
		"bogus":        "",
	}
	for raw, want := range cases {
		if got := NormalizeRetryBackoff(raw); got != want {
			t.Errorf("NormalizeRetryBackoff(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeLogSettings(t *testing.T) {
	if got := NormalizeLogLevel(" WARN "); got != LogLevelWarn {
		t.Errorf("NormalizeLogLevel = %q, want %q", got, LogLevelWarn)
	}
	if got := NormalizeLogLevel("chatty"); got != "" {
		t.Errorf("expected empty level for unknown input, got %q", got)
	}
	if got := NormalizeLogFormat("JSON"); got != LogFormatJSON {
		t.Errorf("NormalizeLogFormat = %q, want %q", got, LogFormatJSON)
	}
	if got := NormalizeLogFormat("xml"); got != "" {
		t.Errorf("expected empty format for unknown input, got %q", got)
	}
}

func TestDefaultPathHonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := DefaultPath(); got != "/custom/config/hywoma/hywoma.yaml" {
		t.Errorf("unexpected default path %q", got)
	}
}
