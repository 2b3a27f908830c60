// Package config loads the policy document that drives the daemon: which
// workspaces belong on which monitors, plus the runtime settings around the
// reconciliation loop.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
	"github.com/gyromean/hywoma/internal/policy"
)

// Document is the raw YAML shape of the policy file. Durations are strings
// ("150ms", "2m") parsed during resolution.
type Document struct {
	Settings  SettingsDoc  `yaml:"settings,omitempty"`
	Logging   LoggingDoc   `yaml:"logging,omitempty"`
	State     StateDoc     `yaml:"state,omitempty"`
	Relay     RelayDoc     `yaml:"relay,omitempty"`
	Telemetry TelemetryDoc `yaml:"telemetry,omitempty"`
	Monitors  []MonitorDoc `yaml:"monitors"`
}

type SettingsDoc struct {
	Debounce        string       `yaml:"debounce,omitempty"`
	MaxDelay        string       `yaml:"max_delay,omitempty"`
	SafetyInterval  string       `yaml:"safety_interval,omitempty"`
	CommandTimeout  string       `yaml:"command_timeout,omitempty"`
	ShutdownTimeout string       `yaml:"shutdown_timeout,omitempty"`
	Reconnect       ReconnectDoc `yaml:"reconnect,omitempty"`
}

type ReconnectDoc struct {
	Initial string `yaml:"initial,omitempty"`
	Mode    string `yaml:"mode,omitempty"`
	Max     string `yaml:"max,omitempty"`
	Budget  *int   `yaml:"budget,omitempty"`
}

type LoggingDoc struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

type StateDoc struct {
	Dir string `yaml:"dir,omitempty"`
}

type RelayDoc struct {
	Enabled       bool   `yaml:"enabled,omitempty"`
	URL           string `yaml:"url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
}

type TelemetryDoc struct {
	Listen string `yaml:"listen,omitempty"`
}

type MonitorDoc struct {
	Match      string         `yaml:"match"`
	Exclusive  bool           `yaml:"exclusive,omitempty"`
	Workspaces []WorkspaceDoc `yaml:"workspaces"`
}

type WorkspaceDoc struct {
	ID      int    `yaml:"id"`
	Name    string `yaml:"name,omitempty"`
	Default bool   `yaml:"default,omitempty"`
}

// Config is the resolved, validated form handed to the daemon.
type Config struct {
	Settings  Settings
	Logging   LoggingConfig
	State     StateConfig
	Relay     RelayConfig
	Telemetry TelemetryConfig
	Rules     policy.RuleSet
}

// Settings are the loop and transport tunables.
type Settings struct {
	Debounce        time.Duration
	MaxDelay        time.Duration
	SafetyInterval  time.Duration
	CommandTimeout  time.Duration
	ShutdownTimeout time.Duration
	Reconnect       ReconnectSettings
}

// ReconnectSettings control event socket reconnect backoff.
type ReconnectSettings struct {
	Mode    RetryBackoffMode
	Initial time.Duration
	Max     time.Duration
	Budget  int
}

// LoggingConfig selects the slog level and handler format.
type LoggingConfig struct {
	Level  LogLevel
	Format LogFormat
}

type StateConfig struct {
	Dir string
}

type RelayConfig struct {
	Enabled       bool
	URL           string
	SubjectPrefix string
}

type TelemetryConfig struct {
	Listen string
}

// DefaultPath resolves the conventional policy file location.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "hywoma", "hywoma.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "hywoma.yaml"
	}
	return filepath.Join(home, ".config", "hywoma", "hywoma.yaml")
}

// Load reads, expands, decodes, and resolves the policy file. Environment
// variables in the document are expanded before decoding; a .env file next to
// the working directory is honored without overriding the process environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read policy file").
			Fatal().
			WithContext("path", path).
			Build()
	}

	return Parse(data, path)
}

// Parse decodes and resolves a policy document. Unknown fields are rejected
// so typos fail loudly instead of silently dropping rules.
func Parse(data []byte, path string) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryPolicy, "failed to decode policy document").
			UserAction().
			WithContext("path", path).
			Build()
	}

	cfg, err := resolve(&doc)
	if err != nil {
		return nil, err
	}

	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func resolve(doc *Document) (*Config, error) {
	cfg := &Config{}

	var err error
	if cfg.Settings, err = resolveSettings(doc.Settings); err != nil {
		return nil, err
	}
	if cfg.Logging, err = resolveLogging(doc.Logging); err != nil {
		return nil, err
	}

	cfg.State.Dir = doc.State.Dir
	if cfg.State.Dir == "" {
		cfg.State.Dir = defaultStateDir()
	}

	cfg.Relay = RelayConfig{
		Enabled:       doc.Relay.Enabled,
		URL:           doc.Relay.URL,
		SubjectPrefix: doc.Relay.SubjectPrefix,
	}
	if cfg.Relay.URL == "" {
		cfg.Relay.URL = defaultRelayURL
	}
	if cfg.Relay.SubjectPrefix == "" {
		cfg.Relay.SubjectPrefix = defaultRelaySubjectPrefix
	}

	cfg.Telemetry.Listen = doc.Telemetry.Listen

	cfg.Rules = policy.RuleSet{Monitors: make([]policy.MonitorRule, 0, len(doc.Monitors))}
	for _, m := range doc.Monitors {
		rule := policy.MonitorRule{
			Match:      m.Match,
			Exclusive:  m.Exclusive,
			Workspaces: make([]policy.WorkspaceRule, 0, len(m.Workspaces)),
		}
		for _, ws := range m.Workspaces {
			rule.Workspaces = append(rule.Workspaces, policy.WorkspaceRule{
				ID:      ws.ID,
				Name:    ws.Name,
				Default: ws.Default,
			})
		}
		cfg.Rules.Monitors = append(cfg.Rules.Monitors, rule)
	}

	return cfg, nil
}

func resolveSettings(doc SettingsDoc) (Settings, error) {
	s := Settings{}

	var err error
	if s.Debounce, err = parseDuration("settings.debounce", doc.Debounce, defaultDebounce); err != nil {
		return s, err
	}
	if s.MaxDelay, err = parseDuration("settings.max_delay", doc.MaxDelay, defaultMaxDelay); err != nil {
		return s, err
	}
	if s.SafetyInterval, err = parseDuration("settings.safety_interval", doc.SafetyInterval, defaultSafetyInterval); err != nil {
		return s, err
	}
	if s.CommandTimeout, err = parseDuration("settings.command_timeout", doc.CommandTimeout, defaultCommandTimeout); err != nil {
		return s, err
	}
	if s.ShutdownTimeout, err = parseDuration("settings.shutdown_timeout", doc.ShutdownTimeout, defaultShutdownTimeout); err != nil {
		return s, err
	}

	if s.Debounce > s.MaxDelay {
		return s, ferrors.PolicyError("settings.debounce exceeds settings.max_delay").
			WithContext("debounce", s.Debounce.String()).
			WithContext("max_delay", s.MaxDelay.String()).
			Build()
	}

	if s.Reconnect.Initial, err = parseDuration("settings.reconnect.initial", doc.Reconnect.Initial, defaultReconnectInitial); err != nil {
		return s, err
	}
	if s.Reconnect.Max, err = parseDuration("settings.reconnect.max", doc.Reconnect.Max, defaultReconnectMax); err != nil {
		return s, err
	}

	s.Reconnect.Mode = NormalizeRetryBackoff(doc.Reconnect.Mode)
	if doc.Reconnect.Mode != "" && s.Reconnect.Mode == "" {
		return s, ferrors.PolicyError("settings.reconnect.mode must be fixed, linear, or exponential").
			WithContext("mode", doc.Reconnect.Mode).
			Build()
	}
	if s.Reconnect.Mode == "" {
		s.Reconnect.Mode = RetryBackoffExponential
	}

	s.Reconnect.Budget = defaultReconnectBudget
	if doc.Reconnect.Budget != nil {
		if *doc.Reconnect.Budget < 1 {
			return s, ferrors.PolicyError("settings.reconnect.budget must be >= 1").
				WithContext("budget", *doc.Reconnect.Budget).
				Build()
		}
		s.Reconnect.Budget = *doc.Reconnect.Budget
	}

	return s, nil
}

func resolveLogging(doc LoggingDoc) (LoggingConfig, error) {
	lc := LoggingConfig{}

	lc.Level = NormalizeLogLevel(doc.Level)
	if doc.Level != "" && lc.Level == "" {
		return lc, ferrors.PolicyError("logging.level must be debug, info, warn, or error").
			WithContext("level", doc.Level).
			Build()
	}
	if lc.Level == "" {
		lc.Level = defaultLogLevel
	}

	lc.Format = NormalizeLogFormat(doc.Format)
	if doc.Format != "" && lc.Format == "" {
		return lc, ferrors.PolicyError("logging.format must be text or json").
			WithContext("format", doc.Format).
			Build()
	}
	if lc.Format == "" {
		lc.Format = defaultLogFormat
	}

	return lc, nil
}

func parseDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryPolicy, "invalid duration").
			UserAction().
			WithContext("field", field).
			WithContext("value", raw).
			Build()
	}
	if d <= 0 {
		return 0, ferrors.PolicyError("duration must be positive").
			WithContext("field", field).
			WithContext("value", raw).
			Build()
	}
	return d, nil
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "hywoma")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "hywoma-state"
	}
	return filepath.Join(home, ".local", "state", "hywoma")
}
