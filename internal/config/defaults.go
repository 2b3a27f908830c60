package config

import "time"

// Loop controller and transport defaults. Compositor bursts settle within a
// few frames, so the quiet window stays well under human reaction time while
// the max delay bounds convergence during sustained event storms.
const (
	defaultDebounce        = 150 * time.Millisecond
	defaultMaxDelay        = 2 * time.Second
	defaultSafetyInterval  = 2 * time.Minute
	defaultCommandTimeout  = 5 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultReconnectInitial = 500 * time.Millisecond
	defaultReconnectMax     = 30 * time.Second
	defaultReconnectBudget  = 10

	defaultRelayURL           = "nats://127.0.0.1:4222"
	defaultRelaySubjectPrefix = "hywoma"

	defaultLogLevel  = LogLevelInfo
	defaultLogFormat = LogFormatText
)
