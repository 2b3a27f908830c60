package config

import "github.com/gyromean/hywoma/internal/foundation/normalization"

// LogLevel names a slog level in the policy file's logging section.
type LogLevel string

// LogFormat selects the slog handler used for daemon output.
type LogFormat string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"

	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Unknown spellings normalize to the empty value rather than a default so
// resolve can reject typos loudly.
var (
	logLevelNormalizer = normalization.NewFromValues(LogLevel(""),
		LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError)
	logFormatNormalizer = normalization.NewFromValues(LogFormat(""),
		LogFormatText, LogFormatJSON)
)

// NormalizeLogLevel maps free-form input onto a LogLevel, empty for unknown.
func NormalizeLogLevel(raw string) LogLevel {
	return logLevelNormalizer.Normalize(raw)
}

// NormalizeLogFormat maps free-form input onto a LogFormat, empty for unknown.
func NormalizeLogFormat(raw string) LogFormat {
	return logFormatNormalizer.Normalize(raw)
}
