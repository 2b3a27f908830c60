package errors

import "maps"

// ErrorCategory routes an error to its handling: exit codes, log grouping,
// retry decisions.
type ErrorCategory string

const (
	// User-facing input: CLI flags and the policy file.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryPolicy     ErrorCategory = "policy"

	// Compositor integration: sockets, wire format, dispatch.
	CategoryTransport ErrorCategory = "transport"
	CategoryParse     ErrorCategory = "parse"
	CategoryCommand   ErrorCategory = "command"

	// Reconciliation pass conditions.
	CategoryReconcile ErrorCategory = "reconcile"

	// Persistence and the daemon's own serving surfaces.
	CategoryState ErrorCategory = "state"
	CategoryIPC   ErrorCategory = "ipc"
	CategoryRelay ErrorCategory = "relay"

	// Runtime and lifecycle.
	CategoryDaemon   ErrorCategory = "daemon"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity scales the response: fatal stops the daemon, error fails the
// operation, warning degrades it, info is advisory.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
	SeverityInfo    ErrorSeverity = "info"
)

// RetryStrategy tells the caller whether trying again can help and when.
type RetryStrategy string

const (
	RetryNever      RetryStrategy = "never"
	RetryImmediate  RetryStrategy = "immediate"
	RetryBackoff    RetryStrategy = "backoff"
	RetryUserAction RetryStrategy = "user"
)

// ErrorContext carries structured key/value detail alongside an error, in
// the same spirit as slog attrs.
type ErrorContext map[string]any

// Set stores a value, allocating the map on first use so the zero value is
// usable.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

// Get returns a stored value.
func (c ErrorContext) Get(key string) (any, bool) {
	v, ok := c[key]
	return v, ok
}

// GetString returns a stored value when it is a string.
func (c ErrorContext) GetString(key string) (string, bool) {
	v, ok := c[key]
	if !ok {
		return "", false
	}
	s, isString := v.(string)
	return s, isString
}

// Merge returns a context holding both sets of keys, other winning clashes.
func (c ErrorContext) Merge(other ErrorContext) ErrorContext {
	if c == nil {
		return other
	}
	if other == nil {
		return c
	}
	merged := make(ErrorContext, len(c)+len(other))
	maps.Copy(merged, c)
	maps.Copy(merged, other)
	return merged
}
