package errors

// ErrorBuilder assembles a ClassifiedError fluently. Builders are cheap and
// single-use; Build finalizes the error.
type ErrorBuilder struct {
	err ClassifiedError
}

// NewError starts a builder with the given category and message. Severity
// defaults to error, retry to never.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{err: ClassifiedError{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
		context:  make(ErrorContext),
	}}
}

// WrapError starts a builder around an existing cause.
func WrapError(cause error, category ErrorCategory, message string) *ErrorBuilder {
	b := NewError(category, message)
	b.err.cause = cause
	return b
}

// WithSeverity overrides the severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.err.severity = severity
	return b
}

// WithRetry overrides the retry strategy.
func (b *ErrorBuilder) WithRetry(strategy RetryStrategy) *ErrorBuilder {
	b.err.retry = strategy
	return b
}

// WithContext attaches a key/value pair for logs and diagnostics.
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.err.context = b.err.context.Set(key, value)
	return b
}

// Fatal marks the error as one the daemon cannot survive.
func (b *ErrorBuilder) Fatal() *ErrorBuilder { return b.WithSeverity(SeverityFatal) }

// Warning marks the error as degraded-but-continuing.
func (b *ErrorBuilder) Warning() *ErrorBuilder { return b.WithSeverity(SeverityWarning) }

// Info marks the error as informational.
func (b *ErrorBuilder) Info() *ErrorBuilder { return b.WithSeverity(SeverityInfo) }

// Retryable marks the error as safe to retry with backoff.
func (b *ErrorBuilder) Retryable() *ErrorBuilder { return b.WithRetry(RetryBackoff) }

// Immediate marks the error as safe to retry on the next pass.
func (b *ErrorBuilder) Immediate() *ErrorBuilder { return b.WithRetry(RetryImmediate) }

// UserAction marks the error as unrecoverable until the user intervenes.
func (b *ErrorBuilder) UserAction() *ErrorBuilder { return b.WithRetry(RetryUserAction) }

// Build finalizes the error.
func (b *ErrorBuilder) Build() *ClassifiedError {
	e := b.err
	return &e
}

// Convenience constructors for the failure modes each subsystem produces.

// ConfigError creates a configuration error.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

// ValidationError creates a validation error.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal()
}

// PolicyError creates a policy document error. The prior policy generation
// stays active, so recovery requires the user to fix the document.
func PolicyError(message string) *ErrorBuilder {
	return NewError(CategoryPolicy, message).UserAction()
}

// TransportError creates a compositor socket error (typically retryable).
func TransportError(message string) *ErrorBuilder {
	return NewError(CategoryTransport, message).Retryable()
}

// ParseError creates an event decode error. The record is skipped, never retried.
func ParseError(message string) *ErrorBuilder {
	return NewError(CategoryParse, message).Warning()
}

// CommandRejected creates a control socket rejection error.
func CommandRejected(message string) *ErrorBuilder {
	return NewError(CategoryCommand, message)
}

// ReconcileSkipped indicates a pass deferred part of its work to the next pass.
func ReconcileSkipped(message string) *ErrorBuilder {
	return NewError(CategoryReconcile, message).Info().Immediate()
}

// StateError creates a journal/persistence error.
func StateError(message string) *ErrorBuilder {
	return NewError(CategoryState, message).Retryable()
}

// IPCError creates a daemon control socket error.
func IPCError(message string) *ErrorBuilder {
	return NewError(CategoryIPC, message)
}

// RelayError creates an event relay error.
func RelayError(message string) *ErrorBuilder {
	return NewError(CategoryRelay, message).Warning().Retryable()
}

// DaemonError creates a daemon lifecycle error.
func DaemonError(message string) *ErrorBuilder {
	return NewError(CategoryDaemon, message).Fatal()
}

// InternalError creates an internal error.
func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}
