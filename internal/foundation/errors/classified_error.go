package errors

import (
	"errors"
	"fmt"
)

// ClassifiedError is the error currency of the daemon: every failure that
// crosses a package boundary carries a category so callers can route it
// without string matching, a severity for log levels and exit codes, and a
// retry strategy telling the caller whether trying again can help.
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

func (e *ClassifiedError) Error() string {
	s := fmt.Sprintf("[%s:%s] %s", e.category, e.severity, e.message)
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error { return e.cause }

// Is matches classified errors by category and message, so sentinel-style
// comparisons work without pointer identity.
func (e *ClassifiedError) Is(target error) bool {
	other, ok := target.(*ClassifiedError)
	return ok && e.category == other.category && e.message == other.message
}

func (e *ClassifiedError) Category() ErrorCategory { return e.category }

func (e *ClassifiedError) Severity() ErrorSeverity { return e.severity }

func (e *ClassifiedError) RetryStrategy() RetryStrategy { return e.retry }

func (e *ClassifiedError) Message() string { return e.message }

func (e *ClassifiedError) Context() ErrorContext { return e.context }

// CanRetry reports whether retrying can succeed without the user changing
// anything first.
func (e *ClassifiedError) CanRetry() bool {
	return e.retry == RetryImmediate || e.retry == RetryBackoff
}

// IsFatal reports whether the error should stop the daemon entirely.
func (e *ClassifiedError) IsFatal() bool { return e.severity == SeverityFatal }

// AsClassified extracts the outermost ClassifiedError from err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

// IsClassified reports whether err carries classification anywhere in its chain.
func IsClassified(err error) bool {
	_, ok := AsClassified(err)
	return ok
}

// HasCategory reports whether err is classified with the given category.
func HasCategory(err error, category ErrorCategory) bool {
	classified, ok := AsClassified(err)
	return ok && classified.category == category
}

// HasSeverity reports whether err is classified with the given severity.
func HasSeverity(err error, severity ErrorSeverity) bool {
	classified, ok := AsClassified(err)
	return ok && classified.severity == severity
}
