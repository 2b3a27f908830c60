// Package errors defines the classified error type shared by every hywoma
// package. An error carries a category for routing, a severity for logging
// and exit codes, a retry strategy, and structured context, all assembled
// through a fluent builder:
//
//	err := errors.TransportError("event socket read failed").
//		WithContext("socket", sockPath).
//		Build()
//
// Convenience constructors (ConfigError, PolicyError, TransportError, ...)
// pre-set the category's conventional severity and retry strategy. The CLI
// adapter at the top of the stack maps categories onto process exit codes.
package errors
