package errors

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Exit codes by category. Scripts branch on these, so the mapping is part of
// the CLI contract.
var exitCodes = map[ErrorCategory]int{
	CategoryValidation: 2,
	CategoryConfig:     7,
	CategoryPolicy:     7,
	CategoryTransport:  8,
	CategoryCommand:    8,
	CategoryIPC:        8,
	CategoryRelay:      8,
	CategoryInternal:   10,
	CategoryParse:      11,
	CategoryReconcile:  11,
	CategoryState:      11,
	CategoryDaemon:     12,
}

// CLIErrorAdapter turns errors into user-facing output and a process exit
// code at the top of the CLI.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger}
}

// ExitCodeFor maps an error to its exit code: 0 for nil, the category code
// for classified errors, 1 otherwise.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if classified, ok := AsClassified(err); ok {
		if code, ok := exitCodes[classified.Category()]; ok {
			return code
		}
	}
	return 1
}

// FormatError renders err for stderr. Verbose mode shows the full classified
// form; otherwise user-actionable categories show their message and the rest
// point at -v.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	classified, ok := AsClassified(err)
	if !ok {
		return fmt.Sprintf("Error: %v", err)
	}
	if a.verbose {
		return classified.Error()
	}

	switch classified.Category() {
	case CategoryConfig, CategoryValidation, CategoryPolicy:
		return fmt.Sprintf("Error: %s", classified.Message())
	default:
		return fmt.Sprintf("Error: %s (use -v for details)", classified.Message())
	}
}

// HandleError prints and exits when err is non-nil. It never returns for a
// failure.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	if a.verbose || HasSeverity(err, SeverityFatal) || !IsClassified(err) {
		a.logError(err)
	}

	fmt.Fprintln(os.Stderr, a.FormatError(err))
	os.Exit(a.ExitCodeFor(err))
}

func (a *CLIErrorAdapter) logError(err error) {
	classified, ok := AsClassified(err)
	if !ok {
		a.logger.Error("Unclassified error", "error", err)
		return
	}

	attrs := []slog.Attr{slog.String("category", string(classified.Category()))}
	if classified.CanRetry() {
		attrs = append(attrs, slog.Bool("retryable", true))
	}
	a.logger.LogAttrs(context.Background(), severityLevel(classified.Severity()), classified.Message(), attrs...)
}

func severityLevel(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
