// Package metrics provides the observability hooks for the reconciliation
// loop.
//
// The package follows the Null Object pattern: every component takes a
// Recorder, and NoopRecorder is the default when telemetry is not
// configured, so callers never nil-check. NewPrometheusRecorder swaps in
// real counters when the daemon's telemetry listener is enabled.
//
// Components receive the Recorder through dependency injection:
//
//	runner := daemon.NewPassRunner(...)          // NoopRecorder by default
//	runner = daemon.NewPassRunner(..., recorder) // Prometheus when configured
//
// Label vocabularies (trigger, pass outcome, command verb and outcome) are
// owned by the emitting packages; this package records whatever strings it
// is handed.
package metrics
