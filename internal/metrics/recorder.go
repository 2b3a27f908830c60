package metrics

import "time"

// Recorder defines the observability hooks for reconciliation activity.
// Implementations may forward to Prometheus or anything else. Methods must
// be safe on the NoopRecorder so injection stays optional.
type Recorder interface {
	ObservePassDuration(d time.Duration)
	IncPassOutcome(trigger, outcome string) // outcome: completed|aborted|empty
	ObservePlanSize(commands int)
	IncCommandResult(verb, outcome string) // outcome: ok|rejected|failed|dropped
	IncDecodeFailure()
	IncReconnect()
	SetMirrorEntities(monitors, workspaces, windows int)
	SetPolicyGeneration(generation uint64)
}

// NoopRecorder is a Recorder that does nothing (default when telemetry is
// not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePassDuration(time.Duration) {}
func (NoopRecorder) IncPassOutcome(string, string)     {}
func (NoopRecorder) ObservePlanSize(int)               {}
func (NoopRecorder) IncCommandResult(string, string)   {}
func (NoopRecorder) IncDecodeFailure()                 {}
func (NoopRecorder) IncReconnect()                     {}
func (NoopRecorder) SetMirrorEntities(int, int, int)   {}
func (NoopRecorder) SetPolicyGeneration(uint64)        {}
