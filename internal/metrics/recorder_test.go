package metrics

import "testing"

func TestRecorderImplementations(t *testing.T) {
	var _ Recorder = NoopRecorder{}
	var _ Recorder = (*PrometheusRecorder)(nil)

	// The noop recorder must be usable as a zero value.
	var r Recorder = NoopRecorder{}
	r.IncPassOutcome("event", "completed")
	r.ObservePlanSize(0)
	if _, ok := r.(NoopRecorder); !ok {
		t.Fatal("expected NoopRecorder")
	}
}
