package events

import "time"

// Trigger values carried by PassRequested and recorded per pass.
const (
	TriggerEvent        = "event"
	TriggerPolicyReload = "policy_reload"
	TriggerSafetyTimer  = "safety_timer"
	TriggerResync       = "resync"
	TriggerManual       = "manual"
	TriggerAbortRetry   = "abort_retry"
)

// PassRequested indicates that a reconciliation pass should happen soon.
// The loop controller coalesces bursts of these into a single PassNow.
type PassRequested struct {
	Trigger     string
	Reason      string
	RequestedAt time.Time
}

// PassNow is emitted by the loop controller once it decides to run a pass.
// Cause is "quiet" when the debounce window drained, "max_delay" when the
// coalescing cap forced the pass, or "after_running" for the follow-up pass
// re-validating state after a burst that arrived mid-pass.
type PassNow struct {
	TriggeredAt  time.Time
	RequestCount int
	FirstRequest time.Time
	LastRequest  time.Time
	LastTrigger  string
	LastReason   string
	Cause        string
}

// PassCompleted is emitted by the pass runner when a plan has fully
// resolved, completed, aborted, or turned out empty.
type PassCompleted struct {
	PassID      string
	PlanID      string
	Trigger     string
	Generation  uint64
	Revision    uint64
	Outcome     string
	Commands    int
	Completed   int
	Skips       int
	Elapsed     time.Duration
	CompletedAt time.Time
}

// PolicyReloaded is emitted after a new policy generation swapped in.
type PolicyReloaded struct {
	Generation uint64
	Path       string
	ReloadedAt time.Time
}

// MirrorUpdated is emitted for every compositor event folded into the
// mirror. Kind is the decoded event name.
type MirrorUpdated struct {
	Kind     string
	Revision uint64
}

// TransportDown is emitted when the event stream drops.
type TransportDown struct {
	Err error
	At  time.Time
}

// TransportUp is emitted after the event stream (re)connects and the mirror
// has been primed from full-state queries.
type TransportUp struct {
	Reconnected bool
	At          time.Time
}
