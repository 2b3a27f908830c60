package daemon

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gyromean/hywoma/internal/daemon/events"
	"github.com/gyromean/hywoma/internal/dispatch"
	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
	"github.com/gyromean/hywoma/internal/logfields"
	"github.com/gyromean/hywoma/internal/metrics"
	"github.com/gyromean/hywoma/internal/mirror"
	"github.com/gyromean/hywoma/internal/policy"
	"github.com/gyromean/hywoma/internal/reconcile"
	"github.com/gyromean/hywoma/internal/relay"
	"github.com/gyromean/hywoma/internal/statestore"
)

// Pass outcomes recorded in the journal, metrics, and PassCompleted events.
const (
	PassOutcomeEmpty     = "empty"
	PassOutcomeCompleted = "completed"
	PassOutcomeAborted   = "aborted"
)

type PassRunnerConfig struct {
	Bus        *events.Bus
	Mirror     *mirror.Mirror
	Policies   *policy.Store
	Dispatcher *dispatch.Dispatcher

	// StreamUp gates passes on event stream health: while it reports false
	// the mirror is stale and passes are skipped rather than dispatched
	// against state the compositor may have moved past. Nil means always up.
	StreamUp func() bool

	// Journal, Relay, and Recorder are optional. A nil journal skips
	// persistence, a nil relay publishes nowhere, a nil recorder counts
	// nothing.
	Journal  *statestore.Store
	Relay    *relay.Relay
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// PassRunner executes coalesced reconciliation passes, strictly one at a
// time. It snapshots the mirror, pins the current policy generation,
// computes the plan, hands it to the dispatcher, and records the outcome in
// the journal, the metrics, and on the bus.
type PassRunner struct {
	cfg PassRunnerConfig

	readyOnce sync.Once
	ready     chan struct{}
	running   atomic.Bool
}

func NewPassRunner(cfg PassRunnerConfig) (*PassRunner, error) {
	if cfg.Bus == nil {
		return nil, ferrors.ValidationError("bus is required").Build()
	}
	if cfg.Mirror == nil {
		return nil, ferrors.ValidationError("mirror is required").Build()
	}
	if cfg.Policies == nil {
		return nil, ferrors.ValidationError("policy store is required").Build()
	}
	if cfg.Dispatcher == nil {
		return nil, ferrors.ValidationError("dispatcher is required").Build()
	}
	if cfg.StreamUp == nil {
		cfg.StreamUp = func() bool { return true }
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PassRunner{cfg: cfg, ready: make(chan struct{})}, nil
}

// Ready is closed once Run has subscribed to PassNow events.
func (r *PassRunner) Ready() <-chan struct{} {
	return r.ready
}

// Running reports whether a pass is currently executing. The loop controller
// polls this to defer follow-up emissions.
func (r *PassRunner) Running() bool {
	return r.running.Load()
}

func (r *PassRunner) Run(ctx context.Context) error {
	if ctx == nil {
		return ferrors.ValidationError("context cannot be nil").Build()
	}

	passNowCh, unsubscribe := events.Subscribe[events.PassNow](r.cfg.Bus, 16)
	defer unsubscribe()

	r.readyOnce.Do(func() { close(r.ready) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-passNowCh:
			if !ok {
				return nil
			}
			r.execute(ctx, evt)
		}
	}
}

func (r *PassRunner) execute(ctx context.Context, evt events.PassNow) {
	r.running.Store(true)
	defer r.running.Store(false)

	start := time.Now()

	if !r.cfg.StreamUp() {
		r.cfg.Logger.Debug("Pass skipped: event stream down", logfields.Trigger(evt.LastTrigger))
		return
	}

	rules, ok := r.cfg.Policies.Current()
	if !ok {
		r.cfg.Logger.Debug("Pass skipped: no policy loaded", logfields.Trigger(evt.LastTrigger))
		return
	}

	snap := r.cfg.Mirror.Snapshot()
	r.cfg.Recorder.SetMirrorEntities(len(snap.ConnectedMonitors()), len(snap.Workspaces), len(snap.Windows))

	passID := uuid.NewString()
	plan := reconcile.Compute(snap, rules)

	for _, sk := range plan.Skips {
		r.cfg.Logger.Debug("Pass deferred work",
			logfields.PassID(passID),
			logfields.Monitor(sk.Monitor),
			logfields.Workspace(sk.WorkspaceID),
			logfields.Reason(sk.Reason))
	}

	if plan.Empty() {
		res := dispatch.Result{PlanID: plan.ID, Started: start}
		r.finish(ctx, evt, plan, passID, res, PassOutcomeEmpty, time.Since(start))
		return
	}

	r.cfg.Logger.Info("Dispatching plan",
		logfields.PassID(passID),
		logfields.PlanID(plan.ID),
		logfields.Trigger(evt.LastTrigger),
		logfields.Generation(plan.Generation),
		logfields.Count(len(plan.Commands)),
		slog.String("cause", evt.Cause))

	res := r.cfg.Dispatcher.Submit(ctx, plan)

	outcome := PassOutcomeCompleted
	if res.Aborted {
		outcome = PassOutcomeAborted
	}
	r.finish(ctx, evt, plan, passID, res, outcome, time.Since(start))
}

// finish records one resolved pass everywhere it is observable: metrics,
// journal, bus, relay, and the log.
func (r *PassRunner) finish(ctx context.Context, evt events.PassNow, plan reconcile.Plan, passID string, res dispatch.Result, outcome string, elapsed time.Duration) {
	r.cfg.Recorder.IncPassOutcome(evt.LastTrigger, outcome)
	r.cfg.Recorder.ObservePassDuration(elapsed)
	if !plan.Empty() {
		r.cfg.Recorder.ObservePlanSize(len(plan.Commands))
		for _, cr := range res.Commands {
			r.cfg.Recorder.IncCommandResult(string(cr.Command.Verb), string(cr.Outcome))
		}
	}

	r.journalPass(ctx, evt, plan, passID, res, outcome, elapsed)

	_ = r.cfg.Bus.Publish(ctx, events.PassCompleted{
		PassID:      passID,
		PlanID:      plan.ID,
		Trigger:     evt.LastTrigger,
		Generation:  plan.Generation,
		Revision:    plan.Revision,
		Outcome:     outcome,
		Commands:    len(plan.Commands),
		Completed:   res.Completed(),
		Skips:       len(plan.Skips),
		Elapsed:     elapsed,
		CompletedAt: time.Now(),
	})

	// An abort means the compositor's state diverged from the plan's
	// assumptions, so request one pass over fresh state. A retry pass that
	// aborts again waits for the next organic trigger or the safety tick,
	// keeping persistent rejection from looping hot.
	if outcome == PassOutcomeAborted && evt.LastTrigger != events.TriggerAbortRetry {
		_ = r.cfg.Bus.Publish(ctx, events.PassRequested{
			Trigger:     events.TriggerAbortRetry,
			Reason:      "aborted plan " + plan.ID,
			RequestedAt: time.Now(),
		})
	}

	if err := r.cfg.Relay.PublishPass(relay.PassSummary{
		PassID:     passID,
		PlanID:     plan.ID,
		Trigger:    evt.LastTrigger,
		Generation: plan.Generation,
		Outcome:    outcome,
		Commands:   len(plan.Commands),
		Completed:  res.Completed(),
		Skips:      len(plan.Skips),
		Elapsed:    elapsed,
	}); err != nil {
		r.cfg.Logger.Warn("Relay pass publish failed", logfields.PassID(passID), logfields.Error(err))
	}

	switch outcome {
	case PassOutcomeEmpty:
		r.cfg.Logger.Debug("Pass converged",
			logfields.PassID(passID),
			logfields.Trigger(evt.LastTrigger),
			logfields.Generation(plan.Generation),
			logfields.Count(len(plan.Skips)))
	case PassOutcomeAborted:
		r.cfg.Logger.Warn("Pass aborted",
			logfields.PassID(passID),
			logfields.PlanID(plan.ID),
			slog.Int("completed", res.Completed()),
			slog.Int("dropped", res.Dropped()),
			logfields.Error(res.Err))
	default:
		r.cfg.Logger.Info("Pass completed",
			logfields.PassID(passID),
			logfields.PlanID(plan.ID),
			logfields.Count(len(plan.Commands)),
			logfields.DurationMS(float64(elapsed)/float64(time.Millisecond)))
	}
}

func (r *PassRunner) journalPass(ctx context.Context, evt events.PassNow, plan reconcile.Plan, passID string, res dispatch.Result, outcome string, elapsed time.Duration) {
	if r.cfg.Journal == nil {
		return
	}

	rec := statestore.PassRecord{
		PassID:     passID,
		PlanID:     plan.ID,
		Trigger:    evt.LastTrigger,
		Generation: plan.Generation,
		Revision:   plan.Revision,
		Outcome:    outcome,
		Commands:   len(res.Commands),
		Completed:  res.Completed(),
		Skips:      len(plan.Skips),
		Error:      errString(res.Err),
		StartedAt:  res.Started,
		Elapsed:    elapsed,
	}

	cmds := make([]statestore.CommandRecord, 0, len(res.Commands))
	for i, cr := range res.Commands {
		cmds = append(cmds, statestore.CommandRecord{
			PassID:      passID,
			Seq:         i,
			Verb:        string(cr.Command.Verb),
			WorkspaceID: cr.Command.WorkspaceID,
			Monitor:     cr.Command.Monitor,
			Name:        cr.Command.Name,
			Outcome:     string(cr.Outcome),
			Error:       errString(cr.Err),
			Elapsed:     cr.Elapsed,
		})
	}

	if err := r.cfg.Journal.AppendPass(ctx, rec, cmds); err != nil {
		r.cfg.Logger.Warn("Journal append failed",
			logfields.PassID(passID),
			logfields.Error(err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
