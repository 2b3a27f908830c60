// Package dispatch executes reconciliation plans against the compositor
// control socket.
//
// Commands run strictly in plan order, which honors every causal dependency
// the reconciler encodes: a bind follows the create it depends on, a name
// slot eviction precedes the rename claiming the slot. The first command
// failure aborts the remainder of the plan: state has diverged from the
// plan's assumptions, and the next pass recomputes from fresh observations.
// Nothing is retried within a plan.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
	"github.com/gyromean/hywoma/internal/logfields"
	"github.com/gyromean/hywoma/internal/reconcile"
)

const defaultCommandTimeout = 5 * time.Second

// Controller is the slice of the control client the dispatcher needs.
type Controller interface {
	Dispatch(ctx context.Context, args string) error
}

// Outcome is the fate of one command attempt.
type Outcome string

const (
	// OutcomeOK means the compositor acknowledged the command.
	OutcomeOK Outcome = "ok"
	// OutcomeRejected means the compositor answered with an error reply.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means the command never got an answer, socket or
	// timeout trouble rather than a compositor decision.
	OutcomeFailed Outcome = "failed"
	// OutcomeDropped means an earlier failure aborted the plan before this
	// command was attempted.
	OutcomeDropped Outcome = "dropped"
)

// CommandResult records one command attempt within a plan.
type CommandResult struct {
	Command reconcile.Command
	Outcome Outcome
	Err     error
	Elapsed time.Duration
}

// Result records the fate of one submitted plan. Err carries the abort
// cause when Aborted is set.
type Result struct {
	PlanID   string
	Started  time.Time
	Elapsed  time.Duration
	Commands []CommandResult
	Aborted  bool
	Err      error
}

// Completed counts the acknowledged commands.
func (r Result) Completed() int {
	n := 0
	for _, cr := range r.Commands {
		if cr.Outcome == OutcomeOK {
			n++
		}
	}
	return n
}

// Dropped counts the commands the abort left unattempted.
func (r Result) Dropped() int {
	n := 0
	for _, cr := range r.Commands {
		if cr.Outcome == OutcomeDropped {
			n++
		}
	}
	return n
}

// Dispatcher issues plans over a control connection, one command at a time.
type Dispatcher struct {
	ctl     Controller
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a dispatcher. A non-positive timeout falls back to a sane
// per-command bound so shutdown never hangs on an unacknowledged command.
func New(ctl Controller, commandTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if commandTimeout <= 0 {
		commandTimeout = defaultCommandTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		ctl:     ctl,
		timeout: commandTimeout,
		logger:  logger,
	}
}

// Submit executes the plan in order. It never returns an error of its own:
// per-command failures are recorded in the result, and an abort drops the
// remaining commands without attempting them.
func (d *Dispatcher) Submit(ctx context.Context, plan reconcile.Plan) Result {
	res := Result{PlanID: plan.ID, Started: time.Now()}

	for _, cmd := range plan.Commands {
		if res.Aborted {
			res.Commands = append(res.Commands, CommandResult{Command: cmd, Outcome: OutcomeDropped})
			continue
		}

		cr := d.attempt(ctx, cmd)
		res.Commands = append(res.Commands, cr)

		if cr.Err != nil {
			res.Aborted = true
			res.Err = cr.Err
			d.logger.Warn("Plan aborted",
				logfields.PlanID(plan.ID),
				logfields.Verb(string(cmd.Verb)),
				logfields.Workspace(cmd.WorkspaceID),
				logfields.Error(cr.Err))
		}
	}

	res.Elapsed = time.Since(res.Started)
	return res
}

func (d *Dispatcher) attempt(ctx context.Context, cmd reconcile.Command) CommandResult {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := d.issue(cctx, cmd)
	cr := CommandResult{
		Command: cmd,
		Outcome: outcomeFor(err),
		Err:     err,
		Elapsed: time.Since(start),
	}
	if err == nil {
		d.logger.Debug("Command acknowledged",
			logfields.Verb(string(cmd.Verb)),
			logfields.Workspace(cmd.WorkspaceID),
			logfields.DurationMS(float64(cr.Elapsed)/float64(time.Millisecond)))
	}
	return cr
}

// issue maps one plan verb onto its control socket request(s).
func (d *Dispatcher) issue(ctx context.Context, cmd reconcile.Command) error {
	switch cmd.Verb {
	case reconcile.VerbCreateWorkspace, reconcile.VerbDestroyWorkspace:
		// The compositor materializes a numeric workspace on focus and
		// garbage-collects an empty one when focus leaves it, so create and
		// destroy are both a visit-and-return pair.
		if err := d.ctl.Dispatch(ctx, fmt.Sprintf("workspace %d", cmd.WorkspaceID)); err != nil {
			return err
		}
		return d.ctl.Dispatch(ctx, "workspace previous")
	case reconcile.VerbBindWorkspace:
		return d.ctl.Dispatch(ctx, fmt.Sprintf("moveworkspacetomonitor %d %s", cmd.WorkspaceID, cmd.Monitor))
	case reconcile.VerbRenameWorkspace, reconcile.VerbReorderWorkspace:
		return d.ctl.Dispatch(ctx, fmt.Sprintf("renameworkspace %d %s", cmd.WorkspaceID, cmd.Name))
	case reconcile.VerbFocusWorkspace:
		return d.ctl.Dispatch(ctx, fmt.Sprintf("workspace %d", cmd.WorkspaceID))
	case reconcile.VerbMoveWindow:
		return d.ctl.Dispatch(ctx, fmt.Sprintf("movetoworkspacesilent %d,address:%s", cmd.WorkspaceID, cmd.Window))
	default:
		return ferrors.InternalError("plan verb has no control mapping").
			WithContext("verb", string(cmd.Verb)).
			Build()
	}
}

func outcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case ferrors.HasCategory(err, ferrors.CategoryCommand):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}
