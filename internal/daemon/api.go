package daemon

import (
	"context"
	"time"

	"github.com/gyromean/hywoma/internal/daemon/events"
	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
	"github.com/gyromean/hywoma/internal/ipc"
	"github.com/gyromean/hywoma/internal/reconcile"
)

// The daemon is its own control socket backend.
var _ ipc.DaemonAPI = (*Daemon)(nil)

// StatusReport assembles the live view served over the control socket.
func (d *Daemon) StatusReport(ctx context.Context) ipc.StatusReport {
	snap := d.mirror.Snapshot()

	stream := "disconnected"
	if d.streamUp.Load() {
		stream = "connected"
	}

	connected := len(snap.ConnectedMonitors())
	report := ipc.StatusReport{
		State:                string(d.GetStatus()),
		Uptime:               time.Since(d.startTime).Round(time.Second).String(),
		PolicyPath:           d.policyPath,
		PolicyGeneration:     d.policies.Generation(),
		Controller:           d.controller.State(),
		EventStream:          stream,
		Monitors:             connected,
		MonitorsDisconnected: len(snap.Monitors) - connected,
		Workspaces:           len(snap.Workspaces),
		Windows:              len(snap.Windows),
	}

	passes, err := d.journal.RecentPasses(ctx, 1)
	if err == nil && len(passes) == 1 {
		p := passes[0]
		report.LastPass = &ipc.PassBrief{
			PassID:    p.PassID,
			Trigger:   p.Trigger,
			Outcome:   p.Outcome,
			Commands:  p.Commands,
			Completed: p.Completed,
			Skips:     p.Skips,
			StartedAt: p.StartedAt,
			Elapsed:   p.Elapsed.Round(time.Millisecond).String(),
		}
	}
	return report
}

// ReloadPolicy re-reads the policy file and swaps the active generation.
func (d *Daemon) ReloadPolicy(ctx context.Context) (uint64, error) {
	if d.watcher == nil {
		return 0, ferrors.DaemonError("daemon was started without a policy file").Build()
	}
	if err := d.watcher.Reload(ctx); err != nil {
		return 0, err
	}
	return d.policies.Generation(), nil
}

// PreviewPlan computes what the next pass would dispatch, without touching
// the compositor.
func (d *Daemon) PreviewPlan(ctx context.Context) (reconcile.Plan, error) {
	rules, ok := d.policies.Current()
	if !ok {
		return reconcile.Plan{}, ferrors.PolicyError("no policy loaded").Build()
	}
	return reconcile.Compute(d.mirror.Snapshot(), rules), nil
}

// TriggerPass requests an out-of-band reconciliation pass. The loop
// controller still applies its debounce, so bursts of manual triggers
// coalesce like any other.
func (d *Daemon) TriggerPass(ctx context.Context, reason string) error {
	return d.bus.Publish(ctx, events.PassRequested{
		Trigger:     events.TriggerManual,
		Reason:      reason,
		RequestedAt: time.Now(),
	})
}
