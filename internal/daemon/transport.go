package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gyromean/hywoma/internal/daemon/events"
	"github.com/gyromean/hywoma/internal/hyprevents"
	"github.com/gyromean/hywoma/internal/logfields"
	"github.com/gyromean/hywoma/internal/mirror"
	"github.com/gyromean/hywoma/internal/statestore"
	"github.com/gyromean/hywoma/internal/util/sets"
)

// onStreamConnect primes the mirror from full-state queries before any event
// from the fresh connection is folded in. Returning an error makes the pump
// treat the connection as failed and redial.
func (d *Daemon) onStreamConnect(ctx context.Context, reconnected bool) error {
	if err := d.resync(ctx); err != nil {
		return err
	}
	d.streamUp.Store(true)

	now := time.Now()
	if err := d.bus.Publish(ctx, events.TransportUp{Reconnected: reconnected, At: now}); err != nil {
		d.logger.Warn("Failed to publish transport event", logfields.Error(err))
	}

	reason := "initial state loaded"
	if reconnected {
		d.recorder.IncReconnect()
		reason = "event stream reconnected"
	}
	if err := d.bus.Publish(ctx, events.PassRequested{
		Trigger:     events.TriggerResync,
		Reason:      reason,
		RequestedAt: now,
	}); err != nil {
		d.logger.Warn("Failed to request resync pass", logfields.Error(err))
	}
	return nil
}

// onEventLine folds one raw event record into the mirror and requests a
// pass. Unknown event kinds are dropped without noise; the stream carries
// far more kinds than placement cares about.
func (d *Daemon) onEventLine(line string) {
	ev, err := hyprevents.Decode(line)
	if err != nil {
		if errors.Is(err, hyprevents.ErrUnknownEvent) {
			return
		}
		d.recorder.IncDecodeFailure()
		d.logger.Debug("Event decode failed", logfields.Event(line), logfields.Error(err))
		return
	}

	rev := d.mirror.Apply(ev)
	ctx := context.Background()
	if err := d.bus.Publish(ctx, events.MirrorUpdated{Kind: ev.EventName(), Revision: rev}); err != nil {
		d.logger.Warn("Failed to publish mirror update", logfields.Error(err))
	}
	if err := d.relay.PublishEvent(ev.EventName(), ev); err != nil {
		d.logger.Debug("Relay event publish failed", logfields.Error(err))
	}
	if err := d.bus.Publish(ctx, events.PassRequested{
		Trigger:     events.TriggerEvent,
		Reason:      ev.EventName(),
		RequestedAt: time.Now(),
	}); err != nil {
		d.logger.Warn("Failed to request pass", logfields.Error(err))
	}
}

// onStreamDown marks the mirror stale. No pass is requested: until the next
// resync the mirror cannot be trusted, and dispatching against it could
// fight the user.
func (d *Daemon) onStreamDown(err error) {
	d.streamUp.Store(false)
	if pubErr := d.bus.Publish(context.Background(), events.TransportDown{Err: err, At: time.Now()}); pubErr != nil {
		d.logger.Warn("Failed to publish transport event", logfields.Error(pubErr))
	}
}

// resync replaces the mirror wholesale from the control socket's full-state
// queries and refreshes monitor identities in the journal.
func (d *Daemon) resync(ctx context.Context) error {
	monitors, err := d.control.Monitors(ctx)
	if err != nil {
		return err
	}
	workspaces, err := d.control.Workspaces(ctx)
	if err != nil {
		return err
	}
	clients, err := d.control.Clients(ctx)
	if err != nil {
		return err
	}
	active, err := d.control.ActiveWorkspace(ctx)
	if err != nil {
		return err
	}

	mons := make([]mirror.Monitor, 0, len(monitors))
	focusedMonitor := ""
	for _, m := range monitors {
		if m.Disabled {
			continue
		}
		if m.Focused {
			focusedMonitor = m.Name
		}
		mons = append(mons, mirror.Monitor{ID: m.ID, Name: m.Name, Description: m.Description})
	}

	wss := make([]mirror.Workspace, 0, len(workspaces))
	for _, ws := range workspaces {
		wss = append(wss, mirror.Workspace{ID: ws.ID, Name: ws.Name, Monitor: ws.Monitor, Windows: ws.Windows})
	}

	wins := make([]mirror.Window, 0, len(clients))
	for _, c := range clients {
		if !c.Mapped {
			continue
		}
		wins = append(wins, mirror.Window{
			Address:     c.Address,
			WorkspaceID: c.Workspace.ID,
			Class:       c.Class,
			Title:       c.Title,
		})
	}

	d.mirror.Prime(mons, wss, wins, focusedMonitor, active.ID)
	d.recorder.SetMirrorEntities(len(mons), len(wss), len(wins))
	d.syncMonitorIdentities(ctx, mons)

	d.logger.Info("State mirror primed",
		slog.Int("monitors", len(mons)),
		slog.Int("workspaces", len(wss)),
		slog.Int("windows", len(wins)),
		logfields.Monitor(focusedMonitor))
	return nil
}

// syncMonitorIdentities reconciles the journal's monitor table with the
// primed set, both ways. Every present monitor is upserted, previously seen
// ones that vanished get marked disconnected, and identities the journal
// remembers from earlier runs are seeded into the mirror as disconnected
// records. Identity history is what lets operators answer "which output was
// DP-1 last week" and keeps unplugged docks visible in status output across
// daemon restarts.
func (d *Daemon) syncMonitorIdentities(ctx context.Context, present []mirror.Monitor) {
	now := time.Now()
	seen := make(sets.Set[string], len(present))
	for _, m := range present {
		seen.Insert(m.Name)
		err := d.journal.UpsertMonitor(ctx, statestore.MonitorIdentity{
			Name:        m.Name,
			Description: m.Description,
			Connected:   true,
			LastSeen:    now,
		})
		if err != nil {
			d.logger.Warn("Failed to record monitor identity", logfields.Monitor(m.Name), logfields.Error(err))
			return
		}
	}

	known, err := d.journal.KnownMonitors(ctx)
	if err != nil {
		d.logger.Warn("Failed to list known monitors", logfields.Error(err))
		return
	}
	for _, k := range known {
		if seen.Has(k.Name) {
			continue
		}
		d.mirror.SeedDisconnected(k.Name, k.Description)
		if !k.Connected {
			continue
		}
		k.Connected = false
		if err := d.journal.UpsertMonitor(ctx, k); err != nil {
			d.logger.Warn("Failed to record monitor identity", logfields.Monitor(k.Name), logfields.Error(err))
		}
	}
}
