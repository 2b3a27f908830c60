// Package daemon wires the event pump, state mirror, loop controller, pass
// runner, and dispatcher into the running reconciliation service, and owns
// their lifecycle.
package daemon

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gyromean/hywoma/internal/config"
	"github.com/gyromean/hywoma/internal/daemon/events"
	"github.com/gyromean/hywoma/internal/dispatch"
	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
	"github.com/gyromean/hywoma/internal/hyprctl"
	"github.com/gyromean/hywoma/internal/ipc"
	"github.com/gyromean/hywoma/internal/logfields"
	"github.com/gyromean/hywoma/internal/metrics"
	"github.com/gyromean/hywoma/internal/mirror"
	"github.com/gyromean/hywoma/internal/policy"
	"github.com/gyromean/hywoma/internal/relay"
	"github.com/gyromean/hywoma/internal/retry"
	"github.com/gyromean/hywoma/internal/statestore"
)

// Status is the daemon lifecycle state.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// journalFile is the sqlite journal inside the state directory.
const journalFile = "journal.db"

// Options configure a daemon instance.
type Options struct {
	Config *config.Config

	// PolicyPath enables live reloads of the policy file. Empty disables
	// the file watcher and IPC-triggered reloads.
	PolicyPath string

	// Sockets are the compositor socket paths, resolved by the caller so
	// tests can point the daemon at fakes.
	Sockets hyprctl.Sockets

	// IPCPath is the daemon's own control socket. Empty uses the
	// conventional location.
	IPCPath string

	Logger *slog.Logger
}

// Daemon is the reconciliation service.
type Daemon struct {
	cfg        *config.Config
	policyPath string
	logger     *slog.Logger

	status    atomic.Value // Status
	streamUp  atomic.Bool
	startTime time.Time
	stopChan  chan struct{}
	stopOnce  sync.Once

	bus      *events.Bus
	mirror   *mirror.Mirror
	policies *policy.Store
	journal  *statestore.Store
	registry *prometheus.Registry
	recorder metrics.Recorder
	relay    *relay.Relay
	control  *hyprctl.Control
	pump     *hyprctl.Pump

	runner     *PassRunner
	controller *LoopController
	watcher    *PolicyWatcher
	scheduler  *Scheduler
	ipcServer  *ipc.Server
	telemetry  *http.Server

	runCancel      context.CancelFunc
	runnerDone     chan struct{}
	controllerDone chan struct{}
}

// NewDaemon builds and wires every component. Nothing runs until Start.
func NewDaemon(opts Options) (*Daemon, error) {
	if opts.Config == nil {
		return nil, ferrors.ValidationError("configuration is required").Build()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		cfg:        opts.Config,
		policyPath: opts.PolicyPath,
		logger:     logger,
		stopChan:   make(chan struct{}),
		bus:        events.NewBus(),
		mirror:     mirror.New(),
		policies:   policy.NewStore(),
	}
	d.status.Store(StatusStopped)

	gen, err := d.policies.Swap(opts.Config.Rules)
	if err != nil {
		return nil, err
	}

	journal, err := statestore.Open(filepath.Join(opts.Config.State.Dir, journalFile))
	if err != nil {
		return nil, err
	}
	d.journal = journal

	if opts.Config.Telemetry.Listen != "" {
		d.registry = prometheus.NewRegistry()
		d.recorder = metrics.NewPrometheusRecorder(d.registry)
	} else {
		d.recorder = metrics.NoopRecorder{}
	}
	d.recorder.SetPolicyGeneration(gen)

	if opts.Config.Relay.Enabled {
		rl, err := relay.Connect(opts.Config.Relay, logger)
		if err != nil {
			logger.Warn("Relay unavailable, continuing without it", logfields.Error(err))
		} else {
			d.relay = rl
		}
	}

	d.control = hyprctl.NewControl(opts.Sockets.Control, opts.Config.Settings.CommandTimeout, logger)

	d.runner, err = NewPassRunner(PassRunnerConfig{
		Bus:        d.bus,
		Mirror:     d.mirror,
		Policies:   d.policies,
		Dispatcher: dispatch.New(d.control, opts.Config.Settings.CommandTimeout, logger),
		StreamUp:   d.streamUp.Load,
		Journal:    d.journal,
		Relay:      d.relay,
		Recorder:   d.recorder,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	d.controller, err = NewLoopController(d.bus, LoopControllerConfig{
		QuietWindow:      opts.Config.Settings.Debounce,
		MaxDelay:         opts.Config.Settings.MaxDelay,
		CheckPassRunning: d.runner.Running,
	})
	if err != nil {
		return nil, err
	}

	d.pump = hyprctl.NewPump(hyprctl.PumpConfig{
		SocketPath: opts.Sockets.Events,
		Backoff:    retry.FromReconnect(opts.Config.Settings.Reconnect),
		OnConnect:  d.onStreamConnect,
		OnLine:     d.onEventLine,
		OnDown:     d.onStreamDown,
		Logger:     logger,
	})

	d.scheduler, err = NewScheduler(d.bus, d.journal, logger)
	if err != nil {
		return nil, err
	}

	if opts.PolicyPath != "" {
		d.watcher, err = NewPolicyWatcher(PolicyWatcherConfig{
			Path:     opts.PolicyPath,
			Settings: opts.Config.Settings,
			Bus:      d.bus,
			Policies: d.policies,
			Recorder: d.recorder,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	}

	ipcPath := opts.IPCPath
	if ipcPath == "" {
		ipcPath = ipc.DefaultSocketPath()
	}
	d.ipcServer, err = ipc.NewServer(ipcPath, d, logger)
	if err != nil {
		return nil, err
	}

	return d, nil
}

// Start brings the daemon up and blocks until the context is cancelled, Stop
// is called, or the event stream fails terminally.
func (d *Daemon) Start(ctx context.Context) error {
	if d.GetStatus() != StatusStopped {
		return ferrors.DaemonError("daemon is not in stopped state").
			WithContext("status", string(d.GetStatus())).
			Build()
	}

	d.status.Store(StatusStarting)
	d.startTime = time.Now()
	d.logger.Info("Starting workspace manager daemon",
		logfields.Generation(d.policies.Generation()),
		slog.Int("monitor_rules", len(d.cfg.Rules.Monitors)))

	if err := d.startTelemetry(); err != nil {
		d.status.Store(StatusError)
		return err
	}

	// Consumers subscribe before any producer runs, so the pass request
	// from the first resync is never lost.
	runCtx, cancel := context.WithCancel(context.Background())
	d.runCancel = cancel
	d.runnerDone = make(chan struct{})
	go func() {
		defer close(d.runnerDone)
		_ = d.runner.Run(runCtx)
	}()
	<-d.runner.Ready()

	d.controllerDone = make(chan struct{})
	go func() {
		defer close(d.controllerDone)
		_ = d.controller.Run(runCtx)
	}()
	<-d.controller.Ready()

	if err := d.pump.Start(ctx); err != nil {
		d.status.Store(StatusError)
		return err
	}

	if err := d.scheduler.ScheduleSafetyTick(d.cfg.Settings.SafetyInterval); err != nil {
		d.status.Store(StatusError)
		return err
	}
	if err := d.scheduler.ScheduleJournalPrune(); err != nil {
		d.status.Store(StatusError)
		return err
	}
	d.scheduler.Start(ctx)

	if d.watcher != nil {
		if err := d.watcher.Start(ctx); err != nil {
			d.logger.Error("Failed to start policy watcher", logfields.Error(err))
		}
	}

	if err := d.ipcServer.Start(ctx); err != nil {
		d.status.Store(StatusError)
		return err
	}

	d.status.Store(StatusRunning)
	d.logger.Info("Daemon started")

	err := d.mainLoop(ctx)

	d.status.Store(StatusStopping)
	d.logger.Info("Main loop exited, daemon stopping")
	return err
}

// mainLoop blocks until shutdown or a terminal transport failure. A pump
// that exits with an error has exhausted its reconnect budget; the daemon
// can no longer observe the compositor and must die visibly rather than
// keep dispatching against a stale mirror.
func (d *Daemon) mainLoop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-d.stopChan:
		return nil
	case <-d.pump.Done():
		if err := d.pump.Err(); err != nil {
			d.status.Store(StatusError)
			return err
		}
		return nil
	}
}

// Stop shuts components down in reverse start order: trigger sources first,
// then the event stream, then the pass machinery once in-flight work drains.
func (d *Daemon) Stop(ctx context.Context) error {
	if d.GetStatus() == StatusStopped {
		return nil
	}

	d.status.Store(StatusStopping)
	d.logger.Info("Stopping daemon")
	d.stopOnce.Do(func() { close(d.stopChan) })

	if err := d.ipcServer.Stop(ctx); err != nil {
		d.logger.Error("Failed to stop control socket", logfields.Error(err))
	}
	if d.watcher != nil {
		if err := d.watcher.Stop(ctx); err != nil {
			d.logger.Error("Failed to stop policy watcher", logfields.Error(err))
		}
	}
	if err := d.scheduler.Stop(ctx); err != nil {
		d.logger.Error("Failed to stop scheduler", logfields.Error(err))
	}
	if err := d.pump.Stop(ctx); err != nil {
		d.logger.Error("Failed to stop event pump", logfields.Error(err))
	}

	d.drainPass(ctx)
	if d.runCancel != nil {
		d.runCancel()
	}
	d.waitDone(ctx, d.controllerDone)
	d.waitDone(ctx, d.runnerDone)

	d.bus.Close()
	d.relay.Close()
	d.stopTelemetry(ctx)

	if err := d.journal.Close(); err != nil {
		d.logger.Error("Failed to close journal", logfields.Error(err))
	}

	d.status.Store(StatusStopped)
	d.logger.Info("Daemon stopped", slog.Duration("uptime", time.Since(d.startTime)))
	return nil
}

// drainPass waits for an in-flight pass to resolve, bounded by ctx. The
// dispatcher's per-command timeout keeps the wait finite even when the
// compositor stops answering.
func (d *Daemon) drainPass(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for d.runner.Running() {
		select {
		case <-ctx.Done():
			d.logger.Warn("Shutdown timeout reached with a pass still running")
			return
		case <-ticker.C:
		}
	}
}

func (d *Daemon) waitDone(ctx context.Context, done <-chan struct{}) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// GetStatus returns the daemon lifecycle state.
func (d *Daemon) GetStatus() Status {
	status, ok := d.status.Load().(Status)
	if !ok {
		return StatusError
	}
	return status
}
