package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gyromean/hywoma/internal/config"
	"github.com/gyromean/hywoma/internal/daemon/events"
	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
	"github.com/gyromean/hywoma/internal/logfields"
	"github.com/gyromean/hywoma/internal/metrics"
	"github.com/gyromean/hywoma/internal/policy"
)

// PolicyWatcher notices edits to the policy file and swaps new rule
// generations in without a daemon restart. A reload that fails to parse or
// validate leaves the previous generation active.
type PolicyWatcher struct {
	path     string
	settings config.Settings
	bus      *events.Bus
	policies *policy.Store
	recorder metrics.Recorder
	logger   *slog.Logger

	watcher      *fsnotify.Watcher
	debounceTime time.Duration

	stopOnce   sync.Once
	stopChan   chan struct{}
	reloadChan chan struct{}
}

type PolicyWatcherConfig struct {
	// Path is the policy file to watch.
	Path string
	// Settings are the tunables active since startup, used to warn when an
	// edit changes values that only apply on restart.
	Settings config.Settings

	Bus      *events.Bus
	Policies *policy.Store
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

func NewPolicyWatcher(cfg PolicyWatcherConfig) (*PolicyWatcher, error) {
	if cfg.Bus == nil {
		return nil, ferrors.ValidationError("bus is required").Build()
	}
	if cfg.Policies == nil {
		return nil, ferrors.ValidationError("policy store is required").Build()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to create file watcher").Build()
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		_ = watcher.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to resolve policy path").
			WithContext("path", cfg.Path).
			Build()
	}

	return &PolicyWatcher{
		path:         absPath,
		settings:     cfg.Settings,
		bus:          cfg.Bus,
		policies:     cfg.Policies,
		recorder:     cfg.Recorder,
		logger:       cfg.Logger,
		watcher:      watcher,
		debounceTime: 500 * time.Millisecond,
		stopChan:     make(chan struct{}),
		reloadChan:   make(chan struct{}, 1),
	}, nil
}

// Start begins monitoring the policy file. The containing directory is
// watched rather than the file itself, which keeps atomic editor saves
// (write to temp, rename over) visible.
func (w *PolicyWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to watch policy directory").
			WithContext("dir", dir).
			Build()
	}

	w.logger.Info("Watching policy file", slog.String("path", w.path))

	go w.watchLoop(ctx)
	go w.reloadLoop(ctx)

	return nil
}

// Stop stops the watcher and its goroutines.
func (w *PolicyWatcher) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stopChan) })
	if err := w.watcher.Close(); err != nil {
		w.logger.Error("Error closing file watcher", logfields.Error(err))
	}
	return nil
}

func (w *PolicyWatcher) watchLoop(ctx context.Context) {
	policyFile := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != policyFile {
				continue
			}

			if event.Op&fsnotify.Write == fsnotify.Write {
				w.logger.Debug("Policy file write detected", slog.String("file", event.Name))
				w.triggerReload()
			} else if event.Op&fsnotify.Create == fsnotify.Create {
				w.logger.Debug("Policy file create detected", slog.String("file", event.Name))
				w.triggerReload()
			} else if event.Op&fsnotify.Remove == fsnotify.Remove {
				w.logger.Warn("Policy file removed, keeping active generation", slog.String("file", event.Name))
			} else if event.Op&fsnotify.Rename == fsnotify.Rename {
				w.logger.Debug("Policy file rename detected", slog.String("file", event.Name))
				w.triggerReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Policy watcher error", logfields.Error(err))
		}
	}
}

// reloadLoop coalesces rapid file events into one reload.
func (w *PolicyWatcher) reloadLoop(ctx context.Context) {
	var reloadTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			return
		case <-w.stopChan:
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			return
		case <-w.reloadChan:
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(w.debounceTime, func() {
				if err := w.Reload(ctx); err != nil {
					w.logger.Error("Policy reload failed, previous generation stays active",
						logfields.Error(err))
				}
			})
		}
	}
}

func (w *PolicyWatcher) triggerReload() {
	select {
	case w.reloadChan <- struct{}{}:
	default:
		// Reload already pending.
	}
}

// Reload loads the policy file and swaps the new rule generation in. Also
// called directly for IPC-requested reloads.
func (w *PolicyWatcher) Reload(ctx context.Context) error {
	cfg, err := config.Load(w.path)
	if err != nil {
		return err
	}

	if cfg.Settings != w.settings {
		w.logger.Warn("Settings changed in policy file, new values apply on restart")
	}

	gen, err := w.policies.Swap(cfg.Rules)
	if err != nil {
		return err
	}
	w.recorder.SetPolicyGeneration(gen)

	now := time.Now()
	_ = w.bus.Publish(ctx, events.PolicyReloaded{Generation: gen, Path: w.path, ReloadedAt: now})
	_ = w.bus.Publish(ctx, events.PassRequested{
		Trigger:     events.TriggerPolicyReload,
		Reason:      "policy generation " + strconv.FormatUint(gen, 10),
		RequestedAt: now,
	})

	w.logger.Info("Policy reloaded",
		logfields.Generation(gen),
		logfields.Count(len(cfg.Rules.Monitors)))
	return nil
}
