package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/gyromean/hywoma/internal/daemon/events"
	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
	"github.com/gyromean/hywoma/internal/logfields"
	"github.com/gyromean/hywoma/internal/statestore"
)

// Journal retention: pruned hourly, keeping the newest passes. The journal
// is a diagnostic ring, not an audit log.
const (
	journalPruneInterval = time.Hour
	journalKeepPasses    = 2048
)

// Scheduler runs the periodic daemon chores: the safety-net reconciliation
// tick that catches any event the stream never delivered, and journal
// pruning.
type Scheduler struct {
	scheduler gocron.Scheduler
	bus       *events.Bus
	journal   *statestore.Store
	logger    *slog.Logger
}

func NewScheduler(bus *events.Bus, journal *statestore.Store, logger *slog.Logger) (*Scheduler, error) {
	if bus == nil {
		return nil, ferrors.ValidationError("bus is required").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to create scheduler").Build()
	}

	return &Scheduler{scheduler: s, bus: bus, journal: journal, logger: logger}, nil
}

// ScheduleSafetyTick requests a reconciliation pass every interval. A zero
// or negative interval disables the tick.
func (s *Scheduler) ScheduleSafetyTick(interval time.Duration) error {
	if interval <= 0 {
		s.logger.Debug("Safety tick disabled")
		return nil
	}

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.safetyTick),
		gocron.WithName("safety-tick"),
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to schedule safety tick").Build()
	}

	s.logger.Info("Safety tick scheduled", slog.Duration("interval", interval))
	return nil
}

// ScheduleJournalPrune keeps the journal bounded. No-op without a journal.
func (s *Scheduler) ScheduleJournalPrune() error {
	if s.journal == nil {
		return nil
	}

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(journalPruneInterval),
		gocron.NewTask(s.pruneJournal),
		gocron.WithName("journal-prune"),
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to schedule journal prune").Build()
	}
	return nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

func (s *Scheduler) safetyTick() {
	err := s.bus.Publish(context.Background(), events.PassRequested{
		Trigger:     events.TriggerSafetyTimer,
		Reason:      "safety interval elapsed",
		RequestedAt: time.Now(),
	})
	if err != nil {
		s.logger.Warn("Safety tick publish failed", logfields.Error(err))
	}
}

func (s *Scheduler) pruneJournal() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.journal.Prune(ctx, journalKeepPasses)
	if err != nil {
		s.logger.Warn("Journal prune failed", logfields.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Debug("Journal pruned", logfields.Count(int(removed)))
	}
}
