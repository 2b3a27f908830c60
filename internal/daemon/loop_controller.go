package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/gyromean/hywoma/internal/daemon/events"
	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
)

// Controller states reported over IPC status.
const (
	StateIdle      = "idle"
	StateScheduled = "scheduled"
	StateRunning   = "running"
)

type LoopControllerConfig struct {
	// QuietWindow is how long the trigger stream must stay silent before a
	// coalesced pass fires.
	QuietWindow time.Duration
	// MaxDelay caps coalescing: a pass fires at most this long after the
	// first trigger of a burst, however busy the stream stays.
	MaxDelay time.Duration

	// CheckPassRunning reports whether a pass is currently executing. While
	// true the controller emits nothing and schedules exactly one follow-up
	// for when the pass finishes, so post-burst state is always re-validated.
	CheckPassRunning func() bool

	// PollInterval controls how often the controller polls for pass
	// completion once a follow-up is owed.
	PollInterval time.Duration
}

// LoopController coalesces bursts of PassRequested events into single
// PassNow emissions, implementing the Idle -> Scheduled -> Running -> Idle
// trigger state machine.
//
//   - Idle: no trigger pending.
//   - Scheduled: triggers arrived; the quiet window and max delay timers
//     decide when the coalesced pass fires.
//   - Running: the pass runner is executing; triggers received now collapse
//     into exactly one follow-up pass emitted on completion.
//
// It is safe to run as a single goroutine.
type LoopController struct {
	bus *events.Bus
	cfg LoopControllerConfig

	mu        sync.Mutex
	readyOnce sync.Once
	ready     chan struct{}

	pending         bool
	pendingAfterRun bool
	firstRequestAt  time.Time
	lastRequestAt   time.Time
	lastTrigger     string
	lastReason      string
	requestCount    int
	pollingAfterRun bool
}

func NewLoopController(bus *events.Bus, cfg LoopControllerConfig) (*LoopController, error) {
	if bus == nil {
		return nil, ferrors.ValidationError("bus is required").Build()
	}
	if cfg.QuietWindow <= 0 {
		return nil, ferrors.ValidationError("quiet window must be > 0").Build()
	}
	if cfg.MaxDelay <= 0 {
		return nil, ferrors.ValidationError("max delay must be > 0").Build()
	}
	if cfg.CheckPassRunning == nil {
		cfg.CheckPassRunning = func() bool { return false }
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}

	return &LoopController{bus: bus, cfg: cfg, ready: make(chan struct{})}, nil
}

// Ready is closed once Run has subscribed to triggers. Intended for tests
// and deterministic startup sequencing.
func (c *LoopController) Ready() <-chan struct{} {
	return c.ready
}

// State reports the trigger machine state for diagnostics.
func (c *LoopController) State() string {
	if c.cfg.CheckPassRunning() {
		return StateRunning
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending || c.pendingAfterRun {
		return StateScheduled
	}
	return StateIdle
}

// gate pairs a timer with its armed channel. While disarmed the channel is
// nil, so its select case can never fire on a stale tick.
type gate struct {
	timer *time.Timer
	c     <-chan time.Time
}

func newGate() *gate {
	t := time.NewTimer(time.Hour)
	drainStop(t)
	return &gate{timer: t}
}

func (g *gate) arm(after time.Duration) {
	drainStop(g.timer)
	g.timer.Reset(after)
	g.c = g.timer.C
}

func (g *gate) disarm() {
	g.c = nil
}

func drainStop(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func (c *LoopController) Run(ctx context.Context) error {
	if ctx == nil {
		return ferrors.ValidationError("context cannot be nil").Build()
	}

	reqCh, unsubscribe := events.Subscribe[events.PassRequested](c.bus, 64)
	defer unsubscribe()

	c.readyOnce.Do(func() { close(c.ready) })

	quiet := newGate()
	deadline := newGate()
	poll := newGate()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-reqCh:
			if !ok {
				return nil
			}
			c.onRequest(req)

			quiet.arm(c.cfg.QuietWindow)
			if c.burstJustOpened() {
				deadline.arm(c.cfg.MaxDelay)
			}

		case <-quiet.c:
			if c.tryEmit(ctx, "quiet") {
				quiet.disarm()
				deadline.disarm()
			}
			// else: pass running; follow-up emission waits for completion.

		case <-deadline.c:
			if c.tryEmit(ctx, "max_delay") {
				quiet.disarm()
				deadline.disarm()
			}

		case <-poll.c:
			if c.tryEmitAfterRunning(ctx) {
				poll.disarm()
				quiet.disarm()
				deadline.disarm()
				continue
			}
			poll.arm(c.cfg.PollInterval)
		}

		// Start polling only when a follow-up is owed.
		if c.shouldPollAfterRun() && poll.c == nil {
			poll.arm(c.cfg.PollInterval)
		}
	}
}

func (c *LoopController) onRequest(req events.PassRequested) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := req.RequestedAt
	if now.IsZero() {
		now = time.Now()
	}

	if !c.pending {
		c.pending = true
		c.firstRequestAt = now
		c.requestCount = 0
	}

	c.lastRequestAt = now
	c.lastTrigger = req.Trigger
	c.lastReason = req.Reason
	c.requestCount++
}

// burstJustOpened reports whether the request just absorbed was the first of
// its burst. The max-delay deadline is armed once per burst, on that request.
func (c *LoopController) burstJustOpened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending && c.requestCount == 1
}

func (c *LoopController) shouldPollAfterRun() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingAfterRun && !c.pollingAfterRun
}

func (c *LoopController) tryEmit(ctx context.Context, cause string) bool {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return true
	}

	if c.cfg.CheckPassRunning() {
		c.pendingAfterRun = true
		c.mu.Unlock()
		return false
	}

	evt := events.PassNow{
		TriggeredAt:  time.Now(),
		RequestCount: c.requestCount,
		FirstRequest: c.firstRequestAt,
		LastRequest:  c.lastRequestAt,
		LastTrigger:  c.lastTrigger,
		LastReason:   c.lastReason,
		Cause:        cause,
	}

	c.pending = false
	c.pendingAfterRun = false
	c.pollingAfterRun = false
	c.mu.Unlock()

	_ = c.bus.Publish(ctx, evt)
	return true
}

func (c *LoopController) tryEmitAfterRunning(ctx context.Context) bool {
	c.mu.Lock()
	if !c.pendingAfterRun {
		c.mu.Unlock()
		return true
	}
	c.pollingAfterRun = true
	c.mu.Unlock()

	if c.cfg.CheckPassRunning() {
		return false
	}

	// Pass finished; emit exactly one follow-up.
	return c.tryEmit(ctx, "after_running")
}
