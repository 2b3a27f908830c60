package hyprctl

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
	"github.com/gyromean/hywoma/internal/logfields"
	"github.com/gyromean/hywoma/internal/retry"
)

// maxEventLine bounds a single event line. Window titles ride on several
// events, so the cap is generous.
const maxEventLine = 1 << 20

// PumpConfig configures the event pump.
type PumpConfig struct {
	SocketPath  string
	Backoff     retry.Policy
	DialTimeout time.Duration

	// OnConnect runs after each successful dial, before any lines are
	// handled. A non-nil error drops the connection and counts against
	// the backoff budget. reconnected is false only for the initial
	// connection.
	OnConnect func(ctx context.Context, reconnected bool) error

	// OnLine receives each non-empty event line in stream order.
	OnLine func(line string)

	// OnDown fires once per outage, when an established stream drops and
	// before the first redial attempt.
	OnDown func(err error)

	Logger *slog.Logger
}

// Pump consumes the compositor's event stream. It owns reconnection: when
// the stream drops it redials with backoff until the attempt budget is
// spent, at which point Done is closed and Err reports the terminal failure.
type Pump struct {
	cfg    PumpConfig
	logger *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	stopped bool
	err     error

	stopChan chan struct{}
	done     chan struct{}
}

// NewPump builds an event pump. Start must be called before Stop.
func NewPump(cfg PumpConfig) *Pump {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pump{
		cfg:      cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start dials the event socket, runs the connect hook, and begins streaming.
// The first dial is synchronous so a missing compositor fails startup fast.
func (p *Pump) Start(ctx context.Context) error {
	conn, err := p.connect(ctx, false)
	if err != nil {
		return err
	}

	p.logger.Info("Event stream connected", logfields.Socket(p.cfg.SocketPath))
	go p.run(ctx, conn)
	return nil
}

// Stop closes the stream and stops reconnecting. It waits for the pump
// goroutine to exit or the context to expire.
func (p *Pump) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopChan)
	}
	conn := p.conn
	p.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ferrors.WrapError(ctx.Err(), ferrors.CategoryDaemon, "timed out waiting for event pump to stop").Build()
	}
}

// Done is closed when the pump exits, whether by Stop, context cancellation,
// or a spent reconnect budget.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

// Err reports why the pump exited. It is nil for a clean Stop and non-nil
// once the reconnect budget is exhausted.
func (p *Pump) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Pump) run(ctx context.Context, conn net.Conn) {
	defer close(p.done)

	for {
		err := p.stream(conn)

		if p.isStopped() || ctx.Err() != nil {
			return
		}

		p.logger.Warn("Event stream dropped",
			logfields.Socket(p.cfg.SocketPath),
			logfields.Error(err))
		if p.cfg.OnDown != nil {
			p.cfg.OnDown(err)
		}

		conn = p.redial(ctx, err)
		if conn == nil {
			return
		}
	}
}

// stream reads lines until the connection breaks and returns the reason.
func (p *Pump) stream(conn net.Conn) error {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		p.cfg.OnLine(line)
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// redial attempts to re-establish the stream with backoff. It returns nil
// when stopped, cancelled, or out of attempts.
func (p *Pump) redial(ctx context.Context, cause error) net.Conn {
	for attempt := 1; attempt <= p.cfg.Backoff.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stopChan:
			return nil
		case <-time.After(p.cfg.Backoff.Delay(attempt)):
		}

		conn, err := p.connect(ctx, true)
		if err != nil {
			cause = err
			p.logger.Warn("Reconnect attempt failed",
				logfields.Attempt(attempt),
				logfields.Error(err))
			continue
		}

		p.logger.Info("Event stream reconnected", logfields.Attempt(attempt))
		return conn
	}

	p.setErr(ferrors.WrapError(cause, ferrors.CategoryTransport, "event socket reconnect budget exhausted").
		WithContext("attempts", p.cfg.Backoff.MaxRetries).
		Build())
	return nil
}

// connect dials, runs the connect hook, and registers the connection for
// Stop. Lines that arrive while the hook runs stay buffered in the socket.
func (p *Pump) connect(ctx context.Context, reconnected bool) (net.Conn, error) {
	conn, err := net.DialTimeout("unix", p.cfg.SocketPath, p.cfg.DialTimeout)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryTransport, "failed to dial event socket").
			Retryable().
			WithContext("socket", p.cfg.SocketPath).
			Build()
	}

	if p.cfg.OnConnect != nil {
		if err := p.cfg.OnConnect(ctx, reconnected); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	if !p.setConn(conn) {
		return nil, ferrors.TransportError("event pump stopped during connect").Build()
	}
	return conn, nil
}

func (p *Pump) setConn(conn net.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		_ = conn.Close()
		return false
	}
	p.conn = conn
	return true
}

func (p *Pump) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *Pump) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}
