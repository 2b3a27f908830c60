// Package retry provides backoff policies for transient transport failures,
// chiefly the event socket reconnect loop.
package retry

import (
	"fmt"
	"time"

	"github.com/gyromean/hywoma/internal/config"
)

// Policy describes how reconnect attempts are spaced. Immutable after
// construction.
type Policy struct {
	Mode       config.RetryBackoffMode
	Initial    time.Duration // first delay, also the step for linear growth
	Max        time.Duration // growth cap
	MaxRetries int           // attempts after the first failure before giving up
}

// DefaultPolicy is tuned for a compositor restart: exponential from 500ms,
// capped at 30s, ten attempts before the daemon gives up.
func DefaultPolicy() Policy {
	return Policy{
		Mode:       config.RetryBackoffExponential,
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		MaxRetries: 10,
	}
}

// NewPolicy overlays the supplied fields onto the defaults. Unknown modes,
// zero durations, and negative budgets keep their defaults; an initial delay
// above the cap is clamped.
func NewPolicy(mode config.RetryBackoffMode, initial, max time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if m := config.NormalizeRetryBackoff(string(mode)); m != "" {
		p.Mode = m
	}
	if initial > 0 {
		p.Initial = initial
	}
	if max > 0 {
		p.Max = max
	}
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// FromReconnect builds a policy from resolved reconnect settings.
func FromReconnect(rc config.ReconnectSettings) Policy {
	return NewPolicy(rc.Mode, rc.Initial, rc.Max, rc.Budget)
}

// Delay returns the wait before the given attempt (1-based). Non-positive
// attempts return zero.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	var d time.Duration
	switch p.Mode {
	case config.RetryBackoffFixed:
		return p.Initial
	case config.RetryBackoffExponential:
		if attempt > 20 { // further doublings could overflow the shift
			return p.Max
		}
		d = p.Initial << (attempt - 1)
	default:
		d = p.Initial * time.Duration(attempt)
	}

	if d > p.Max {
		return p.Max
	}
	return d
}

// Validate rejects policies that would stall the reconnect loop.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial delay must be positive")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max delay must be positive")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("retry budget cannot be negative")
	}
	return nil
}
