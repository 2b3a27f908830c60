// Package relay publishes normalized compositor events and pass outcomes to
// NATS for external consumers such as status bars and automation hooks.
//
// The relay is optional. When disabled the daemon never touches NATS, and a
// publish failure is a warning for the caller to log, never a daemon fault:
// the compositor is the source of truth, the relay only mirrors it outward.
package relay

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gyromean/hywoma/internal/config"
	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
)

// PassSummary is the pass outcome shape published to <prefix>.passes.
type PassSummary struct {
	PassID     string        `json:"pass_id"`
	PlanID     string        `json:"plan_id"`
	Trigger    string        `json:"trigger"`
	Generation uint64        `json:"generation"`
	Outcome    string        `json:"outcome"`
	Commands   int           `json:"commands"`
	Completed  int           `json:"completed"`
	Skips      int           `json:"skips"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Relay is a connected publisher. A nil *Relay is a valid no-op, so the
// daemon holds one pointer whether or not the relay is enabled.
type Relay struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// Connect dials the broker. Called only when the relay is enabled; client
// side reconnect buffering is left to the NATS client defaults.
func Connect(cfg config.RelayConfig, logger *slog.Logger) (*Relay, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("hywoma"))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRelay, "relay broker connect failed").
			Warning().
			Retryable().
			WithContext("url", cfg.URL).
			Build()
	}

	logger.Info("Event relay connected", "url", cfg.URL, "subject_prefix", cfg.SubjectPrefix)
	return &Relay{conn: conn, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// PublishEvent publishes one normalized compositor event to
// <prefix>.events.<kind>.
func (r *Relay) PublishEvent(kind string, payload any) error {
	if r == nil {
		return nil
	}
	return r.publish(r.prefix+".events."+kind, payload)
}

// PublishPass publishes one pass summary to <prefix>.passes.
func (r *Relay) PublishPass(summary PassSummary) error {
	if r == nil {
		return nil
	}
	return r.publish(r.prefix+".passes", summary)
}

func (r *Relay) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRelay, "relay payload marshal failed").
			Warning().
			WithContext("subject", subject).
			Build()
	}
	if err := r.conn.Publish(subject, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRelay, "relay publish failed").
			Warning().
			Retryable().
			WithContext("subject", subject).
			Build()
	}
	return nil
}

// Close flushes pending publishes and drops the connection.
func (r *Relay) Close() {
	if r == nil || r.conn == nil {
		return
	}
	_ = r.conn.Flush()
	r.conn.Close()
}
