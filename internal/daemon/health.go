package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gyromean/hywoma/internal/version"
)

// HealthStatus grades a component from fully working down to broken.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// severityRank orders statuses so the report can take a max over checks.
var severityRank = map[HealthStatus]int{
	HealthStatusHealthy:   0,
	HealthStatusDegraded:  1,
	HealthStatusUnhealthy: 2,
}

// HealthCheck is a single component's verdict.
type HealthCheck struct {
	Name        string       `json:"name"`
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked time.Time    `json:"last_checked"`
}

// HealthResponse is the full report served on the telemetry listener.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Checks    []HealthCheck `json:"checks"`
}

func newCheck(name string, status HealthStatus, msg string) HealthCheck {
	return HealthCheck{Name: name, Status: status, Message: msg, LastChecked: time.Now()}
}

// PerformHealthChecks executes all health checks and returns the overall
// status. Checks are passive reads of component state; none of them touch
// the compositor.
func (d *Daemon) PerformHealthChecks(ctx context.Context) *HealthResponse {
	checks := []HealthCheck{
		d.checkDaemonHealth(),
		d.checkEventStreamHealth(),
		d.checkPolicyHealth(),
		d.checkJournalHealth(ctx),
	}

	overall := HealthStatusHealthy
	for _, c := range checks {
		if severityRank[c.Status] > severityRank[overall] {
			overall = c.Status
		}
	}

	return &HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Uptime:    time.Since(d.startTime).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    checks,
	}
}

func (d *Daemon) checkDaemonHealth() HealthCheck {
	switch d.GetStatus() {
	case StatusRunning:
		return newCheck("daemon_status", HealthStatusHealthy, "Daemon loop is running")
	case StatusStarting:
		return newCheck("daemon_status", HealthStatusDegraded, "Daemon has not finished starting")
	case StatusStopping:
		return newCheck("daemon_status", HealthStatusDegraded, "Daemon is shutting down")
	case StatusError:
		return newCheck("daemon_status", HealthStatusUnhealthy, "Daemon hit a fatal error")
	default:
		return newCheck("daemon_status", HealthStatusUnhealthy, "Daemon state is unknown")
	}
}

// checkEventStreamHealth reports on the compositor event connection. A down
// stream is degraded rather than unhealthy while the pump's reconnect budget
// lasts; budget exhaustion kills the daemon outright.
func (d *Daemon) checkEventStreamHealth() HealthCheck {
	if d.streamUp.Load() {
		return newCheck("event_stream", HealthStatusHealthy, "Event stream is connected")
	}
	return newCheck("event_stream", HealthStatusDegraded, "Event stream is down, reconnect in progress")
}

func (d *Daemon) checkPolicyHealth() HealthCheck {
	if _, ok := d.policies.Current(); ok {
		msg := fmt.Sprintf("Policy generation %d is active", d.policies.Generation())
		return newCheck("policy", HealthStatusHealthy, msg)
	}
	return newCheck("policy", HealthStatusDegraded, "No policy loaded, passes are skipped")
}

func (d *Daemon) checkJournalHealth(ctx context.Context) HealthCheck {
	if _, err := d.journal.RecentPasses(ctx, 1); err != nil {
		return newCheck("journal", HealthStatusDegraded, fmt.Sprintf("Journal query failed: %v", err))
	}
	return newCheck("journal", HealthStatusHealthy, "Journal is readable")
}

// handleHealth serves the health report on the telemetry listener.
// Unhealthy answers 503 so load-balancer style probes fail closed.
func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := d.PerformHealthChecks(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if report.Status == HealthStatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(report)
}
