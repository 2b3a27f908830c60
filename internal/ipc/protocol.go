// Package ipc serves the daemon's local control socket: a line-oriented
// JSON protocol for status queries, policy reloads, manual passes, and plan
// previews. One request per connection; the daemon answers and closes.
package ipc

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gyromean/hywoma/internal/reconcile"
)

// Commands accepted on the control socket.
const (
	CommandStatus = "status"
	CommandReload = "reload"
	CommandPass   = "pass"
	CommandPlan   = "plan"
)

// Request is the single JSON line a client sends.
type Request struct {
	Command string `json:"command"`
	// Reason annotates manual pass requests in the journal.
	Reason string `json:"reason,omitempty"`
}

// Response is the single JSON line the daemon answers with. Exactly one of
// the payload fields is set, matching the command.
type Response struct {
	OK     bool          `json:"ok"`
	Error  string        `json:"error,omitempty"`
	Status *StatusReport `json:"status,omitempty"`
	Reload *ReloadResult `json:"reload,omitempty"`
	Plan   *PlanPreview  `json:"plan,omitempty"`
}

// StatusReport describes the running daemon. Monitors counts connected
// outputs; MonitorsDisconnected counts remembered identities whose device is
// currently unplugged.
type StatusReport struct {
	State                string     `json:"state"`
	Uptime               string     `json:"uptime"`
	PolicyPath           string     `json:"policy_path"`
	PolicyGeneration     uint64     `json:"policy_generation"`
	Controller           string     `json:"controller"`
	EventStream          string     `json:"event_stream"`
	Monitors             int        `json:"monitors"`
	MonitorsDisconnected int        `json:"monitors_disconnected,omitempty"`
	Workspaces           int        `json:"workspaces"`
	Windows              int        `json:"windows"`
	LastPass             *PassBrief `json:"last_pass,omitempty"`
}

// PassBrief summarizes the most recent journaled pass.
type PassBrief struct {
	PassID    string    `json:"pass_id"`
	Trigger   string    `json:"trigger"`
	Outcome   string    `json:"outcome"`
	Commands  int       `json:"commands"`
	Completed int       `json:"completed"`
	Skips     int       `json:"skips"`
	StartedAt time.Time `json:"started_at"`
	Elapsed   string    `json:"elapsed"`
}

// ReloadResult reports the generation a reload installed.
type ReloadResult struct {
	Generation uint64 `json:"generation"`
}

// PlanPreview is the dry-run answer to the plan command: what a pass would
// dispatch right now. Nothing is executed.
type PlanPreview struct {
	PlanID     string        `json:"plan_id"`
	Generation uint64        `json:"generation"`
	Revision   uint64        `json:"revision"`
	Empty      bool          `json:"empty"`
	Commands   []PlanCommand `json:"commands"`
	Skips      []PlanSkip    `json:"skips,omitempty"`
}

// PlanCommand is the wire form of one plan command.
type PlanCommand struct {
	Verb        string `json:"verb"`
	WorkspaceID int    `json:"workspace_id"`
	Name        string `json:"name,omitempty"`
	Monitor     string `json:"monitor,omitempty"`
	Window      string `json:"window,omitempty"`
	Reason      string `json:"reason"`
}

// PlanSkip is the wire form of one deferred item.
type PlanSkip struct {
	Monitor     string `json:"monitor,omitempty"`
	WorkspaceID int    `json:"workspace_id,omitempty"`
	Reason      string `json:"reason"`
}

// PreviewFromPlan converts a computed plan to its wire form.
func PreviewFromPlan(p reconcile.Plan) PlanPreview {
	preview := PlanPreview{
		PlanID:     p.ID,
		Generation: p.Generation,
		Revision:   p.Revision,
		Empty:      p.Empty(),
		Commands:   make([]PlanCommand, 0, len(p.Commands)),
	}
	for _, c := range p.Commands {
		preview.Commands = append(preview.Commands, PlanCommand{
			Verb:        string(c.Verb),
			WorkspaceID: c.WorkspaceID,
			Name:        c.Name,
			Monitor:     c.Monitor,
			Window:      c.Window,
			Reason:      c.Reason,
		})
	}
	for _, s := range p.Skips {
		preview.Skips = append(preview.Skips, PlanSkip{
			Monitor:     s.Monitor,
			WorkspaceID: s.WorkspaceID,
			Reason:      s.Reason,
		})
	}
	return preview
}

// DaemonAPI is the slice of the daemon the control socket exposes.
type DaemonAPI interface {
	StatusReport(ctx context.Context) StatusReport
	ReloadPolicy(ctx context.Context) (uint64, error)
	PreviewPlan(ctx context.Context) (reconcile.Plan, error)
	TriggerPass(ctx context.Context, reason string) error
}

// DefaultSocketPath resolves the conventional control socket location.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "hywoma.sock")
	}
	return filepath.Join(os.TempDir(), "hywoma.sock")
}
