package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyMonitor     = "monitor"
	KeyMonitorID   = "monitor_id"
	KeyWorkspace   = "workspace_id"
	KeyWorkspaceNm = "workspace_name"
	KeyWindow      = "window"
	KeyPassID      = "pass_id"
	KeyPlanID      = "plan_id"
	KeyTrigger     = "trigger"
	KeyGeneration  = "generation"
	KeyCommand     = "command"
	KeyVerb        = "verb"
	KeyEvent       = "event"
	KeySocket      = "socket"
	KeyReason      = "reason"
	KeyCount       = "count"
	KeyAttempt     = "attempt"
	KeyDurationMS  = "duration_ms"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Monitor(name string) slog.Attr      { return slog.String(KeyMonitor, name) }
func MonitorID(id int) slog.Attr         { return slog.Int(KeyMonitorID, id) }
func Workspace(id int) slog.Attr         { return slog.Int(KeyWorkspace, id) }
func WorkspaceName(n string) slog.Attr   { return slog.String(KeyWorkspaceNm, n) }
func Window(addr string) slog.Attr       { return slog.String(KeyWindow, addr) }
func PassID(id string) slog.Attr         { return slog.String(KeyPassID, id) }
func PlanID(id string) slog.Attr         { return slog.String(KeyPlanID, id) }
func Trigger(t string) slog.Attr         { return slog.String(KeyTrigger, t) }
func Generation(g uint64) slog.Attr      { return slog.Uint64(KeyGeneration, g) }
func Command(c string) slog.Attr         { return slog.String(KeyCommand, c) }
func Verb(v string) slog.Attr            { return slog.String(KeyVerb, v) }
func Event(name string) slog.Attr        { return slog.String(KeyEvent, name) }
func Socket(path string) slog.Attr       { return slog.String(KeySocket, path) }
func Reason(r string) slog.Attr          { return slog.String(KeyReason, r) }
func Count(n int) slog.Attr              { return slog.Int(KeyCount, n) }
func Attempt(n int) slog.Attr            { return slog.Int(KeyAttempt, n) }
func DurationMS(ms float64) slog.Attr    { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
