package hyprevents

// UnknownMonitorID marks events from legacy single-argument monitor
// notifications that carry no numeric id.
const UnknownMonitorID = -1

// Event is implemented by every decoded compositor event.
type Event interface {
	// EventName returns the wire name the event was decoded from.
	EventName() string
}

// MonitorAdded reports a newly connected output.
type MonitorAdded struct {
	ID          int
	Name        string
	Description string
}

// MonitorRemoved reports a disconnected output.
type MonitorRemoved struct {
	ID          int
	Name        string
	Description string
}

// WorkspaceCreated reports a workspace materializing.
type WorkspaceCreated struct {
	ID   int
	Name string
}

// WorkspaceDestroyed reports a workspace being garbage collected.
type WorkspaceDestroyed struct {
	ID   int
	Name string
}

// WorkspaceMoved reports a workspace landing on another monitor.
type WorkspaceMoved struct {
	ID      int
	Name    string
	Monitor string
}

// WorkspaceRenamed reports a workspace name change. The id stays stable.
type WorkspaceRenamed struct {
	ID   int
	Name string
}

// WindowOpened reports a new window mapped onto a workspace.
type WindowOpened struct {
	Address   string
	Workspace string
	Class     string
	Title     string
}

// WindowClosed reports a window unmapping.
type WindowClosed struct {
	Address string
}

// WindowMoved reports a window changing workspace.
type WindowMoved struct {
	Address       string
	WorkspaceID   int
	WorkspaceName string
}

// WorkspaceFocused reports the active workspace changing.
type WorkspaceFocused struct {
	ID   int
	Name string
}

// MonitorFocused reports the focused monitor changing.
type MonitorFocused struct {
	Monitor     string
	WorkspaceID int
}

func (MonitorAdded) EventName() string      { return "monitoraddedv2" }
func (MonitorRemoved) EventName() string    { return "monitorremovedv2" }
func (WorkspaceCreated) EventName() string  { return "createworkspacev2" }
func (WorkspaceDestroyed) EventName() string { return "destroyworkspacev2" }
func (WorkspaceMoved) EventName() string    { return "moveworkspacev2" }
func (WorkspaceRenamed) EventName() string  { return "renameworkspace" }
func (WindowOpened) EventName() string      { return "openwindow" }
func (WindowClosed) EventName() string      { return "closewindow" }
func (WindowMoved) EventName() string       { return "movewindowv2" }
func (WorkspaceFocused) EventName() string  { return "workspacev2" }
func (MonitorFocused) EventName() string    { return "focusedmonv2" }
