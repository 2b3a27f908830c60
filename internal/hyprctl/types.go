package hyprctl

// Monitor is one entry of the j/monitors query reply.
type Monitor struct {
	ID              int          `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Disabled        bool         `json:"disabled"`
	Focused         bool         `json:"focused"`
	X               int          `json:"x"`
	Y               int          `json:"y"`
	ActiveWorkspace WorkspaceRef `json:"activeWorkspace"`
}

// WorkspaceRef is the compositor's embedded workspace reference, used inside
// monitor and client replies.
type WorkspaceRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Workspace is one entry of the j/workspaces query reply, and the shape of
// the j/activeworkspace reply.
type Workspace struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Monitor   string `json:"monitor"`
	MonitorID int    `json:"monitorID"`
	Windows   int    `json:"windows"`
}

// Client is one entry of the j/clients query reply. The compositor calls
// windows clients.
type Client struct {
	Address   string       `json:"address"`
	Mapped    bool         `json:"mapped"`
	Workspace WorkspaceRef `json:"workspace"`
	Class     string       `json:"class"`
	Title     string       `json:"title"`
	PID       int          `json:"pid"`
}
