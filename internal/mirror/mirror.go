// Package mirror maintains an in-process model of compositor state, fed by
// decoded events and primed from full-state queries.
//
// The mirror never talks to the compositor. It only folds events into its
// tables, so applying the same event twice converges to the same state, and a
// mirror primed from query payloads equals one built from the equivalent
// event sequence.
package mirror

import (
	"sort"
	"strconv"
	"sync"

	"github.com/gyromean/hywoma/internal/hyprevents"
)

// Monitor is an output, keyed by name. Compositor monitor ids are recycled
// on hotplug, names are stable per connector. Removal flips Connected to
// false rather than dropping the entry, so the same identity is waiting when
// the device comes back.
type Monitor struct {
	ID          int
	Name        string
	Description string
	Connected   bool
}

// Workspace is keyed by its numeric id. The name is a mutable attribute.
// Placeholder marks entries synthesized from an event that referenced a
// workspace before its creation or placement was observed; a resync or a
// later placement event clears it.
type Workspace struct {
	ID          int
	Name        string
	Monitor     string
	Windows     int
	Placeholder bool
}

// Window is keyed by its compositor address. WorkspaceID 0 means the owning
// workspace could not be resolved yet.
type Window struct {
	Address     string
	WorkspaceID int
	Class       string
	Title       string
}

// Snapshot is an immutable copy of mirror state. Slices are sorted so equal
// states produce equal snapshots and plans stay deterministic.
type Snapshot struct {
	Monitors         []Monitor
	Workspaces       []Workspace
	Windows          []Window
	FocusedMonitor   string
	FocusedWorkspace int
	Revision         uint64
}

// Workspace returns the workspace with the given id, if present.
func (s Snapshot) Workspace(id int) (Workspace, bool) {
	for _, ws := range s.Workspaces {
		if ws.ID == id {
			return ws, true
		}
	}
	return Workspace{}, false
}

// Monitor returns the monitor with the given name, if known. Disconnected
// monitors are returned too; check Connected.
func (s Snapshot) Monitor(name string) (Monitor, bool) {
	for _, m := range s.Monitors {
		if m.Name == name {
			return m, true
		}
	}
	return Monitor{}, false
}

// ConnectedMonitors returns the monitors currently present, in name order.
func (s Snapshot) ConnectedMonitors() []Monitor {
	out := make([]Monitor, 0, len(s.Monitors))
	for _, m := range s.Monitors {
		if m.Connected {
			out = append(out, m)
		}
	}
	return out
}

// Mirror holds the current model. All methods are safe for concurrent use.
type Mirror struct {
	mu sync.RWMutex

	monitors   map[string]*Monitor
	workspaces map[int]*Workspace
	windows    map[string]*Window
	wsByName   map[string]int

	focusedMonitor   string
	focusedWorkspace int
	revision         uint64
}

func New() *Mirror {
	return &Mirror{
		monitors:   make(map[string]*Monitor),
		workspaces: make(map[int]*Workspace),
		windows:    make(map[string]*Window),
		wsByName:   make(map[string]int),
	}
}

// Prime replaces the model with authoritative query results. Used at startup
// and after every event socket reconnect. The given monitors are the
// connected set; monitors known before the prime but absent from it are kept
// as disconnected records, covering hotplug that happened while the event
// stream was down.
func (m *Mirror) Prime(monitors []Monitor, workspaces []Workspace, windows []Window, focusedMonitor string, focusedWorkspace int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.monitors
	m.monitors = make(map[string]*Monitor, len(monitors))
	for _, mon := range monitors {
		c := mon
		c.Connected = true
		m.monitors[mon.Name] = &c
	}
	for name, old := range prev {
		if _, ok := m.monitors[name]; ok {
			continue
		}
		c := *old
		c.Connected = false
		m.monitors[name] = &c
	}

	m.workspaces = make(map[int]*Workspace, len(workspaces))
	m.wsByName = make(map[string]int, len(workspaces))
	for _, ws := range workspaces {
		c := ws
		c.Placeholder = false
		m.workspaces[ws.ID] = &c
		m.wsByName[ws.Name] = ws.ID
	}

	m.windows = make(map[string]*Window, len(windows))
	for _, w := range windows {
		c := w
		m.windows[w.Address] = &c
	}

	m.focusedMonitor = focusedMonitor
	m.focusedWorkspace = focusedWorkspace
	m.revision++
}

// SeedDisconnected records a monitor identity without marking it present.
// The daemon feeds it identities remembered by the journal, so monitors
// unplugged before this process started still show up as disconnected.
// Monitors already known, in either state, are left untouched.
func (m *Mirror) SeedDisconnected(name, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.monitors[name]; ok {
		return
	}
	m.monitors[name] = &Monitor{Name: name, Description: description}
	m.revision++
}

// Apply folds one event into the model and returns the new revision.
func (m *Mirror) Apply(ev hyprevents.Event) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e := ev.(type) {
	case hyprevents.MonitorAdded:
		m.applyMonitorAdded(e)
	case hyprevents.MonitorRemoved:
		m.applyMonitorRemoved(e)
	case hyprevents.WorkspaceCreated:
		m.upsertWorkspace(e.ID, e.Name, m.focusedMonitor)
	case hyprevents.WorkspaceDestroyed:
		m.applyWorkspaceDestroyed(e)
	case hyprevents.WorkspaceMoved:
		ws := m.upsertWorkspace(e.ID, e.Name, e.Monitor)
		ws.Monitor = e.Monitor
		ws.Placeholder = false
	case hyprevents.WorkspaceRenamed:
		m.upsertWorkspace(e.ID, e.Name, "")
	case hyprevents.WindowOpened:
		m.applyWindowOpened(e)
	case hyprevents.WindowClosed:
		delete(m.windows, e.Address)
	case hyprevents.WindowMoved:
		m.applyWindowMoved(e)
	case hyprevents.WorkspaceFocused:
		m.upsertWorkspace(e.ID, e.Name, m.focusedMonitor)
		m.focusedWorkspace = e.ID
	case hyprevents.MonitorFocused:
		m.applyMonitorFocused(e)
	}

	m.revision++
	return m.revision
}

func (m *Mirror) applyMonitorAdded(e hyprevents.MonitorAdded) {
	mon, ok := m.monitors[e.Name]
	if !ok {
		mon = &Monitor{Name: e.Name}
		m.monitors[e.Name] = mon
	}
	mon.Connected = true
	if e.ID != hyprevents.UnknownMonitorID {
		mon.ID = e.ID
	}
	if e.Description != "" {
		mon.Description = e.Description
	}
}

func (m *Mirror) applyMonitorRemoved(e hyprevents.MonitorRemoved) {
	mon, ok := m.monitors[e.Name]
	if !ok {
		mon = &Monitor{Name: e.Name}
		m.monitors[e.Name] = mon
	}
	mon.Connected = false
	if e.Description != "" {
		mon.Description = e.Description
	}
	if m.focusedMonitor == e.Name {
		m.focusedMonitor = ""
	}
	// The compositor evacuates workspaces afterwards, one move event each.
	// Until those arrive the stranded entries are placeholders.
	for _, ws := range m.workspaces {
		if ws.Monitor == e.Name {
			ws.Placeholder = true
		}
	}
}

func (m *Mirror) applyWorkspaceDestroyed(e hyprevents.WorkspaceDestroyed) {
	if ws, ok := m.workspaces[e.ID]; ok {
		if m.wsByName[ws.Name] == e.ID {
			delete(m.wsByName, ws.Name)
		}
		delete(m.workspaces, e.ID)
	}
	if m.focusedWorkspace == e.ID {
		m.focusedWorkspace = 0
	}
}

func (m *Mirror) applyWindowOpened(e hyprevents.WindowOpened) {
	wsID, ok := m.wsByName[e.Workspace]
	if !ok {
		// Default workspace names are their numeric id; anything else waits
		// for a resync or a move event to resolve.
		if n, err := strconv.Atoi(e.Workspace); err == nil {
			m.upsertWorkspace(n, e.Workspace, m.focusedMonitor)
			wsID = n
		}
	}
	m.windows[e.Address] = &Window{
		Address:     e.Address,
		WorkspaceID: wsID,
		Class:       e.Class,
		Title:       e.Title,
	}
}

func (m *Mirror) applyWindowMoved(e hyprevents.WindowMoved) {
	m.upsertWorkspace(e.WorkspaceID, e.WorkspaceName, "")
	w, ok := m.windows[e.Address]
	if !ok {
		w = &Window{Address: e.Address}
		m.windows[e.Address] = w
	}
	w.WorkspaceID = e.WorkspaceID
}

func (m *Mirror) applyMonitorFocused(e hyprevents.MonitorFocused) {
	m.focusedMonitor = e.Monitor
	mon, ok := m.monitors[e.Monitor]
	if !ok {
		mon = &Monitor{Name: e.Monitor}
		m.monitors[e.Monitor] = mon
	}
	mon.Connected = true
	// The event names the monitor's active workspace, which places it.
	if ws, ok := m.workspaces[e.WorkspaceID]; ok {
		ws.Monitor = e.Monitor
		ws.Placeholder = false
	} else {
		m.workspaces[e.WorkspaceID] = &Workspace{
			ID:      e.WorkspaceID,
			Name:    strconv.Itoa(e.WorkspaceID),
			Monitor: e.Monitor,
		}
		m.wsByName[strconv.Itoa(e.WorkspaceID)] = e.WorkspaceID
	}
	m.focusedWorkspace = e.WorkspaceID
}

// upsertWorkspace returns the workspace with the given id, creating a
// placeholder when it was not known. An empty monitor means unknown placement.
func (m *Mirror) upsertWorkspace(id int, name, monitor string) *Workspace {
	ws, ok := m.workspaces[id]
	if !ok {
		ws = &Workspace{ID: id, Placeholder: monitor == ""}
		m.workspaces[id] = ws
		if monitor != "" {
			ws.Monitor = monitor
		}
	}
	if name != "" && ws.Name != name {
		if m.wsByName[ws.Name] == id {
			delete(m.wsByName, ws.Name)
		}
		ws.Name = name
	}
	if ws.Name != "" {
		m.wsByName[ws.Name] = id
	}
	return ws
}

// Snapshot returns a deep copy of the current model.
func (m *Mirror) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Monitors:         make([]Monitor, 0, len(m.monitors)),
		Workspaces:       make([]Workspace, 0, len(m.workspaces)),
		Windows:          make([]Window, 0, len(m.windows)),
		FocusedMonitor:   m.focusedMonitor,
		FocusedWorkspace: m.focusedWorkspace,
		Revision:         m.revision,
	}

	counts := make(map[int]int, len(m.workspaces))
	for _, w := range m.windows {
		counts[w.WorkspaceID]++
		snap.Windows = append(snap.Windows, *w)
	}
	for _, mon := range m.monitors {
		snap.Monitors = append(snap.Monitors, *mon)
	}
	for _, ws := range m.workspaces {
		c := *ws
		c.Windows = counts[ws.ID]
		snap.Workspaces = append(snap.Workspaces, c)
	}

	sort.Slice(snap.Monitors, func(i, j int) bool { return snap.Monitors[i].Name < snap.Monitors[j].Name })
	sort.Slice(snap.Workspaces, func(i, j int) bool { return snap.Workspaces[i].ID < snap.Workspaces[j].ID })
	sort.Slice(snap.Windows, func(i, j int) bool { return snap.Windows[i].Address < snap.Windows[j].Address })

	return snap
}

// Revision returns the current model revision without copying state.
func (m *Mirror) Revision() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.revision
}
