// Package reconcile computes the command plan that brings compositor state
// into compliance with the active policy generation.
//
// The reconciler is a pure diff: it reads one mirror snapshot and one rule
// set and emits commands without touching anything itself. Running it against
// an already-compliant snapshot yields an empty plan, which is what makes
// repeated passes safe under duplicate or reordered events.
package reconcile

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Verb names a corrective command.
type Verb string

const (
	VerbCreateWorkspace  Verb = "create_workspace"
	VerbDestroyWorkspace Verb = "destroy_workspace"
	VerbBindWorkspace    Verb = "bind_workspace"
	VerbRenameWorkspace  Verb = "rename_workspace"
	VerbReorderWorkspace Verb = "reorder_workspace"
	VerbFocusWorkspace   Verb = "focus_workspace"

	// VerbMoveWindow exists for dispatch completeness. The reconciler never
	// emits it: window placement stays user-driven.
	VerbMoveWindow Verb = "move_window"
)

// Command is one corrective step. Monitor is set for binds and destroys,
// Name for creates, renames and reorders, Window for moves.
type Command struct {
	Verb        Verb
	WorkspaceID int
	Name        string
	Monitor     string
	Window      string
	Reason      string
}

func (c Command) String() string {
	s := fmt.Sprintf("%s ws=%d", c.Verb, c.WorkspaceID)
	if c.Monitor != "" {
		s += " monitor=" + c.Monitor
	}
	if c.Name != "" {
		s += " name=" + c.Name
	}
	if c.Window != "" {
		s += " window=" + c.Window
	}
	return s
}

// Skip records work a pass deferred because the mirror has not caught up
// yet. Deferred work is picked up again by the next pass.
type Skip struct {
	Monitor     string
	WorkspaceID int
	Reason      string
}

// Plan is the ordered output of one pass. It is consumed exactly once by the
// dispatcher and never mutated after creation.
type Plan struct {
	ID         string
	Generation uint64
	Revision   uint64
	CreatedAt  time.Time
	Commands   []Command
	Skips      []Skip
}

// Empty reports whether the plan carries no commands. Skips do not count:
// an empty plan with skips still means nothing will be dispatched.
func (p Plan) Empty() bool {
	return len(p.Commands) == 0
}

func newPlan(generation, revision uint64) Plan {
	return Plan{
		ID:         uuid.NewString(),
		Generation: generation,
		Revision:   revision,
		CreatedAt:  time.Now(),
	}
}

func (p *Plan) add(c Command) {
	p.Commands = append(p.Commands, c)
}

func (p *Plan) skip(s Skip) {
	p.Skips = append(p.Skips, s)
}
