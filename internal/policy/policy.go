// Package policy holds the user-declared workspace placement rules and the
// generation bookkeeping around them.
//
// A RuleSet is immutable once validated. Reloads build a new RuleSet and swap
// it in atomically; a reconciliation pass pins the generation it started with
// and is never affected by a swap happening mid-pass.
package policy

import (
	"strings"
	"sync"

	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
)

// Wildcard matches any monitor not claimed by a more specific rule.
const Wildcard = "*"

// WorkspaceRule declares one workspace on a monitor. ID is the workspace
// identity; Name is an optional rename target; Default marks the workspace
// focused when the monitor is first bound.
type WorkspaceRule struct {
	ID      int
	Name    string
	Default bool
}

// MonitorRule declares the workspace set for monitors matching Match.
// Match is a monitor name, a description substring, or the wildcard.
// Exclusive rules additionally destroy undeclared empty workspaces.
type MonitorRule struct {
	Match      string
	Exclusive  bool
	Workspaces []WorkspaceRule
}

// RuleSet is one validated policy generation.
type RuleSet struct {
	Generation uint64
	Monitors   []MonitorRule
}

// RuleFor resolves the rule for a monitor. Exact name matches win, then the
// first description substring match in declaration order, then the wildcard.
func (rs RuleSet) RuleFor(name, description string) (MonitorRule, bool) {
	var wildcard *MonitorRule
	var descMatch *MonitorRule

	for i := range rs.Monitors {
		r := &rs.Monitors[i]
		switch {
		case r.Match == name:
			return *r, true
		case r.Match == Wildcard:
			if wildcard == nil {
				wildcard = r
			}
		case description != "" && strings.Contains(description, r.Match):
			if descMatch == nil {
				descMatch = r
			}
		}
	}

	if descMatch != nil {
		return *descMatch, true
	}
	if wildcard != nil {
		return *wildcard, true
	}
	return MonitorRule{}, false
}

// DeclaredWorkspace returns the rule declaring the workspace id, if any.
func (rs RuleSet) DeclaredWorkspace(id int) (MonitorRule, WorkspaceRule, bool) {
	for _, mr := range rs.Monitors {
		for _, wr := range mr.Workspaces {
			if wr.ID == id {
				return mr, wr, true
			}
		}
	}
	return MonitorRule{}, WorkspaceRule{}, false
}

// Validate checks the structural invariants of a rule set. A workspace binds
// to at most one monitor, so ids must be unique across all rules. Name slots
// are exclusive per generation, so non-empty names must be unique too.
func (rs RuleSet) Validate() error {
	if len(rs.Monitors) == 0 {
		return ferrors.PolicyError("policy declares no monitor rules").Build()
	}

	seenMatch := make(map[string]bool, len(rs.Monitors))
	seenID := make(map[int]string, len(rs.Monitors)*4)
	seenName := make(map[string]string, len(rs.Monitors)*4)
	wildcards := 0

	for _, mr := range rs.Monitors {
		if mr.Match == "" {
			return ferrors.PolicyError("monitor rule has an empty match pattern").Build()
		}
		if seenMatch[mr.Match] {
			return ferrors.PolicyError("duplicate monitor match pattern").
				WithContext("match", mr.Match).
				Build()
		}
		seenMatch[mr.Match] = true
		if mr.Match == Wildcard {
			wildcards++
			if wildcards > 1 {
				return ferrors.PolicyError("more than one wildcard monitor rule").Build()
			}
		}

		if len(mr.Workspaces) == 0 {
			return ferrors.PolicyError("monitor rule declares no workspaces").
				WithContext("match", mr.Match).
				Build()
		}

		defaults := 0
		for _, wr := range mr.Workspaces {
			if wr.ID < 1 {
				return ferrors.PolicyError("workspace id must be >= 1").
					WithContext("match", mr.Match).
					WithContext("workspace_id", wr.ID).
					Build()
			}
			if prev, dup := seenID[wr.ID]; dup {
				return ferrors.PolicyError("workspace declared on two monitor rules").
					WithContext("workspace_id", wr.ID).
					WithContext("first_match", prev).
					WithContext("second_match", mr.Match).
					Build()
			}
			seenID[wr.ID] = mr.Match
			if wr.Name != "" {
				if prev, dup := seenName[wr.Name]; dup {
					return ferrors.PolicyError("workspace name declared twice").
						WithContext("workspace_name", wr.Name).
						WithContext("first_match", prev).
						WithContext("second_match", mr.Match).
						Build()
				}
				seenName[wr.Name] = mr.Match
			}
			if wr.Default {
				defaults++
				if defaults > 1 {
					return ferrors.PolicyError("monitor rule declares more than one default workspace").
						WithContext("match", mr.Match).
						Build()
				}
			}
		}
	}

	return nil
}

// Store publishes the active rule set to the rest of the daemon. Swap assigns
// monotonically increasing generations; a failed reload never reaches Swap,
// so the prior generation stays active.
type Store struct {
	mu      sync.RWMutex
	current RuleSet
	nextGen uint64
	loaded  bool
}

func NewStore() *Store {
	return &Store{nextGen: 1}
}

// Swap validates and installs a new rule set, returning its generation.
func (s *Store) Swap(rs RuleSet) (uint64, error) {
	if err := rs.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rs.Generation = s.nextGen
	s.nextGen++
	s.current = rs
	s.loaded = true
	return rs.Generation, nil
}

// Current returns the active rule set. The boolean is false before the first
// successful Swap.
func (s *Store) Current() (RuleSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.loaded
}

// Generation returns the active generation, 0 when nothing is loaded.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return 0
	}
	return s.current.Generation
}
