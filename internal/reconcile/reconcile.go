package reconcile

import (
	"strconv"
	"strings"

	"github.com/gyromean/hywoma/internal/mirror"
	"github.com/gyromean/hywoma/internal/policy"
	"github.com/gyromean/hywoma/internal/util/sets"
)

// Compute diffs one mirror snapshot against one policy generation and
// returns the ordered plan that closes the gap. Commands come out grouped
// per rule in declaration order: creates and binds first, then renames with
// any name slot evictions ahead of the rename that claims the slot, then the
// default focus, then destroys for exclusive rules.
//
// The reconciler never fails. Monitors whose mirror data is incomplete are
// skipped with a reason and retried on the next pass.
func Compute(snap mirror.Snapshot, rules policy.RuleSet) Plan {
	plan := newPlan(rules.Generation, snap.Revision)

	claims := claimRules(snap, rules, &plan)

	for i := range rules.Monitors {
		mon, ok := claims[i]
		if !ok {
			continue
		}
		reconcileMonitor(snap, rules, mon, rules.Monitors[i], &plan)
	}

	return plan
}

// claimRules assigns each rule to at most one connected monitor. Exact name
// matches bind first, then description rules in declaration order, then the
// wildcard picks up the first monitor still unclaimed. A monitor loses when
// an earlier rule already claimed it, so rule order settles contested
// matches. Disconnected monitors claim nothing: their rules lie dormant
// until the device returns, without any skip noise in the meantime.
func claimRules(snap mirror.Snapshot, rules policy.RuleSet, plan *Plan) map[int]mirror.Monitor {
	connected := snap.ConnectedMonitors()
	claims := make(map[int]mirror.Monitor, len(rules.Monitors))
	taken := make(sets.Set[string], len(connected))

	for i, rule := range rules.Monitors {
		if rule.Match == policy.Wildcard {
			continue
		}
		if mon, ok := snap.Monitor(rule.Match); ok && mon.Connected {
			claims[i] = mon
			taken.Insert(mon.Name)
		}
	}

	for i, rule := range rules.Monitors {
		if _, claimed := claims[i]; claimed || rule.Match == policy.Wildcard {
			continue
		}
		for _, mon := range connected {
			if taken.Has(mon.Name) || mon.Description == "" {
				continue
			}
			if !strings.Contains(mon.Description, rule.Match) {
				continue
			}
			claims[i] = mon
			taken.Insert(mon.Name)
			break
		}
	}

	for i, rule := range rules.Monitors {
		if rule.Match != policy.Wildcard {
			continue
		}
		for _, mon := range connected {
			if !taken.Has(mon.Name) {
				claims[i] = mon
				taken.Insert(mon.Name)
				break
			}
		}
		break
	}

	// Monitors that match some rule but lost it to an earlier claimant are
	// recorded so multi-monitor contention is visible in the pass log.
	for _, mon := range connected {
		if taken.Has(mon.Name) {
			continue
		}
		if _, matched := rules.RuleFor(mon.Name, mon.Description); matched {
			plan.skip(Skip{Monitor: mon.Name, Reason: "rule already claimed by another monitor"})
		}
	}

	return claims
}

func reconcileMonitor(snap mirror.Snapshot, rules policy.RuleSet, mon mirror.Monitor, rule policy.MonitorRule, plan *Plan) {
	local := workspacesOn(snap, mon.Name)
	if len(local) == 0 {
		// The compositor always keeps at least one workspace per monitor,
		// so an empty set means its placement events are still in flight.
		plan.skip(Skip{Monitor: mon.Name, Reason: "no workspace data for monitor yet"})
		return
	}

	rebound := false
	for _, wr := range rule.Workspaces {
		ws, exists := snap.Workspace(wr.ID)

		if exists && ws.Placeholder {
			plan.skip(Skip{Monitor: mon.Name, WorkspaceID: wr.ID, Reason: "workspace placement not yet observed"})
			continue
		}

		if !exists {
			plan.add(Command{Verb: VerbCreateWorkspace, WorkspaceID: wr.ID, Monitor: mon.Name, Reason: "declared workspace missing"})
			plan.add(Command{Verb: VerbBindWorkspace, WorkspaceID: wr.ID, Monitor: mon.Name, Reason: "bind created workspace"})
			rebound = true
			if wr.Name != "" {
				evictNameSlot(snap, wr, plan)
				plan.add(Command{Verb: VerbRenameWorkspace, WorkspaceID: wr.ID, Name: wr.Name, Reason: "declared name"})
			}
			continue
		}

		if ws.Monitor != mon.Name {
			plan.add(Command{Verb: VerbBindWorkspace, WorkspaceID: wr.ID, Monitor: mon.Name, Reason: "workspace on wrong monitor"})
			rebound = true
		}
		if wr.Name != "" && ws.Name != wr.Name {
			evictNameSlot(snap, wr, plan)
			plan.add(Command{Verb: VerbRenameWorkspace, WorkspaceID: wr.ID, Name: wr.Name, Reason: "declared name"})
		}
	}

	// The default workspace is focused only when this pass actually moved
	// structure around, so steady-state passes never steal focus.
	if rebound {
		for _, wr := range rule.Workspaces {
			if wr.Default {
				plan.add(Command{Verb: VerbFocusWorkspace, WorkspaceID: wr.ID, Reason: "default workspace after rebind"})
				break
			}
		}
	}

	if rule.Exclusive {
		destroyExtras(snap, rules, mon, local, plan)
	}
}

// evictNameSlot frees a declared name carried by a different workspace. The
// occupant is renamed back to its numeric id, never destroyed. Special
// workspaces (ids < 1) and placeholders are left alone.
func evictNameSlot(snap mirror.Snapshot, wr policy.WorkspaceRule, plan *Plan) {
	for _, ws := range snap.Workspaces {
		if ws.ID == wr.ID || ws.Name != wr.Name || ws.ID < 1 || ws.Placeholder {
			continue
		}
		plan.add(Command{
			Verb:        VerbReorderWorkspace,
			WorkspaceID: ws.ID,
			Name:        strconv.Itoa(ws.ID),
			Reason:      "name slot declared for workspace " + strconv.Itoa(wr.ID),
		})
	}
}

// destroyExtras removes undeclared empty workspaces from an exclusive
// monitor. Workspaces declared anywhere in the generation are parked, not
// surplus: their own rule rebinds them when its monitor returns. Surplus
// workspaces holding windows or holding focus are left for a later pass,
// silently, since neither condition is a mirror gap.
func destroyExtras(snap mirror.Snapshot, rules policy.RuleSet, mon mirror.Monitor, local []mirror.Workspace, plan *Plan) {
	for _, ws := range local {
		if ws.ID < 1 || ws.Placeholder {
			continue
		}
		if _, _, declared := rules.DeclaredWorkspace(ws.ID); declared {
			continue
		}
		if ws.Windows > 0 || ws.ID == snap.FocusedWorkspace {
			continue
		}
		plan.add(Command{
			Verb:        VerbDestroyWorkspace,
			WorkspaceID: ws.ID,
			Monitor:     mon.Name,
			Reason:      "undeclared workspace on exclusive monitor",
		})
	}
}

func workspacesOn(snap mirror.Snapshot, monitor string) []mirror.Workspace {
	var out []mirror.Workspace
	for _, ws := range snap.Workspaces {
		if ws.Monitor == monitor {
			out = append(out, ws)
		}
	}
	return out
}
