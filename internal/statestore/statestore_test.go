package statestore

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemory)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndReadPass(t *testing.T) {
	s := openTestStore(t)
	ctx := testContext(t)

	started := time.Now().Truncate(time.Millisecond)
	pass := PassRecord{
		PassID:     "pass-1",
		PlanID:     "plan-1",
		Trigger:    "event",
		Generation: 3,
		Revision:   17,
		Outcome:    "completed",
		Commands:   2,
		Completed:  2,
		Skips:      1,
		StartedAt:  started,
		Elapsed:    42 * time.Millisecond,
	}
	commands := []CommandRecord{
		{PassID: "pass-1", Seq: 0, Verb: "create_workspace", WorkspaceID: 2, Monitor: "DP-1", Outcome: "ok", Elapsed: 5 * time.Millisecond},
		{PassID: "pass-1", Seq: 1, Verb: "bind_workspace", WorkspaceID: 2, Monitor: "DP-1", Outcome: "ok", Elapsed: 7 * time.Millisecond},
	}

	if err := s.AppendPass(ctx, pass, commands); err != nil {
		t.Fatalf("failed to append pass: %v", err)
	}

	passes, err := s.RecentPasses(ctx, 10)
	if err != nil {
		t.Fatalf("failed to read passes: %v", err)
	}
	if len(passes) != 1 {
		t.Fatalf("expected 1 pass, got %d", len(passes))
	}
	got := passes[0]
	if got.PassID != "pass-1" || got.PlanID != "plan-1" || got.Trigger != "event" {
		t.Errorf("unexpected pass identity: %+v", got)
	}
	if got.Generation != 3 || got.Revision != 17 {
		t.Errorf("unexpected generation/revision: %+v", got)
	}
	if got.Outcome != "completed" || got.Commands != 2 || got.Completed != 2 || got.Skips != 1 {
		t.Errorf("unexpected pass counters: %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("expected started_at %v, got %v", started, got.StartedAt)
	}
	if got.Elapsed != 42*time.Millisecond {
		t.Errorf("expected elapsed 42ms, got %v", got.Elapsed)
	}

	cmds, err := s.PassCommands(ctx, "pass-1")
	if err != nil {
		t.Fatalf("failed to read commands: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
	if cmds[0].Verb != "create_workspace" || cmds[1].Verb != "bind_workspace" {
		t.Errorf("commands out of order: %+v", cmds)
	}
	if cmds[1].Elapsed != 7*time.Millisecond {
		t.Errorf("expected elapsed 7ms, got %v", cmds[1].Elapsed)
	}
}

func TestRecentPassesNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := testContext(t)

	for i, id := range []string{"pass-a", "pass-b", "pass-c"} {
		pass := PassRecord{
			PassID:    id,
			PlanID:    id,
			Trigger:   "safety_timer",
			Outcome:   "empty",
			StartedAt: time.Now(),
			Revision:  uint64(i),
		}
		if err := s.AppendPass(ctx, pass, nil); err != nil {
			t.Fatalf("failed to append pass %s: %v", id, err)
		}
	}

	passes, err := s.RecentPasses(ctx, 2)
	if err != nil {
		t.Fatalf("failed to read passes: %v", err)
	}
	if len(passes) != 2 {
		t.Fatalf("expected 2 passes, got %d", len(passes))
	}
	if passes[0].PassID != "pass-c" || passes[1].PassID != "pass-b" {
		t.Errorf("expected newest first, got %s then %s", passes[0].PassID, passes[1].PassID)
	}
}

func TestAppendPassRejectsDuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := testContext(t)

	pass := PassRecord{PassID: "pass-1", PlanID: "plan-1", Trigger: "event", Outcome: "empty", StartedAt: time.Now()}
	if err := s.AppendPass(ctx, pass, nil); err != nil {
		t.Fatalf("failed to append pass: %v", err)
	}
	if err := s.AppendPass(ctx, pass, nil); err == nil {
		t.Fatal("expected duplicate pass_id to fail")
	}
}

func TestMonitorIdentityUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := testContext(t)

	first := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	if err := s.UpsertMonitor(ctx, MonitorIdentity{Name: "DP-1", Description: "Dell Inc. U2720Q", Connected: true, LastSeen: first}); err != nil {
		t.Fatalf("failed to upsert monitor: %v", err)
	}
	if err := s.UpsertMonitor(ctx, MonitorIdentity{Name: "eDP-1", Description: "BOE 0x0BCA", Connected: true, LastSeen: first}); err != nil {
		t.Fatalf("failed to upsert monitor: %v", err)
	}

	// Disconnect refreshes the same row instead of adding one.
	later := time.Now().Truncate(time.Millisecond)
	if err := s.UpsertMonitor(ctx, MonitorIdentity{Name: "DP-1", Description: "Dell Inc. U2720Q", Connected: false, LastSeen: later}); err != nil {
		t.Fatalf("failed to upsert monitor: %v", err)
	}

	monitors, err := s.KnownMonitors(ctx)
	if err != nil {
		t.Fatalf("failed to read monitors: %v", err)
	}
	if len(monitors) != 2 {
		t.Fatalf("expected 2 monitors, got %d", len(monitors))
	}
	if monitors[0].Name != "DP-1" || monitors[1].Name != "eDP-1" {
		t.Errorf("expected sorted names, got %+v", monitors)
	}
	if monitors[0].Connected {
		t.Error("expected DP-1 to be recorded disconnected")
	}
	if !monitors[0].LastSeen.Equal(later) {
		t.Errorf("expected last_seen %v, got %v", later, monitors[0].LastSeen)
	}
}

func TestReopenKeepsJournalAndIdentities(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "hywoma.db")
	ctx := testContext(t)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	seen := time.Now().Truncate(time.Millisecond)
	if err := s.UpsertMonitor(ctx, MonitorIdentity{Name: "DP-1", Description: "Dell Inc. U2720Q", Connected: true, LastSeen: seen}); err != nil {
		t.Fatalf("failed to upsert monitor: %v", err)
	}
	pass := PassRecord{PassID: "pass-1", PlanID: "plan-1", Trigger: "event", Outcome: "completed", StartedAt: seen}
	if err := s.AppendPass(ctx, pass, nil); err != nil {
		t.Fatalf("failed to append pass: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	monitors, err := reopened.KnownMonitors(ctx)
	if err != nil {
		t.Fatalf("failed to read monitors: %v", err)
	}
	if len(monitors) != 1 || monitors[0].Description != "Dell Inc. U2720Q" {
		t.Errorf("expected DP-1 identity to survive reopen, got %+v", monitors)
	}

	passes, err := reopened.RecentPasses(ctx, 10)
	if err != nil {
		t.Fatalf("failed to read passes: %v", err)
	}
	if len(passes) != 1 || passes[0].PassID != "pass-1" {
		t.Errorf("expected journaled pass to survive reopen, got %+v", passes)
	}
}

func TestPruneKeepsNewestPasses(t *testing.T) {
	s := openTestStore(t)
	ctx := testContext(t)

	for _, id := range []string{"pass-1", "pass-2", "pass-3", "pass-4"} {
		pass := PassRecord{PassID: id, PlanID: id, Trigger: "event", Outcome: "completed", StartedAt: time.Now()}
		cmds := []CommandRecord{{PassID: id, Seq: 0, Verb: "focus_workspace", WorkspaceID: 1, Outcome: "ok"}}
		if err := s.AppendPass(ctx, pass, cmds); err != nil {
			t.Fatalf("failed to append pass %s: %v", id, err)
		}
	}

	removed, err := s.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 passes pruned, got %d", removed)
	}

	passes, err := s.RecentPasses(ctx, 10)
	if err != nil {
		t.Fatalf("failed to read passes: %v", err)
	}
	if len(passes) != 2 {
		t.Fatalf("expected 2 passes after prune, got %d", len(passes))
	}
	if passes[0].PassID != "pass-4" || passes[1].PassID != "pass-3" {
		t.Errorf("expected newest passes kept, got %+v", passes)
	}

	// Pruned passes lose their command rows too.
	cmds, err := s.PassCommands(ctx, "pass-1")
	if err != nil {
		t.Fatalf("failed to read commands: %v", err)
	}
	if len(cmds) != 0 {
		t.Errorf("expected pruned commands gone, got %+v", cmds)
	}
	kept, err := s.PassCommands(ctx, "pass-4")
	if err != nil {
		t.Fatalf("failed to read commands: %v", err)
	}
	if len(kept) != 1 {
		t.Errorf("expected kept pass to retain its command, got %+v", kept)
	}
}
