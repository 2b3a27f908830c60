package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gyromean/hywoma/internal/daemon/events"
	"github.com/gyromean/hywoma/internal/policy"
)

const policyDocOneMonitor = `
monitors:
  - match: DP-1
    workspaces:
      - id: 1
      - id: 2
`

const policyDocTwoMonitors = `
monitors:
  - match: DP-1
    workspaces:
      - id: 1
      - id: 2
  - match: eDP-1
    workspaces:
      - id: 4
        name: chat
`

func writePolicyFile(t *testing.T, path, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
}

func newWatcherFixture(t *testing.T) (*PolicyWatcher, *events.Bus, *policy.Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "hywoma.yaml")
	writePolicyFile(t, path, policyDocOneMonitor)

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	policies := policy.NewStore()

	watcher, err := NewPolicyWatcher(PolicyWatcherConfig{
		Path:     path,
		Bus:      bus,
		Policies: policies,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		// testing.T.Context is already canceled by the time cleanups run;
		// hand Stop the same kind of context.
		stopCtx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = watcher.Stop(stopCtx)
	})

	return watcher, bus, policies, path
}

func TestPolicyWatcher_ReloadSwapsGenerationAndRequestsPass(t *testing.T) {
	watcher, bus, policies, path := newWatcherFixture(t)

	reloadedCh, unsubReloaded := events.Subscribe[events.PolicyReloaded](bus, 4)
	t.Cleanup(unsubReloaded)
	requestedCh, unsubRequested := events.Subscribe[events.PassRequested](bus, 4)
	t.Cleanup(unsubRequested)

	ctx := testContext(t)

	require.NoError(t, watcher.Reload(ctx))
	require.Equal(t, uint64(1), policies.Generation())

	writePolicyFile(t, path, policyDocTwoMonitors)
	require.NoError(t, watcher.Reload(ctx))
	require.Equal(t, uint64(2), policies.Generation())

	rules, ok := policies.Current()
	require.True(t, ok)
	require.Len(t, rules.Monitors, 2)

	var lastReloaded events.PolicyReloaded
	for i := 0; i < 2; i++ {
		select {
		case lastReloaded = <-reloadedCh:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for PolicyReloaded")
		}
	}
	require.Equal(t, uint64(2), lastReloaded.Generation)
	require.Equal(t, path, lastReloaded.Path)

	select {
	case req := <-requestedCh:
		require.Equal(t, events.TriggerPolicyReload, req.Trigger)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for PassRequested")
	}
}

func TestPolicyWatcher_FailedReloadKeepsActiveGeneration(t *testing.T) {
	watcher, bus, policies, path := newWatcherFixture(t)

	ctx := testContext(t)
	require.NoError(t, watcher.Reload(ctx))
	require.Equal(t, uint64(1), policies.Generation())

	reloadedCh, unsub := events.Subscribe[events.PolicyReloaded](bus, 4)
	t.Cleanup(unsub)

	// A document with no monitor rules parses but fails validation.
	writePolicyFile(t, path, "monitors: []\n")
	require.Error(t, watcher.Reload(ctx))
	require.Equal(t, uint64(1), policies.Generation())

	select {
	case <-reloadedCh:
		t.Fatal("expected no PolicyReloaded after a failed reload")
	case <-time.After(100 * time.Millisecond):
		// ok
	}
}

func TestPolicyWatcher_FileEditTriggersReload(t *testing.T) {
	watcher, _, policies, path := newWatcherFixture(t)

	ctx := testContext(t)
	require.NoError(t, watcher.Reload(ctx))
	require.NoError(t, watcher.Start(ctx))

	writePolicyFile(t, path, policyDocTwoMonitors)

	require.Eventually(t, func() bool {
		return policies.Generation() == 2
	}, 3*time.Second, 50*time.Millisecond, "edit never reloaded the policy")
}
