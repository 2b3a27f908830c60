package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
	"github.com/gyromean/hywoma/internal/reconcile"
)

// fakeController records dispatched args and fails the ones listed in fail.
type fakeController struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeController) Dispatch(_ context.Context, args string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	if err, ok := f.fail[args]; ok {
		return err
	}
	return nil
}

func (f *fakeController) dispatched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func planOf(commands ...reconcile.Command) reconcile.Plan {
	return reconcile.Plan{ID: "test-plan", Commands: commands}
}

func TestSubmitIssuesCommandsInOrder(t *testing.T) {
	ctl := &fakeController{}
	d := New(ctl, time.Second, nil)

	plan := planOf(
		reconcile.Command{Verb: reconcile.VerbCreateWorkspace, WorkspaceID: 2, Monitor: "DP-1"},
		reconcile.Command{Verb: reconcile.VerbBindWorkspace, WorkspaceID: 2, Monitor: "DP-1"},
		reconcile.Command{Verb: reconcile.VerbRenameWorkspace, WorkspaceID: 1, Name: "web"},
		reconcile.Command{Verb: reconcile.VerbFocusWorkspace, WorkspaceID: 1},
	)

	res := d.Submit(testContext(t), plan)

	require.Equal(t, []string{
		"workspace 2",
		"workspace previous",
		"moveworkspacetomonitor 2 DP-1",
		"renameworkspace 1 web",
		"workspace 1",
	}, ctl.dispatched())

	require.False(t, res.Aborted)
	require.NoError(t, res.Err)
	require.Equal(t, 4, res.Completed())
	require.Zero(t, res.Dropped())
	for _, cr := range res.Commands {
		require.Equal(t, OutcomeOK, cr.Outcome)
	}
}

func TestSubmitVerbMapping(t *testing.T) {
	cases := []struct {
		name string
		cmd  reconcile.Command
		want []string
	}{
		{
			name: "destroy is a visit and return pair",
			cmd:  reconcile.Command{Verb: reconcile.VerbDestroyWorkspace, WorkspaceID: 5, Monitor: "DP-1"},
			want: []string{"workspace 5", "workspace previous"},
		},
		{
			name: "reorder renames the occupant back to its id",
			cmd:  reconcile.Command{Verb: reconcile.VerbReorderWorkspace, WorkspaceID: 7, Name: "7"},
			want: []string{"renameworkspace 7 7"},
		},
		{
			name: "move window is silent",
			cmd:  reconcile.Command{Verb: reconcile.VerbMoveWindow, WorkspaceID: 3, Window: "0x1a2b"},
			want: []string{"movetoworkspacesilent 3,address:0x1a2b"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctl := &fakeController{}
			d := New(ctl, time.Second, nil)

			res := d.Submit(testContext(t), planOf(tc.cmd))

			require.Equal(t, tc.want, ctl.dispatched())
			require.False(t, res.Aborted)
		})
	}
}

func TestSubmitAbortsOnRejection(t *testing.T) {
	reject := ferrors.CommandRejected("compositor refused dispatch").
		WithContext("reply", "Invalid dispatcher").
		Build()
	ctl := &fakeController{fail: map[string]error{
		"moveworkspacetomonitor 2 DP-1": reject,
	}}
	d := New(ctl, time.Second, nil)

	plan := planOf(
		reconcile.Command{Verb: reconcile.VerbCreateWorkspace, WorkspaceID: 2, Monitor: "DP-1"},
		reconcile.Command{Verb: reconcile.VerbBindWorkspace, WorkspaceID: 2, Monitor: "DP-1"},
		reconcile.Command{Verb: reconcile.VerbRenameWorkspace, WorkspaceID: 2, Name: "code"},
	)

	res := d.Submit(testContext(t), plan)

	// The rename after the rejected bind never reaches the socket.
	require.Equal(t, []string{
		"workspace 2",
		"workspace previous",
		"moveworkspacetomonitor 2 DP-1",
	}, ctl.dispatched())

	require.True(t, res.Aborted)
	require.ErrorIs(t, res.Err, reject)
	require.Len(t, res.Commands, 3)
	require.Equal(t, OutcomeOK, res.Commands[0].Outcome)
	require.Equal(t, OutcomeRejected, res.Commands[1].Outcome)
	require.Equal(t, OutcomeDropped, res.Commands[2].Outcome)
	require.Equal(t, 1, res.Completed())
	require.Equal(t, 1, res.Dropped())
}

func TestSubmitTransportFailureIsNotRejection(t *testing.T) {
	down := ferrors.TransportError("control socket write failed").Build()
	ctl := &fakeController{fail: map[string]error{
		"workspace previous": down,
	}}
	d := New(ctl, time.Second, nil)

	res := d.Submit(testContext(t), planOf(
		reconcile.Command{Verb: reconcile.VerbCreateWorkspace, WorkspaceID: 2, Monitor: "DP-1"},
	))

	require.True(t, res.Aborted)
	require.Equal(t, OutcomeFailed, res.Commands[0].Outcome)
}

// stallController blocks every dispatch until its context expires.
type stallController struct{}

func (stallController) Dispatch(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSubmitCommandTimeoutBoundsTheWait(t *testing.T) {
	d := New(stallController{}, 30*time.Millisecond, nil)

	start := time.Now()
	res := d.Submit(testContext(t), planOf(
		reconcile.Command{Verb: reconcile.VerbFocusWorkspace, WorkspaceID: 1},
	))

	require.Less(t, time.Since(start), 2*time.Second)
	require.True(t, res.Aborted)
	require.Equal(t, OutcomeFailed, res.Commands[0].Outcome)
}

func TestSubmitEmptyPlan(t *testing.T) {
	ctl := &fakeController{}
	d := New(ctl, time.Second, nil)

	res := d.Submit(testContext(t), planOf())

	require.Empty(t, ctl.dispatched())
	require.False(t, res.Aborted)
	require.NoError(t, res.Err)
	require.Empty(t, res.Commands)
}
