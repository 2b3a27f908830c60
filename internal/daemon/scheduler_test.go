package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gyromean/hywoma/internal/daemon/events"
)

func TestScheduler_SafetyTickRequestsPasses(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	reqCh, unsub := events.Subscribe[events.PassRequested](bus, 10)
	defer unsub()

	sched, err := NewScheduler(bus, nil, nil)
	require.NoError(t, err)

	require.NoError(t, sched.ScheduleSafetyTick(20*time.Millisecond))

	ctx := testContext(t)
	sched.Start(ctx)
	defer func() { require.NoError(t, sched.Stop(ctx)) }()

	select {
	case req := <-reqCh:
		require.Equal(t, events.TriggerSafetyTimer, req.Trigger)
		require.Equal(t, "safety interval elapsed", req.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for safety tick")
	}
}

func TestScheduler_DisabledSafetyTickSchedulesNothing(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	reqCh, unsub := events.Subscribe[events.PassRequested](bus, 10)
	defer unsub()

	sched, err := NewScheduler(bus, nil, nil)
	require.NoError(t, err)

	require.NoError(t, sched.ScheduleSafetyTick(0))

	ctx := testContext(t)
	sched.Start(ctx)
	defer func() { require.NoError(t, sched.Stop(ctx)) }()

	select {
	case <-reqCh:
		t.Fatal("expected no pass requests with the safety tick disabled")
	case <-time.After(150 * time.Millisecond):
		// ok
	}
}
