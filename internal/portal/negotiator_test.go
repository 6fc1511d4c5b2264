package portal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/eiscreen/internal/event"
)

const testRetry = 100 * time.Millisecond

func startNegotiator(t *testing.T, b *fakeBroker, variant Variant) (*Negotiator, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	n := NewNegotiator(b, sink, Options{
		Variant:     variant,
		RetryDelay:  testRetry,
		FallbackEnv: "EISCREEN_TEST_EIS_SOCKET",
	})
	n.Start(context.Background())
	t.Cleanup(func() { _ = n.Close() })
	return n, sink
}

func TestBarriersForZones(t *testing.T) {
	barriers := BarriersForZones([]Zone{{X: 0, Y: 0, Width: 1920, Height: 1080}})

	assert.Equal(t, []Barrier{
		{ID: 1, X1: 0, Y1: 0, X2: 1920, Y2: 0},
		{ID: 2, X1: 1920, Y1: 0, X2: 1920, Y2: 1080},
		{ID: 3, X1: 0, Y1: 0, X2: 0, Y2: 1080},
		{ID: 4, X1: 0, Y1: 1080, X2: 1920, Y2: 1080},
	}, barriers)
}

func TestBarriersForZonesAreAxisAlignedEdges(t *testing.T) {
	zones := []Zone{
		{X: 0, Y: 0, Width: 1920, Height: 1080},
		{X: 1920, Y: -120, Width: 2560, Height: 1440},
		{X: -800, Y: 200, Width: 800, Height: 600},
	}
	barriers := BarriersForZones(zones)
	require.Len(t, barriers, 4*len(zones))

	for i, b := range barriers {
		z := zones[i/4]
		x2, y2 := z.X+int32(z.Width), z.Y+int32(z.Height)

		assert.True(t, b.X1 == b.X2 || b.Y1 == b.Y2, "barrier %d not axis aligned", b.ID)
		assert.Equal(t, uint32(i+1), b.ID)
		onVertical := b.X1 == b.X2 && (b.X1 == z.X || b.X1 == x2) && b.Y1 == z.Y && b.Y2 == y2
		onHorizontal := b.Y1 == b.Y2 && (b.Y1 == z.Y || b.Y1 == y2) && b.X1 == z.X && b.X2 == x2
		assert.True(t, onVertical || onHorizontal, "barrier %+v not on an edge of %+v", b, z)
	}
	assert.Empty(t, BarriersForZones(nil))
}

func TestDropBarriers(t *testing.T) {
	all := BarriersForZones([]Zone{{Width: 10, Height: 10}})

	kept, dropped := dropBarriers(all, []uint32{2, 3, 99})
	require.Len(t, kept, 2)
	assert.Equal(t, []uint32{1, 4}, []uint32{kept[0].ID, kept[1].ID})
	assert.Len(t, dropped, 2)
	assert.Len(t, all, 4, "input slice untouched")

	kept, dropped = dropBarriers(all, nil)
	assert.Equal(t, all, kept)
	assert.Empty(t, dropped)
}

func TestInputCaptureSingleZoneEnables(t *testing.T) {
	b := newFakeBroker()
	b.zones = []Zone{{X: 0, Y: 0, Width: 1920, Height: 1080}}

	n, sink := startNegotiator(t, b, InputCapture)
	waitState(t, n, Enabled)

	require.Len(t, b.Submitted(), 1)
	assert.Equal(t, BarriersForZones(b.zones), b.Submitted()[0])
	assert.Len(t, b.Submitted()[0], 4)

	assert.Equal(t, []string{
		"CreateSession", "ConnectToEIS", "Subscribe", "GetZones", "SetPointerBarriers", "Enable",
	}, b.Calls())

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event.ConnectedToTransport, events[0].Type)
	assert.Equal(t, 42, events[0].Data)
}

func TestRejectedBarriersStillEnable(t *testing.T) {
	b := newFakeBroker()
	b.zones = []Zone{{Width: 1920, Height: 1080}}
	b.failed = []uint32{1, 2, 3, 4}

	n, sink := startNegotiator(t, b, InputCapture)
	waitState(t, n, Enabled)

	assert.Equal(t, 1, b.Count("Enable"))
	assert.Zero(t, sink.Count(event.Quit))
}

func TestDisabledRetriesEnableOnce(t *testing.T) {
	b := newFakeBroker()
	b.zones = []Zone{{Width: 1920, Height: 1080}}

	n, _ := startNegotiator(t, b, InputCapture)
	waitState(t, n, Enabled)
	require.Equal(t, 1, b.Count("Enable"))

	b.send(SessionDisabled{})
	b.send(SessionDisabled{})
	b.send(SessionDisabled{})
	waitState(t, n, Disabled)
	assert.Equal(t, 1, b.Count("Enable"), "no enable before the retry delay")

	waitState(t, n, Enabled)
	time.Sleep(4 * testRetry)
	assert.Equal(t, 2, b.Count("Enable"))
}

func TestActivatedOnlyEnablesWhenDisabled(t *testing.T) {
	b := newFakeBroker()
	b.zones = []Zone{{Width: 100, Height: 100}}

	n, _ := startNegotiator(t, b, InputCapture)
	waitState(t, n, Enabled)

	b.send(SessionActivated{ActivationID: 3, X: 10, Y: 0})
	b.send(SessionDeactivated{ActivationID: 3})
	b.send(SessionDisabled{})
	waitState(t, n, Disabled)
	b.send(SessionActivated{ActivationID: 4})
	waitState(t, n, Enabled)

	time.Sleep(4 * testRetry)
	assert.Equal(t, 2, b.Count("Enable"), "pending retry is a no-op once enabled")
}

func TestZonesChangedRebuildsBarriers(t *testing.T) {
	b := newFakeBroker()
	b.zones = []Zone{{Width: 1920, Height: 1080}}

	n, _ := startNegotiator(t, b, InputCapture)
	waitState(t, n, Enabled)

	gate := make(chan struct{})
	b.mu.Lock()
	b.zoneSet = 2
	b.zones = []Zone{{Width: 1920, Height: 1080}, {X: 1920, Width: 1280, Height: 1024}}
	b.barrierGate = gate
	b.mu.Unlock()
	b.send(ZonesChanged{})

	require.Eventually(t, func() bool { return len(b.Submitted()) == 2 }, waitFor, time.Millisecond)
	assert.Len(t, b.Submitted()[1], 8)
	waitState(t, n, AwaitingActivation)

	close(gate)
	waitState(t, n, Enabled)
	assert.Equal(t, 1, b.Count("Enable"), "capture stays on across a zone change")
}

func TestSessionClosedQuitsOnce(t *testing.T) {
	b := newFakeBroker()
	b.zones = []Zone{{Width: 100, Height: 100}}

	n, sink := startNegotiator(t, b, InputCapture)
	waitState(t, n, Enabled)

	b.send(SessionClosedSignal{})
	b.send(SessionClosedSignal{})
	waitState(t, n, Closed)

	require.Eventually(t, func() bool { return sink.Count(event.Quit) == 1 }, waitFor, time.Millisecond)
	time.Sleep(2 * testRetry)
	assert.Equal(t, 1, sink.Count(event.Quit))
	assert.Equal(t, 1, b.Count("Unsubscribe"))

	require.NoError(t, n.Close())
	assert.Equal(t, 1, b.Count("Unsubscribe"), "close does not unsubscribe twice")
}

func TestCreateSessionFailureQuits(t *testing.T) {
	b := newFakeBroker()
	b.createErr = errors.New("denied")

	n, sink := startNegotiator(t, b, InputCapture)
	waitState(t, n, Closed)

	require.Eventually(t, func() bool { return sink.Count(event.Quit) == 1 }, waitFor, time.Millisecond)
	assert.Zero(t, sink.Count(event.ConnectedToTransport))
	assert.Equal(t, []string{"CreateSession"}, b.Calls())
}

func TestConnectFailureWithoutFallbackQuits(t *testing.T) {
	t.Setenv("EISCREEN_TEST_EIS_SOCKET", "")
	b := newFakeBroker()
	b.connectErr = errors.New("not supported")

	n, sink := startNegotiator(t, b, InputCapture)
	waitState(t, n, Closed)

	require.Eventually(t, func() bool { return sink.Count(event.Quit) == 1 }, waitFor, time.Millisecond)
	assert.Zero(t, sink.Count(event.ConnectedToTransport))
	assert.NotContains(t, b.Calls(), "Subscribe")
}

func TestConnectFailureUsesFallback(t *testing.T) {
	b := newFakeBroker()
	b.connectErr = errors.New("not supported")
	b.zones = []Zone{{Width: 100, Height: 100}}

	sink := &recordingSink{}
	n := NewNegotiator(b, sink, Options{Variant: InputCapture, RetryDelay: testRetry})
	n.connect = func(env string) (int, error) {
		assert.Equal(t, DefaultFallbackEnv, env)
		return 7, nil
	}
	n.Start(context.Background())
	t.Cleanup(func() { _ = n.Close() })

	waitState(t, n, Enabled)
	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event.ConnectedToTransport, events[0].Type)
	assert.Equal(t, 7, events[0].Data)
}

func TestRemoteDesktopFlow(t *testing.T) {
	b := newFakeBroker()

	n, sink := startNegotiator(t, b, RemoteDesktop)
	waitState(t, n, Enabled)

	assert.Equal(t, []string{"CreateSession", "Start", "ConnectToEIS", "Subscribe"}, b.Calls())
	assert.Equal(t, 1, sink.Count(event.ConnectedToTransport))

	b.send(SessionDisabled{})
	b.send(ZonesChanged{})
	time.Sleep(2 * testRetry)
	assert.Equal(t, Enabled, n.State())
	assert.NotContains(t, b.Calls(), "Enable")
	assert.NotContains(t, b.Calls(), "GetZones")
}

func TestRemoteDesktopStartFailureQuits(t *testing.T) {
	b := newFakeBroker()
	b.startErr = errors.New("cancelled")

	n, sink := startNegotiator(t, b, RemoteDesktop)
	waitState(t, n, Closed)

	require.Eventually(t, func() bool { return sink.Count(event.Quit) == 1 }, waitFor, time.Millisecond)
	assert.Zero(t, sink.Count(event.ConnectedToTransport))
	assert.NotContains(t, b.Calls(), "ConnectToEIS")
}

func TestBrokerChannelClosedQuits(t *testing.T) {
	b := newFakeBroker()
	b.silent = true
	close(b.msgs)

	n, sink := startNegotiator(t, b, InputCapture)
	waitState(t, n, Closed)
	require.Eventually(t, func() bool { return sink.Count(event.Quit) == 1 }, waitFor, time.Millisecond)
}

func TestCloseReleasesInOrder(t *testing.T) {
	b := newFakeBroker()
	b.zones = []Zone{{Width: 100, Height: 100}}

	n, _ := startNegotiator(t, b, InputCapture)
	waitState(t, n, Enabled)
	require.NoError(t, n.Close())
	require.NoError(t, n.Close())

	calls := b.Calls()
	require.GreaterOrEqual(t, len(calls), 4)
	assert.Equal(t, []string{"Unsubscribe", "CloseSession", "ReleaseBarriers", "Close"}, calls[len(calls)-4:])
	assert.Equal(t, 1, b.Count("Close"))
	assert.Equal(t, Closed, n.State())
}

func TestCloseWhileWaitingForBroker(t *testing.T) {
	b := newFakeBroker()
	b.silent = true

	sink := &recordingSink{}
	n := NewNegotiator(b, sink, Options{Variant: InputCapture})
	n.Start(context.Background())
	waitState(t, n, SessionRequested)

	done := make(chan error, 1)
	go func() { done <- n.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Close did not join the negotiator")
	}
	assert.Zero(t, sink.Count(event.Quit))
	assert.NotContains(t, b.Calls(), "Unsubscribe")
}

func TestStateAndVariantNames(t *testing.T) {
	assert.Equal(t, "awaiting-activation", AwaitingActivation.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.Equal(t, "input-capture", InputCapture.String())

	v, err := ParseVariant("input-capture")
	require.NoError(t, err)
	assert.Equal(t, InputCapture, v)
	v, err = ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, RemoteDesktop, v)
	_, err = ParseVariant("vnc")
	assert.Error(t, err)
}
