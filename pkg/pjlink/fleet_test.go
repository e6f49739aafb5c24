package pjlink_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenVanZee/sony-projector-control/pkg/pjlink"
	"github.com/BenVanZee/sony-projector-control/pkg/pjlink/pjlinktest"
)

// startMockFleet starts one mock projector per nickname and returns the
// servers by nickname plus a registry pointing at them. The first two
// projectors are tagged "front", the rest "rear".
func startMockFleet(t *testing.T, nicknames ...string) (map[string]*pjlinktest.Server, *pjlink.Registry) {
	t.Helper()

	servers := make(map[string]*pjlinktest.Server, len(nicknames))
	descriptors := make([]pjlink.DeviceDescriptor, 0, len(nicknames))
	for i, nick := range nicknames {
		srv := pjlinktest.NewServer()
		_, err := srv.Start()
		require.NoError(t, err)
		t.Cleanup(func() { srv.Close() })
		servers[nick] = srv

		group := "front"
		if i >= 2 {
			group = "rear"
		}
		host, port := srv.HostPort()
		descriptors = append(descriptors, pjlink.DeviceDescriptor{
			Nickname: nick,
			Host:     host,
			Port:     port,
			Groups:   []string{group},
		})
	}

	registry, err := pjlink.NewRegistry(descriptors)
	require.NoError(t, err)
	return servers, registry
}

func newTestFleet(t *testing.T, registry *pjlink.Registry) *pjlink.Fleet {
	t.Helper()
	fleet, err := pjlink.NewFleet(registry,
		pjlink.WithConnectTimeout(time.Second),
		pjlink.WithReadTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)
	t.Cleanup(func() { fleet.Close() })
	return fleet
}

func TestFleet_PowerScenario(t *testing.T) {
	servers, registry := startMockFleet(t, "left")
	fleet := newTestFleet(t, registry)
	ctx := context.Background()

	report, err := fleet.Dispatch(ctx, pjlink.Power(pjlink.ActionQuery), pjlink.TargetNames("left"))
	require.NoError(t, err)
	res, ok := report.Result("left")
	require.True(t, ok)
	require.True(t, res.OK())
	assert.Equal(t, pjlink.PowerOff, res.Value)

	report, err = fleet.Dispatch(ctx, pjlink.Power(pjlink.ActionOn), pjlink.TargetNames("left"))
	require.NoError(t, err)
	assert.True(t, report.OK())

	report, err = fleet.Dispatch(ctx, pjlink.Power(pjlink.ActionQuery), pjlink.TargetNames("left"))
	require.NoError(t, err)
	res, _ = report.Result("left")
	assert.Equal(t, pjlink.PowerOn, res.Value)

	assert.Equal(t, pjlink.PowerOn, servers["left"].Snapshot().Power)
}

func TestFleet_PartialFailureIsolation(t *testing.T) {
	servers, registry := startMockFleet(t, "left", "right", "rear")
	fleet := newTestFleet(t, registry)

	// One projector refuses connections; the others must still be driven.
	require.NoError(t, servers["rear"].Close())

	report, err := fleet.Dispatch(context.Background(), pjlink.Power(pjlink.ActionOn), pjlink.TargetAll())
	require.NoError(t, err)

	assert.Equal(t, []string{"left", "rear", "right"}, report.Devices())
	assert.False(t, report.OK())

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "rear", failures[0].Device)
	assert.Equal(t, pjlink.FaultConnect, failures[0].Kind)

	for _, nick := range []string{"left", "right"} {
		res, ok := report.Result(nick)
		require.True(t, ok, nick)
		assert.True(t, res.OK(), nick)
		assert.Equal(t, pjlink.PowerOn, servers[nick].Snapshot().Power, nick)
	}
}

func TestFleet_MixedStateGroupToggle(t *testing.T) {
	servers, registry := startMockFleet(t, "left", "right")
	fleet := newTestFleet(t, registry)

	muted := pjlinktest.DefaultState()
	muted.Mute = pjlink.MuteMuted
	servers["left"].SetState(muted)
	// right stays UNMUTED.

	report, err := fleet.Dispatch(context.Background(), pjlink.Mute(pjlink.ActionToggle), pjlink.TargetGroup("front"))
	require.NoError(t, err)
	require.True(t, report.OK())

	// Toggle is relative to each projector's own prior state, so a mixed
	// group ends mixed the other way around.
	assert.Equal(t, pjlink.MuteUnmuted, servers["left"].Snapshot().Mute)
	assert.Equal(t, pjlink.MuteMuted, servers["right"].Snapshot().Mute)
}

func TestFleet_AllFailuresStillReturnsReport(t *testing.T) {
	servers, registry := startMockFleet(t, "left", "right")
	fleet := newTestFleet(t, registry)

	require.NoError(t, servers["left"].Close())
	require.NoError(t, servers["right"].Close())

	report, err := fleet.Dispatch(context.Background(), pjlink.Freeze(pjlink.ActionOn), pjlink.TargetAll())
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Len(t, report.Failures(), 2)
}

func TestFleet_ResolutionErrors(t *testing.T) {
	_, registry := startMockFleet(t, "left")
	fleet := newTestFleet(t, registry)
	ctx := context.Background()

	_, err := fleet.Dispatch(ctx, pjlink.Power(pjlink.ActionOn), pjlink.TargetNames("center"))
	assert.ErrorIs(t, err, pjlink.ErrUnknownDevice)

	_, err = fleet.Dispatch(ctx, pjlink.Power(pjlink.ActionOn), pjlink.TargetGroup("balcony"))
	assert.ErrorIs(t, err, pjlink.ErrUnknownGroup)

	_, err = fleet.Dispatch(ctx, pjlink.Power(pjlink.ActionOn), pjlink.Target{})
	assert.ErrorIs(t, err, pjlink.ErrEmptyTarget)
}

func TestFleet_InvalidCommandRejected(t *testing.T) {
	_, registry := startMockFleet(t, "left")
	fleet := newTestFleet(t, registry)

	_, err := fleet.Dispatch(context.Background(), pjlink.CommandRequest{
		Verb: pjlink.VerbError, Action: pjlink.ActionToggle,
	}, pjlink.TargetAll())
	assert.ErrorIs(t, err, pjlink.ErrInvalidCommand)
}

func TestFleet_ProtocolErrorReported(t *testing.T) {
	servers, registry := startMockFleet(t, "left", "right")
	fleet := newTestFleet(t, registry)

	servers["right"].SetFault(pjlinktest.FaultUnavailable)

	report, err := fleet.Dispatch(context.Background(), pjlink.Mute(pjlink.ActionOn), pjlink.TargetAll())
	require.NoError(t, err)

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "right", failures[0].Device)
	assert.Equal(t, pjlink.FaultProtocol, failures[0].Kind)

	res, _ := report.Result("left")
	assert.True(t, res.OK())
	assert.Equal(t, pjlink.MuteMuted, servers["left"].Snapshot().Mute)
}

func TestFleet_SessionsReusedPerDevice(t *testing.T) {
	servers, registry := startMockFleet(t, "left")
	fleet := newTestFleet(t, registry)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := fleet.Dispatch(ctx, pjlink.Power(pjlink.ActionQuery), pjlink.TargetAll())
		require.NoError(t, err)
	}
	// Three dispatches over one kept-alive session: three command lines.
	assert.Equal(t, 3, servers["left"].Commands())
}

func TestFleet_Status(t *testing.T) {
	servers, registry := startMockFleet(t, "left", "right", "rear")
	fleet := newTestFleet(t, registry)

	on := pjlinktest.DefaultState()
	on.Power = pjlink.PowerOn
	on.Mute = pjlink.MuteMuted
	on.LampHours = 4242
	servers["left"].SetState(on)
	require.NoError(t, servers["rear"].Close())

	statuses, err := fleet.Status(context.Background(), pjlink.TargetAll())
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	byDevice := make(map[string]pjlink.DeviceStatus)
	for _, st := range statuses {
		byDevice[st.Device] = st
	}

	left := byDevice["left"]
	assert.True(t, left.Online)
	assert.Equal(t, pjlink.PowerOn, left.Power)
	assert.Equal(t, pjlink.MuteMuted, left.Mute)
	assert.Equal(t, 4242, left.Lamp.Hours)

	right := byDevice["right"]
	assert.True(t, right.Online)
	assert.Equal(t, pjlink.PowerOff, right.Power)

	rear := byDevice["rear"]
	assert.False(t, rear.Online)
	assert.Error(t, rear.Err)
}
