package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/vr_digitizer/internal/clock"
)

func TestInitWithRetry_RetriesUntilSuccess(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	calls := 0
	want := NewMockRuntime(clk)

	rt, err := InitWithRetry(context.Background(), clk, time.Second, func() (Runtime, error) {
		calls++
		if calls < 4 {
			return nil, errors.New("runtime not running")
		}
		return want, nil
	})

	require.NoError(t, err)
	assert.Same(t, want, rt)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, clk.Sleeps())
}

func TestInitWithRetry_StopsOnCancel(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := InitWithRetry(ctx, clk, time.Second, func() (Runtime, error) {
		return nil, errors.New("nope")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMockRuntime_DefaultLayout(t *testing.T) {
	clk := clock.NewFake(time.Unix(100, 0))
	m := NewMockRuntime(clk)

	assert.Equal(t, ClassHMD, m.DeviceClass(0))
	assert.Equal(t, ClassTrackingReference, m.DeviceClass(1))
	assert.Equal(t, ClassController, m.DeviceClass(2))
	assert.Equal(t, ClassGenericTracker, m.DeviceClass(4))
	assert.Equal(t, ClassInvalid, m.DeviceClass(MaxDeviceCount))

	poses := m.Poses(UniverseStanding)
	require.Len(t, poses, MaxDeviceCount)
	assert.True(t, poses[0].Usable())
	assert.False(t, poses[1].Usable(), "base stations are not sampled")
	assert.True(t, poses[2].Usable())
	assert.False(t, poses[5].Usable())

	assert.True(t, m.ControllerState(2).Valid)
	assert.False(t, m.ControllerState(0).Valid)
}

func TestMockRuntime_OverridesAndPulses(t *testing.T) {
	m := NewMockRuntime(clock.NewFake(time.Unix(0, 0)))
	m.SetPose(2, RawPose{Valid: false})
	assert.False(t, m.Poses(UniverseStanding)[2].Valid)

	m.TriggerHapticPulse(2, 0, 128)
	assert.Equal(t, []HapticPulse{{Index: 2, Axis: 0, Duration: 128}}, m.Pulses())
}
