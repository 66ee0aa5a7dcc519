package roles

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/vr_digitizer/internal/tracking"
)

type classList []tracking.DeviceClass

func (c classList) DeviceClass(i int) tracking.DeviceClass {
	if i < len(c) {
		return c[i]
	}
	return tracking.ClassInvalid
}

// countingSource records how often the table consults it.
type countingSource struct {
	classList
	calls int
}

func (c *countingSource) DeviceClass(i int) tracking.DeviceClass {
	c.calls++
	return c.classList.DeviceClass(i)
}

const (
	inv  = tracking.ClassInvalid
	hmd  = tracking.ClassHMD
	ctl  = tracking.ClassController
	trk  = tracking.ClassGenericTracker
	base = tracking.ClassTrackingReference
)

func TestRefresh_AssignsInSlotOrder(t *testing.T) {
	a := NewAssigner(time.Second)
	table, changed := a.Refresh(time.Unix(10, 0), classList{hmd, base, ctl, trk, inv, ctl, trk})

	require.True(t, changed)
	cases := []struct {
		role Role
		slot int
	}{
		{Controller0, 2},
		{Controller1, 5},
		{Tracker0, 3},
		{Tracker1, 6},
		{HMD, 0},
	}
	for _, tc := range cases {
		slot, ok := table.Slot(tc.role)
		assert.True(t, ok, tc.role.String())
		assert.Equal(t, tc.slot, slot, tc.role.String())
	}
	assert.Equal(t, []Role{Controller0, Controller1, Tracker0, Tracker1, HMD}, table.Expected())
}

func TestRefresh_AscendingWithinClass(t *testing.T) {
	sequences := []classList{
		{ctl, ctl, ctl},
		{trk, hmd, ctl, trk, ctl},
		{inv, inv, trk, base, trk, trk, hmd, hmd, ctl},
		{},
	}
	for _, seq := range sequences {
		table := Build(seq, NewAssigner(0).lg)

		var ctlSlots, trkSlots []int
		for r := Controller0; r <= Controller1; r++ {
			if s, ok := table.Slot(r); ok {
				ctlSlots = append(ctlSlots, s)
			}
		}
		for r := Tracker0; r <= Tracker1; r++ {
			if s, ok := table.Slot(r); ok {
				trkSlots = append(trkSlots, s)
			}
		}
		assert.IsIncreasing(t, ctlSlots)
		assert.IsIncreasing(t, trkSlots)

		hmds := 0
		for _, c := range seq {
			if c == hmd {
				hmds++
			}
		}
		if hmds > 0 {
			slot, ok := table.Slot(HMD)
			require.True(t, ok)
			assert.Equal(t, hmd, seq[slot])
			assert.True(t, table.HMDPresent)
		} else {
			assert.False(t, table.HMDPresent)
		}
	}
}

func TestRefresh_SecondHMDIgnored(t *testing.T) {
	table := Build(classList{inv, hmd, hmd}, NewAssigner(0).lg)
	slot, ok := table.Slot(HMD)
	require.True(t, ok)
	assert.Equal(t, 1, slot)
	assert.Equal(t, []Role{HMD}, table.Expected())
}

func TestRefresh_ExtraControllersHaveNoRole(t *testing.T) {
	table := Build(classList{ctl, ctl, ctl}, NewAssigner(0).lg)
	assert.Equal(t, 3, table.Controllers)
	assert.Equal(t, []Role{Controller0, Controller1}, table.Expected())
}

func TestRefresh_UnchangedBeforeInterval(t *testing.T) {
	a := NewAssigner(time.Second)
	start := time.Unix(10, 0)
	first, _ := a.Refresh(start, classList{ctl})

	src := &countingSource{classList: classList{hmd, trk, trk}}
	for _, dt := range []time.Duration{0, 10 * time.Millisecond, 999 * time.Millisecond, time.Second} {
		got, changed := a.Refresh(start.Add(dt), src)
		assert.False(t, changed)
		assert.Equal(t, first, got)
	}
	assert.Zero(t, src.calls, "source must not be consulted before the interval elapses")

	got, changed := a.Refresh(start.Add(1001*time.Millisecond), src)
	assert.True(t, changed)
	assert.True(t, got.HMDPresent)
	assert.Equal(t, tracking.MaxDeviceCount, src.calls)
}

func TestRefresh_SameLayoutReportsNoChange(t *testing.T) {
	a := NewAssigner(time.Second)
	start := time.Unix(10, 0)
	_, changed := a.Refresh(start, classList{ctl, hmd})
	require.True(t, changed)

	_, changed = a.Refresh(start.Add(2*time.Second), classList{ctl, hmd})
	assert.False(t, changed)
}

func TestRefresh_EmptyLayoutIsNotAChange(t *testing.T) {
	a := NewAssigner(time.Second)
	table, changed := a.Refresh(time.Unix(10, 0), classList{})
	assert.False(t, changed)
	assert.Empty(t, table.Expected())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Controller_1 ")
	require.NoError(t, err)
	assert.Equal(t, Controller1, r)
	assert.Equal(t, byte(1), r.WireID())
	assert.Equal(t, byte(4), HMD.WireID())

	_, err = ParseRole("controller_2")
	assert.Error(t, err)
}
