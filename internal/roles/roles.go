// Package roles binds physical device slots to stable logical roles.
package roles

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/relabs-tech/vr_digitizer/internal/log"
	"github.com/relabs-tech/vr_digitizer/internal/tracking"
)

// DefaultRefreshInterval is how long a role table stays valid.
const DefaultRefreshInterval = time.Second

// Role is a logical device slot. Its numeric value is the wire ID.
type Role uint8

const (
	Controller0 Role = iota
	Controller1
	Tracker0
	Tracker1
	HMD

	// Count is the number of roles that have a wire ID.
	Count
)

// MaxControllers and MaxTrackers are the per-class limits of the wire table.
const (
	MaxControllers = 2
	MaxTrackers    = 2
)

var roleNames = [Count]string{
	Controller0: "controller_0",
	Controller1: "controller_1",
	Tracker0:    "tracker_0",
	Tracker1:    "tracker_1",
	HMD:         "hmd",
}

func (r Role) String() string {
	if r < Count {
		return roleNames[r]
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// WireID is the byte identifying the role in a frame.
func (r Role) WireID() byte { return byte(r) }

// ParseRole parses a role name such as "controller_0" or "hmd".
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r := Role(0); r < Count; r++ {
		if roleNames[r] == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// Unbound marks a role with no device slot.
const Unbound = -1

// Table is one complete role assignment. Tables are comparable with ==.
type Table struct {
	slots [Count]int

	// Controllers and Trackers count every classified device, including
	// ones beyond the wire table.
	Controllers int
	Trackers    int
	HMDPresent  bool
}

// NewTable returns a table with every role unbound.
func NewTable() Table {
	var t Table
	for i := range t.slots {
		t.slots[i] = Unbound
	}
	return t
}

// Slot returns the physical slot bound to r.
func (t Table) Slot(r Role) (int, bool) {
	if r >= Count {
		return Unbound, false
	}
	s := t.slots[r]
	return s, s != Unbound
}

// Expected lists the roles that report this cycle: controllers ascending,
// then trackers ascending, then the HMD if present.
func (t Table) Expected() []Role {
	out := make([]Role, 0, Count)
	for i := 0; i < t.Controllers && i < MaxControllers; i++ {
		out = append(out, Controller0+Role(i))
	}
	for i := 0; i < t.Trackers && i < MaxTrackers; i++ {
		out = append(out, Tracker0+Role(i))
	}
	if t.HMDPresent {
		out = append(out, HMD)
	}
	return out
}

// Bindings returns role name to slot for every bound role.
func (t Table) Bindings() map[string]int {
	out := make(map[string]int, Count)
	for r := Role(0); r < Count; r++ {
		if s, ok := t.Slot(r); ok {
			out[r.String()] = s
		}
	}
	return out
}

// ClassSource reports the device class of a slot.
type ClassSource interface {
	DeviceClass(index int) tracking.DeviceClass
}

// Build scans every slot once in ascending order and assigns roles in
// first-seen order per class.
func Build(src ClassSource, lg *slog.Logger) Table {
	t := NewTable()
	for i := 0; i < tracking.MaxDeviceCount; i++ {
		switch c := src.DeviceClass(i); c {
		case tracking.ClassController:
			if t.Controllers < MaxControllers {
				t.slots[Controller0+Role(t.Controllers)] = i
			} else {
				lg.Warn("no wire id for extra controller", "slot", i, "controller", t.Controllers)
			}
			t.Controllers++
		case tracking.ClassGenericTracker:
			if t.Trackers < MaxTrackers {
				t.slots[Tracker0+Role(t.Trackers)] = i
			} else {
				lg.Warn("no wire id for extra tracker", "slot", i, "tracker", t.Trackers)
			}
			t.Trackers++
		case tracking.ClassHMD:
			if t.HMDPresent {
				lg.Info("ignoring additional head-mounted unit", "slot", i)
				continue
			}
			t.slots[HMD] = i
			t.HMDPresent = true
		case tracking.ClassInvalid, tracking.ClassTrackingReference:
		default:
			lg.Info("not using device due to unrecognized class", "slot", i, "class", c)
		}
	}
	return t
}

// Assigner owns the current role table and rebuilds it when it goes stale.
type Assigner struct {
	interval time.Duration
	lg       *slog.Logger

	built bool
	last  time.Time
	table Table
}

// NewAssigner creates an assigner; interval <= 0 uses DefaultRefreshInterval.
func NewAssigner(interval time.Duration) *Assigner {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Assigner{
		interval: interval,
		lg:       log.Component("roles"),
		table:    NewTable(),
	}
}

// Table returns the current table without refreshing.
func (a *Assigner) Table() Table { return a.table }

// Refresh rebuilds the table if more than the interval has passed since the
// last rebuild, reporting whether the bindings changed. Before that it
// returns the previous table without consulting src.
func (a *Assigner) Refresh(now time.Time, src ClassSource) (Table, bool) {
	if a.built && now.Sub(a.last) <= a.interval {
		return a.table, false
	}

	next := Build(src, a.lg)
	changed := next != a.table
	a.table = next
	a.last = now
	a.built = true

	if changed {
		a.lg.Info("updated device assignments",
			"bindings", next.Bindings(),
			"controllers", next.Controllers,
			"trackers", next.Trackers,
			"hmd", next.HMDPresent,
		)
	}
	return next, changed
}
