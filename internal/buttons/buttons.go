// Package buttons reduces a controller's control state to the 11-bit field
// carried in every frame.
package buttons

import (
	"strings"

	"github.com/relabs-tech/vr_digitizer/internal/tracking"
)

// State is the wire bitfield. Bits 11..15 are always zero.
type State uint16

const (
	TriggerTouched State = 1 << iota
	GripPressed
	MenuPressed
	UpTouched
	UpPressed
	DownTouched
	DownPressed
	LeftTouched
	LeftPressed
	RightTouched
	RightPressed
)

// Mask covers every defined bit.
const Mask State = 1<<11 - 1

var bitNames = []struct {
	bit  State
	name string
}{
	{TriggerTouched, "trigger_touched"},
	{GripPressed, "grip_pressed"},
	{MenuPressed, "menu_pressed"},
	{UpTouched, "up_touched"},
	{UpPressed, "up_pressed"},
	{DownTouched, "down_touched"},
	{DownPressed, "down_pressed"},
	{LeftTouched, "left_touched"},
	{LeftPressed, "left_pressed"},
	{RightTouched, "right_touched"},
	{RightPressed, "right_pressed"},
}

// Has reports whether every bit in b is set.
func (s State) Has(b State) bool { return s&b == b }

// Names lists the set bits, lowest first.
func (s State) Names() []string {
	var out []string
	for _, bn := range bitNames {
		if s.Has(bn.bit) {
			out = append(out, bn.name)
		}
	}
	return out
}

func (s State) String() string {
	if s == 0 {
		return "none"
	}
	return strings.Join(s.Names(), "|")
}

// Default thresholds on the -1..1 analog scale.
const (
	DefaultDirectionThreshold = 0.7
	DefaultTriggerThreshold   = 0.1
)

// Encoder holds the thresholds and axis assignments.
type Encoder struct {
	DirectionThreshold float32
	TriggerThreshold   float32
	TouchpadAxis       int
	TriggerAxis        int
}

// NewEncoder returns an encoder with the default touchpad (axis 0) and
// trigger (axis 1) layout.
func NewEncoder(direction, trigger float32) Encoder {
	return Encoder{
		DirectionThreshold: direction,
		TriggerThreshold:   trigger,
		TouchpadAxis:       0,
		TriggerAxis:        1,
	}
}

// Encode maps a control state to the bitfield. An invalid state encodes as 0.
func (e Encoder) Encode(cs tracking.ControllerState) State {
	if !cs.Valid {
		return 0
	}

	var s State
	pressed := func(id uint) bool { return cs.Pressed&tracking.ButtonMask(id) != 0 }
	touched := func(id uint) bool { return cs.Touched&tracking.ButtonMask(id) != 0 }

	if axisValid(e.TriggerAxis) && cs.Axes[e.TriggerAxis].X > e.TriggerThreshold {
		s |= TriggerTouched
	}
	if pressed(tracking.ButtonGrip) {
		s |= GripPressed
	}
	if pressed(tracking.ButtonApplicationMenu) {
		s |= MenuPressed
	}

	padPressed := pressed(tracking.ButtonTouchpad)
	if !axisValid(e.TouchpadAxis) || !(padPressed || touched(tracking.ButtonTouchpad)) {
		return s
	}

	ax := cs.Axes[e.TouchpadAxis]
	switch {
	case ax.Y > e.DirectionThreshold:
		s |= direction(UpTouched, UpPressed, padPressed)
	case ax.Y < -e.DirectionThreshold:
		s |= direction(DownTouched, DownPressed, padPressed)
	}
	switch {
	case ax.X > e.DirectionThreshold:
		s |= direction(RightTouched, RightPressed, padPressed)
	case ax.X < -e.DirectionThreshold:
		s |= direction(LeftTouched, LeftPressed, padPressed)
	}
	return s
}

func direction(touchedBit, pressedBit State, pressed bool) State {
	if pressed {
		return touchedBit | pressedBit
	}
	return touchedBit
}

func axisValid(i int) bool {
	return i >= 0 && i < len(tracking.ControllerState{}.Axes)
}
