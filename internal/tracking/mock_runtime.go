// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package tracking

import (
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/vr_digitizer/internal/clock"
)

// HapticPulse is one recorded TriggerHapticPulse call.
type HapticPulse struct {
	Index    int
	Axis     int
	Duration uint16
}

// MockRuntime is a synthetic runtime: an HMD in slot 0, a base station in
// slot 1, controllers in slots 2 and 3 and a tracker in slot 4, all moving
// smoothly with elapsed time.
type MockRuntime struct {
	clk   clock.Clock
	start time.Time

	mu        sync.Mutex
	classes   [MaxDeviceCount]DeviceClass
	overrides map[int]RawPose
	states    map[int]ControllerState
	pulses    []HapticPulse
}

// NewMockRuntime creates a mock runtime with the default device layout.
func NewMockRuntime(clk clock.Clock) *MockRuntime {
	m := &MockRuntime{
		clk:       clk,
		start:     clk.Now(),
		overrides: make(map[int]RawPose),
		states:    make(map[int]ControllerState),
	}
	m.classes[0] = ClassHMD
	m.classes[1] = ClassTrackingReference
	m.classes[2] = ClassController
	m.classes[3] = ClassController
	m.classes[4] = ClassGenericTracker
	return m
}

// SetClasses replaces the slot layout. Slots beyond len(classes) become invalid.
func (m *MockRuntime) SetClasses(classes ...DeviceClass) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes = [MaxDeviceCount]DeviceClass{}
	copy(m.classes[:], classes)
}

// SetPose pins slot index to a fixed pose instead of the synthetic motion.
func (m *MockRuntime) SetPose(index int, p RawPose) {
	m.mu.Lock()
	m.overrides[index] = p
	m.mu.Unlock()
}

// SetControllerState sets the state returned for slot index.
func (m *MockRuntime) SetControllerState(index int, s ControllerState) {
	m.mu.Lock()
	m.states[index] = s
	m.mu.Unlock()
}

// Pulses returns every haptic pulse triggered so far.
func (m *MockRuntime) Pulses() []HapticPulse {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HapticPulse, len(m.pulses))
	copy(out, m.pulses)
	return out
}

func (m *MockRuntime) DeviceClass(index int) DeviceClass {
	if index < 0 || index >= MaxDeviceCount {
		return ClassInvalid
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.classes[index]
}

func (m *MockRuntime) Poses(_ Universe) []RawPose {
	elapsed := m.clk.Now().Sub(m.start).Seconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]RawPose, MaxDeviceCount)
	for i, c := range m.classes {
		if p, ok := m.overrides[i]; ok {
			out[i] = p
			continue
		}
		switch c {
		case ClassHMD, ClassController, ClassGenericTracker:
			out[i] = RawPose{
				Valid:     true,
				Connected: true,
				Matrix:    swayMatrix(elapsed, float64(i)),
			}
		}
	}
	return out
}

func (m *MockRuntime) ControllerState(index int) ControllerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[index]; ok {
		return s
	}
	if index >= 0 && index < MaxDeviceCount && m.classes[index] == ClassController {
		return ControllerState{Valid: true}
	}
	return ControllerState{}
}

func (m *MockRuntime) TriggerHapticPulse(index int, axis int, durationMicros uint16) {
	m.mu.Lock()
	m.pulses = append(m.pulses, HapticPulse{Index: index, Axis: axis, Duration: durationMicros})
	m.mu.Unlock()
}

// swayMatrix rotates slowly about the vertical axis while bobbing, with a
// per-device phase so devices do not overlap.
func swayMatrix(elapsed, phase float64) Matrix34 {
	yaw := 0.5 * math.Sin(elapsed+phase)
	c, s := math.Cos(yaw), math.Sin(yaw)
	return Matrix34{
		{c, 0, s, 0.3 * math.Cos(elapsed*0.7+phase)},
		{0, 1, 0, 1.2 + 0.05*math.Sin(elapsed*2+phase)},
		{-s, 0, c, -0.4 + 0.1*phase},
	}
}
