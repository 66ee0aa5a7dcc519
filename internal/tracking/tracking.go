// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package tracking describes the tracking runtime the digitizer samples:
// device classes by slot, batched poses, controller state, haptic pulses.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/relabs-tech/vr_digitizer/internal/clock"
	"github.com/relabs-tech/vr_digitizer/internal/log"
)

// MaxDeviceCount is the number of device slots the runtime exposes.
const MaxDeviceCount = 64

// DeviceClass is the runtime's classification of a device slot.
type DeviceClass int

const (
	ClassInvalid DeviceClass = iota
	ClassHMD
	ClassController
	ClassGenericTracker
	ClassTrackingReference
	ClassDisplayRedirect
)

func (c DeviceClass) String() string {
	switch c {
	case ClassInvalid:
		return "invalid"
	case ClassHMD:
		return "hmd"
	case ClassController:
		return "controller"
	case ClassGenericTracker:
		return "generic_tracker"
	case ClassTrackingReference:
		return "tracking_reference"
	case ClassDisplayRedirect:
		return "display_redirect"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Universe is the tracking reference frame poses are expressed in.
type Universe int

const (
	UniverseSeated Universe = iota
	UniverseStanding
	UniverseRawAndUncalibrated
)

// Matrix34 holds the top three rows of a row-major homogeneous 4x4
// device-to-world transform. The fourth row is always 0 0 0 1.
type Matrix34 [3][4]float64

// Identity returns the identity transform.
func Identity() Matrix34 {
	return Matrix34{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}
}

// RawPose is one device's sample for one cycle.
type RawPose struct {
	Valid     bool
	Connected bool
	Matrix    Matrix34
}

// Usable reports whether the pose may be transformed and sent.
func (p RawPose) Usable() bool {
	return p.Valid && p.Connected
}

// Button identifiers within ControllerState masks.
const (
	ButtonSystem          = 0
	ButtonApplicationMenu = 1
	ButtonGrip            = 2
	ButtonTouchpad        = 32
	ButtonTrigger         = 33
)

// ButtonMask returns the mask bit for a button id.
func ButtonMask(id uint) uint64 {
	return 1 << id
}

// Axis is one 2-axis analog input, each component in -1..1 (triggers 0..1).
type Axis struct {
	X float32
	Y float32
}

// ControllerState is the digital and analog control state of one device.
type ControllerState struct {
	Valid   bool
	Pressed uint64
	Touched uint64
	Axes    [5]Axis
}

// Runtime is the tracking runtime as seen by the digitizer.
type Runtime interface {
	DeviceClass(index int) DeviceClass
	// Poses fetches every slot's pose in one batched call.
	Poses(universe Universe) []RawPose
	ControllerState(index int) ControllerState
	TriggerHapticPulse(index int, axis int, durationMicros uint16)
}

// InitFunc brings the runtime up. It is called until it succeeds.
type InitFunc func() (Runtime, error)

// InitWithRetry calls init until it succeeds, sleeping delay between
// attempts. It only returns an error when ctx ends.
func InitWithRetry(ctx context.Context, clk clock.Clock, delay time.Duration, init InitFunc) (Runtime, error) {
	lg := log.Component("tracking")
	for attempt := 1; ; attempt++ {
		rt, err := init()
		if err == nil {
			if attempt > 1 {
				lg.Info("tracking runtime initialized", "attempts", attempt)
			}
			return rt, nil
		}
		lg.Warn("failed to init tracking runtime", "error", err, "attempt", attempt)
		if err := clk.Sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("tracking init: %w", err)
		}
		lg.Info("retrying tracking runtime init")
	}
}
