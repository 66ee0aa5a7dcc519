// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relabs-tech/vr_digitizer/internal/actuation"
	"github.com/relabs-tech/vr_digitizer/internal/buttons"
	"github.com/relabs-tech/vr_digitizer/internal/clock"
	"github.com/relabs-tech/vr_digitizer/internal/link"
	"github.com/relabs-tech/vr_digitizer/internal/log"
	"github.com/relabs-tech/vr_digitizer/internal/mirror"
	"github.com/relabs-tech/vr_digitizer/internal/observability"
	"github.com/relabs-tech/vr_digitizer/internal/pose"
	"github.com/relabs-tech/vr_digitizer/internal/protocol"
	"github.com/relabs-tech/vr_digitizer/internal/roles"
	"github.com/relabs-tech/vr_digitizer/internal/tracking"
)

// CycleConfig holds the static settings of the sampling loop.
type CycleConfig struct {
	Mode        pose.Mode
	Interval    time.Duration
	RoleRefresh time.Duration
	ButtonRole  roles.Role
	HapticRole  roles.Role
	Encoder     buttons.Encoder
	Universe    tracking.Universe
}

// DefaultCycleConfig returns a 50 ms vector-mode loop reading buttons from
// and pulsing the first controller.
func DefaultCycleConfig() CycleConfig {
	return CycleConfig{
		Mode:        pose.ModeVector,
		Interval:    50 * time.Millisecond,
		RoleRefresh: roles.DefaultRefreshInterval,
		ButtonRole:  roles.Controller0,
		HapticRole:  roles.Controller0,
		Encoder:     buttons.NewEncoder(buttons.DefaultDirectionThreshold, buttons.DefaultTriggerThreshold),
		Universe:    tracking.UniverseStanding,
	}
}

// Result describes one completed cycle.
type Result struct {
	Cycle   uint64
	Table   roles.Table
	Buttons buttons.State
	// Frame is reused by the next Step.
	Frame   []byte

	Feedback    protocol.Feedback
	// HasFeedback is false when no byte arrived this cycle.
	HasFeedback bool
	SendErr     error
}

// Cycle owns all per-run state: role table, link, counters. One goroutine
// drives it.
type Cycle struct {
	cfg         CycleConfig
	rt          tracking.Runtime
	clk         clock.Clock
	link        *link.Manager
	audio       *actuation.Dispatcher
	mirror      *mirror.Mirror
	assigner    *roles.Assigner
	transformer pose.Transformer
	lg          *slog.Logger

	count         uint64
	buf           []byte
	buttonInvalid bool
	lastFeedback  *mirror.Feedback

	// OnCycle, when set, is called after every completed cycle.
	OnCycle func(Result)
}

// NewCycle wires the loop. audio and mirror may be nil.
func NewCycle(cfg CycleConfig, rt tracking.Runtime, clk clock.Clock, lm *link.Manager, audio *actuation.Dispatcher, mr *mirror.Mirror) *Cycle {
	return &Cycle{
		cfg:         cfg,
		rt:          rt,
		clk:         clk,
		link:        lm,
		audio:       audio,
		mirror:      mr,
		assigner:    roles.NewAssigner(cfg.RoleRefresh),
		transformer: pose.NewTransformer(cfg.Mode),
		lg:          log.Component("cycle"),
	}
}

// Run steps once per interval until ctx ends. Cancellation is not an error.
func (c *Cycle) Run(ctx context.Context) error {
	c.lg.Info("starting sampling loop",
		"interval", c.cfg.Interval,
		"mode", c.cfg.Mode.String(),
		"networking", c.link.Enabled(),
	)
	for {
		start := c.clk.Now()
		if _, err := c.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.clk.Sleep(ctx, c.cfg.Interval-c.clk.Now().Sub(start)); err != nil {
			return nil
		}
	}
}

// Step runs one cycle: reconnect if needed, refresh roles, sample, encode,
// send, read feedback and actuate.
func (c *Cycle) Step(ctx context.Context) (Result, error) {
	if err := c.link.Ensure(ctx); err != nil {
		return Result{}, err
	}
	began := time.Now()

	table, changed := c.assigner.Refresh(c.clk.Now(), c.rt)
	if changed {
		observability.RecordRoleChange()
	}
	expected := table.Expected()
	observability.SetExpectedRoles(len(expected))

	poses := c.samplePoses(table, expected)
	state := c.sampleButtons(table)

	frame := protocol.NewFrame(c.cfg.Mode, expected, &poses, state)
	data, err := frame.AppendBinary(c.buf[:0])
	if err != nil {
		return Result{}, fmt.Errorf("encode frame: %w", err)
	}
	c.buf = data

	c.count++
	res := Result{Cycle: c.count, Table: table, Buttons: state, Frame: data}

	if err := c.link.Send(data); err != nil && !errors.Is(err, link.ErrNotConnected) {
		res.SendErr = err
	}

	if b, ok := c.link.Receive(); ok {
		fb := protocol.DecodeFeedback(b)
		res.Feedback, res.HasFeedback = fb, true
		c.actuate(table, b, fb)
	}

	c.publish(res, frame, poses)
	observability.ObserveCycle(time.Since(began).Seconds())

	if c.OnCycle != nil {
		c.OnCycle(res)
	}
	return res, nil
}

func (c *Cycle) samplePoses(table roles.Table, expected []roles.Role) [roles.Count]*pose.Transformed {
	var out [roles.Count]*pose.Transformed
	if len(expected) == 0 {
		return out
	}
	raw := c.rt.Poses(c.cfg.Universe)
	for _, r := range expected {
		slot, ok := table.Slot(r)
		if !ok || slot >= len(raw) || !raw[slot].Usable() {
			continue
		}
		tr := c.transformer.Transform(raw[slot].Matrix)
		out[r] = &tr
	}
	return out
}

func (c *Cycle) sampleButtons(table roles.Table) buttons.State {
	slot, ok := table.Slot(c.cfg.ButtonRole)
	if !ok {
		return 0
	}
	cs := c.rt.ControllerState(slot)
	if !cs.Valid {
		if !c.buttonInvalid {
			c.lg.Warn("unable to get controller state", "role", c.cfg.ButtonRole.String(), "slot", slot)
		}
		c.buttonInvalid = true
		return 0
	}
	c.buttonInvalid = false
	return c.cfg.Encoder.Encode(cs)
}

func (c *Cycle) actuate(table roles.Table, raw byte, fb protocol.Feedback) {
	c.lg.Debug("feedback received", "raw", raw, "audio", fb.Audio.String(), "haptic", fb.Haptic)
	if fb.Audio == protocol.AudioNone && fb.Haptic == 0 {
		return
	}
	c.audio.Dispatch(fb.Audio)
	actuation.Pulse(c.rt, table, c.cfg.HapticRole, fb.Haptic)
	c.lastFeedback = &mirror.Feedback{
		Raw:    raw,
		Audio:  fb.Audio.String(),
		Haptic: fb.Haptic,
		At:     c.clk.Now(),
	}
}

func (c *Cycle) publish(res Result, frame protocol.Frame, poses [roles.Count]*pose.Transformed) {
	if c.mirror == nil {
		return
	}
	expected := make([]string, 0, len(frame.Entries))
	out := make([]mirror.Pose, 0, len(frame.Entries))
	for _, e := range frame.Entries {
		slot, _ := res.Table.Slot(e.Role)
		p := mirror.Pose{Role: e.Role.String(), Slot: slot, Mode: c.cfg.Mode.String()}
		if tr := poses[e.Role]; tr != nil {
			p.Valid = true
			p.Values = tr.Scalars()
		}
		expected = append(expected, e.Role.String())
		out = append(out, p)
	}

	c.mirror.Publish(mirror.Status{
		Time:        c.clk.Now(),
		Cycle:       res.Cycle,
		Link:        c.link.State().String(),
		Session:     c.link.Session(),
		Mode:        c.cfg.Mode.String(),
		Roles:       res.Table.Bindings(),
		Expected:    expected,
		Controllers: res.Table.Controllers,
		Trackers:    res.Table.Trackers,
		HMD:         res.Table.HMDPresent,
		Buttons:     uint16(res.Buttons),
		ButtonNames: res.Buttons.Names(),
		Feedback:    c.lastFeedback,
	}, out)
}
