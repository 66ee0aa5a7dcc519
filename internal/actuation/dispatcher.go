// Package actuation turns decoded feedback into local effects: tones on the
// host speaker and haptic pulses on a controller.
package actuation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/relabs-tech/vr_digitizer/internal/log"
	"github.com/relabs-tech/vr_digitizer/internal/protocol"
	"github.com/relabs-tech/vr_digitizer/internal/roles"
)

// Dispatcher starts tone playback without waiting for it.
type Dispatcher struct {
	player Player
	lg     *slog.Logger

	once  sync.Once
	clips map[protocol.AudioCode][]byte
	wg    sync.WaitGroup
}

// NewDispatcher returns a dispatcher playing through p. A nil player
// disables audio.
func NewDispatcher(p Player) *Dispatcher {
	return &Dispatcher{player: p, lg: log.Component("actuation")}
}

func (d *Dispatcher) clip(code protocol.AudioCode) []byte {
	d.once.Do(func() {
		d.clips = make(map[protocol.AudioCode][]byte, 3)
		for _, c := range []protocol.AudioCode{protocol.AudioSuccess, protocol.AudioWarning, protocol.AudioError} {
			d.clips[c] = WAV(Samples(Sequence(c)))
		}
	})
	return d.clips[code]
}

// Dispatch plays the sound for code in a detached goroutine. AudioNone does
// nothing. The caller never learns the outcome; failures are logged.
func (d *Dispatcher) Dispatch(code protocol.AudioCode) {
	if d == nil || d.player == nil || code == protocol.AudioNone {
		return
	}
	wav := d.clip(code)
	if wav == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.player.Play(context.Background(), wav); err != nil {
			d.lg.Warn("audio playback failed", "code", code.String(), "error", err)
		}
	}()
}

// Wait blocks until every dispatched playback has finished. Only tests and
// shutdown use it.
func (d *Dispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

// HapticTarget accepts pulse commands; tracking.Runtime satisfies it.
type HapticTarget interface {
	TriggerHapticPulse(index int, axis int, durationMicros uint16)
}

// Pulse sends a haptic pulse of the given strength to the device bound to
// role. It reports whether a pulse was sent.
func Pulse(target HapticTarget, table roles.Table, role roles.Role, strength uint16) bool {
	if target == nil || strength == 0 {
		return false
	}
	slot, ok := table.Slot(role)
	if !ok {
		return false
	}
	target.TriggerHapticPulse(slot, 0, strength)
	return true
}
