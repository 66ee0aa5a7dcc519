// Package protocol encodes the per-cycle pose frame and the one-byte
// feedback the consumer sends back.
//
// Frame layout:
//
//	header      2 bytes  Magic + role count, sent big-endian
//	buttons     2 bytes  little-endian bitfield
//	per role    1 byte   wire id
//	            4*W      little-endian float32 payload (W = 12 or 7)
//	terminator  2 bytes  zero
//
// The header is the only big-endian field. The consumer reads it as a
// byte-swapped little-endian word.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/relabs-tech/vr_digitizer/internal/buttons"
	"github.com/relabs-tech/vr_digitizer/internal/pose"
	"github.com/relabs-tech/vr_digitizer/internal/roles"
)

const (
	Magic         uint16 = 0xFF54
	HeaderLen            = 2
	ButtonsLen           = 2
	RoleIDLen            = 1
	TerminatorLen        = 2
	ScalarLen            = 4
)

var (
	ErrBadMagic      = errors.New("protocol: header below magic")
	ErrTooManyRoles  = errors.New("protocol: role count exceeds wire table")
	ErrUnknownRole   = errors.New("protocol: unknown role id")
	ErrBadTerminator = errors.New("protocol: non-zero terminator")
	ErrShortFrame    = errors.New("protocol: short frame")
)

// Entry is one role's slot in a frame. Valid is false when the role is
// unbound or its pose was unusable; such entries carry a zero payload.
type Entry struct {
	Role  roles.Role
	Valid bool
	Pose  pose.Transformed
}

// Frame is one outbound message.
type Frame struct {
	Mode    pose.Mode
	Buttons buttons.State
	Entries []Entry
}

// NewFrame lays out expected roles in order, taking each role's pose from
// poses when present.
func NewFrame(mode pose.Mode, expected []roles.Role, poses *[roles.Count]*pose.Transformed, b buttons.State) Frame {
	f := Frame{Mode: mode, Buttons: b, Entries: make([]Entry, 0, len(expected))}
	for _, r := range expected {
		e := Entry{Role: r, Pose: pose.Transformed{Mode: mode}}
		if poses != nil && r < roles.Count && poses[r] != nil {
			e.Pose = *poses[r]
			e.Valid = true
		}
		f.Entries = append(f.Entries, e)
	}
	return f
}

// Header returns the header word before byte order is applied.
func Header(roleCount int) uint16 {
	return Magic + uint16(roleCount)
}

// Size is the encoded length.
func (f Frame) Size() int {
	return HeaderLen + ButtonsLen + len(f.Entries)*(RoleIDLen+ScalarLen*f.Mode.Width()) + TerminatorLen
}

// MarshalBinary encodes the frame.
func (f Frame) MarshalBinary() ([]byte, error) {
	if len(f.Entries) > int(roles.Count) {
		return nil, ErrTooManyRoles
	}
	return f.AppendBinary(make([]byte, 0, f.Size()))
}

// AppendBinary appends the encoded frame to b.
func (f Frame) AppendBinary(b []byte) ([]byte, error) {
	if len(f.Entries) > int(roles.Count) {
		return nil, ErrTooManyRoles
	}
	b = binary.BigEndian.AppendUint16(b, Header(len(f.Entries)))
	b = binary.LittleEndian.AppendUint16(b, uint16(f.Buttons&buttons.Mask))

	width := f.Mode.Width()
	for _, e := range f.Entries {
		b = append(b, e.Role.WireID())
		if !e.Valid {
			b = append(b, make([]byte, ScalarLen*width)...)
			continue
		}
		scalars := e.Pose.Scalars()
		if len(scalars) != width {
			return nil, fmt.Errorf("protocol: %s payload for %s in %s frame", e.Pose.Mode, e.Role, f.Mode)
		}
		for _, v := range scalars {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(v)))
		}
	}
	return binary.LittleEndian.AppendUint16(b, 0), nil
}

// DecodeHeader returns the role count carried by a header.
func DecodeHeader(h [HeaderLen]byte) (int, error) {
	v := binary.BigEndian.Uint16(h[:])
	if v < Magic {
		return 0, fmt.Errorf("%w: 0x%04X", ErrBadMagic, v)
	}
	n := int(v - Magic)
	if n > int(roles.Count) {
		return 0, fmt.Errorf("%w: %d", ErrTooManyRoles, n)
	}
	return n, nil
}

// ReadFrame reads one frame encoded in mode from r.
func ReadFrame(r io.Reader, mode pose.Mode) (Frame, error) {
	var h [HeaderLen]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return Frame{}, shortRead(err)
	}
	n, err := DecodeHeader(h)
	if err != nil {
		return Frame{}, err
	}

	width := mode.Width()
	body := make([]byte, ButtonsLen+n*(RoleIDLen+ScalarLen*width)+TerminatorLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, shortRead(err)
	}

	f := Frame{
		Mode:    mode,
		Buttons: buttons.State(binary.LittleEndian.Uint16(body[0:2])),
		Entries: make([]Entry, 0, n),
	}
	off := ButtonsLen
	for i := 0; i < n; i++ {
		id := roles.Role(body[off])
		if id >= roles.Count {
			return Frame{}, fmt.Errorf("%w: %d", ErrUnknownRole, body[off])
		}
		off += RoleIDLen

		scalars := make([]float64, width)
		nonZero := false
		for j := range scalars {
			bits := binary.LittleEndian.Uint32(body[off : off+ScalarLen])
			nonZero = nonZero || bits != 0
			scalars[j] = float64(math.Float32frombits(bits))
			off += ScalarLen
		}
		f.Entries = append(f.Entries, Entry{Role: id, Valid: nonZero, Pose: fromScalars(mode, scalars)})
	}

	if binary.LittleEndian.Uint16(body[off:off+TerminatorLen]) != 0 {
		return Frame{}, ErrBadTerminator
	}
	return f, nil
}

func fromScalars(mode pose.Mode, s []float64) pose.Transformed {
	t := pose.Transformed{Mode: mode}
	if mode == pose.ModeQuaternion {
		copy(t.Translation[:], s[0:3])
		t.Orientation = pose.Quaternion{W: s[3], X: s[4], Y: s[5], Z: s[6]}
		return t
	}
	copy(t.Matrix[:], s)
	return t
}

func shortRead(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrShortFrame
	}
	return err
}
