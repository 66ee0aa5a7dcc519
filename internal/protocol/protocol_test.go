package protocol

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/vr_digitizer/internal/buttons"
	"github.com/relabs-tech/vr_digitizer/internal/pose"
	"github.com/relabs-tech/vr_digitizer/internal/roles"
	"github.com/relabs-tech/vr_digitizer/internal/tracking"
)

func TestHeader_ThreeRoles(t *testing.T) {
	f := NewFrame(pose.ModeVector, []roles.Role{roles.Controller0, roles.Tracker0, roles.HMD}, nil, 0)
	b, err := f.MarshalBinary()
	require.NoError(t, err)

	// 0xFF54 + 3 = 0xFF57, byte-swapped relative to the little-endian fields.
	assert.Equal(t, []byte{0xFF, 0x57}, b[:2])
	assert.Equal(t, uint16(0x57FF), binary.LittleEndian.Uint16(b[:2]))
}

func TestMarshal_EmptyFrame(t *testing.T) {
	b, err := NewFrame(pose.ModeQuaternion, nil, nil, buttons.UpTouched|buttons.UpPressed).MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x54, 0x18, 0x00, 0x00, 0x00}, b)
}

func TestMarshal_VectorLayout(t *testing.T) {
	tr := pose.NewTransformer(pose.ModeVector).Transform(tracking.Identity())
	var poses [roles.Count]*pose.Transformed
	poses[roles.Controller0] = &tr

	f := NewFrame(pose.ModeVector, []roles.Role{roles.Controller0, roles.Controller1}, &poses, buttons.GripPressed|buttons.RightPressed)
	b, err := f.MarshalBinary()
	require.NoError(t, err)

	require.Len(t, b, 2+2+2*(1+48)+2)
	assert.Equal(t, f.Size(), len(b))
	assert.Equal(t, []byte{0xFF, 0x56}, b[0:2])
	assert.Equal(t, []byte{0x02, 0x04}, b[2:4])

	assert.Equal(t, byte(0), b[4], "controller_0 wire id")
	first := b[5 : 5+48]
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(first[0:4])))
	assert.Equal(t, uint32(0x80000000), binary.LittleEndian.Uint32(first[4:8]), "negated zero survives encoding")

	assert.Equal(t, byte(1), b[53], "controller_1 wire id")
	assert.Equal(t, make([]byte, 48), b[54:102], "unbound role sends zeros")
	assert.Equal(t, []byte{0, 0}, b[102:])
}

func TestMarshal_QuaternionZeroPayloadWidth(t *testing.T) {
	f := NewFrame(pose.ModeQuaternion, []roles.Role{roles.HMD}, nil, 0)
	b, err := f.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, 2+2+1+28+2)
	assert.Equal(t, byte(4), b[4])
	assert.Equal(t, make([]byte, 28), b[5:33])
}

func TestMarshal_ModeMismatch(t *testing.T) {
	tr := pose.NewTransformer(pose.ModeQuaternion).Transform(tracking.Identity())
	var poses [roles.Count]*pose.Transformed
	poses[roles.HMD] = &tr

	_, err := NewFrame(pose.ModeVector, []roles.Role{roles.HMD}, &poses, 0).MarshalBinary()
	assert.Error(t, err)
}

func TestReadFrame_RoundTrip(t *testing.T) {
	m := tracking.Matrix34{{1, 0, 0, 0.25}, {0, 0, -1, 1.5}, {0, 1, 0, -2}}
	for _, mode := range []pose.Mode{pose.ModeVector, pose.ModeQuaternion} {
		t.Run(mode.String(), func(t *testing.T) {
			tr := pose.NewTransformer(mode).Transform(m)
			var poses [roles.Count]*pose.Transformed
			poses[roles.Tracker0] = &tr

			sent := NewFrame(mode, []roles.Role{roles.Controller0, roles.Tracker0}, &poses, buttons.MenuPressed)
			b, err := sent.MarshalBinary()
			require.NoError(t, err)

			got, err := ReadFrame(bytes.NewReader(b), mode)
			require.NoError(t, err)
			assert.Equal(t, buttons.MenuPressed, got.Buttons)
			require.Len(t, got.Entries, 2)
			assert.Equal(t, roles.Controller0, got.Entries[0].Role)
			assert.False(t, got.Entries[0].Valid)
			assert.Equal(t, roles.Tracker0, got.Entries[1].Role)
			assert.True(t, got.Entries[1].Valid)
			assert.InDeltaSlice(t, tr.Scalars(), got.Entries[1].Pose.Scalars(), 1e-6)
		})
	}
}

func TestReadFrame_Errors(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x10}), pose.ModeVector)
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = ReadFrame(bytes.NewReader([]byte{0xFF, 0x5A}), pose.ModeVector)
	assert.ErrorIs(t, err, ErrTooManyRoles)

	_, err = ReadFrame(bytes.NewReader([]byte{0xFF, 0x55, 0x00}), pose.ModeVector)
	assert.ErrorIs(t, err, ErrShortFrame)

	_, err = ReadFrame(bytes.NewReader([]byte{0xFF, 0x54, 0x00, 0x00, 0x01, 0x00}), pose.ModeVector)
	assert.ErrorIs(t, err, ErrBadTerminator)

	bad := append([]byte{0xFF, 0x55, 0x00, 0x00, 0x09}, make([]byte, 28+2)...)
	_, err = ReadFrame(bytes.NewReader(bad), pose.ModeQuaternion)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestDecodeFeedback(t *testing.T) {
	tests := []struct {
		in   byte
		want Feedback
	}{
		{0x00, Feedback{Audio: AudioNone}},
		{0b0000_0001, Feedback{Audio: AudioSuccess}},
		{0b0000_0010, Feedback{Audio: AudioWarning}},
		{0b0000_1011, Feedback{Audio: AudioError, Haptic: 128}},
		{0b0001_0011, Feedback{Audio: AudioError, Haptic: 256}},
		{0b0000_0100, Feedback{Audio: AudioNone}},
		{0xFF, Feedback{Audio: AudioError, Haptic: 31 << 7}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DecodeFeedback(tt.in), "byte %08b", tt.in)
	}
}

func TestEncodeFeedback_Inverse(t *testing.T) {
	for b := 0; b < 256; b++ {
		in := byte(b) &^ 0b100 // bit 2 is unused
		assert.Equal(t, in, EncodeFeedback(DecodeFeedback(in)))
	}
}
