// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pose converts tracking-runtime transforms into the consumer's
// coordinate convention.
package pose

import (
	"fmt"
	"strings"

	"github.com/relabs-tech/vr_digitizer/internal/tracking"
)

// Mode selects the output shape. It is fixed for the lifetime of a process.
type Mode int

const (
	// ModeVector sends the axis-permuted transform as 12 row-major scalars.
	ModeVector Mode = iota
	// ModeQuaternion sends translation followed by a w,x,y,z quaternion.
	ModeQuaternion
)

func (m Mode) String() string {
	switch m {
	case ModeVector:
		return "vector"
	case ModeQuaternion:
		return "quaternion"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Width is the number of scalars in one payload for this mode.
func (m Mode) Width() int {
	if m == ModeQuaternion {
		return 7
	}
	return 12
}

// ParseMode accepts "vector" or "quaternion".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vector", "matrix", "vector_transform":
		return ModeVector, nil
	case "quaternion", "quat", "translation_quaternion":
		return ModeQuaternion, nil
	default:
		return 0, fmt.Errorf("unknown output mode %q", s)
	}
}

// Quaternion is stored scalar first.
type Quaternion struct {
	W, X, Y, Z float64
}

// Transformed is one device pose in the consumer convention.
// Only the fields belonging to Mode are meaningful.
type Transformed struct {
	Mode        Mode
	Translation [3]float64
	Orientation Quaternion
	Matrix      [12]float64
}

// Scalars returns the payload values in wire order.
func (t Transformed) Scalars() []float64 {
	if t.Mode == ModeQuaternion {
		return []float64{
			t.Translation[0], t.Translation[1], t.Translation[2],
			t.Orientation.W, t.Orientation.X, t.Orientation.Y, t.Orientation.Z,
		}
	}
	out := make([]float64, 12)
	copy(out, t.Matrix[:])
	return out
}

// Transformer applies the conversion for one mode.
type Transformer struct {
	mode Mode
}

// NewTransformer binds a transformer to mode.
func NewTransformer(mode Mode) Transformer {
	return Transformer{mode: mode}
}

// Mode returns the bound mode.
func (t Transformer) Mode() Mode { return t.mode }

// Transform converts m. It has no failure path.
func (t Transformer) Transform(m tracking.Matrix34) Transformed {
	if t.mode == ModeQuaternion {
		return Transformed{
			Mode:        ModeQuaternion,
			Translation: Translation(m),
			Orientation: Orientation(m),
		}
	}
	return Transformed{Mode: ModeVector, Matrix: VectorTransform(m)}
}

// Translation extracts the translation column with its third component
// negated for handedness.
func Translation(m tracking.Matrix34) [3]float64 {
	return [3]float64{m[0][3], m[1][3], -m[2][3]}
}

// Orientation converts the rotation block to a quaternion and negates its
// X and Y components to match the translation handedness flip.
func Orientation(m tracking.Matrix34) Quaternion {
	q := QuaternionFromRotation(m)
	q.X, q.Y = -q.X, -q.Y
	return q
}

// VectorTransform swaps rows 1 and 2, swaps columns 1 and 2, negates the new
// row 1 and column 1, then flattens the top three rows.
func VectorTransform(m tracking.Matrix34) [12]float64 {
	var h [4][4]float64
	for r := 0; r < 3; r++ {
		h[r] = m[r]
	}
	h[3] = [4]float64{0, 0, 0, 1}

	h[1], h[2] = h[2], h[1]
	for r := range h {
		h[r][1], h[r][2] = h[r][2], h[r][1]
	}
	for c := range h[1] {
		h[1][c] = -h[1][c]
	}
	for r := range h {
		h[r][1] = -h[r][1]
	}

	var out [12]float64
	for r := 0; r < 3; r++ {
		copy(out[r*4:], h[r][:])
	}
	return out
}
