package pose

import (
	"math"

	"github.com/relabs-tech/vr_digitizer/internal/tracking"
)

// QuaternionFromRotation converts the 3x3 rotation block of m.
//
// The branch is chosen on the largest diagonal term so the square root never
// sees a small argument. No sign canonicalization is applied.
func QuaternionFromRotation(m tracking.Matrix34) Quaternion {
	r00, r01, r02 := m[0][0], m[0][1], m[0][2]
	r10, r11, r12 := m[1][0], m[1][1], m[1][2]
	r20, r21, r22 := m[2][0], m[2][1], m[2][2]

	var t float64
	var q [4]float64
	if r22 < 0 {
		if r00 > r11 {
			t = 1 + r00 - r11 - r22
			q = [4]float64{r21 - r12, t, r10 + r01, r02 + r20}
		} else {
			t = 1 - r00 + r11 - r22
			q = [4]float64{r02 - r20, r10 + r01, t, r21 + r12}
		}
	} else {
		if r00 < -r11 {
			t = 1 - r00 - r11 + r22
			q = [4]float64{r10 - r01, r02 + r20, r21 + r12, t}
		} else {
			t = 1 + r00 + r11 + r22
			q = [4]float64{t, r21 - r12, r02 - r20, r10 - r01}
		}
	}

	s := 0.5 / math.Sqrt(t)
	return Quaternion{W: q[0] * s, X: q[1] * s, Y: q[2] * s, Z: q[3] * s}
}
