package protocol

import "fmt"

// AudioCode selects the local sound for a feedback byte.
type AudioCode uint8

const (
	AudioNone AudioCode = iota
	AudioSuccess
	AudioWarning
	AudioError
)

func (a AudioCode) String() string {
	switch a {
	case AudioNone:
		return "none"
	case AudioSuccess:
		return "success"
	case AudioWarning:
		return "warning"
	case AudioError:
		return "error"
	default:
		return fmt.Sprintf("audio(%d)", uint8(a))
	}
}

const (
	audioMask   = 0b0000_0011
	hapticShift = 3
	// HapticScale converts the 5-bit strength code to pulse microseconds.
	HapticScale = 7
)

// Feedback is one decoded inbound byte.
type Feedback struct {
	Audio AudioCode
	// Haptic is the pulse strength already scaled, 0..3968.
	Haptic uint16
}

// DecodeFeedback splits b into audio (bits 0-1) and haptic (bits 3-7).
func DecodeFeedback(b byte) Feedback {
	return Feedback{
		Audio:  AudioCode(b & audioMask),
		Haptic: uint16(b>>hapticShift) << HapticScale,
	}
}

// EncodeFeedback is the consumer-side inverse of DecodeFeedback. Haptic is
// truncated to the 5-bit code.
func EncodeFeedback(f Feedback) byte {
	code := byte(f.Haptic>>HapticScale) & 0x1F
	return byte(f.Audio)&audioMask | code<<hapticShift
}
