package actuation

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/relabs-tech/vr_digitizer/internal/protocol"
)

// SampleRate of synthesized tones, mono 16-bit PCM.
const SampleRate = 22050

const amplitude = 0.4

// Segment is one step of a tone sequence. Frequency 0 is silence.
type Segment struct {
	Frequency float64
	Duration  time.Duration
}

// Sequence returns the tone steps for an audio code, nil for AudioNone.
func Sequence(code protocol.AudioCode) []Segment {
	switch code {
	case protocol.AudioSuccess:
		return []Segment{{784, 100 * time.Millisecond}}
	case protocol.AudioWarning:
		return []Segment{{440, 200 * time.Millisecond}}
	case protocol.AudioError:
		return []Segment{
			{880, 120 * time.Millisecond},
			{0, 100 * time.Millisecond},
			{440, 300 * time.Millisecond},
		}
	default:
		return nil
	}
}

// Samples renders the sequence as PCM16.
func Samples(seq []Segment) []int16 {
	var total int
	for _, s := range seq {
		total += sampleCount(s.Duration)
	}
	out := make([]int16, 0, total)

	for _, s := range seq {
		n := sampleCount(s.Duration)
		for i := 0; i < n; i++ {
			if s.Frequency <= 0 {
				out = append(out, 0)
				continue
			}
			v := amplitude * math.Sin(2*math.Pi*s.Frequency*float64(i)/SampleRate)
			// 5 ms linear fade at both ends avoids clicks
			if f := fade(i, n); f < 1 {
				v *= f
			}
			out = append(out, int16(v*math.MaxInt16))
		}
	}
	return out
}

func sampleCount(d time.Duration) int {
	return int(d.Seconds() * SampleRate)
}

func fade(i, n int) float64 {
	ramp := SampleRate / 200
	switch {
	case i < ramp:
		return float64(i) / float64(ramp)
	case n-i < ramp:
		return float64(n-i) / float64(ramp)
	default:
		return 1
	}
}

// WAV wraps PCM16 mono samples in a RIFF header.
func WAV(samples []int16) []byte {
	dataLen := uint32(len(samples) * 2)

	var buf bytes.Buffer
	buf.Grow(44 + int(dataLen))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, struct {
		ChunkSize     uint32
		Format        uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
	}{16, 1, 1, SampleRate, SampleRate * 2, 2, 16})
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataLen)
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
