// Package audio holds the PCM plumbing of live sessions: the 16-bit codec,
// sample-rate conversion and the gapless playback scheduler.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// CaptureRate is the rate the live model expects for input audio.
	CaptureRate = 16000

	// PlaybackRate is the rate of audio returned by the live model.
	PlaybackRate = 24000

	bytesPerSample = 2
)

// Frame is a run of mono samples in [-1, 1] at SampleRate.
type Frame struct {
	Samples    []float32
	SampleRate int
}

// Duration is the playing time of the frame.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// MimeType returns the mime type the live API uses for raw PCM16 at rate.
func MimeType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// EncodePCM16 converts samples to 16-bit signed little-endian PCM, clamping
// out-of-range values.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		var n int16
		if v < 0 {
			n = int16(v * 32768)
		} else {
			n = int16(v * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(n))
	}
	return out
}

// DecodePCM16 converts 16-bit signed little-endian PCM to samples. A trailing
// odd byte is ignored.
func DecodePCM16(pcm []byte) []float32 {
	n := len(pcm) / bytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// PCMDuration is the playing time of a PCM16 mono buffer at rate.
func PCMDuration(pcm []byte, rate int) time.Duration {
	return SamplesDuration(len(pcm)/bytesPerSample, rate)
}

// SamplesDuration is the playing time of n samples at rate.
func SamplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}
