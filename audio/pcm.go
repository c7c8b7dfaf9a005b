// Package audio holds the PCM format the relay speaks: 16 kHz mono
// signed 16-bit little-endian.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	SampleRate     = 16000
	Channels       = 1
	BytesPerSample = 2
)

// Float32ToPCM16 converts normalized float samples to little-endian
// 16-bit PCM. Samples outside [-1, 1] are clipped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7fff)
}

// PCM16ToFloat32 is the inverse of Float32ToPCM16. A trailing odd byte
// is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/BytesPerSample)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if v < 0 {
			out[i] = float32(v) / 0x8000
		} else {
			out[i] = float32(v) / 0x7fff
		}
	}
	return out
}

// Duration is how much audio a PCM buffer holds.
func Duration(pcm []byte) time.Duration {
	samples := len(pcm) / (BytesPerSample * Channels)
	return time.Duration(samples) * time.Second / SampleRate
}

// Bytes is the PCM size of d worth of audio.
func Bytes(d time.Duration) int {
	samples := int(d * SampleRate / time.Second)
	return samples * BytesPerSample * Channels
}

// Silence returns d worth of zero samples.
func Silence(d time.Duration) []byte {
	return make([]byte, Bytes(d))
}
