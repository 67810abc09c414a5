// Package clip decodes uploaded audio containers into float samples.
package clip

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/go-audio/wav"
)

// ErrDecode is wrapped by every error Decode returns.
var ErrDecode = errors.New("clip: cannot decode audio")

const (
	formatPCM        = 1
	formatFloat      = 3
	formatExtensible = 0xFFFE
)

// Clip is decoded audio. Samples are interleaved by channel and normalized
// to [-1, 1].
type Clip struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.SampleRate)
}

// Mono averages all channels of each frame. A mono clip is returned as is.
func (c *Clip) Mono() []float32 {
	if c.Channels <= 1 {
		return c.Samples
	}
	n := c.Frames()
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		base := i * c.Channels
		for ch := 0; ch < c.Channels; ch++ {
			sum += float64(c.Samples[base+ch])
		}
		out[i] = float32(sum / float64(c.Channels))
	}
	return out
}

// Decode parses a WAV container (integer PCM or 32-bit float).
func Decode(data []byte) (*Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid wav file", ErrDecode)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrDecode)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: missing format", ErrDecode)
	}

	bitDepth := int(dec.BitDepth)
	var samples []float32
	switch {
	case dec.WavAudioFormat == formatFloat && bitDepth == 32:
		samples = float32Bits(buf.Data)
	case dec.WavAudioFormat == formatPCM || dec.WavAudioFormat == formatExtensible:
		if bitDepth < 8 || bitDepth > 32 {
			return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrDecode, bitDepth)
		}
		samples = intToFloat32(buf.Data, bitDepth)
	default:
		return nil, fmt.Errorf("%w: unsupported format tag %d (%d bit)", ErrDecode, dec.WavAudioFormat, bitDepth)
	}

	ch := buf.Format.NumChannels
	if rem := len(samples) % ch; rem != 0 {
		samples = samples[:len(samples)-rem]
	}
	return &Clip{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		Channels:   ch,
	}, nil
}

func intToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		if bitDepth == 8 {
			// 8-bit WAV is unsigned.
			v -= 128
		}
		out[i] = float32(clamp(float64(v) * scale))
	}
	return out
}

func float32Bits(data []int) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		f := float64(math.Float32frombits(uint32(v)))
		if math.IsNaN(f) {
			f = 0
		}
		out[i] = float32(clamp(f))
	}
	return out
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
