// Package resampler converts mono float audio between sample rates using a
// pure Go polyphase resampler (no CGO/FFI dependencies).
//
// Example usage:
//
//	out, err := resampler.Resample(samples, 44100, 16000)
//	if err != nil {
//	    return err
//	}
package resampler

import (
	"errors"
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// ErrInvalidRate is returned when either sample rate is not positive.
var ErrInvalidRate = errors.New("resampler: sample rate must be positive")

// Quality selects the resampler filter preset.
type Quality int

const (
	QualityHigh Quality = iota
	QualityMedium
	QualityLow
)

func (q Quality) preset() resampling.QualityPreset {
	switch q {
	case QualityLow:
		return resampling.QualityLow
	case QualityMedium:
		return resampling.QualityMedium
	default:
		return resampling.QualityHigh
	}
}

// Resample converts mono samples from inRate to outRate with high quality.
// The input is returned unchanged when the rates match.
func Resample(samples []float32, inRate, outRate int) ([]float32, error) {
	return ResampleQuality(samples, inRate, outRate, QualityHigh)
}

// ResampleQuality is like Resample with an explicit quality preset.
//
// The output length is ceil(len(samples) * outRate / inRate) and sample i of
// the output lines up with input time i/outRate: the filter latency reported
// by the resampler is dropped from the front, and trailing silence plus a
// flush push the end of the clip out of the filter.
func ResampleQuality(samples []float32, inRate, outRate int, q Quality) ([]float32, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, ErrInvalidRate
	}
	if inRate == outRate || len(samples) == 0 {
		return samples, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(inRate),
		OutputRate: float64(outRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: q.preset()},
	})
	if err != nil {
		return nil, fmt.Errorf("resampler: create: %w", err)
	}

	tail := inRate / 10
	input := make([]float64, len(samples)+tail)
	for i, s := range samples {
		input[i] = float64(s)
	}

	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}
	rest, err := r.Flush()
	if err != nil {
		return nil, fmt.Errorf("resampler: flush: %w", err)
	}
	output = append(output, rest...)

	lat := min(max(r.GetLatency(), 0), len(output))
	output = output[lat:]

	want := int(math.Ceil(float64(len(samples)) * float64(outRate) / float64(inRate)))
	if len(output) > want {
		output = output[:want]
	}
	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = float32(math.Max(-1, math.Min(1, s)))
	}
	return out, nil
}
