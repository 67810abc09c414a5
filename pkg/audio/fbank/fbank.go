// Package fbank computes log mel spectrogram features from PCM audio.
//
// The output matches the front end of Whisper-family encoders, so features can
// be fed directly to an exported Whisper encoder. The output is a [T][NumMels]
// float32 matrix.
//
// Default parameters follow the Whisper feature extractor:
//
//	SampleRate:   16000
//	WindowSize:   400 (25 ms, also the FFT size)
//	HopSize:      160 (10 ms)
//	NumMels:      80
//	MaxFrequency: 8000
//	ChunkSamples: 480000 (30 s, audio is zero-padded or trimmed to this)
//	DynamicRange: 8 (log10 units kept below the per-clip maximum)
//
// The pipeline is: pad/trim, centered STFT with reflect padding and a periodic
// Hann window, power spectrum, Slaney-normalized mel filterbank, log10 with a
// 1e-10 floor, dynamic range clamp, then (x+4)/4 scaling.
package fbank

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Config controls log mel extraction parameters.
type Config struct {
	SampleRate   int     // audio sample rate in Hz (default 16000)
	WindowSize   int     // window and FFT length in samples (default 400)
	HopSize      int     // hop length in samples (default 160)
	NumMels      int     // number of mel bins (default 80)
	MaxFrequency float64 // upper edge of the mel filterbank in Hz (default SampleRate/2)
	ChunkSamples int     // pad or trim input to this many samples; 0 keeps the input length
	DynamicRange float64 // clamp log values to max-DynamicRange; 0 disables the clamp
}

// DefaultConfig returns the Whisper feature extractor configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:   16000,
		WindowSize:   400,
		HopSize:      160,
		NumMels:      80,
		MaxFrequency: 8000,
		ChunkSamples: 30 * 16000,
		DynamicRange: 8,
	}
}

// NumFrames returns the number of frames Extract produces for n input samples.
func (c Config) NumFrames(n int) int {
	if c.ChunkSamples > 0 {
		n = c.ChunkSamples
	}
	return n / c.HopSize
}

// Extractor computes log mel features from PCM samples.
// It holds only immutable tables and is safe for concurrent use.
type Extractor struct {
	cfg     Config
	window  []float64
	melBank []melFilter
}

// New creates a new Extractor with the given config.
func New(cfg Config) *Extractor {
	if cfg.MaxFrequency <= 0 {
		cfg.MaxFrequency = float64(cfg.SampleRate) / 2
	}
	return &Extractor{
		cfg:     cfg,
		window:  hannWindow(cfg.WindowSize),
		melBank: melFilterBank(cfg.NumMels, cfg.WindowSize, cfg.SampleRate, 0, cfg.MaxFrequency),
	}
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Extract computes log mel features from normalized float32 samples
// (range [-1, 1]). It returns nil for empty input.
func (e *Extractor) Extract(pcm []float32) [][]float32 {
	cfg := e.cfg
	if len(pcm) == 0 {
		return nil
	}
	samples := fitLength(pcm, cfg.ChunkSamples)
	numFrames := len(samples) / cfg.HopSize
	if numFrames == 0 {
		return nil
	}

	n := cfg.WindowSize
	pad := n / 2
	halfFFT := n/2 + 1

	fft := fourier.NewFFT(n)
	frame := make([]float64, n)
	coeffs := make([]complex128, halfFFT)
	power := make([]float64, halfFFT)

	logMel := make([][]float64, numFrames)
	maxVal := math.Inf(-1)

	for t := 0; t < numFrames; t++ {
		start := t*cfg.HopSize - pad
		for i := 0; i < n; i++ {
			frame[i] = samples[reflect(start+i, len(samples))] * e.window[i]
		}
		coeffs = fft.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			re, im := real(c), imag(c)
			power[k] = re*re + im*im
		}

		row := make([]float64, cfg.NumMels)
		for m, f := range e.melBank {
			sum := 0.0
			for k, w := range f.weights {
				sum += w * power[f.start+k]
			}
			if sum < 1e-10 {
				sum = 1e-10
			}
			v := math.Log10(sum)
			if v > maxVal {
				maxVal = v
			}
			row[m] = v
		}
		logMel[t] = row
	}

	floor := math.Inf(-1)
	if cfg.DynamicRange > 0 {
		floor = maxVal - cfg.DynamicRange
	}
	features := make([][]float32, numFrames)
	for t, row := range logMel {
		out := make([]float32, len(row))
		for m, v := range row {
			if v < floor {
				v = floor
			}
			out[m] = float32((v + 4) / 4)
		}
		features[t] = out
	}
	return features
}

// Flatten converts [T][NumMels] to a flat row-major [T*NumMels] slice.
func Flatten(features [][]float32) []float32 {
	if len(features) == 0 {
		return nil
	}
	cols := len(features[0])
	flat := make([]float32, len(features)*cols)
	for t, row := range features {
		copy(flat[t*cols:], row)
	}
	return flat
}

// fitLength widens pcm to float64, zero-padding or trimming to size when size > 0.
func fitLength(pcm []float32, size int) []float64 {
	n := len(pcm)
	if size > 0 {
		n = size
	}
	out := make([]float64, n)
	for i := 0; i < n && i < len(pcm); i++ {
		out[i] = float64(pcm[i])
	}
	return out
}

// reflect maps an out-of-range index back into [0, n) by mirror reflection
// without repeating the edge sample.
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}
