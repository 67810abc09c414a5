// Package audio provides audio processing utilities.
//
// This package serves as an umbrella for audio-related sub-packages:
//
//   - clip: WAV decoding into float samples and channel downmix
//   - resampler: sample rate conversion
//   - fbank: Whisper-style log mel spectrogram features
//
// Example usage:
//
//	import (
//	    "github.com/haivivi/emochat/pkg/audio/clip"
//	    "github.com/haivivi/emochat/pkg/audio/fbank"
//	    "github.com/haivivi/emochat/pkg/audio/resampler"
//	)
//
//	c, err := clip.Decode(data)
//	mono, err := resampler.Resample(c.Mono(), c.SampleRate, 16000)
//	features := fbank.New(fbank.DefaultConfig()).Extract(mono)
package audio
