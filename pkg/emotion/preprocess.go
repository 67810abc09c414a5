package emotion

import (
	"fmt"

	"github.com/haivivi/emochat/pkg/audio/clip"
	"github.com/haivivi/emochat/pkg/audio/fbank"
	"github.com/haivivi/emochat/pkg/audio/resampler"
)

var errTooShort = fmt.Errorf("%w: audio too short", clip.ErrDecode)

// Preprocessor turns raw WAV bytes into encoder features: decode, downmix
// to mono, resample to the feature rate, log mel.
type Preprocessor struct {
	extractor *fbank.Extractor
}

// NewPreprocessor returns a Preprocessor producing Whisper features.
func NewPreprocessor() *Preprocessor {
	return NewPreprocessorWithConfig(fbank.DefaultConfig())
}

// NewPreprocessorWithConfig returns a Preprocessor with custom feature
// parameters. Used by tests to keep feature matrices small.
func NewPreprocessorWithConfig(cfg fbank.Config) *Preprocessor {
	return &Preprocessor{extractor: fbank.New(cfg)}
}

// Config returns the feature configuration.
func (p *Preprocessor) Config() fbank.Config {
	return p.extractor.Config()
}

// Process decodes data and computes its features. Every failure is a
// *DecodeError.
func (p *Preprocessor) Process(data []byte) (*Features, error) {
	c, err := clip.Decode(data)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return p.ProcessClip(c)
}

// ProcessClip computes features for an already decoded clip.
func (p *Preprocessor) ProcessClip(c *clip.Clip) (*Features, error) {
	cfg := p.extractor.Config()
	mono, err := resampler.Resample(c.Mono(), c.SampleRate, cfg.SampleRate)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if len(mono) == 0 {
		return nil, &DecodeError{Err: errTooShort}
	}

	frames := p.extractor.Extract(mono)
	if len(frames) == 0 {
		return nil, &DecodeError{Err: errTooShort}
	}
	return &Features{
		Frames: len(frames),
		Bins:   cfg.NumMels,
		Data:   fbank.Flatten(frames),
	}, nil
}
