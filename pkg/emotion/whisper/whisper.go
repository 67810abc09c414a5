// Package whisper implements [emotion.Encoder] with an exported Whisper
// encoder running on ONNX Runtime.
//
// The model takes "input_features" shaped [1, mels, frames] and returns
// "last_hidden_state" shaped [1, T, H]. For whisper-tiny that is
// [1, 80, 3000] → [1, 1500, 384].
package whisper

import (
	"context"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/haivivi/emochat/pkg/emotion"
	"github.com/haivivi/emochat/pkg/onnx"
)

// Encoder runs a Whisper encoder session. It is safe for concurrent use.
type Encoder struct {
	mu      sync.RWMutex
	session *onnx.Session
	closed  bool

	inputName  string
	outputName string
	hidden     int
	mels       int
	frames     int
}

var _ emotion.Encoder = (*Encoder)(nil)

// Option configures an Encoder.
type Option func(*Encoder)

// WithIONames sets the input and output tensor names.
// Default: "input_features" and "last_hidden_state".
func WithIONames(input, output string) Option {
	return func(e *Encoder) {
		e.inputName = input
		e.outputName = output
	}
}

// WithHiddenSize overrides the hidden width. Default: 384 (whisper-tiny).
func WithHiddenSize(h int) Option {
	return func(e *Encoder) {
		if h > 0 {
			e.hidden = h
		}
	}
}

// WithInputShape overrides the expected mel bins and frames.
// Default: 80 × 3000.
func WithInputShape(mels, frames int) Option {
	return func(e *Encoder) {
		if mels > 0 && frames > 0 {
			e.mels, e.frames = mels, frames
		}
	}
}

// Load reads an encoder model from path.
func Load(env *onnx.Env, path string, sessOpts onnx.SessionOptions, opts ...Option) (*Encoder, error) {
	session, err := env.LoadSession(path, sessOpts)
	if err != nil {
		return nil, &emotion.ModelLoadError{Path: path, Err: err}
	}
	e := NewFromSession(session, opts...)
	if err := e.checkNames(); err != nil {
		session.Close()
		return nil, &emotion.ModelLoadError{Path: path, Err: err}
	}
	return e, nil
}

// NewFromSession wraps an already loaded session. The Encoder takes
// ownership of the session.
func NewFromSession(session *onnx.Session, opts ...Option) *Encoder {
	e := &Encoder{
		session:    session,
		inputName:  "input_features",
		outputName: "last_hidden_state",
		hidden:     384,
		mels:       80,
		frames:     3000,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// checkNames verifies the model declares the configured input and output.
func (e *Encoder) checkNames() error {
	inputs, err := e.session.InputNames()
	if err != nil {
		return err
	}
	if !contains(inputs, e.inputName) {
		return fmt.Errorf("model has no input %q (inputs: %v)", e.inputName, inputs)
	}
	outputs, err := e.session.OutputNames()
	if err != nil {
		return err
	}
	if !contains(outputs, e.outputName) {
		return fmt.Errorf("model has no output %q (outputs: %v)", e.outputName, outputs)
	}
	return nil
}

// HiddenSize implements [emotion.Encoder].
func (e *Encoder) HiddenSize() int {
	return e.hidden
}

// Encode implements [emotion.Encoder].
func (e *Encoder) Encode(ctx context.Context, f *emotion.Features) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Bins != e.mels || f.Frames != e.frames {
		return nil, fmt.Errorf("whisper: features %dx%d, want %dx%d", f.Frames, f.Bins, e.frames, e.mels)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("whisper: encoder is closed")
	}

	input, err := onnx.NewTensor([]int64{1, int64(e.mels), int64(e.frames)}, transpose(f))
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	defer input.Close()

	outputs, err := e.session.Run([]string{e.inputName}, []*onnx.Tensor{input}, []string{e.outputName})
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	out := outputs[0]
	defer out.Close()

	shape, err := out.Shape()
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	if len(shape) != 3 || shape[0] != 1 || shape[2] != int64(e.hidden) {
		return nil, fmt.Errorf("whisper: output shape %v, want [1 T %d]", shape, e.hidden)
	}
	data, err := out.FloatData()
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	t := int(shape[1])
	if t == 0 {
		return nil, fmt.Errorf("whisper: empty output")
	}
	hidden := make([]float64, len(data))
	for i, v := range data {
		hidden[i] = float64(v)
	}
	return mat.NewDense(t, e.hidden, hidden), nil
}

// Close releases the session.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.session.Close()
}

// transpose converts frame-major features into the mel-major layout the
// encoder expects.
func transpose(f *emotion.Features) []float32 {
	out := make([]float32, len(f.Data))
	for t := 0; t < f.Frames; t++ {
		row := f.Row(t)
		for m, v := range row {
			out[m*f.Frames+t] = v
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
