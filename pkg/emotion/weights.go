package emotion

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
)

// Tensor names in a weights file, following the trained module's state dict.
const (
	TensorAttnQuery = "attn_query.weight" // [1, H]
	TensorFC1Weight = "fc.0.weight"       // [M, H]
	TensorFC1Bias   = "fc.0.bias"         // [M]
	TensorFC2Weight = "fc.3.weight"       // [C, M]
	TensorFC2Bias   = "fc.3.bias"         // [C]
)

// Tensor is a dense float32 array with its shape.
type Tensor struct {
	Shape []int     `msgpack:"shape"`
	Data  []float32 `msgpack:"data"`
}

// Weights holds the trained pooling and head parameters plus the label order.
type Weights struct {
	Labels  []string          `msgpack:"labels"`
	Tensors map[string]Tensor `msgpack:"tensors"`
}

// LoadWeights reads a msgpack weights file. Every failure is a
// *ModelLoadError.
func LoadWeights(path string) (*Weights, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	defer f.Close()

	w, err := ReadWeights(f)
	if err != nil {
		var mle *ModelLoadError
		if errors.As(err, &mle) {
			mle.Path = path
			return nil, mle
		}
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	return w, nil
}

// ReadWeights decodes and validates weights from r.
func ReadWeights(r io.Reader) (*Weights, error) {
	var w Weights
	if err := msgpack.NewDecoder(r).Decode(&w); err != nil {
		return nil, &ModelLoadError{Err: fmt.Errorf("decode: %w", err)}
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Save writes w to path in msgpack form.
func (w *Weights) Save(path string) error {
	data, err := msgpack.Marshal(w)
	if err != nil {
		return fmt.Errorf("emotion: encode weights: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// HiddenSize returns the encoder width the weights were trained against.
func (w *Weights) HiddenSize() int {
	t, ok := w.Tensors[TensorAttnQuery]
	if !ok || len(t.Shape) != 2 {
		return 0
	}
	return t.Shape[1]
}

// ParsedLabels returns the label order as Labels.
func (w *Weights) ParsedLabels() ([]Label, error) {
	if len(w.Labels) != len(Labels) {
		return nil, &ModelLoadError{Err: fmt.Errorf("got %d labels, want %d", len(w.Labels), len(Labels))}
	}
	out := make([]Label, len(w.Labels))
	seen := make(map[Label]bool, len(w.Labels))
	for i, s := range w.Labels {
		l, ok := ParseLabel(s)
		if !ok {
			return nil, &ModelLoadError{Err: fmt.Errorf("unknown label %q", s)}
		}
		if seen[l] {
			return nil, &ModelLoadError{Err: fmt.Errorf("duplicate label %q", s)}
		}
		seen[l] = true
		out[i] = l
	}
	return out, nil
}

// Validate checks that all tensors are present and their shapes agree.
func (w *Weights) Validate() error {
	if _, err := w.ParsedLabels(); err != nil {
		return err
	}
	h := w.HiddenSize()
	if h <= 0 {
		return &ModelLoadError{Err: fmt.Errorf("tensor %s missing or not [1, H]", TensorAttnQuery)}
	}
	fc1, err := w.tensor(TensorFC1Weight, 2)
	if err != nil {
		return err
	}
	m := fc1.Shape[0]
	classes := len(Labels)
	want := map[string][]int{
		TensorAttnQuery: {1, h},
		TensorFC1Weight: {m, h},
		TensorFC1Bias:   {m},
		TensorFC2Weight: {classes, m},
		TensorFC2Bias:   {classes},
	}
	for name, shape := range want {
		t, err := w.tensor(name, len(shape))
		if err != nil {
			return err
		}
		for i := range shape {
			if t.Shape[i] != shape[i] {
				return &ModelLoadError{Err: fmt.Errorf("tensor %s has shape %v, want %v", name, t.Shape, shape)}
			}
		}
	}
	return nil
}

func (w *Weights) tensor(name string, rank int) (Tensor, error) {
	t, ok := w.Tensors[name]
	if !ok {
		return Tensor{}, &ModelLoadError{Err: fmt.Errorf("tensor %s missing", name)}
	}
	if len(t.Shape) != rank {
		return Tensor{}, &ModelLoadError{Err: fmt.Errorf("tensor %s has rank %d, want %d", name, len(t.Shape), rank)}
	}
	n := 1
	for _, d := range t.Shape {
		if d <= 0 {
			return Tensor{}, &ModelLoadError{Err: fmt.Errorf("tensor %s has invalid shape %v", name, t.Shape)}
		}
		n *= d
	}
	if len(t.Data) != n {
		return Tensor{}, &ModelLoadError{Err: fmt.Errorf("tensor %s has %d values, shape %v needs %d", name, len(t.Data), t.Shape, n)}
	}
	return t, nil
}

// vector returns a validated tensor's data widened to float64.
func (w *Weights) vector(name string) []float64 {
	t := w.Tensors[name]
	out := make([]float64, len(t.Data))
	for i, v := range t.Data {
		out[i] = float64(v)
	}
	return out
}

// dense returns a validated rank-2 tensor as a matrix.
func (w *Weights) dense(name string) *mat.Dense {
	t := w.Tensors[name]
	return mat.NewDense(t.Shape[0], t.Shape[1], w.vector(name))
}
