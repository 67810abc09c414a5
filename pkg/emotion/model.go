package emotion

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Encoder maps features to a T × H matrix of hidden states.
type Encoder interface {
	Encode(ctx context.Context, f *Features) (*mat.Dense, error)
	HiddenSize() int
}

var (
	errNonFinite = errors.New("non-finite value")
	errEmpty     = errors.New("empty hidden states")
)

// AttentionPool collapses hidden states over time with a single learned
// query vector: scores = H·q, w = softmax(scores), pooled = Hᵀ·w.
type AttentionPool struct {
	query *mat.VecDense
}

// NewAttentionPool creates a pool over query (length H).
func NewAttentionPool(query []float64) *AttentionPool {
	q := make([]float64, len(query))
	copy(q, query)
	return &AttentionPool{query: mat.NewVecDense(len(q), q)}
}

// Size returns H.
func (p *AttentionPool) Size() int { return p.query.Len() }

// Weights returns the attention distribution over the T rows of hidden.
func (p *AttentionPool) Weights(hidden *mat.Dense) ([]float64, error) {
	t, h := hidden.Dims()
	if t == 0 {
		return nil, errEmpty
	}
	if h != p.Size() {
		return nil, fmt.Errorf("hidden width %d, query width %d", h, p.Size())
	}
	scores := mat.NewVecDense(t, nil)
	scores.MulVec(hidden, p.query)
	w := softmax(scores.RawVector().Data)
	if !finite(w) {
		return nil, errNonFinite
	}
	return w, nil
}

// Pool returns the attention-weighted sum of hidden rows and the weights used.
func (p *AttentionPool) Pool(hidden *mat.Dense) (*mat.VecDense, []float64, error) {
	w, err := p.Weights(hidden)
	if err != nil {
		return nil, nil, err
	}
	_, h := hidden.Dims()
	pooled := mat.NewVecDense(h, nil)
	pooled.MulVec(hidden.T(), mat.NewVecDense(len(w), w))
	return pooled, w, nil
}

// Head is the classification MLP: Linear → ReLU → Linear. Dropout from
// training is the identity at inference and has no parameters.
type Head struct {
	w1 *mat.Dense
	b1 *mat.VecDense
	w2 *mat.Dense
	b2 *mat.VecDense
}

// NewHead builds a head from row-major weight matrices (out × in) and biases.
func NewHead(w1 *mat.Dense, b1 []float64, w2 *mat.Dense, b2 []float64) (*Head, error) {
	mid, _ := w1.Dims()
	out, in2 := w2.Dims()
	switch {
	case len(b1) != mid:
		return nil, fmt.Errorf("first bias has %d values, want %d", len(b1), mid)
	case in2 != mid:
		return nil, fmt.Errorf("second layer input %d, want %d", in2, mid)
	case len(b2) != out:
		return nil, fmt.Errorf("second bias has %d values, want %d", len(b2), out)
	}
	return &Head{
		w1: w1,
		b1: mat.NewVecDense(len(b1), append([]float64(nil), b1...)),
		w2: w2,
		b2: mat.NewVecDense(len(b2), append([]float64(nil), b2...)),
	}, nil
}

// InputSize returns the pooled vector width the head expects.
func (h *Head) InputSize() int {
	_, in := h.w1.Dims()
	return in
}

// NumClasses returns the number of logits.
func (h *Head) NumClasses() int {
	out, _ := h.w2.Dims()
	return out
}

// Forward computes the logits for x.
func (h *Head) Forward(x mat.Vector) ([]float64, error) {
	if x.Len() != h.InputSize() {
		return nil, fmt.Errorf("input width %d, want %d", x.Len(), h.InputSize())
	}
	mid, _ := h.w1.Dims()
	z := mat.NewVecDense(mid, nil)
	z.MulVec(h.w1, x)
	z.AddVec(z, h.b1)
	for i := 0; i < mid; i++ {
		if z.AtVec(i) < 0 {
			z.SetVec(i, 0)
		}
	}
	logits := mat.NewVecDense(h.NumClasses(), nil)
	logits.MulVec(h.w2, z)
	logits.AddVec(logits, h.b2)
	return logits.RawVector().Data, nil
}

// Classifier chains an Encoder, an AttentionPool and a Head.
type Classifier struct {
	encoder Encoder
	pool    *AttentionPool
	head    *Head
	labels  []Label
}

// NewClassifier assembles a classifier from an encoder and trained weights.
// It fails with *ModelLoadError when the pieces do not fit together.
func NewClassifier(enc Encoder, w *Weights) (*Classifier, error) {
	if enc == nil {
		return nil, &ModelLoadError{Err: errors.New("nil encoder")}
	}
	if w == nil {
		return nil, &ModelLoadError{Err: errors.New("nil weights")}
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if enc.HiddenSize() != w.HiddenSize() {
		return nil, &ModelLoadError{Err: fmt.Errorf("encoder width %d, weights expect %d", enc.HiddenSize(), w.HiddenSize())}
	}
	labels, err := w.ParsedLabels()
	if err != nil {
		return nil, err
	}
	head, err := NewHead(w.dense(TensorFC1Weight), w.vector(TensorFC1Bias), w.dense(TensorFC2Weight), w.vector(TensorFC2Bias))
	if err != nil {
		return nil, &ModelLoadError{Err: err}
	}
	return &Classifier{
		encoder: enc,
		pool:    NewAttentionPool(w.vector(TensorAttnQuery)),
		head:    head,
		labels:  labels,
	}, nil
}

// Labels returns the output label order.
func (c *Classifier) Labels() []Label {
	return append([]Label(nil), c.labels...)
}

// Classify runs the model on f. Every failure is an *InferenceError.
func (c *Classifier) Classify(ctx context.Context, f *Features) (Prediction, error) {
	hidden, err := c.encoder.Encode(ctx, f)
	if err != nil {
		return Prediction{}, &InferenceError{Stage: "encode", Err: err}
	}
	if hidden == nil || hidden.IsEmpty() {
		return Prediction{}, &InferenceError{Stage: "encode", Err: errEmpty}
	}
	if !finite(hidden.RawMatrix().Data) {
		return Prediction{}, &InferenceError{Stage: "encode", Err: errNonFinite}
	}

	pooled, _, err := c.pool.Pool(hidden)
	if err != nil {
		return Prediction{}, &InferenceError{Stage: "pool", Err: err}
	}

	logits, err := c.head.Forward(pooled)
	if err != nil {
		return Prediction{}, &InferenceError{Stage: "head", Err: err}
	}
	if !finite(logits) {
		return Prediction{}, &InferenceError{Stage: "head", Err: errNonFinite}
	}

	probs := softmax(logits)
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	dist := make(map[Label]float64, len(probs))
	for i, p := range probs {
		dist[c.labels[i]] = p
	}
	return Prediction{
		Label:      c.labels[best],
		Confidence: probs[best],
		Probs:      dist,
	}, nil
}

// softmax returns a numerically stable softmax of x.
func softmax(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	maxV := math.Inf(-1)
	for _, v := range x {
		if v > maxV {
			maxV = v
		}
	}
	sum := 0.0
	for i, v := range x {
		out[i] = math.Exp(v - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
