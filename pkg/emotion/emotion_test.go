package emotion

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"gonum.org/v1/gonum/mat"

	"github.com/haivivi/emochat/pkg/audio/clip"
	"github.com/haivivi/emochat/pkg/audio/fbank"
)

// fakeEncoder returns a fixed hidden state matrix.
type fakeEncoder struct {
	hidden *mat.Dense
	width  int
	err    error
	calls  int
}

func (e *fakeEncoder) Encode(ctx context.Context, f *Features) (*mat.Dense, error) {
	e.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.hidden, nil
}

func (e *fakeEncoder) HiddenSize() int { return e.width }

func newFakeEncoder(rows int, data ...float64) *fakeEncoder {
	cols := len(data) / rows
	return &fakeEncoder{hidden: mat.NewDense(rows, cols, data), width: cols}
}

// testWeights builds weights for width h with a 2-unit hidden layer and a
// bias favoring label index favored.
func testWeights(h, favored int) *Weights {
	query := make([]float32, h)
	fc1 := make([]float32, 2*h)
	fc1[0] = 1
	fc1[h+1] = -1
	fc2 := []float32{
		1, 0,
		0, 1,
		1, 1,
		-1, 0,
	}
	bias2 := make([]float32, 4)
	bias2[favored] = 5
	return &Weights{
		Labels: []string{"happy", "neutral", "sad", "angry"},
		Tensors: map[string]Tensor{
			TensorAttnQuery: {Shape: []int{1, h}, Data: query},
			TensorFC1Weight: {Shape: []int{2, h}, Data: fc1},
			TensorFC1Bias:   {Shape: []int{2}, Data: []float32{0, 0}},
			TensorFC2Weight: {Shape: []int{4, 2}, Data: fc2},
			TensorFC2Bias:   {Shape: []int{4}, Data: bias2},
		},
	}
}

func wavBytes(t *testing.T, rate, channels int, data []int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "utterance.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func smallPreprocessor() *Preprocessor {
	cfg := fbank.DefaultConfig()
	cfg.ChunkSamples = 16000
	return NewPreprocessorWithConfig(cfg)
}

func checkPrediction(t *testing.T, p Prediction) {
	t.Helper()
	if _, ok := ParseLabel(string(p.Label)); !ok {
		t.Fatalf("label %q not in label set", p.Label)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		t.Fatalf("confidence %f outside [0,1]", p.Confidence)
	}
	sum := 0.0
	maxP := 0.0
	for _, v := range p.Probs {
		sum += v
		maxP = math.Max(maxP, v)
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Fatalf("probs sum to %f", sum)
	}
	if p.Confidence != maxP {
		t.Fatalf("confidence %f != max prob %f", p.Confidence, maxP)
	}
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in   string
		want Label
		ok   bool
	}{
		{"happy", Happy, true},
		{" SAD ", Sad, true},
		{"Angry", Angry, true},
		{"surprised", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseLabel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLabel(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAttentionPoolUniform(t *testing.T) {
	hidden := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
	})
	pool := NewAttentionPool([]float64{0, 0})

	pooled, w, err := pool.Pool(hidden)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range w {
		if math.Abs(v-1.0/3) > 1e-12 {
			t.Errorf("w[%d] = %f, want 1/3", i, v)
		}
	}
	if math.Abs(pooled.AtVec(0)-3) > 1e-12 || math.Abs(pooled.AtVec(1)-4) > 1e-12 {
		t.Errorf("pooled = [%f %f], want column means [3 4]", pooled.AtVec(0), pooled.AtVec(1))
	}
}

func TestAttentionPoolFocus(t *testing.T) {
	hidden := mat.NewDense(2, 2, []float64{
		1, 0,
		0, 1,
	})
	pool := NewAttentionPool([]float64{20, 0})

	w, err := pool.Weights(hidden)
	if err != nil {
		t.Fatal(err)
	}
	if w[0] < 0.999 {
		t.Errorf("w[0] = %f, want ~1", w[0])
	}
	if math.Abs(w[0]+w[1]-1) > 1e-12 {
		t.Errorf("weights sum to %f", w[0]+w[1])
	}
}

func TestAttentionPoolLargeScores(t *testing.T) {
	hidden := mat.NewDense(2, 1, []float64{1000, 999})
	w, err := NewAttentionPool([]float64{1}).Weights(hidden)
	if err != nil {
		t.Fatalf("large but finite scores must not overflow: %v", err)
	}
	if math.Abs(w[0]+w[1]-1) > 1e-12 {
		t.Errorf("weights sum to %f", w[0]+w[1])
	}
}

func TestAttentionPoolWidthMismatch(t *testing.T) {
	hidden := mat.NewDense(2, 3, nil)
	if _, err := NewAttentionPool([]float64{1, 2}).Weights(hidden); err == nil {
		t.Error("expected width mismatch error")
	}
}

func TestHeadForward(t *testing.T) {
	head, err := NewHead(
		mat.NewDense(2, 2, []float64{1, 0, 0, -1}), []float64{0, 0},
		mat.NewDense(2, 2, []float64{1, 1, 0, 1}), []float64{1, -1},
	)
	if err != nil {
		t.Fatal(err)
	}
	logits, err := head.Forward(mat.NewVecDense(2, []float64{2, 3}))
	if err != nil {
		t.Fatal(err)
	}
	// relu([2, -3]) = [2, 0]; [[1 1] [0 1]]·[2 0] + [1 -1] = [3 -1]
	if logits[0] != 3 || logits[1] != -1 {
		t.Errorf("logits = %v, want [3 -1]", logits)
	}
}

func TestNewHeadShapeMismatch(t *testing.T) {
	_, err := NewHead(
		mat.NewDense(2, 2, nil), []float64{0},
		mat.NewDense(2, 2, nil), []float64{0, 0},
	)
	if err == nil {
		t.Error("expected bias length error")
	}
}

func TestClassifyFavoredLabel(t *testing.T) {
	for i, label := range Labels {
		t.Run(string(label), func(t *testing.T) {
			enc := newFakeEncoder(2, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6)
			clf, err := NewClassifier(enc, testWeights(3, i))
			if err != nil {
				t.Fatal(err)
			}
			pred, err := clf.Classify(context.Background(), &Features{})
			if err != nil {
				t.Fatal(err)
			}
			checkPrediction(t, pred)
			if pred.Label != label {
				t.Errorf("label = %s, want %s", pred.Label, label)
			}
		})
	}
}

func TestClassifyNonFinite(t *testing.T) {
	tests := []struct {
		name string
		v    float64
	}{
		{"nan", math.NaN()},
		{"inf", math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := newFakeEncoder(2, 0, 1, tt.v, 0, 0, 0)
			clf, err := NewClassifier(enc, testWeights(3, 0))
			if err != nil {
				t.Fatal(err)
			}
			_, err = clf.Classify(context.Background(), &Features{})
			var ie *InferenceError
			if !errors.As(err, &ie) {
				t.Fatalf("err = %v, want *InferenceError", err)
			}
		})
	}
}

func TestClassifyEncoderError(t *testing.T) {
	boom := errors.New("session crashed")
	enc := &fakeEncoder{width: 3, err: boom}
	clf, err := NewClassifier(enc, testWeights(3, 0))
	if err != nil {
		t.Fatal(err)
	}
	_, err = clf.Classify(context.Background(), &Features{})
	var ie *InferenceError
	if !errors.As(err, &ie) || ie.Stage != "encode" || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want encode-stage InferenceError wrapping cause", err)
	}
}

func TestNewClassifierMismatch(t *testing.T) {
	enc := newFakeEncoder(1, 1, 2, 3, 4)
	_, err := NewClassifier(enc, testWeights(3, 0))
	var mle *ModelLoadError
	if !errors.As(err, &mle) {
		t.Fatalf("err = %v, want *ModelLoadError", err)
	}
}

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(w *Weights)
	}{
		{"missing tensor", func(w *Weights) { delete(w.Tensors, TensorFC2Bias) }},
		{"three labels", func(w *Weights) { w.Labels = w.Labels[:3] }},
		{"unknown label", func(w *Weights) { w.Labels[0] = "bored" }},
		{"duplicate label", func(w *Weights) { w.Labels[1] = "happy" }},
		{"short data", func(w *Weights) {
			t := w.Tensors[TensorFC1Bias]
			t.Data = t.Data[:1]
			w.Tensors[TensorFC1Bias] = t
		}},
		{"wrong head width", func(w *Weights) {
			w.Tensors[TensorFC2Weight] = Tensor{Shape: []int{4, 3}, Data: make([]float32, 12)}
		}},
		{"wrong rank", func(w *Weights) {
			w.Tensors[TensorAttnQuery] = Tensor{Shape: []int{3}, Data: make([]float32, 3)}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testWeights(3, 0)
			tt.mutate(w)
			var mle *ModelLoadError
			if err := w.Validate(); !errors.As(err, &mle) {
				t.Errorf("Validate() = %v, want *ModelLoadError", err)
			}
		})
	}
	if err := testWeights(3, 0).Validate(); err != nil {
		t.Errorf("valid weights rejected: %v", err)
	}
}

func TestLoadWeights(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "head.msgpack")
	if err := testWeights(4, 2).Save(path); err != nil {
		t.Fatal(err)
	}

	w, err := LoadWeights(path)
	if err != nil {
		t.Fatal(err)
	}
	if w.HiddenSize() != 4 {
		t.Errorf("HiddenSize() = %d, want 4", w.HiddenSize())
	}

	var mle *ModelLoadError
	if _, err := LoadWeights(filepath.Join(dir, "missing.msgpack")); !errors.As(err, &mle) {
		t.Errorf("missing file: err = %v, want *ModelLoadError", err)
	}

	garbage := filepath.Join(dir, "garbage.msgpack")
	if err := os.WriteFile(garbage, []byte("not msgpack at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadWeights(garbage); !errors.As(err, &mle) || mle.Path != garbage {
		t.Errorf("garbage file: err = %v, want *ModelLoadError with path", err)
	}
}

func TestReadWeightsRejectsIncomplete(t *testing.T) {
	w := testWeights(3, 0)
	delete(w.Tensors, TensorAttnQuery)
	path := filepath.Join(t.TempDir(), "w.msgpack")
	if err := w.Save(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var mle *ModelLoadError
	if _, err := ReadWeights(bytes.NewReader(data)); !errors.As(err, &mle) {
		t.Errorf("err = %v, want *ModelLoadError", err)
	}
}

func TestPreprocessSilence(t *testing.T) {
	pre := NewPreprocessor()
	feats, err := pre.Process(wavBytes(t, 16000, 1, make([]int, 16000)))
	if err != nil {
		t.Fatal(err)
	}
	if feats.Frames != 3000 || feats.Bins != 80 {
		t.Fatalf("features %dx%d, want 3000x80", feats.Frames, feats.Bins)
	}
	if len(feats.Data) != 3000*80 {
		t.Fatalf("len(Data) = %d", len(feats.Data))
	}
	if got := feats.Row(10)[5]; math.Abs(float64(got)+1.5) > 1e-6 {
		t.Errorf("silent feature = %f, want -1.5", got)
	}
}

func TestPreprocessStereoMatchesMono(t *testing.T) {
	pre := smallPreprocessor()
	mono := make([]int, 4000)
	for i := range mono {
		mono[i] = int(6000 * math.Sin(2*math.Pi*300*float64(i)/16000))
	}
	stereo := make([]int, 0, 2*len(mono))
	for _, v := range mono {
		stereo = append(stereo, v, v)
	}

	a, err := pre.Process(wavBytes(t, 16000, 1, mono))
	if err != nil {
		t.Fatal(err)
	}
	b, err := pre.Process(wavBytes(t, 16000, 2, stereo))
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("feature %d differs: mono=%f stereo=%f", i, a.Data[i], b.Data[i])
		}
	}
}

func TestPreprocessResamples(t *testing.T) {
	pre := smallPreprocessor()
	feats, err := pre.Process(wavBytes(t, 44100, 1, make([]int, 44100)))
	if err != nil {
		t.Fatal(err)
	}
	if want := pre.Config().NumFrames(16000); feats.Frames != want {
		t.Errorf("frames = %d, want %d", feats.Frames, want)
	}
}

func TestPreprocessInvalid(t *testing.T) {
	_, err := NewPreprocessor().Process([]byte("this is not a wav file"))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
	if !errors.Is(err, clip.ErrDecode) {
		t.Errorf("err = %v, want it to wrap clip.ErrDecode", err)
	}
}

func TestServiceSilentClip(t *testing.T) {
	enc := newFakeEncoder(3, 0.5, -0.5, 0.1, 0.2, 0.3, 0.4, 0, 0, 1)
	clf, err := NewClassifier(enc, testWeights(3, 1))
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(smallPreprocessor(), clf, ServiceConfig{MaxConcurrent: 2})

	pred, err := svc.Predict(context.Background(), wavBytes(t, 16000, 1, make([]int, 16000)))
	if err != nil {
		t.Fatal(err)
	}
	checkPrediction(t, pred)
}

func TestServiceDecodeErrorPassthrough(t *testing.T) {
	enc := newFakeEncoder(1, 0, 0, 0)
	clf, err := NewClassifier(enc, testWeights(3, 0))
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(smallPreprocessor(), clf, ServiceConfig{})

	_, err = svc.Predict(context.Background(), []byte{0x00, 0x01})
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
	var ie *InferenceError
	if errors.As(err, &ie) {
		t.Error("decode failure must not be an InferenceError")
	}
	if enc.calls != 0 {
		t.Errorf("encoder called %d times for undecodable audio", enc.calls)
	}
}

func TestServiceEncoderFailure(t *testing.T) {
	boom := errors.New("out of memory")
	clf, err := NewClassifier(&fakeEncoder{width: 3, err: boom}, testWeights(3, 0))
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(smallPreprocessor(), clf, ServiceConfig{})

	_, err = svc.Predict(context.Background(), wavBytes(t, 16000, 1, make([]int, 1600)))
	var ie *InferenceError
	if !errors.As(err, &ie) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want InferenceError wrapping cause", err)
	}
}

func TestServiceCanceled(t *testing.T) {
	enc := newFakeEncoder(1, 0, 0, 0)
	clf, err := NewClassifier(enc, testWeights(3, 0))
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(smallPreprocessor(), clf, ServiceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Predict(ctx, wavBytes(t, 16000, 1, make([]int, 1600)))
	var ie *InferenceError
	if !errors.As(err, &ie) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want InferenceError wrapping context.Canceled", err)
	}
	if enc.calls != 0 {
		t.Errorf("encoder called after cancellation")
	}
}
