package whisper

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/haivivi/emochat/pkg/emotion"
	"github.com/haivivi/emochat/pkg/onnx"
)

func TestTranspose(t *testing.T) {
	f := &emotion.Features{
		Frames: 2,
		Bins:   3,
		Data:   []float32{1, 2, 3, 4, 5, 6},
	}
	got := transpose(f)
	want := []float32{1, 4, 2, 5, 3, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transpose = %v, want %v", got, want)
		}
	}
}

func TestEncodeShapeMismatch(t *testing.T) {
	e := NewFromSession(nil)
	_, err := e.Encode(context.Background(), &emotion.Features{Frames: 10, Bins: 80, Data: make([]float32, 800)})
	if err == nil {
		t.Fatal("expected shape error")
	}
}

func TestEncodeCanceled(t *testing.T) {
	e := NewFromSession(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Encode(ctx, &emotion.Features{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLoadMissingModel(t *testing.T) {
	env, err := onnx.NewEnv("test")
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()

	_, err = Load(env, "/nonexistent/encoder.onnx", onnx.SessionOptions{})
	var mle *emotion.ModelLoadError
	if !errors.As(err, &mle) {
		t.Fatalf("err = %v, want *emotion.ModelLoadError", err)
	}
}

func TestEncodeSilence(t *testing.T) {
	path := os.Getenv("EMOCHAT_ENCODER_MODEL")
	if path == "" {
		t.Skip("EMOCHAT_ENCODER_MODEL not set")
	}
	if _, err := os.Stat(path); err != nil {
		t.Skipf("encoder model not found: %v", err)
	}

	env, err := onnx.NewEnv("test")
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()

	enc, err := Load(env, path, onnx.SessionOptions{IntraOpThreads: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	data := make([]float32, 3000*80)
	for i := range data {
		data[i] = -1.5
	}
	hidden, err := enc.Encode(context.Background(), &emotion.Features{Frames: 3000, Bins: 80, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := hidden.Dims()
	if rows != 1500 || cols != enc.HiddenSize() {
		t.Fatalf("hidden %dx%d, want 1500x%d", rows, cols, enc.HiddenSize())
	}
	for _, v := range hidden.RawMatrix().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatal("non-finite hidden state")
		}
	}
}
