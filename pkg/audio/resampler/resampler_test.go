package resampler

import (
	"errors"
	"math"
	"testing"
)

func sine(freq float64, rate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestResampleSameRate(t *testing.T) {
	in := sine(440, 16000, 1600)
	out, err := Resample(in, 16000, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("out[%d] = %f, want %f", i, out[i], in[i])
		}
	}
}

func TestResampleDown(t *testing.T) {
	in := sine(440, 48000, 48000)
	out, err := Resample(in, 48000, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out) > 16000 || len(out) < 8000 {
		t.Fatalf("len = %d, want about 16000", len(out))
	}
	for i, v := range out {
		if v < -1 || v > 1 || math.IsNaN(float64(v)) {
			t.Fatalf("out[%d] = %f out of range", i, v)
		}
	}
}

func TestResampleInvalidRate(t *testing.T) {
	for _, tt := range []struct{ in, out int }{{0, 16000}, {16000, 0}, {-1, 16000}} {
		if _, err := Resample([]float32{0.1}, tt.in, tt.out); !errors.Is(err, ErrInvalidRate) {
			t.Errorf("Resample(%d -> %d) err = %v, want ErrInvalidRate", tt.in, tt.out, err)
		}
	}
}

func TestResampleEmpty(t *testing.T) {
	out, err := Resample(nil, 44100, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("len = %d, want 0", len(out))
	}
}

func TestResampleAlignment(t *testing.T) {
	// Silence for 0.5s, then a 1 kHz tone to the end of the clip.
	in := make([]float32, 48000)
	copy(in[24000:], sine(1000, 48000, 24000))

	out, err := Resample(in, 48000, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out) != 16000 {
		t.Fatalf("len = %d, want 16000", len(out))
	}

	onset := -1
	for i, v := range out {
		if math.Abs(float64(v)) > 0.1 {
			onset = i
			break
		}
	}
	if onset < 8000-48 || onset > 8000+48 {
		t.Errorf("onset at %d, want about 8000", onset)
	}

	var sum float64
	tail := out[len(out)-160:]
	for _, v := range tail {
		sum += float64(v) * float64(v)
	}
	if rms := math.Sqrt(sum / float64(len(tail))); rms < 0.2 {
		t.Errorf("tail rms = %f, want the tone to reach the end", rms)
	}
}
