// Package emotion infers a speaker's emotional state from a short recorded
// utterance.
//
// # Pipeline
//
//  1. WAV bytes → [Preprocessor] → log mel [Features] (80 × 3000 at 16 kHz)
//  2. Features → [Encoder] → hidden states (T × H)
//  3. Hidden states → [AttentionPool] → pooled vector (H)
//  4. Pooled vector → [Head] → 4 logits → softmax → [Prediction]
//
// [Classifier] chains steps 2–4 and [Service] adds admission control and
// per-call timeouts around the whole pipeline.
//
// # Thread Safety
//
// Preprocessor, Classifier and Service hold only immutable state after
// construction and are safe for concurrent use.
package emotion

import "strings"

// Label is an emotion class.
type Label string

const (
	Happy   Label = "happy"
	Neutral Label = "neutral"
	Sad     Label = "sad"
	Angry   Label = "angry"
)

// Labels lists the supported labels in classifier output order.
var Labels = []Label{Happy, Neutral, Sad, Angry}

// ParseLabel returns the Label matching s, ignoring case and surrounding
// whitespace.
func ParseLabel(s string) (Label, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, l := range Labels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

// Prediction is the classifier output for one utterance.
type Prediction struct {
	Label      Label             `json:"label" yaml:"label"`
	Confidence float64           `json:"confidence" yaml:"confidence"`
	Probs      map[Label]float64 `json:"probs,omitempty" yaml:"probs,omitempty"`
}

// Features is a row-major Frames × Bins log mel matrix.
type Features struct {
	Frames int
	Bins   int
	Data   []float32
}

// Row returns frame t.
func (f *Features) Row(t int) []float32 {
	return f.Data[t*f.Bins : (t+1)*f.Bins]
}
