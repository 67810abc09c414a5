package emotion

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// ServiceConfig tunes a Service.
type ServiceConfig struct {
	// MaxConcurrent bounds simultaneous predictions. Default: runtime.NumCPU().
	MaxConcurrent int
	// Timeout bounds one prediction including the admission wait. Zero
	// disables it.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Service runs the full audio to emotion pipeline.
type Service struct {
	pre     *Preprocessor
	clf     *Classifier
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *slog.Logger
}

// NewService creates a Service from a preprocessor and classifier.
func NewService(pre *Preprocessor, clf *Classifier, cfg ServiceConfig) *Service {
	n := cfg.MaxConcurrent
	if n <= 0 {
		n = runtime.NumCPU()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pre:     pre,
		clf:     clf,
		sem:     semaphore.NewWeighted(int64(n)),
		timeout: cfg.Timeout,
		logger:  logger.With("component", "emotion"),
	}
}

// Predict classifies the emotion of a WAV utterance.
//
// A *DecodeError is returned unchanged for undecodable audio. Any other
// failure is a single *InferenceError.
func (s *Service) Predict(ctx context.Context, audio []byte) (Prediction, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Prediction{}, &InferenceError{Stage: "admit", Err: err}
	}
	defer s.sem.Release(1)

	start := time.Now()
	feats, err := s.pre.Process(audio)
	if err != nil {
		return Prediction{}, err
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, &InferenceError{Stage: "admit", Err: err}
	}

	pred, err := s.clf.Classify(ctx, feats)
	if err != nil {
		var ie *InferenceError
		if !errors.As(err, &ie) {
			err = &InferenceError{Stage: "classify", Err: err}
		}
		s.logger.Error("prediction failed", "error", err)
		return Prediction{}, err
	}

	s.logger.Debug("prediction",
		"label", pred.Label,
		"confidence", pred.Confidence,
		"frames", feats.Frames,
		"duration", time.Since(start),
	)
	return pred, nil
}
