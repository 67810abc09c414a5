package emotion

import "fmt"

// DecodeError reports audio that could not be decoded into features. It is a
// client input failure.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("emotion: decode audio: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ModelLoadError reports weights or encoder artifacts that are missing,
// malformed or inconsistent with each other.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("emotion: load model: %v", e.Err)
	}
	return fmt.Sprintf("emotion: load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// InferenceError reports a failure inside the model pipeline. Stage names the
// step that failed (admit, encode, pool, head).
type InferenceError struct {
	Stage string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("emotion: inference failed at %s: %v", e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
