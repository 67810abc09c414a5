// Package onnx provides Go bindings for the ONNX Runtime C API.
//
// The package exposes three core types:
//
//   - [Env]: global environment (one per process)
//   - [Session]: a loaded model (.onnx file)
//   - [Tensor]: N-dimensional float32 tensor for input/output data
//
// Usage flow:
//
//	env, _ := onnx.NewEnv("emochat")
//	defer env.Close()
//
//	session, _ := env.LoadSession("whisper_encoder.onnx", onnx.SessionOptions{IntraOpThreads: 2})
//	defer session.Close()
//
//	input, _ := onnx.NewTensor([]int64{1, 80, 3000}, features)
//	defer input.Close()
//
//	outputs, _ := session.Run([]string{"input_features"}, []*onnx.Tensor{input}, []string{"last_hidden_state"})
//	hidden, _ := outputs[0].FloatData()
//
// ONNX Runtime is dynamically linked (.dylib/.so) via CGo.
//
// Env is safe for concurrent use. Session.Run is thread-safe
// (ONNX Runtime uses internal locking).
package onnx

/*
#cgo LDFLAGS: -lonnxruntime
#include <onnxruntime_c_api.h>
#include <stdlib.h>
#include <string.h>

static const OrtApi* ort_api() {
    return OrtGetApiBase()->GetApi(ORT_API_VERSION);
}

static OrtStatus* ort_create_env(const OrtApi* api, const char* name, OrtEnv** out) {
    return api->CreateEnv(ORT_LOGGING_LEVEL_WARNING, name, out);
}

static OrtStatus* ort_create_session_options(const OrtApi* api, int intra, int inter, int level, OrtSessionOptions** out) {
    OrtStatus* status = api->CreateSessionOptions(out);
    if (status) return status;
    if (intra > 0) {
        status = api->SetIntraOpNumThreads(*out, intra);
        if (status) return status;
    }
    if (inter > 0) {
        status = api->SetInterOpNumThreads(*out, inter);
        if (status) return status;
    }
    return api->SetSessionGraphOptimizationLevel(*out, (GraphOptimizationLevel)level);
}

static OrtStatus* ort_create_session_from_memory(const OrtApi* api, OrtEnv* env,
    const void* model_data, size_t model_data_len, OrtSessionOptions* opts, OrtSession** out) {
    return api->CreateSessionFromArray(env, model_data, model_data_len, opts, out);
}

static OrtStatus* ort_create_tensor_float(const OrtApi* api, OrtMemoryInfo* info,
    float* data, size_t data_len, int64_t* shape, size_t shape_len, OrtValue** out) {
    return api->CreateTensorWithDataAsOrtValue(info, data, data_len * sizeof(float),
        shape, shape_len, ONNX_TENSOR_ELEMENT_DATA_TYPE_FLOAT, out);
}

static OrtStatus* ort_create_cpu_memory_info(const OrtApi* api, OrtMemoryInfo** out) {
    return api->CreateCpuMemoryInfo(OrtArenaAllocator, OrtMemTypeDefault, out);
}

static OrtStatus* ort_run(const OrtApi* api, OrtSession* session,
    const char** input_names, const OrtValue* const* inputs, size_t num_inputs,
    const char** output_names, size_t num_outputs, OrtValue** outputs) {
    return api->Run(session, NULL, input_names, inputs, num_inputs,
        output_names, num_outputs, outputs);
}

static OrtStatus* ort_get_tensor_float_data(const OrtApi* api, OrtValue* value, float** out) {
    return api->GetTensorMutableData(value, (void**)out);
}

static OrtStatus* ort_get_tensor_shape(const OrtApi* api, OrtValue* value,
    int64_t* shape, size_t shape_len) {
    OrtTensorTypeAndShapeInfo* info;
    OrtStatus* status = api->GetTensorTypeAndShape(value, &info);
    if (status) return status;
    status = api->GetDimensions(info, shape, shape_len);
    api->ReleaseTensorTypeAndShapeInfo(info);
    return status;
}

static OrtStatus* ort_get_tensor_ndim(const OrtApi* api, OrtValue* value, size_t* ndim) {
    OrtTensorTypeAndShapeInfo* info;
    OrtStatus* status = api->GetTensorTypeAndShape(value, &info);
    if (status) return status;
    status = api->GetDimensionsCount(info, ndim);
    api->ReleaseTensorTypeAndShapeInfo(info);
    return status;
}

// io_name copies the i-th input (is_input != 0) or output name into buf.
static OrtStatus* ort_io_name(const OrtApi* api, OrtSession* s, int is_input, size_t i, char* buf, size_t buf_len) {
    OrtAllocator* alloc;
    OrtStatus* status = api->GetAllocatorWithDefaultOptions(&alloc);
    if (status) return status;
    char* name;
    if (is_input) {
        status = api->SessionGetInputName(s, i, alloc, &name);
    } else {
        status = api->SessionGetOutputName(s, i, alloc, &name);
    }
    if (status) return status;
    strncpy(buf, name, buf_len - 1);
    buf[buf_len - 1] = 0;
    return api->AllocatorFree(alloc, name);
}

static OrtStatus* ort_io_count(const OrtApi* api, OrtSession* s, int is_input, size_t* out) {
    if (is_input) return api->SessionGetInputCount(s, out);
    return api->SessionGetOutputCount(s, out);
}

static const char* ort_error_message(const OrtApi* api, OrtStatus* status) {
    return api->GetErrorMessage(status);
}

static void ort_release_status(const OrtApi* api, OrtStatus* status) {
    api->ReleaseStatus(status);
}

static void ort_release_env(const OrtApi* api, OrtEnv* env) { api->ReleaseEnv(env); }
static void ort_release_session(const OrtApi* api, OrtSession* s) { api->ReleaseSession(s); }
static void ort_release_session_options(const OrtApi* api, OrtSessionOptions* o) { api->ReleaseSessionOptions(o); }
static void ort_release_memory_info(const OrtApi* api, OrtMemoryInfo* i) { api->ReleaseMemoryInfo(i); }
static void ort_release_value(const OrtApi* api, OrtValue* v) { api->ReleaseValue(v); }
*/
import "C"

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"unsafe"
)

// ErrClosed is returned when a closed Env or Session is used.
var ErrClosed = errors.New("onnx: use of closed handle")

func api() *C.OrtApi {
	return C.ort_api()
}

// checkStatus converts an OrtStatus to a Go error.
func checkStatus(status *C.OrtStatus) error {
	if status == nil {
		return nil
	}
	msg := C.GoString(C.ort_error_message(api(), status))
	C.ort_release_status(api(), status)
	return fmt.Errorf("onnx: %s", msg)
}

// --------------------------------------------------------------------------
// Env
// --------------------------------------------------------------------------

// Env is the ONNX Runtime environment. Create one per process.
type Env struct {
	env *C.OrtEnv
}

// NewEnv creates a new ONNX Runtime environment.
func NewEnv(name string) (*Env, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	var env *C.OrtEnv
	if err := checkStatus(C.ort_create_env(api(), cName, &env)); err != nil {
		return nil, err
	}

	e := &Env{env: env}
	runtime.SetFinalizer(e, (*Env).Close)
	return e, nil
}

// OptimizationLevel selects ONNX Runtime graph optimizations. The zero value
// enables all of them.
type OptimizationLevel int

const (
	OptimizeAll OptimizationLevel = iota
	OptimizeExtended
	OptimizeBasic
	OptimizeDisabled
)

// ort maps the level to GraphOptimizationLevel.
func (l OptimizationLevel) ort() int {
	switch l {
	case OptimizeDisabled:
		return 0
	case OptimizeBasic:
		return 1
	case OptimizeExtended:
		return 2
	default:
		return 99
	}
}

// SessionOptions tunes session creation. Zero thread counts let ONNX Runtime
// decide.
type SessionOptions struct {
	IntraOpThreads int
	InterOpThreads int
	Optimization   OptimizationLevel
}

// NewSession creates a session from in-memory ONNX model data.
func (e *Env) NewSession(modelData []byte, opts SessionOptions) (*Session, error) {
	if e.env == nil {
		return nil, ErrClosed
	}
	if len(modelData) == 0 {
		return nil, fmt.Errorf("onnx: empty model data")
	}

	var cOpts *C.OrtSessionOptions
	if err := checkStatus(C.ort_create_session_options(api(),
		C.int(opts.IntraOpThreads), C.int(opts.InterOpThreads), C.int(opts.Optimization.ort()), &cOpts,
	)); err != nil {
		if cOpts != nil {
			C.ort_release_session_options(api(), cOpts)
		}
		return nil, err
	}
	defer C.ort_release_session_options(api(), cOpts)

	var session *C.OrtSession
	if err := checkStatus(C.ort_create_session_from_memory(
		api(), e.env,
		unsafe.Pointer(&modelData[0]), C.size_t(len(modelData)),
		cOpts, &session,
	)); err != nil {
		return nil, err
	}

	s := &Session{session: session, pinned: modelData}
	runtime.SetFinalizer(s, (*Session).Close)
	return s, nil
}

// LoadSession reads an .onnx file and creates a session from it.
func (e *Env) LoadSession(path string, opts SessionOptions) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: read model: %w", err)
	}
	return e.NewSession(data, opts)
}

// Close releases the environment.
func (e *Env) Close() error {
	if e.env != nil {
		C.ort_release_env(api(), e.env)
		e.env = nil
		runtime.SetFinalizer(e, nil)
	}
	return nil
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// Session holds a loaded ONNX model.
type Session struct {
	session *C.OrtSession
	pinned  any // prevents GC of model data
}

// InputNames returns the model's input names in declaration order.
func (s *Session) InputNames() ([]string, error) {
	return s.ioNames(true)
}

// OutputNames returns the model's output names in declaration order.
func (s *Session) OutputNames() ([]string, error) {
	return s.ioNames(false)
}

func (s *Session) ioNames(input bool) ([]string, error) {
	if s.session == nil {
		return nil, ErrClosed
	}
	isInput := C.int(0)
	if input {
		isInput = 1
	}
	var n C.size_t
	if err := checkStatus(C.ort_io_count(api(), s.session, isInput, &n)); err != nil {
		return nil, err
	}
	names := make([]string, int(n))
	buf := (*C.char)(C.malloc(256))
	defer C.free(unsafe.Pointer(buf))
	for i := range names {
		if err := checkStatus(C.ort_io_name(api(), s.session, isInput, C.size_t(i), buf, 256)); err != nil {
			return nil, err
		}
		names[i] = C.GoString(buf)
	}
	return names, nil
}

// Run executes inference with the given inputs and output names.
// Returns output tensors. The caller must close each output tensor.
func (s *Session) Run(inputNames []string, inputs []*Tensor, outputNames []string) ([]*Tensor, error) {
	if s.session == nil {
		return nil, ErrClosed
	}
	if len(inputNames) != len(inputs) {
		return nil, fmt.Errorf("onnx: input names/tensors length mismatch: %d vs %d", len(inputNames), len(inputs))
	}
	if len(inputs) == 0 || len(outputNames) == 0 {
		return nil, fmt.Errorf("onnx: run needs at least one input and one output")
	}

	cInputNames := make([]*C.char, len(inputNames))
	for i, name := range inputNames {
		cInputNames[i] = C.CString(name)
		defer C.free(unsafe.Pointer(cInputNames[i]))
	}

	cInputs := make([]*C.OrtValue, len(inputs))
	for i, t := range inputs {
		cInputs[i] = t.value
	}

	cOutputNames := make([]*C.char, len(outputNames))
	for i, name := range outputNames {
		cOutputNames[i] = C.CString(name)
		defer C.free(unsafe.Pointer(cOutputNames[i]))
	}

	cOutputs := make([]*C.OrtValue, len(outputNames))

	status := C.ort_run(api(), s.session,
		&cInputNames[0], &cInputs[0], C.size_t(len(inputs)),
		&cOutputNames[0], C.size_t(len(outputNames)), &cOutputs[0],
	)
	runtime.KeepAlive(inputs)
	if err := checkStatus(status); err != nil {
		return nil, err
	}

	outputs := make([]*Tensor, len(outputNames))
	for i, val := range cOutputs {
		outputs[i] = &Tensor{value: val, owned: true}
		runtime.SetFinalizer(outputs[i], (*Tensor).Close)
	}
	return outputs, nil
}

// Close releases the session.
func (s *Session) Close() error {
	if s.session != nil {
		C.ort_release_session(api(), s.session)
		s.session = nil
		s.pinned = nil
		runtime.SetFinalizer(s, nil)
	}
	return nil
}

// --------------------------------------------------------------------------
// Tensor
// --------------------------------------------------------------------------

// Tensor is an N-dimensional float32 tensor (OrtValue).
type Tensor struct {
	value  *C.OrtValue
	pinned any  // prevents GC of external data
	owned  bool // if true, Close releases the OrtValue
}

// NewTensor creates a float32 tensor with the given shape and data.
// The data slice must remain valid for the lifetime of the Tensor.
func NewTensor(shape []int64, data []float32) (*Tensor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("onnx: empty tensor data")
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("onnx: empty tensor shape")
	}

	total := int64(1)
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("onnx: invalid dimension %d in shape %v", d, shape)
		}
		total *= d
	}
	if int64(len(data)) < total {
		return nil, fmt.Errorf("onnx: tensor data too short: got %d, need %d", len(data), total)
	}

	var memInfo *C.OrtMemoryInfo
	if err := checkStatus(C.ort_create_cpu_memory_info(api(), &memInfo)); err != nil {
		return nil, err
	}
	defer C.ort_release_memory_info(api(), memInfo)

	var value *C.OrtValue
	if err := checkStatus(C.ort_create_tensor_float(
		api(), memInfo,
		(*C.float)(unsafe.Pointer(&data[0])),
		C.size_t(total),
		(*C.int64_t)(unsafe.Pointer(&shape[0])),
		C.size_t(len(shape)),
		&value,
	)); err != nil {
		return nil, err
	}

	t := &Tensor{value: value, pinned: data, owned: true}
	runtime.SetFinalizer(t, (*Tensor).Close)
	return t, nil
}

// FloatData copies the tensor data into a new float32 slice.
func (t *Tensor) FloatData() ([]float32, error) {
	shape, err := t.Shape()
	if err != nil {
		return nil, err
	}
	total := 1
	for _, d := range shape {
		total *= int(d)
	}
	if total <= 0 {
		return nil, nil
	}

	var ptr *C.float
	if err := checkStatus(C.ort_get_tensor_float_data(api(), t.value, &ptr)); err != nil {
		return nil, err
	}
	out := make([]float32, total)
	C.memcpy(unsafe.Pointer(&out[0]), unsafe.Pointer(ptr), C.size_t(total*4))
	return out, nil
}

// Shape returns the tensor dimensions.
func (t *Tensor) Shape() ([]int64, error) {
	if t.value == nil {
		return nil, ErrClosed
	}
	var ndim C.size_t
	if err := checkStatus(C.ort_get_tensor_ndim(api(), t.value, &ndim)); err != nil {
		return nil, err
	}
	if ndim == 0 {
		return nil, nil
	}

	shape := make([]int64, int(ndim))
	if err := checkStatus(C.ort_get_tensor_shape(api(), t.value, (*C.int64_t)(unsafe.Pointer(&shape[0])), ndim)); err != nil {
		return nil, err
	}
	return shape, nil
}

// Close releases the tensor.
func (t *Tensor) Close() error {
	if t.value != nil && t.owned {
		C.ort_release_value(api(), t.value)
		t.value = nil
		t.pinned = nil
		runtime.SetFinalizer(t, nil)
	}
	return nil
}
