// Package onnxbackend implements the backend.Adapter for ONNX Runtime
// models via github.com/yalue/onnxruntime_go, the same binding used by
// other_examples' ml-inference service. Session creation and the
// shared-library path follow that file's InitializeEnvironment/
// NewSession sequence.
package onnxbackend

import (
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/tutu-network/inferrt/internal/domain"
	"github.com/tutu-network/inferrt/internal/logging"
	"github.com/tutu-network/inferrt/internal/tensor"
)

var (
	envOnce  sync.Once
	envErr   error
)

// ensureEnvironment lazily calls ort.InitializeEnvironment exactly once
// per process, since onnxruntime_go treats it as a global singleton.
func ensureEnvironment(sharedLibPath string) error {
	envOnce.Do(func() {
		if sharedLibPath != "" {
			ort.SetSharedLibraryPath(sharedLibPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

// IOSpec names one model input or output blob and its shape (elements
// are always float32), supplied by the caller since onnxruntime_go sessions are built against
// a fixed input/output shape list.
type IOSpec struct {
	Name  string
	Shape []int64
}

// Backend wraps one ort.Session for a single .onnx model.
type Backend struct {
	name    string
	session *ort.DynamicAdvancedSession
	inputs  []IOSpec
	outputs []IOSpec
	log     logging.Logger
}

// Config describes the model file and its fixed I/O shapes, since
// ONNX Runtime needs to know them up front to build input/output
// tensors.
type Config struct {
	ModelPath     string
	SharedLibPath string
	Inputs        []IOSpec
	Outputs       []IOSpec
}

// New loads an ONNX model and builds a session. New does not check
// cfg.ModelPath's suffix; registry.Validate rejects non-".onnx" paths
// when a descriptor is registered (spec.md §6 backend-to-suffix mapping).
func New(cfg Config, log logging.Logger) (*Backend, error) {
	if log == nil {
		log = logging.Global()
	}
	if err := ensureEnvironment(cfg.SharedLibPath); err != nil {
		return nil, fmt.Errorf("onnxbackend: initialize environment: %w", err)
	}

	inputNames := make([]string, len(cfg.Inputs))
	for i, in := range cfg.Inputs {
		inputNames[i] = in.Name
	}
	outputNames := make([]string, len(cfg.Outputs))
	for i, out := range cfg.Outputs {
		outputNames[i] = out.Name
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("onnxbackend: new session for %q: %w", cfg.ModelPath, err)
	}

	return &Backend{name: cfg.ModelPath, session: session, inputs: cfg.Inputs, outputs: cfg.Outputs, log: log}, nil
}

func (b *Backend) Kind() domain.BackendKind { return domain.BackendONNX }

// AllocateBufferSet builds one host-backed tensor per declared input
// and output blob, sized to each spec's element count in float32s.
func (b *Backend) AllocateBufferSet() (*tensor.Set, error) {
	tensors := make(map[string]*tensor.Tensor, len(b.inputs)+len(b.outputs))
	order := make([]string, 0, len(b.inputs)+len(b.outputs))

	for _, spec := range b.inputs {
		shape := int64ToInt(spec.Shape)
		tensors[spec.Name] = tensor.New(spec.Name, 4, shape, nil)
		order = append(order, spec.Name)
	}
	for _, spec := range b.outputs {
		shape := int64ToInt(spec.Shape)
		tensors[spec.Name] = tensor.New(spec.Name, 4, shape, nil)
		order = append(order, spec.Name)
	}

	return tensor.NewSet(tensors, order), nil
}

func int64ToInt(in []int64) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}

// Preprocess performs no pixel-to-tensor conversion; this backend only
// validates that the expected input blobs are present.
func (b *Backend) Preprocess(set *tensor.Set, input any) (bool, error) {
	for _, spec := range b.inputs {
		if _, err := set.Get(spec.Name); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Infer runs the ONNX Runtime session against the set's input tensors,
// writing results into the set's output tensors in place. ONNX Runtime
// sessions are safe to call from any goroutine, so callerKey is unused
// here (see gpubackend for the backend that actually needs it).
func (b *Backend) Infer(set *tensor.Set, _ string) (bool, error) {
	ortInputs := make([]ort.Value, len(b.inputs))
	for i, spec := range b.inputs {
		t, err := set.Get(spec.Name)
		if err != nil {
			return false, err
		}
		raw, err := t.RawPointer()
		if err != nil {
			return false, err
		}
		v, err := ort.NewTensor(ort.NewShape(spec.Shape...), bytesToFloat32(raw))
		if err != nil {
			return false, fmt.Errorf("onnxbackend: build input tensor %q: %w", spec.Name, err)
		}
		ortInputs[i] = v
	}

	ortOutputs := make([]ort.Value, len(b.outputs))
	if err := b.session.Run(ortInputs, ortOutputs); err != nil {
		return false, fmt.Errorf("onnxbackend: session run: %w", err)
	}

	for i, spec := range b.outputs {
		t, err := set.Get(spec.Name)
		if err != nil {
			return false, err
		}
		dst, err := t.RawPointer()
		if err != nil {
			return false, err
		}
		writeFloat32Tensor(dst, ortOutputs[i])
	}
	return true, nil
}

// Postprocess hands the raw output tensor set back; task-specific
// decoding (boxes, disparity maps, segmentation masks) happens in
// internal/driver's typed wrappers, not in the backend.
func (b *Backend) Postprocess(set *tensor.Set) (any, bool, error) {
	return set, true, nil
}

func (b *Backend) Close() error {
	if b.session == nil {
		return nil
	}
	return b.session.Destroy()
}

func bytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func writeFloat32Tensor(dst []byte, v ort.Value) {
	fv, ok := v.(*ort.Tensor[float32])
	if !ok {
		return
	}
	data := fv.GetData()
	for i, f := range data {
		bits := math.Float32bits(f)
		dst[i*4] = byte(bits)
		dst[i*4+1] = byte(bits >> 8)
		dst[i*4+2] = byte(bits >> 16)
		dst[i*4+3] = byte(bits >> 24)
	}
}
