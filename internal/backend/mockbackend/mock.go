// Package mockbackend provides an in-memory Adapter for testing the
// driver and pipeline without any native inference library, modeled on
// Tutu-Engine-tutuengine's internal/infra/engine.MockBackend (a fake
// LoadModel/Generate pair that never touches llama.cpp).
package mockbackend

import (
	"fmt"
	"time"

	"github.com/tutu-network/inferrt/internal/domain"
	"github.com/tutu-network/inferrt/internal/logging"
	"github.com/tutu-network/inferrt/internal/tensor"
)

// Backend is a deterministic fake adapter: Preprocess copies input
// bytes into the "input" blob, Infer sleeps a configurable duration and
// writes a fixed pattern into the "output" blob, Postprocess decodes
// that pattern back into a string. Useful for exercising the pipeline
// and driver's concurrency and lifecycle without CGO or a model file.
type Backend struct {
	name        string
	latency     time.Duration
	inputBytes  int
	outputBytes int
	log         logging.Logger
	closed      bool
}

// New builds a mock adapter. inputBytes/outputBytes size the "input"
// and "output" blobs that AllocateBufferSet produces.
func New(name string, latency time.Duration, inputBytes, outputBytes int, log logging.Logger) *Backend {
	if log == nil {
		log = logging.Global()
	}
	return &Backend{name: name, latency: latency, inputBytes: inputBytes, outputBytes: outputBytes, log: log}
}

func (b *Backend) Kind() domain.BackendKind { return domain.BackendMock }

func (b *Backend) AllocateBufferSet() (*tensor.Set, error) {
	in := tensor.New("input", 1, []int{b.inputBytes}, nil)
	out := tensor.New("output", 1, []int{b.outputBytes}, nil)
	return tensor.NewSet(map[string]*tensor.Tensor{"input": in, "output": out}, []string{"input", "output"}), nil
}

func (b *Backend) Preprocess(set *tensor.Set, input any) (bool, error) {
	if b.closed {
		return false, fmt.Errorf("mockbackend %q: preprocess after close", b.name)
	}
	in, err := set.Get("input")
	if err != nil {
		return false, err
	}
	s, _ := input.(string)
	buf, err := in.RawPointer()
	if err != nil {
		return false, err
	}
	n := copy(buf, s)
	b.log.Debugf("mockbackend %q: preprocessed %d of %d input bytes", b.name, n, len(s))
	return true, nil
}

func (b *Backend) Infer(set *tensor.Set, _ string) (bool, error) {
	if b.closed {
		return false, fmt.Errorf("mockbackend %q: infer after close", b.name)
	}
	if b.latency > 0 {
		time.Sleep(b.latency)
	}
	out, err := set.Get("output")
	if err != nil {
		return false, err
	}
	buf, err := out.RawPointer()
	if err != nil {
		return false, err
	}
	copy(buf, []byte("mock-inference-result"))
	return true, nil
}

func (b *Backend) Postprocess(set *tensor.Set) (any, bool, error) {
	out, err := set.Get("output")
	if err != nil {
		return nil, false, err
	}
	buf, err := out.RawPointer()
	if err != nil {
		return nil, false, err
	}
	end := 0
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	return string(buf[:end]), true, nil
}

func (b *Backend) Close() error {
	b.closed = true
	return nil
}
