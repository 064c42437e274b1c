// Package gpubackend implements the backend.Adapter for a GPU compute
// engine via github.com/cogentcore/webgpu — the device/adapter/queue
// setup sequence follows Carmen-Shannon-oxy-go's
// wgpu_renderer_backend.go (CreateInstance → RequestAdapter →
// RequestDevice → GetQueue), repurposed from rendering to compute
// dispatch. The per-goroutine execution-context cache is grounded on
// original_source/inference_core/trt_core/src/trt_core.cpp's
// thread-id-keyed context map (TensorRT requires one execution context
// per calling thread); Go has no stable thread identity, so a caller-
// supplied context key stands in for std::thread::id.
package gpubackend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/tutu-network/inferrt/internal/domain"
	"github.com/tutu-network/inferrt/internal/logging"
	"github.com/tutu-network/inferrt/internal/tensor"
)

// execContext bundles the per-caller GPU resources that must not be
// shared concurrently: the bind group last built for that caller. The
// command encoder is created fresh inside each Infer call.
type execContext struct {
	bindGroup *wgpu.BindGroup
}

// Config describes the compute pipeline's shader module and declared
// I/O blob byte sizes.
type Config struct {
	ShaderSource    string
	EntryPoint      string
	InputByteSizes  map[string]int
	OutputByteSizes map[string]int
	MaxContexts     int
}

// Backend runs inference as a WebGPU compute dispatch.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	pipeline *wgpu.ComputePipeline

	cfg Config
	log logging.Logger

	ctxMu sync.Mutex
	ctx   map[string]*execContext // keyed by caller-supplied context key, grounded on trt_core's thread-id map
}

// New creates a WebGPU instance, requests an adapter and device, and
// compiles the compute pipeline from cfg.ShaderSource.
func New(cfg Config, log logging.Logger) (*Backend, error) {
	if log == nil {
		log = logging.Global()
	}

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{})
	if err != nil {
		return nil, fmt.Errorf("gpubackend: request adapter: %w", err)
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "inferrt compute device"})
	if err != nil {
		return nil, fmt.Errorf("gpubackend: request device: %w", err)
	}

	shaderModule, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "inferrt compute shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: cfg.ShaderSource},
	})
	if err != nil {
		return nil, fmt.Errorf("gpubackend: compile shader: %w", err)
	}

	pipeline, err := device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "inferrt compute pipeline",
		Compute: wgpu.ProgrammableStageDescriptor{Module: shaderModule, EntryPoint: cfg.EntryPoint},
	})
	if err != nil {
		return nil, fmt.Errorf("gpubackend: create compute pipeline: %w", err)
	}

	return &Backend{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    device.GetQueue(),
		pipeline: pipeline,
		cfg:      cfg,
		ctx:      make(map[string]*execContext),
	}, nil
}

func (b *Backend) Kind() domain.BackendKind { return domain.BackendGPU }

func (b *Backend) AllocateBufferSet() (*tensor.Set, error) {
	tensors := make(map[string]*tensor.Tensor, len(b.cfg.InputByteSizes)+len(b.cfg.OutputByteSizes))
	order := make([]string, 0, len(b.cfg.InputByteSizes)+len(b.cfg.OutputByteSizes))

	for name, size := range b.cfg.InputByteSizes {
		region, err := newDeviceBuffer(b.device, size)
		if err != nil {
			return nil, fmt.Errorf("gpubackend: alloc device buffer %q: %w", name, err)
		}
		tensors[name] = tensor.New(name, 1, []int{size}, region)
		order = append(order, name)
	}
	for name, size := range b.cfg.OutputByteSizes {
		region, err := newDeviceBuffer(b.device, size)
		if err != nil {
			return nil, fmt.Errorf("gpubackend: alloc device buffer %q: %w", name, err)
		}
		tensors[name] = tensor.New(name, 1, []int{size}, region)
		order = append(order, name)
	}

	return tensor.NewSet(tensors, order), nil
}

// Preprocess uploads the host-staged input bytes to their device
// buffers, flipping each tensor's location tag to Device.
func (b *Backend) Preprocess(set *tensor.Set, _ any) (bool, error) {
	for name := range b.cfg.InputByteSizes {
		t, err := set.Get(name)
		if err != nil {
			return false, err
		}
		if err := t.ToLocation(tensor.Device); err != nil {
			return false, err
		}
	}
	return true, nil
}

// contextFor returns (creating if needed) the execution context bound
// to key — mirroring trt_core's lazy per-thread context map, with key
// standing in for std::thread::id since Go goroutines carry no stable
// identity a library can observe.
func (b *Backend) contextFor(key string) *execContext {
	b.ctxMu.Lock()
	defer b.ctxMu.Unlock()
	if c, ok := b.ctx[key]; ok {
		return c
	}
	c := &execContext{}
	b.ctx[key] = c
	return c
}

// Infer looks up (creating if absent) the execution context bound to
// callerKey, rebinds every I/O tensor's current device buffer into that
// context's bind group, and dispatches the compute pass (spec.md §4.7).
// The bind group is rebuilt on every call rather than cached past the
// first build: the context is keyed by caller, not by tensor set, and a
// pooled tensor set's buffers are only stable for the duration of one
// call.
func (b *Backend) Infer(set *tensor.Set, callerKey string) (bool, error) {
	ctx := b.contextFor(callerKey)

	bindGroup, err := b.buildBindGroup(set)
	if err != nil {
		return false, fmt.Errorf("gpubackend: rebind tensors for ctx %q: %w", callerKey, err)
	}
	ctx.bindGroup = bindGroup

	encoder, err := b.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "inferrt dispatch"})
	if err != nil {
		return false, fmt.Errorf("gpubackend: create command encoder: %w", err)
	}

	pass := encoder.BeginComputePass(&wgpu.ComputePassDescriptor{Label: "inferrt compute pass"})
	pass.SetPipeline(b.pipeline)
	pass.SetBindGroup(0, ctx.bindGroup, nil)
	pass.DispatchWorkgroups(1, 1, 1)
	pass.End()

	cmd, err := encoder.Finish(&wgpu.CommandBufferDescriptor{Label: "inferrt commands"})
	if err != nil {
		return false, fmt.Errorf("gpubackend: finish command buffer: %w", err)
	}
	b.queue.Submit(cmd)

	for name := range b.cfg.OutputByteSizes {
		t, err := set.Get(name)
		if err != nil {
			return false, err
		}
		t.SetLocation(tensor.Device)
	}
	return true, nil
}

// buildBindGroup binds every declared input and output blob's current
// device buffer to a sequential binding slot, in name-sorted order so
// the layout is stable across calls.
func (b *Backend) buildBindGroup(set *tensor.Set) (*wgpu.BindGroup, error) {
	names := make([]string, 0, len(b.cfg.InputByteSizes)+len(b.cfg.OutputByteSizes))
	for name := range b.cfg.InputByteSizes {
		names = append(names, name)
	}
	for name := range b.cfg.OutputByteSizes {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]wgpu.BindGroupEntry, 0, len(names))
	for i, name := range names {
		t, err := set.Get(name)
		if err != nil {
			return nil, err
		}
		buf, err := deviceBufferOf(t)
		if err != nil {
			return nil, err
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  buf.buffer,
			Size:    uint64(t.ByteSize()),
		})
	}

	return b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "inferrt bind group",
		Layout:  b.pipeline.GetBindGroupLayout(0),
		Entries: entries,
	})
}

// deviceBufferOf recovers the concrete *deviceBuffer backing t, the
// type this package's AllocateBufferSet hands out as every tensor's
// DeviceRegion.
func deviceBufferOf(t *tensor.Tensor) (*deviceBuffer, error) {
	db, ok := t.Device().(*deviceBuffer)
	if !ok {
		return nil, fmt.Errorf("gpubackend: tensor %q has no GPU device buffer", t.Name())
	}
	return db, nil
}

func (b *Backend) Postprocess(set *tensor.Set) (any, bool, error) {
	for name := range b.cfg.OutputByteSizes {
		t, err := set.Get(name)
		if err != nil {
			return nil, false, err
		}
		if err := t.ToLocation(tensor.Host); err != nil {
			return nil, false, err
		}
	}
	return set, true, nil
}

func (b *Backend) Close() error {
	b.ctxMu.Lock()
	b.ctx = nil
	b.ctxMu.Unlock()
	if b.queue != nil {
		b.queue.Release()
	}
	if b.pipeline != nil {
		b.pipeline.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
	return nil
}

// deviceBuffer adapts a *wgpu.Buffer to tensor.DeviceRegion, staging
// uploads/downloads through the queue since WebGPU buffers are not
// directly host-addressable without an explicit map step.
type deviceBuffer struct {
	device *wgpu.Device
	queue  *wgpu.Queue
	buffer *wgpu.Buffer
	size   int
	staged []byte
}

func newDeviceBuffer(device *wgpu.Device, size int) (*deviceBuffer, error) {
	buf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "inferrt tensor buffer",
		Size:  uint64(size),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	return &deviceBuffer{device: device, buffer: buf, size: size, staged: make([]byte, size)}, nil
}

func (d *deviceBuffer) Bytes() []byte { return d.staged }

func (d *deviceBuffer) CopyFromHost(host []byte) error {
	copy(d.staged, host)
	return nil
}

func (d *deviceBuffer) CopyToHost(host []byte) error {
	copy(host, d.staged)
	return nil
}
