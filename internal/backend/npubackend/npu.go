// Package npubackend implements the backend.Adapter for RKNN-format NPU
// models. It is grounded on
// original_source/inference_core/rknn_core/src/rknn_core.cpp's
// RknnInferCore: a bounded pool of `parallel_ctx_num` contexts backed by
// a BlockQueue, where Inference blocks to borrow a context and returns
// it when done. No Go RKNN binding appears anywhere in the retrieval
// corpus, so the native call itself is isolated behind the Config.Runner
// field — a real deployment plugs in a cgo wrapper around librknnrt
// there; this package supplies the concurrency and lifecycle shape the
// corpus demonstrates around that call.
package npubackend

import (
	"fmt"

	"github.com/tutu-network/inferrt/internal/domain"
	"github.com/tutu-network/inferrt/internal/logging"
	"github.com/tutu-network/inferrt/internal/queue"
	"github.com/tutu-network/inferrt/internal/tensor"
)

// NativeRunner executes one forward pass of the loaded model against
// ctx, reading inputs from and writing outputs to set. Swappable so
// tests exercise the context-pool concurrency without a real NPU.
type NativeRunner func(ctx int, set *tensor.Set) error

// Config names the model file and the number of parallel hardware
// contexts to keep initialized (rknn_core.cpp's parallel_ctx_num).
type Config struct {
	ModelPath      string
	ParallelCtxNum int
	InputByteSizes map[string]int
	OutputByteSizes map[string]int
	Runner         NativeRunner
}

// Backend runs inference through a bounded pool of NPU execution
// contexts, one per concurrent caller, up to ParallelCtxNum.
type Backend struct {
	cfg Config
	ctx *queue.Queue[int] // bq_ctx_: BlockQueue<rknn_context>
	log logging.Logger
}

// New initializes ParallelCtxNum native contexts (represented here as
// opaque integer handles 0..N-1; a real binding would store the
// rknn_context value itself) and seeds the free-context queue.
func New(cfg Config, log logging.Logger) (*Backend, error) {
	if cfg.ParallelCtxNum <= 0 {
		return nil, fmt.Errorf("npubackend: got invalid ctx_num: %d", cfg.ParallelCtxNum)
	}
	if log == nil {
		log = logging.Global()
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("npubackend: Config.Runner must be set to the native rknn_run binding")
	}

	ctxQueue := queue.New[int](cfg.ParallelCtxNum)
	for i := 0; i < cfg.ParallelCtxNum; i++ {
		if err := ctxQueue.PushBlocking(i); err != nil {
			return nil, fmt.Errorf("npubackend: seed context %d: %w", i, err)
		}
	}

	log.Debugf("npubackend: initialized using %d ctx instances", cfg.ParallelCtxNum)
	return &Backend{cfg: cfg, ctx: ctxQueue, log: log}, nil
}

func (b *Backend) Kind() domain.BackendKind { return domain.BackendNPU }

func (b *Backend) AllocateBufferSet() (*tensor.Set, error) {
	tensors := make(map[string]*tensor.Tensor, len(b.cfg.InputByteSizes)+len(b.cfg.OutputByteSizes))
	order := make([]string, 0, len(b.cfg.InputByteSizes)+len(b.cfg.OutputByteSizes))

	for name, size := range b.cfg.InputByteSizes {
		tensors[name] = tensor.New(name, 1, []int{size}, nil)
		order = append(order, name)
	}
	for name, size := range b.cfg.OutputByteSizes {
		tensors[name] = tensor.New(name, 1, []int{size}, nil)
		order = append(order, name)
	}
	return tensor.NewSet(tensors, order), nil
}

// Preprocess validates the declared input blobs exist; it performs no
// pixel conversion.
func (b *Backend) Preprocess(set *tensor.Set, _ any) (bool, error) {
	for name := range b.cfg.InputByteSizes {
		if _, err := set.Get(name); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Infer borrows one NPU context (blocking until one is free, bounding
// concurrent hardware use to ParallelCtxNum) and runs the native model
// against it, mirroring rknn_core.cpp's bq_ctx_.Take()/BlockPush(ctx)
// pair around rknn_run.
func (b *Backend) Infer(set *tensor.Set, _ string) (bool, error) {
	ctx, err := b.ctx.TakeBlocking()
	if err != nil {
		return false, fmt.Errorf("npubackend: no context available: %w", err)
	}
	defer func() {
		if pushErr := b.ctx.PushBlocking(ctx); pushErr != nil {
			b.log.Errorf("npubackend: failed to return context %d to pool: %v", ctx, pushErr)
		}
	}()

	if err := b.cfg.Runner(ctx, set); err != nil {
		return false, fmt.Errorf("npubackend: native run on ctx %d: %w", ctx, err)
	}
	return true, nil
}

func (b *Backend) Postprocess(set *tensor.Set) (any, bool, error) {
	return set, true, nil
}

func (b *Backend) Close() error {
	b.ctx.DisableAndClear()
	return nil
}
