// Package backend defines the adapter boundary every inference backend
// (ONNX Runtime, a GPU engine, an NPU engine, or the in-memory mock)
// implements, and hosts the four concrete adapters.
//
// This is a direct rendering of
// original_source/deploy_core/include/deploy_core/base_infer_core.hpp's
// IRotInferCore: AllocBlobsBuffer becomes AllocateBufferSet, and the
// three protected virtuals PreProcess/Inference/PostProcess become the
// three Adapter methods Preprocess/Infer/Postprocess (spec.md §4.6/§4.7).
package backend

import (
	"github.com/tutu-network/inferrt/internal/domain"
	"github.com/tutu-network/inferrt/internal/tensor"
)

// Adapter is the boundary between the inference driver and a specific
// backend's buffer allocation and compute. Preprocess/Infer/Postprocess
// each return false (or an error) to tell the pipeline to drop the
// package at that stage without poisoning the rest of the run.
type Adapter interface {
	// Kind identifies which backend this adapter is.
	Kind() domain.BackendKind

	// AllocateBufferSet builds one fresh tensor.Set shaped for the
	// loaded model — called exactly K times, once per pool slot, at
	// driver construction.
	AllocateBufferSet() (*tensor.Set, error)

	Preprocess(set *tensor.Set, input any) (bool, error)
	// Infer runs the model against set. callerKey identifies the calling
	// goroutine (see CallerKey) so backends that require a distinct
	// execution context per caller — the GPU backend chief among them —
	// can look one up or lazily create it (spec.md §4.7).
	Infer(set *tensor.Set, callerKey string) (bool, error)
	Postprocess(set *tensor.Set) (any, bool, error)

	// Close releases any backend-owned resources (execution contexts,
	// device handles, loaded model weights). Called once, after every
	// buffer-pool handle has been released.
	Close() error
}

// Factory constructs an Adapter from a model descriptor, mirroring
// original_source's BaseInferCoreFactory.
type Factory interface {
	Create(desc domain.ModelDescriptor) (Adapter, error)
}
