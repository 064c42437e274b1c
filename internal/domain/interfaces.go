package domain

// ─── Capability Interfaces ──────────────────────────────────────────────────
// These interfaces define boundaries between layers: the pipeline and
// backend packages depend on them without knowing about any concrete
// package or descriptor type.

// TensorSetHolder is the capability every pipeline package must expose: a
// pointer to the embedded pooled tensor-set. The pipeline engine is
// polymorphic over any package type implementing this single method
// (spec.md Design Note: "package is a capability").
//
// The concrete tensor-set type lives in package tensor; it is referenced
// here as `any` to keep this package free of a dependency on tensor,
// which itself depends on domain for its sentinel errors.
type TensorSetHolder interface {
	TensorSetPtr() any
}

// TaskKind names one of the closed set of inference tasks the driver
// exposes typed entry points for.
type TaskKind string

const (
	TaskDetection   TaskKind = "detection"
	TaskStereo      TaskKind = "stereo"
	TaskSegmentation TaskKind = "segmentation"
)

// BackendKind names one of the three supported inference backends, or
// the in-memory mock.
type BackendKind string

const (
	BackendONNX BackendKind = "onnx"
	BackendGPU  BackendKind = "gpu"
	BackendNPU  BackendKind = "npu"
	BackendMock BackendKind = "mock"
)

// ModelDescriptor fully describes one registered model task: which
// backend loads it, where the model file lives, and any caller-supplied
// shape overrides for blobs the model declares as dynamically shaped.
type ModelDescriptor struct {
	Name           string
	Task           TaskKind
	Backend        BackendKind
	ModelPath      string
	ShapeOverrides map[string][]int
}

// ModelStore abstracts persistent storage of ModelDescriptor rows.
// Implemented by internal/registry's sqlite-backed Store.
type ModelStore interface {
	UpsertDescriptor(d ModelDescriptor) error
	GetDescriptor(name string) (*ModelDescriptor, error)
	ListDescriptors() ([]ModelDescriptor, error)
	DeleteDescriptor(name string) error
}
