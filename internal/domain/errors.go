package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Configuration errors (spec.md §7.1) — surfaced at construction time.
	ErrInvalidPoolSize        = errors.New("pool size must be between 1 and 100")
	ErrUnknownModelPath       = errors.New("model path does not exist")
	ErrUnknownShapeOverride   = errors.New("shape override keyed by unknown blob name")
	ErrModelSuffixMismatch    = errors.New("model file suffix does not match backend expectation")
	ErrDynamicShapeNoOverride = errors.New("model declares dynamic shape but no override was supplied")

	// Resource exhaustion (spec.md §7.2)
	ErrPoolExhausted = errors.New("buffer pool exhausted — all tensor sets checked out")

	// Stage failure (spec.md §7.3)
	ErrStageFailed = errors.New("pipeline stage returned failure")

	// Shape / tensor-access errors (spec.md §7.4)
	ErrUnknownBlob      = errors.New("tensor-set has no blob with that name")
	ErrShapeOverBudget  = errors.New("shape exceeds tensor's default byte footprint")
	ErrLocationUnknown  = errors.New("tensor location is unknown; raw pointer access refused")
	ErrNoDeviceRegion   = errors.New("tensor has no device-memory region")
	ErrCrossLocationCopy = errors.New("to_location target is unreachable for this tensor")

	// Shutdown race (spec.md §7.5)
	ErrQueueRejected = errors.New("queue push rejected — push side disabled")
	ErrQueueDrained  = errors.New("queue drained — no more input and queue is empty")
	ErrQueueEmpty    = errors.New("queue is empty")

	// Future validity (spec.md §7.2, §4.6) — an async caller must check
	// Future.Valid before awaiting; Wait on an invalid future fails fast
	// with this error instead of blocking forever.
	ErrFutureInvalid = errors.New("future was never valid — acquire or submit failed before dispatch")

	// Backend / registry errors
	ErrBackendUnsupported = errors.New("unsupported backend kind")
	ErrModelNotRegistered = errors.New("model task not registered")
	ErrTaskKindMismatch   = errors.New("model descriptor task kind does not match requested operation")
)
