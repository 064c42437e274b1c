package pipeline

// StageFunc is a single link in the pipeline: a function from a package
// to a boolean success flag (spec.md §4.3). Returning false — or
// panicking — causes the engine to drop exactly that one package
// without forwarding it, and without poisoning the rest of the
// pipeline.
type StageFunc[P any] func(pkg P) bool

// Stage pairs a stage function with the name used in logs, metrics, and
// the drained-signal propagation trace.
type Stage[P any] struct {
	Name string
	Fn   StageFunc[P]
}
