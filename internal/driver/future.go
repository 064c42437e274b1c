package driver

import "github.com/tutu-network/inferrt/internal/domain"

// Future is the caller-facing handle RunAsync hands back (spec.md §4.6:
// "run_async(input...[, cover_oldest]) -> future<result>"). It is
// grounded on the single-use buffered-channel completion signal the
// teacher uses for async subprocess results
// (Tutu-Engine-tutuengine/internal/infra/engine/subprocess.go's
// earlyExit := make(chan error, 1)), adapted into a one-shot
// promise/future pair.
//
// A Future may be invalid from the moment it is returned: a
// non-blocking pool acquire that found the pool exhausted, or a submit
// that raced pipeline Close, both resolve to an already-invalid future
// without an error (spec.md §7.2, §7.5). Callers must check Valid
// before calling Wait.
type Future struct {
	valid  bool
	done   chan struct{}
	result any
	err    error
}

// invalidFuture reports that no work was ever dispatched for this
// call. Valid() is false; Wait() fails fast with ErrFutureInvalid.
func invalidFuture() *Future {
	return &Future{}
}

// newFuture returns a pending future and the resolver that fulfils it
// exactly once.
func newFuture() (*Future, func(result any, err error)) {
	f := &Future{valid: true, done: make(chan struct{})}
	resolve := func(result any, err error) {
		f.result, f.err = result, err
		close(f.done)
	}
	return f, resolve
}

// Valid reports whether this future could ever resolve.
func (f *Future) Valid() bool { return f.valid }

// Ready reports whether the result is already available, without
// blocking.
func (f *Future) Ready() bool {
	if !f.valid {
		return false
	}
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves — a suspension point
// (spec.md §4 "Suspension points: ... awaiting a future") — and returns
// ErrFutureInvalid immediately instead of blocking if the future was
// never valid. A future abandoned by Engine.Close (spec.md's Open
// Question resolution) never resolves and Wait blocks forever on it;
// callers layer their own timeouts on top, per spec.md §4 "Timeouts".
func (f *Future) Wait() (any, error) {
	if !f.valid {
		return nil, domain.ErrFutureInvalid
	}
	<-f.done
	return f.result, f.err
}
