// Package pipeline implements the multi-stage asynchronous pipeline
// engine (spec.md C3/C4, §4.3–§4.4): N stage workers and one delivery
// worker joined by N+1 bounded queues, with clean stop-and-drain and
// close semantics.
//
// This is a direct Go rendering of
// original_source/deploy_core/include/deploy_core/async_pipeline_impl.hpp's
// PipelineInstance<T>: the _InnerPackage{package, callback} wrapper
// becomes envelope[P], block_queue_ becomes a []*queue.Queue[*envelope[P]],
// and ThreadExcuteEntry/ThreadOutputEntry become runStage/runDelivery.
package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tutu-network/inferrt/internal/domain"
	"github.com/tutu-network/inferrt/internal/logging"
	"github.com/tutu-network/inferrt/internal/queue"
)

// State is the pipeline engine's lifecycle state (spec.md §3).
type State int32

const (
	StateUninitialized State = iota
	StateRunning
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// envelope carries a caller's package alongside the completion callback
// captured at submit time — the continuation travels inside the queued
// value, never through a side channel.
type envelope[P any] struct {
	pkg P
	cb  func(P)
}

// Hooks lets callers observe pipeline internals (stage timing, drops,
// callback delivery) without the engine depending on any particular
// metrics library. internal/metrics wires its Prometheus collectors
// through these.
type Hooks struct {
	OnStageDuration func(stage string, d time.Duration)
	OnStageDrop     func(stage string)
	OnCallback      func(outcome string) // "delivered" or "abandoned"
}

// Engine chains N stage workers via N+1 queues and one delivery worker.
// P is the package type; it must expose the pooled tensor-set capability
// (spec.md Design Note: "package is a capability").
type Engine[P domain.TensorSetHolder] struct {
	name          string
	stages        []Stage[P]
	queueCapacity int

	queues []*queue.Queue[*envelope[P]]
	wg     sync.WaitGroup

	state atomic.Int32
	log   logging.Logger
	hooks Hooks

	mu sync.Mutex // guards queues slice replacement across Start/Close
}

// New configures (but does not start) a pipeline with the given name
// and ordered stage descriptors.
func New[P domain.TensorSetHolder](name string, stages []Stage[P], log logging.Logger, hooks Hooks) *Engine[P] {
	if log == nil {
		log = logging.Global()
	}
	e := &Engine[P]{name: name, stages: stages, log: log, hooks: hooks}
	e.state.Store(int32(StateUninitialized))
	return e
}

// Start constructs N+1 queues of the given capacity, spawns N+1
// workers, and transitions the engine to running.
func (e *Engine[P]) Start(queueCapacity int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State(e.state.Load())
	if st == StateRunning || st == StateStopping {
		return fmt.Errorf("pipeline %q: Start called while %s", e.name, st)
	}

	e.queueCapacity = queueCapacity
	n := len(e.stages)
	e.queues = make([]*queue.Queue[*envelope[P]], n+1)
	for i := range e.queues {
		e.queues[i] = queue.New[*envelope[P]](queueCapacity)
	}

	qs := e.queues
	e.wg.Add(n + 1)
	for i := 0; i < n; i++ {
		go e.runStage(i, qs)
	}
	go e.runDelivery(n, qs)

	e.state.Store(int32(StateRunning))
	e.log.Debugf("pipeline %q: started with %d stages, queue capacity %d", e.name, n, queueCapacity)
	return nil
}

// IsRunning reports whether the engine is accepting submissions.
func (e *Engine[P]) IsRunning() bool {
	return State(e.state.Load()) == StateRunning
}

// State returns the current lifecycle state.
func (e *Engine[P]) State() State {
	return State(e.state.Load())
}

// QueueDepths returns the current size of each Q0..QN, for metrics
// polling.
func (e *Engine[P]) QueueDepths() []int {
	e.mu.Lock()
	qs := e.queues
	e.mu.Unlock()

	depths := make([]int, len(qs))
	for i, q := range qs {
		depths[i] = q.Size()
	}
	return depths
}

// Submit wraps (pkg, cb) into an envelope and blocking-pushes it to Q0,
// applying backpressure naturally. Returns ErrQueueRejected if the
// engine is not running or close raced the submission.
func (e *Engine[P]) Submit(pkg P, cb func(P)) error {
	e.mu.Lock()
	qs := e.queues
	e.mu.Unlock()

	if len(qs) == 0 || !e.IsRunning() {
		return domain.ErrQueueRejected
	}
	return qs[0].PushBlocking(&envelope[P]{pkg: pkg, cb: cb})
}

// SubmitCover is Submit's push_cover counterpart: if Q0 is full it drops
// the oldest queued package rather than blocking the caller.
func (e *Engine[P]) SubmitCover(pkg P, cb func(P)) error {
	e.mu.Lock()
	qs := e.queues
	e.mu.Unlock()

	if len(qs) == 0 || !e.IsRunning() {
		return domain.ErrQueueRejected
	}
	return qs[0].PushCover(&envelope[P]{pkg: pkg, cb: cb})
}

// SignalNoMoreInput begins a stop-and-drain shutdown: Q0 is marked
// no-more-input, and the drain condition propagates stage by stage as
// each worker observes drained and signals the next queue. Every
// package already submitted is still delivered.
func (e *Engine[P]) SignalNoMoreInput() {
	e.mu.Lock()
	qs := e.queues
	e.mu.Unlock()

	if len(qs) == 0 {
		return
	}
	e.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	qs[0].SetNoMoreInput()
}

// Wait blocks until all workers have exited (used after
// SignalNoMoreInput for a graceful drain-to-completion).
func (e *Engine[P]) Wait() {
	e.wg.Wait()
	e.state.CompareAndSwap(int32(StateStopping), int32(StateClosed))
}

// Close disables and clears every queue, joins all workers, and
// abandons any in-flight packages — their callbacks are NOT invoked
// (see DESIGN.md's Open Question resolution, grounded on
// async_pipeline_impl.hpp's ClosePipeline). Idempotent after the first
// call.
func (e *Engine[P]) Close() {
	e.mu.Lock()
	qs := e.queues
	e.queues = nil
	e.mu.Unlock()

	if qs == nil {
		return // already closed
	}
	if State(e.state.Load()) == StateClosed {
		return
	}

	for _, q := range qs {
		q.DisableAndClear()
	}
	e.wg.Wait()
	e.state.Store(int32(StateClosed))
	e.log.Debugf("pipeline %q: closed", e.name)
}

func (e *Engine[P]) runStage(i int, qs []*queue.Queue[*envelope[P]]) {
	defer e.wg.Done()
	stage := e.stages[i]
	in, out := qs[i], qs[i+1]

	e.log.Debugf("pipeline %q: stage %q worker starting", e.name, stage.Name)
	for {
		env, err := in.TakeBlocking()
		if err != nil {
			out.SetNoMoreInput()
			e.log.Debugf("pipeline %q: stage %q observed drained, propagating", e.name, stage.Name)
			return
		}

		ok := e.invokeStage(stage, env.pkg)
		if !ok {
			if e.hooks.OnStageDrop != nil {
				e.hooks.OnStageDrop(stage.Name)
			}
			continue
		}

		if err := out.PushBlocking(env); err != nil {
			// Shutdown raced this push; treat as a drop rather than
			// leaking the worker.
			if e.hooks.OnStageDrop != nil {
				e.hooks.OnStageDrop(stage.Name)
			}
		}
	}
}

func (e *Engine[P]) invokeStage(stage Stage[P], pkg P) (ok bool) {
	start := time.Now()
	defer func() {
		dur := time.Since(start)
		e.log.Debugf("pipeline %q: stage %q took %s", e.name, stage.Name, dur)
		if e.hooks.OnStageDuration != nil {
			e.hooks.OnStageDuration(stage.Name, dur)
		}
		if r := recover(); r != nil {
			e.log.Errorf("pipeline %q: stage %q panicked: %v — dropping package", e.name, stage.Name, r)
			ok = false
		}
	}()
	return stage.Fn(pkg)
}

func (e *Engine[P]) runDelivery(n int, qs []*queue.Queue[*envelope[P]]) {
	defer e.wg.Done()
	in := qs[n]

	e.log.Debugf("pipeline %q: delivery worker starting", e.name)
	for {
		env, err := in.TakeBlocking()
		if err != nil {
			return
		}
		if env.cb == nil {
			e.log.Warnf("pipeline %q: package without valid callback dropped at delivery", e.name)
			if e.hooks.OnCallback != nil {
				e.hooks.OnCallback("abandoned")
			}
			continue
		}
		e.invokeCallback(env)
	}
}

func (e *Engine[P]) invokeCallback(env *envelope[P]) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("pipeline %q: callback panicked: %v", e.name, r)
		}
	}()
	env.cb(env.pkg)
	if e.hooks.OnCallback != nil {
		e.hooks.OnCallback("delivered")
	}
}
