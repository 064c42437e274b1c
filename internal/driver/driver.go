// Package driver composes a buffer pool, a backend adapter, and a
// pipeline engine into the three-stage (preprocess/infer/postprocess)
// inference entry point the rest of the module calls into (spec.md C6,
// §4.6). It is grounded on
// original_source/deploy_core/include/deploy_core/base_infer_core.hpp's
// BaseInferCore: SyncInfer is the synchronous path that bypasses the
// pipeline entirely, while the pipeline path is what GetBuffer +
// async pipeline submission gives the async callers.
package driver

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tutu-network/inferrt/internal/backend"
	"github.com/tutu-network/inferrt/internal/domain"
	"github.com/tutu-network/inferrt/internal/logging"
	"github.com/tutu-network/inferrt/internal/metrics"
	"github.com/tutu-network/inferrt/internal/pipeline"
	"github.com/tutu-network/inferrt/internal/pool"
	"github.com/tutu-network/inferrt/internal/tensor"
)

// Package is the pipeline envelope carried between the three stages: a
// pooled tensor-set handle plus the caller's input and the eventually
// produced result/error. It implements domain.TensorSetHolder so the
// generic pipeline.Engine can be instantiated over it. requestID
// correlates a package's stage logs across preprocess/infer/postprocess.
type Package struct {
	handle    *pool.Handle[tensor.Set]
	input     any
	result    any
	err       error
	requestID string
}

// TensorSetPtr implements domain.TensorSetHolder.
func (p *Package) TensorSetPtr() any { return p.handle.Value() }

// Driver owns one backend adapter, the buffer pool sized to it, and the
// three-stage pipeline engine built from the adapter's own
// Preprocess/Infer/Postprocess methods.
type Driver struct {
	adapter backend.Adapter
	pool    *pool.Pool[tensor.Set]
	engine  *pipeline.Engine[*Package]
	log     logging.Logger
	name    string

	mu      sync.Mutex
	started bool
}

// Config controls pool sizing and inter-stage queue depth.
type Config struct {
	PoolSize      int
	QueueCapacity int
}

// New builds a driver around adapter, pre-allocating Config.PoolSize
// tensor-sets via adapter.AllocateBufferSet.
func New(adapter backend.Adapter, cfg Config, log logging.Logger) (*Driver, error) {
	if log == nil {
		log = logging.Global()
	}

	p, err := pool.New[tensor.Set](cfg.PoolSize,
		func() (*tensor.Set, error) { return adapter.AllocateBufferSet() },
		func(s *tensor.Set) { s.Reset() },
		func(s *tensor.Set) {},
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("driver: building buffer pool: %w", err)
	}

	name := adapterName(adapter)
	d := &Driver{adapter: adapter, pool: p, log: log, name: name}

	stages := []pipeline.Stage[*Package]{
		{Name: "preprocess", Fn: d.runPreprocess},
		{Name: "infer", Fn: d.runInfer},
		{Name: "postprocess", Fn: d.runPostprocess},
	}
	d.engine = pipeline.New(name, stages, log, metrics.HooksFor(name))

	if err := d.engine.Start(cfg.QueueCapacity); err != nil {
		p.Release()
		return nil, fmt.Errorf("driver: starting pipeline: %w", err)
	}
	d.started = true

	return d, nil
}

func adapterName(a backend.Adapter) string {
	return fmt.Sprintf("driver-%s", a.Kind())
}

func (d *Driver) runPreprocess(pkg *Package) bool {
	ok, err := d.adapter.Preprocess(pkg.handle.Value(), pkg.input)
	if err != nil {
		d.log.Warnf("driver: preprocess failed (request %s): %v", pkg.requestID, err)
		pkg.err = err
		return false
	}
	return ok
}

func (d *Driver) runInfer(pkg *Package) bool {
	ok, err := d.adapter.Infer(pkg.handle.Value(), backend.CallerKey())
	if err != nil {
		d.log.Warnf("driver: infer failed (request %s): %v", pkg.requestID, err)
		pkg.err = err
		return false
	}
	return ok
}

func (d *Driver) runPostprocess(pkg *Package) bool {
	result, ok, err := d.adapter.Postprocess(pkg.handle.Value())
	if err != nil {
		d.log.Warnf("driver: postprocess failed (request %s): %v", pkg.requestID, err)
		pkg.err = err
		return false
	}
	pkg.result = result
	return ok
}

// RunSync runs all three stages directly on the caller's goroutine,
// entirely independent of the async pipeline (BaseInferCore::SyncInfer).
// It still goes through the buffer pool, blocking if every slot is
// currently checked out.
func (d *Driver) RunSync(input any) (any, error) {
	h, err := d.pool.Acquire(true)
	if err != nil {
		return nil, fmt.Errorf("driver: acquire buffer: %w", err)
	}
	defer h.Release()

	pkg := &Package{handle: h, input: input, requestID: uuid.New().String()}
	if !d.runPreprocess(pkg) {
		return nil, firstErr(pkg.err, domain.ErrStageFailed)
	}
	if !d.runInfer(pkg) {
		return nil, firstErr(pkg.err, domain.ErrStageFailed)
	}
	if !d.runPostprocess(pkg) {
		return nil, firstErr(pkg.err, domain.ErrStageFailed)
	}
	return pkg.result, nil
}

func firstErr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

// RunAsync acquires a buffer slot, submits the package to the pipeline,
// and returns a Future that resolves once all three stages have run
// (or dropped it early). The buffer handle is released back to the
// pool from inside the wrapped callback, after the future resolves, so
// callers never have to manage pool lifetime themselves.
//
// coverOldest selects the non-blocking posture end to end (spec.md
// §4.6's "run_async(input...[, cover_oldest]) -> future<result>"): a
// non-blocking pool acquire, and — once a buffer is in hand — a
// push_cover submit that drops the oldest still-queued package rather
// than blocking if queue 0 is full. If either the acquire or the
// submit cannot proceed immediately, RunAsync returns an
// already-invalid future without an error (spec.md §7.2, §7.5); the
// caller must check Future.Valid before calling Wait.
func (d *Driver) RunAsync(input any, coverOldest bool) *Future {
	h, err := d.pool.Acquire(!coverOldest)
	if err != nil {
		if coverOldest {
			metrics.PoolAcquireFailed.WithLabelValues(d.name).Inc()
		}
		return invalidFuture()
	}

	pkg := &Package{handle: h, input: input, requestID: uuid.New().String()}
	future, resolve := newFuture()
	cb := func(p *Package) {
		defer p.handle.Release()
		if p.err != nil {
			resolve(nil, p.err)
			return
		}
		if p.result == nil {
			resolve(nil, domain.ErrStageFailed)
			return
		}
		resolve(p.result, nil)
	}

	var submitErr error
	if coverOldest {
		submitErr = d.engine.SubmitCover(pkg, cb)
	} else {
		submitErr = d.engine.Submit(pkg, cb)
	}
	if submitErr != nil {
		metrics.QueueRejected.WithLabelValues(d.name).Inc()
		h.Release()
		return invalidFuture()
	}
	return future
}

// Close tears the driver down without draining: the pipeline is closed
// first, abandoning any in-flight packages without resolving their
// futures (Drain is the graceful variant), then every buffer slot
// is released, then the backend adapter itself is closed last — mirroring
// BaseInferCore's documented teardown order (release buffers before the
// environment that allocated them is destroyed).
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil
	}
	d.started = false

	d.engine.Close()
	d.pool.Release()
	return d.adapter.Close()
}

// ReportMetrics pushes the current queue depths and pool occupancy into
// the process's Prometheus registry. Callers poll this periodically;
// the driver never self-schedules background work.
func (d *Driver) ReportMetrics(name string) {
	for i, depth := range d.engine.QueueDepths() {
		metrics.QueueDepth.WithLabelValues(name, fmt.Sprintf("q%d", i)).Set(float64(depth))
	}
	metrics.PoolRemaining.WithLabelValues(name).Set(float64(d.pool.Remaining()))
}

// Drain signals no-more-input and waits for every already-submitted
// package to be delivered before closing — the graceful counterpart to
// Close (spec.md §8 scenario 6).
func (d *Driver) Drain() error {
	d.engine.SignalNoMoreInput()
	d.engine.Wait()
	return d.Close()
}
