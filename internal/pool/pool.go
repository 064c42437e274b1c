// Package pool implements the fixed-size, queue-backed buffer pool
// (spec.md C2 / §4.2) that recycles backend-allocated tensor-sets
// between pipeline iterations. It is grounded on two sources: the
// refcounted-handle shape of Tutu-Engine-tutuengine's
// internal/infra/engine.Pool (PoolHandle.Release() returns a resource to
// its owner), and the actual producer-consumer mechanics of
// original_source/deploy_core/include/deploy_core/base_infer_core.hpp's
// MemBufferPool, which is a fixed-K BlockQueue of raw pointers with a
// custom-deleter smart pointer over the top.
package pool

import (
	"fmt"
	"sync/atomic"

	"github.com/tutu-network/inferrt/internal/domain"
	"github.com/tutu-network/inferrt/internal/logging"
	"github.com/tutu-network/inferrt/internal/queue"
)

// Pool manages a fixed set of K backend-allocated resources of type T,
// handed out as Handles that return their resource to the pool on
// Release. Pool-conservation invariant (spec.md §8): at all times,
// Remaining() + outstanding handles == K.
type Pool[T any] struct {
	free        *queue.Queue[*T]
	all         []*T
	k           int
	resetFn     func(*T)
	destroyFn   func(*T)
	outstanding atomic.Int64
	log         logging.Logger
}

// New constructs a pool of exactly k pre-allocated resources, built by
// calling allocate k times. k must be between 1 and 100 (spec.md §4.2);
// violating that is a Configuration error surfaced at construction.
func New[T any](k int, allocate func() (*T, error), resetFn, destroyFn func(*T), log logging.Logger) (*Pool[T], error) {
	if k < 1 || k > 100 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidPoolSize, k)
	}
	if log == nil {
		log = logging.Global()
	}

	p := &Pool[T]{
		free:      queue.New[*T](k),
		all:       make([]*T, 0, k),
		k:         k,
		resetFn:   resetFn,
		destroyFn: destroyFn,
		log:       log,
	}

	for i := 0; i < k; i++ {
		res, err := allocate()
		if err != nil {
			p.releaseAllocated()
			return nil, fmt.Errorf("allocate buffer %d/%d: %w", i+1, k, err)
		}
		p.all = append(p.all, res)
		if err := p.free.PushBlocking(res); err != nil {
			p.releaseAllocated()
			return nil, fmt.Errorf("seed free list: %w", err)
		}
	}

	return p, nil
}

func (p *Pool[T]) releaseAllocated() {
	for _, r := range p.all {
		if p.destroyFn != nil {
			p.destroyFn(r)
		}
	}
}

// Handle is a shared, move-only handle around a resource borrowed from
// a Pool. On Release it resets the resource and returns it to the pool.
// It must never be cloned; the zero value is not usable.
type Handle[T any] struct {
	ptr      *T
	pool     *Pool[T]
	released atomic.Bool
}

// Value returns the held resource. Valid until Release is called.
func (h *Handle[T]) Value() *T { return h.ptr }

// Release resets the resource and returns it to the pool. Idempotent:
// a second call is a no-op.
func (h *Handle[T]) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	if h.pool.resetFn != nil {
		h.pool.resetFn(h.ptr)
	}
	if err := h.pool.free.PushBlocking(h.ptr); err != nil {
		h.pool.log.Errorf("pool: failed to return handle to free list: %v", err)
	}
	h.pool.outstanding.Add(-1)
}

// Acquire takes one resource from the pool. If blocking is true it
// waits for availability; otherwise it returns (nil, ErrPoolExhausted)
// immediately if none is free.
func (p *Pool[T]) Acquire(blocking bool) (*Handle[T], error) {
	if blocking {
		ptr, err := p.free.TakeBlocking()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPoolExhausted, err)
		}
		p.outstanding.Add(1)
		return &Handle[T]{ptr: ptr, pool: p}, nil
	}

	ptr, ok := p.free.TryTake()
	if !ok {
		return nil, domain.ErrPoolExhausted
	}
	p.outstanding.Add(1)
	return &Handle[T]{ptr: ptr, pool: p}, nil
}

// Remaining returns the number of resources currently free in the pool.
func (p *Pool[T]) Remaining() int { return p.free.Size() }

// Outstanding returns the number of handles currently checked out.
func (p *Pool[T]) Outstanding() int64 { return p.outstanding.Load() }

// Release tears the pool down: verifies the free list holds all K
// entries (logging if a handle escaped its lifetime contract) and
// destroys every underlying resource. Safe to call once at shutdown,
// after every handle has been released.
func (p *Pool[T]) Release() {
	if p.free.Size() != p.k {
		p.log.Errorf("pool: does not hold all %d entries at release (has %d) — a handle escaped its lifetime contract", p.k, p.free.Size())
	}
	p.releaseAllocated()
}
