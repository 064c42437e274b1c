package pool

import (
	"errors"
	"testing"

	"github.com/tutu-network/inferrt/internal/domain"
	"github.com/tutu-network/inferrt/internal/logging"
)

type buf struct {
	id     int
	resets int
}

func newBufPool(t *testing.T, k int) *Pool[buf] {
	t.Helper()
	next := 0
	p, err := New[buf](k,
		func() (*buf, error) { next++; return &buf{id: next}, nil },
		func(b *buf) { b.resets++ },
		func(b *buf) {},
		logging.NewStdLogger(logging.LevelError),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestPool_InvalidSize(t *testing.T) {
	log := logging.NewStdLogger(logging.LevelError)
	if _, err := New[buf](0, func() (*buf, error) { return &buf{}, nil }, nil, nil, log); !errors.Is(err, domain.ErrInvalidPoolSize) {
		t.Fatalf("size 0 = %v; want ErrInvalidPoolSize", err)
	}
	if _, err := New[buf](101, func() (*buf, error) { return &buf{}, nil }, nil, nil, log); !errors.Is(err, domain.ErrInvalidPoolSize) {
		t.Fatalf("size 101 = %v; want ErrInvalidPoolSize", err)
	}
}

// Scenario 3 (spec.md §8): K=2; acquire twice (blocking) succeeds twice;
// a third, non-blocking acquire fails; releasing one handle makes a
// non-blocking acquire succeed again.
func TestPool_Saturation(t *testing.T) {
	p := newBufPool(t, 2)

	h1, err := p.Acquire(true)
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	h2, err := p.Acquire(true)
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}

	if _, err := p.Acquire(false); !errors.Is(err, domain.ErrPoolExhausted) {
		t.Fatalf("non-blocking acquire on exhausted pool = %v; want ErrPoolExhausted", err)
	}

	h1.Release()

	h3, err := p.Acquire(false)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}

	h2.Release()
	h3.Release()
}

// Pool-conservation invariant: remaining + outstanding == K at every
// observation.
func TestPool_ConservationInvariant(t *testing.T) {
	p := newBufPool(t, 3)

	check := func() {
		if got, want := p.Remaining()+int(p.Outstanding()), 3; got != want {
			t.Fatalf("remaining(%d) + outstanding(%d) = %d; want %d", p.Remaining(), p.Outstanding(), got, want)
		}
	}
	check()

	h1, _ := p.Acquire(true)
	check()
	h2, _ := p.Acquire(true)
	check()
	h1.Release()
	check()
	h2.Release()
	check()
}

// No-leak: after Release, remaining == K, and every returned handle
// caused a reset.
func TestPool_ReleaseResetsAndReturnsAll(t *testing.T) {
	p := newBufPool(t, 2)
	h1, _ := p.Acquire(true)
	v := h1.Value()
	h1.Release()

	if v.resets != 1 {
		t.Fatalf("resets = %d; want 1", v.resets)
	}
	if p.Remaining() != 2 {
		t.Fatalf("remaining = %d; want 2", p.Remaining())
	}

	p.Release()
}

func TestHandle_ReleaseIsIdempotent(t *testing.T) {
	p := newBufPool(t, 1)
	h, _ := p.Acquire(true)
	h.Release()
	h.Release() // must not double-push or panic
	if p.Remaining() != 1 {
		t.Fatalf("remaining after double release = %d; want 1", p.Remaining())
	}
}
