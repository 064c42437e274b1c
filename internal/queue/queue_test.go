package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tutu-network/inferrt/internal/domain"
)

// Scenario 1 (spec.md §8): capacity 2, push 1 then 2, then take twice;
// results observed in order 1, 2. A third take after SetNoMoreInput
// returns drained.
func TestQueue_BasicFIFO(t *testing.T) {
	q := New[int](2)

	if err := q.PushBlocking(1); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := q.PushBlocking(2); err != nil {
		t.Fatalf("push 2: %v", err)
	}

	v1, err := q.TakeBlocking()
	if err != nil || v1 != 1 {
		t.Fatalf("take #1 = %v, %v; want 1, nil", v1, err)
	}
	v2, err := q.TakeBlocking()
	if err != nil || v2 != 2 {
		t.Fatalf("take #2 = %v, %v; want 2, nil", v2, err)
	}

	q.SetNoMoreInput()
	if _, err := q.TakeBlocking(); !errors.Is(err, domain.ErrQueueDrained) {
		t.Fatalf("take on drained empty queue = %v; want ErrQueueDrained", err)
	}
}

// Scenario 2: capacity 1, push_blocking(1), push_cover(2), take -> 2,
// queue empty afterward.
func TestQueue_CoverPush(t *testing.T) {
	q := New[int](1)

	if err := q.PushBlocking(1); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := q.PushCover(2); err != nil {
		t.Fatalf("cover push 2: %v", err)
	}

	v, err := q.TakeBlocking()
	if err != nil || v != 2 {
		t.Fatalf("take = %v, %v; want 2, nil", v, err)
	}
	if !q.IsEmpty() {
		t.Fatal("queue should be empty after draining the cover-pushed element")
	}
}

// Q-cap invariant: size never exceeds capacity, even under concurrent
// blocking pushes racing a slow consumer.
func TestQueue_CapacityInvariant(t *testing.T) {
	q := New[int](4)
	var wg sync.WaitGroup
	stop := make(chan struct{})

	var maxObserved int
	var mu sync.Mutex
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				mu.Lock()
				if s := q.Size(); s > maxObserved {
					maxObserved = s
				}
				mu.Unlock()
			}
		}
	}()

	wg.Add(8)
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer wg.Done()
			_ = q.PushBlocking(n)
		}(i)
	}

	for i := 0; i < 8; i++ {
		for {
			if _, ok := q.TryTake(); ok {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}
	wg.Wait()
	close(stop)

	mu.Lock()
	defer mu.Unlock()
	if maxObserved > q.Capacity() {
		t.Fatalf("observed size %d exceeds capacity %d", maxObserved, q.Capacity())
	}
}

func TestQueue_PushBlockingRejectedWhenDisabled(t *testing.T) {
	q := New[int](1)
	q.Disable()
	if err := q.PushBlocking(1); !errors.Is(err, domain.ErrQueueRejected) {
		t.Fatalf("push after disable = %v; want ErrQueueRejected", err)
	}
	if _, err := q.TakeBlocking(); !errors.Is(err, domain.ErrQueueDrained) {
		t.Fatalf("take after disable = %v; want ErrQueueDrained", err)
	}
}

func TestQueue_DisableAndClearDropsBufferedElements(t *testing.T) {
	q := New[int](4)
	_ = q.PushBlocking(1)
	_ = q.PushBlocking(2)
	q.DisableAndClear()
	if s := q.Size(); s != 0 {
		t.Fatalf("size after DisableAndClear = %d; want 0", s)
	}
}

func TestQueue_BlockedPushUnblocksOnDisable(t *testing.T) {
	q := New[int](1)
	_ = q.PushBlocking(1) // fill to capacity

	done := make(chan error, 1)
	go func() {
		done <- q.PushBlocking(2)
	}()

	time.Sleep(20 * time.Millisecond) // let the goroutine block
	q.Disable()

	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrQueueRejected) {
			t.Fatalf("blocked push result = %v; want ErrQueueRejected", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked push never woke up after Disable")
	}
}

func TestQueue_BlockedTakeUnblocksOnSetNoMoreInput(t *testing.T) {
	q := New[int](4)

	done := make(chan error, 1)
	go func() {
		_, err := q.TakeBlocking()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.SetNoMoreInput()

	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrQueueDrained) {
			t.Fatalf("blocked take result = %v; want ErrQueueDrained", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked take never woke up after SetNoMoreInput")
	}
}

func TestQueue_TryTakeEmpty(t *testing.T) {
	q := New[int](2)
	if _, ok := q.TryTake(); ok {
		t.Fatal("TryTake on empty queue should report not-ok")
	}
}
