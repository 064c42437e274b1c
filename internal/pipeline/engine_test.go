package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tutu-network/inferrt/internal/tensor"
)

// testPkg is the minimal Package implementation used across these
// tests: a pooled tensor-set plus scratch fields the stages mutate so
// tests can assert on what ran.
type testPkg struct {
	id    int
	set   *tensor.Set
	trace []string
}

func (p *testPkg) TensorSetPtr() any { return p.set }

func newTestPkg(id int) *testPkg {
	return &testPkg{id: id, set: tensor.NewSet(nil, nil)}
}

// Scenario 4 (spec.md §8): a two-stage happy-path pipeline delivers
// every submitted package with both stages having run.
func TestEngine_TwoStageHappyPath(t *testing.T) {
	stages := []Stage[*testPkg]{
		{Name: "double", Fn: func(p *testPkg) bool { p.trace = append(p.trace, "double"); p.id *= 2; return true }},
		{Name: "increment", Fn: func(p *testPkg) bool { p.trace = append(p.trace, "increment"); p.id++; return true }},
	}
	e := New[*testPkg]("two-stage", stages, nil, Hooks{})
	if err := e.Start(4); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const n = 10
	var mu sync.Mutex
	results := make(map[int]*testPkg, n)
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		pkg := newTestPkg(i)
		if err := e.Submit(pkg, func(p *testPkg) {
			mu.Lock()
			results[p.id] = p
			mu.Unlock()
			wg.Done()
		}); err != nil {
			t.Fatalf("Submit(%d): %v", i, err)
		}
	}

	waitTimeout(t, &wg, 2*time.Second)

	for i := 0; i < n; i++ {
		want := i*2 + 1
		if _, ok := results[want]; !ok {
			t.Errorf("missing delivered result for input %d (want id %d)", i, want)
		}
	}

	e.Close()
}

// Scenario 5 (spec.md §8): a stage that fails for a specific package
// drops exactly that package without invoking its callback or
// poisoning delivery of subsequent packages.
func TestEngine_StageFailureDropsOnlyThatPackage(t *testing.T) {
	stages := []Stage[*testPkg]{
		{Name: "reject-odds", Fn: func(p *testPkg) bool { return p.id%2 == 0 }},
	}

	var drops atomic.Int64
	hooks := Hooks{OnStageDrop: func(string) { drops.Add(1) }}

	e := New[*testPkg]("drop-odds", stages, nil, hooks)
	if err := e.Start(4); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const n = 8
	var mu sync.Mutex
	delivered := map[int]bool{}
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if i%2 == 0 {
			wg.Add(1)
		}
		pkg := newTestPkg(i)
		id := i
		if err := e.Submit(pkg, func(*testPkg) {
			mu.Lock()
			delivered[id] = true
			mu.Unlock()
			wg.Done()
		}); err != nil {
			t.Fatalf("Submit(%d): %v", i, err)
		}
	}

	waitTimeout(t, &wg, 2*time.Second)

	for i := 0; i < n; i++ {
		want := i%2 == 0
		if delivered[i] != want {
			t.Errorf("delivered[%d] = %v; want %v", i, delivered[i], want)
		}
	}
	if got := drops.Load(); got != n/2 {
		t.Errorf("drops = %d; want %d", got, n/2)
	}

	e.Close()
}

// Scenario 6 (spec.md §8): SignalNoMoreInput followed by Wait drains
// every one of 100 already-submitted packages to completion before
// returning, with no drops and no deadlock.
func TestEngine_GracefulDrainOfManyPackages(t *testing.T) {
	stages := []Stage[*testPkg]{
		{Name: "noop-a", Fn: func(p *testPkg) bool { return true }},
		{Name: "noop-b", Fn: func(p *testPkg) bool { return true }},
		{Name: "noop-c", Fn: func(p *testPkg) bool { return true }},
	}
	e := New[*testPkg]("drain", stages, nil, Hooks{})
	if err := e.Start(8); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const n = 100
	var delivered atomic.Int64
	for i := 0; i < n; i++ {
		pkg := newTestPkg(i)
		if err := e.Submit(pkg, func(*testPkg) { delivered.Add(1) }); err != nil {
			t.Fatalf("Submit(%d): %v", i, err)
		}
	}

	e.SignalNoMoreInput()

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return within timeout; pipeline likely deadlocked")
	}

	if got := delivered.Load(); got != n {
		t.Fatalf("delivered = %d; want %d", got, n)
	}
	if e.State() != StateClosed {
		t.Fatalf("state after drain = %s; want closed", e.State())
	}
}

// Close abandons in-flight work without invoking pending callbacks
// (the resolved Open Question, grounded on ClosePipeline's behavior).
func TestEngine_CloseAbandonsCallbacksWithoutInvoking(t *testing.T) {
	release := make(chan struct{})
	stages := []Stage[*testPkg]{
		{Name: "block-until-released", Fn: func(p *testPkg) bool {
			<-release
			return true
		}},
	}
	e := New[*testPkg]("close-abandon", stages, nil, Hooks{})
	if err := e.Start(4); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var invoked atomic.Bool
	if err := e.Submit(newTestPkg(1), func(*testPkg) { invoked.Store(true) }); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Give the stage worker a moment to pick up the package and block
	// inside the stage function before we close.
	time.Sleep(20 * time.Millisecond)
	// Close joins the workers, so the stage is released from another
	// goroutine once Close has had time to disable the queues.
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	e.Close()

	time.Sleep(20 * time.Millisecond)
	if invoked.Load() {
		t.Fatal("callback was invoked for a package abandoned by Close")
	}
	if e.State() != StateClosed {
		t.Fatalf("state = %s; want closed", e.State())
	}
}

func TestEngine_SubmitAfterCloseIsRejected(t *testing.T) {
	e := New[*testPkg]("reject-after-close", nil, nil, Hooks{})
	if err := e.Start(2); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Close()

	if err := e.Submit(newTestPkg(1), func(*testPkg) {}); err == nil {
		t.Fatal("Submit after Close = nil error; want ErrQueueRejected")
	}
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal(fmt.Sprintf("timed out after %s waiting for deliveries", d))
	}
}
