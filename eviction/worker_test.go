package eviction_test

import (
	"sync"
	"testing"
	"time"

	"github.com/meridiancache/meridiancache/eviction"
)

type testMap struct {
	mu         sync.Mutex
	data       map[string]int64 // key -> use count, used as the LFU freeze value
	lastAccess map[string]int64
	capacity   int
}

func newTestMap(capacity int) *testMap {
	return &testMap{data: map[string]int64{}, lastAccess: map[string]int64{}, capacity: capacity}
}

func (m *testMap) set(key string, useCount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = useCount
	m.lastAccess[key] = useCount
}

func (m *testMap) UseCount(key string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]

	return v, ok
}

func (m *testMap) LastAccessMillis(key string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.lastAccess[key]

	return v, ok
}

func (m *testMap) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}

	return keys
}

func (m *testMap) remove(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[key]; !ok {
		return false
	}

	delete(m.data, key)
	delete(m.lastAccess, key)

	return true
}

func (m *testMap) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.data)
}

func (m *testMap) elementsToRemove() int {
	size := m.size()
	if size < m.capacity {
		return 0
	}

	return size - m.capacity + 1
}

func TestWorker_EvictsLowestPriorityFirst(t *testing.T) {
	t.Parallel()

	tm := newTestMap(2)
	tm.set("a", 3)
	tm.set("b", 1)
	tm.set("c", 2)

	policy := eviction.NewLFU[string](tm)
	w := eviction.NewWorker(policy, tm.snapshot, tm.remove, tm.size, tm.elementsToRemove)
	w.Start()
	defer w.Stop()

	w.Signal()

	waitFor(t, func() bool { return tm.size() <= 2 })

	if _, ok := tm.UseCount("b"); ok {
		t.Fatal("expected lowest-use-count entry b to be evicted")
	}
}

func TestWorker_NoOpWhenUnderCapacity(t *testing.T) {
	t.Parallel()

	tm := newTestMap(10)
	tm.set("a", 1)

	policy := eviction.NewLFU[string](tm)
	w := eviction.NewWorker(policy, tm.snapshot, tm.remove, tm.size, tm.elementsToRemove)
	w.Start()
	defer w.Stop()

	w.Signal()
	time.Sleep(20 * time.Millisecond)

	if tm.size() != 1 {
		t.Fatalf("expected no eviction under capacity, got size %d", tm.size())
	}
}

func TestWorker_DuplicateSignalsCollapse(t *testing.T) {
	t.Parallel()

	tm := newTestMap(1)
	tm.set("a", 1)

	var rounds int
	var mu sync.Mutex

	policy := eviction.NewLFU[string](tm)
	w := eviction.NewWorker(policy, tm.snapshot, tm.remove, tm.size, tm.elementsToRemove)
	w.OnRound = func(int) {
		mu.Lock()
		rounds++
		mu.Unlock()
	}
	w.Start()
	defer w.Stop()

	for range 10 {
		w.Signal()
	}

	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	got := rounds
	mu.Unlock()

	if got == 0 {
		t.Fatal("expected at least one round to run")
	}
	if got >= 10 {
		t.Fatalf("expected duplicate signals to collapse, got %d rounds for 10 signals", got)
	}
}

func TestWorker_WaitUntilBelowUnblocksAfterRound(t *testing.T) {
	t.Parallel()

	tm := newTestMap(1)
	tm.set("a", 1)
	tm.set("b", 2)

	policy := eviction.NewLFU[string](tm)
	w := eviction.NewWorker(policy, tm.snapshot, tm.remove, tm.size, tm.elementsToRemove)
	w.Start()
	defer w.Stop()

	done := make(chan struct{})
	go func() {
		w.WaitUntilBelow(2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitUntilBelow did not unblock after eviction")
	}
}

func TestWorker_PanickingCustomPolicyAbortsRoundInsteadOfCrashing(t *testing.T) {
	t.Parallel()

	tm := newTestMap(1)
	tm.set("a", 1)
	tm.set("b", 2)

	policy := eviction.NewCustom(eviction.CustomFuncs[string]{
		FreezeFunc: func(string) (int64, int64, bool) {
			panic("boom")
		},
		LessFunc: func(a, b eviction.Sample[string]) bool {
			return a.Primary < b.Primary
		},
	})

	var rounds int
	var mu sync.Mutex

	w := eviction.NewWorker(policy, tm.snapshot, tm.remove, tm.size, tm.elementsToRemove)
	w.OnRound = func(int) {
		mu.Lock()
		rounds++
		mu.Unlock()
	}
	w.Start()
	defer w.Stop()

	w.Signal()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return rounds > 0
	})

	if tm.size() != 2 {
		t.Fatalf("expected the panicking round to evict nothing, got size %d", tm.size())
	}

	// The worker must still be alive and able to run a clean round afterward.
	w.Policy = eviction.NewLFU[string](tm)
	w.Signal()

	waitFor(t, func() bool { return tm.size() <= 1 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}

	t.Fatal("condition not met before deadline")
}
