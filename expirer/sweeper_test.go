package expirer_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meridiancache/meridiancache/expirer"
)

type fakeMap struct {
	mu      sync.Mutex
	data    map[string]bool // key -> expired
	removed []string
}

func newFakeMap() *fakeMap {
	return &fakeMap{data: map[string]bool{}}
}

func (m *fakeMap) put(key string, expired bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = expired
}

func (m *fakeMap) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}

	return keys
}

func (m *fakeMap) isExpired(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.data[key]
}

func (m *fakeMap) remove(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[key]; !ok {
		return false
	}

	delete(m.data, key)
	m.removed = append(m.removed, key)

	return true
}

func (m *fakeMap) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.data)
}

func TestSweeper_RemovesExpiredEntries(t *testing.T) {
	t.Parallel()

	fm := newFakeMap()
	fm.put("stale", true)
	fm.put("fresh", false)

	var expiredEvents atomic.Int32

	s := expirer.New[string](5*time.Millisecond, nil, nil)
	s.Keys = fm.keys
	s.IsExpired = fm.isExpired
	s.Remove = fm.remove
	s.Size = fm.size
	s.OnExpired = func(string) { expiredEvents.Add(1) }

	s.EnsureRunning()
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if fm.size() == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if fm.size() != 1 {
		t.Fatalf("expected stale entry to be swept, remaining size %d", fm.size())
	}
	if expiredEvents.Load() != 1 {
		t.Fatalf("expected exactly one OnExpired callback, got %d", expiredEvents.Load())
	}
}

func TestSweeper_StopsWhenMapDrainsEmpty(t *testing.T) {
	t.Parallel()

	fm := newFakeMap()
	fm.put("a", true)

	s := expirer.New[string](5*time.Millisecond, nil, nil)
	s.Keys = fm.keys
	s.IsExpired = fm.isExpired
	s.Remove = fm.remove
	s.Size = fm.size

	s.EnsureRunning()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && fm.size() != 0 {
		time.Sleep(time.Millisecond)
	}

	if fm.size() != 0 {
		t.Fatal("expected map to drain to empty")
	}

	// Give the loop a moment to observe the empty map and self-stop, then
	// verify it can be restarted by a subsequent mutation.
	time.Sleep(20 * time.Millisecond)

	fm.put("b", true)
	s.EnsureRunning()

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && fm.size() != 0 {
		time.Sleep(time.Millisecond)
	}

	if fm.size() != 0 {
		t.Fatal("expected restarted sweeper to remove the newly added expired entry")
	}
}

func TestSweeper_StopIsSafeWhenNotRunning(t *testing.T) {
	t.Parallel()

	s := expirer.New[string](time.Millisecond, nil, nil)
	s.Keys = func() []string { return nil }
	s.IsExpired = func(string) bool { return false }
	s.Remove = func(string) bool { return false }
	s.Size = func() int { return 0 }

	s.Stop() // must not block or panic on a sweeper that was never started
}
