package eviction

import (
	"sort"
	"sync"

	"github.com/meridiancache/meridiancache/internal/logging"
)

// JamPolicy governs what a foreground writer does when the cache is
// over-full (size >= block_start_at).
type JamPolicy int

const (
	// JamWait blocks the writer on the eviction-done condition, re-triggers
	// the worker, and loops until size drops below the block threshold.
	JamWait JamPolicy = iota
	// JamDrop increments the drop count and returns "not stored" to the
	// caller, still triggering the worker for the next write.
	JamDrop
)

// signalBuffer is the eviction-signal channel's fixed capacity (spec §4.5).
const signalBuffer = 2

// Worker runs eviction rounds against a live map under a Policy. It never
// touches the map directly — Snapshot, Remove, Size and ElementsToRemove are
// supplied by the owning cache.
type Worker[K comparable] struct {
	Policy           Policy[K]
	Snapshot         func() []K
	Remove           func(key K) bool
	Size             func() int
	ElementsToRemove func() int
	OnRound          func(evicted int) // stats hook, may be nil

	// Logger reports a panic from a PolicyCustom callback during a round.
	// A nil Logger falls back to logging.Default().
	Logger logging.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	running bool

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewWorker constructs a Worker. Call Start to begin its goroutine.
func NewWorker[K comparable](policy Policy[K], snapshot func() []K, remove func(K) bool, size func() int, elementsToRemove func() int) *Worker[K] {
	w := &Worker[K]{
		Policy:           policy,
		Snapshot:         snapshot,
		Remove:           remove,
		Size:             size,
		ElementsToRemove: elementsToRemove,
		signal:           make(chan struct{}, signalBuffer),
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)

	return w
}

// Start launches the worker goroutine. Safe to call once.
func (w *Worker[K]) Start() {
	go w.loop()
}

// Stop halts the worker goroutine and wakes any waiters. Safe to call more
// than once.
func (w *Worker[K]) Stop() {
	w.once.Do(func() {
		close(w.stop)
	})
	<-w.done

	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// Signal requests an eviction round. The request is dropped silently if one
// is already queued (duplicate signals collapse), matching the bounded,
// non-blocking notification channel spec §4.5 describes.
func (w *Worker[K]) Signal() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// IsRunning reports whether a round is currently executing.
func (w *Worker[K]) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.running
}

// WaitUntilBelow implements the WAIT jam policy: it signals the worker and
// blocks the caller until size drops below threshold or the worker stops.
func (w *Worker[K]) WaitUntilBelow(threshold int) {
	w.Signal()

	w.mu.Lock()
	defer w.mu.Unlock()

	for w.Size() >= threshold {
		select {
		case <-w.stop:
			return
		default:
		}

		w.Signal()
		w.cond.Wait()
	}
}

func (w *Worker[K]) loop() {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			return
		case <-w.signal:
			w.drainPending()
			w.setRunning(true)
			evicted := w.runRound()
			w.setRunning(false)

			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()

			if w.OnRound != nil {
				w.OnRound(evicted)
			}
		}
	}
}

// drainPending clears any signals queued before this round starts, so a
// Signal arriving strictly after setRunning(true) is guaranteed a fresh slot
// instead of collapsing into a round that already decided its scope.
func (w *Worker[K]) drainPending() {
	for {
		select {
		case <-w.signal:
		default:
			return
		}
	}
}

func (w *Worker[K]) setRunning(v bool) {
	w.mu.Lock()
	w.running = v
	w.mu.Unlock()
}

// logger returns the configured Logger or the package default if unset.
func (w *Worker[K]) logger() logging.Logger {
	if w.Logger != nil {
		return w.Logger
	}

	return logging.Default()
}

// runRound executes one eviction pass under w.Policy. Under PolicyCustom the
// Freeze/Less/BeforeRound/AfterRound calls run caller-supplied code; a panic
// anywhere in that sequence is recovered and logged here so it aborts only
// this round rather than taking down the process. The worker itself is left
// running and will pick up a fresh round on the next Signal.
func (w *Worker[K]) runRound() (evicted int) {
	toRemove := w.ElementsToRemove()
	if toRemove <= 0 {
		return 0
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger().Errorf("eviction policy panicked during round, round aborted: %v", r)
			evicted = 0
		}
	}()

	keys := w.Snapshot()
	samples := make([]Sample[K], 0, len(keys))

	for _, k := range keys {
		primary, secondary, ok := w.Policy.Freeze(k)
		if !ok {
			continue
		}

		samples = append(samples, Sample[K]{Key: k, Primary: primary, Secondary: secondary})
	}

	w.Policy.BeforeRound()
	defer w.Policy.AfterRound()

	sort.Slice(samples, func(i, j int) bool {
		return w.Policy.Less(samples[i], samples[j])
	})

	removed := 0
	for _, s := range samples {
		if removed >= toRemove {
			break
		}

		if w.Remove(s.Key) {
			removed++
		}
	}

	return removed
}
