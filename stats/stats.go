// Package stats implements the cache's statistics recorder: monotonic
// counters, a sliding-window eviction rate, and a moving-average hit ratio.
package stats

import (
	"sync"
	"sync/atomic"

	"github.com/meridiancache/meridiancache/clock"
)

// Snapshot is a point-in-time read of every counter.
type Snapshot struct {
	Hits                  int64
	Misses                int64
	Puts                  int64
	Removes               int64
	Drops                 int64
	EvictionCount         int64
	EvictionRounds        int64
	EvictionHalts         int64
	HitRatio              float64 // percentage, 0..100
	EvictionRatePerSecond float64
}

// Recorder receives cache operation events and reports aggregated
// statistics. Recorder implementations must be safe for concurrent use.
type Recorder interface {
	IncHits()
	IncMisses()
	IncPuts()
	IncRemoves()
	IncDrops()
	IncEvictions(n int64)
	IncEvictionRounds()
	IncEvictionHalts()
	Snapshot() Snapshot
}

const (
	windowBuckets           = 60
	hitRatioSamples         = 5
	hitRatioRecomputeMillis = 60_000
)

type slidingWindow struct {
	mu      sync.Mutex
	buckets [windowBuckets]int64
	seconds [windowBuckets]int64
}

func (w *slidingWindow) add(n int64, nowSec int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := ((nowSec % windowBuckets) + windowBuckets) % windowBuckets
	if w.seconds[idx] != nowSec {
		w.buckets[idx] = 0
		w.seconds[idx] = nowSec
	}

	w.buckets[idx] += n
}

func (w *slidingWindow) ratePerSecond(nowSec int64) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	var sum, count int64

	for i := range int64(windowBuckets) {
		sec := nowSec - i
		idx := ((sec % windowBuckets) + windowBuckets) % windowBuckets

		if w.seconds[idx] == sec {
			sum += w.buckets[idx]
			count++
		}
	}

	if count == 0 {
		return 0
	}

	return float64(sum) / float64(count)
}

type hitRatioTracker struct {
	mu           sync.Mutex
	lastHits     int64
	lastMisses   int64
	lastComputed int64
	samples      [hitRatioSamples]float64
	next         int
	filled       int
}

// sample recomputes at most once per minute, using the hit/miss delta since
// the previous recomputation (not the lifetime totals).
func (h *hitRatioTracker) sample(hits, misses, nowMillis int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if nowMillis-h.lastComputed < hitRatioRecomputeMillis {
		return
	}

	deltaHits := hits - h.lastHits
	deltaMisses := misses - h.lastMisses
	total := deltaHits + deltaMisses

	ratio := 0.0
	if total > 0 {
		ratio = float64(deltaHits) / float64(total) * 100
	}

	h.samples[h.next%hitRatioSamples] = ratio
	h.next++

	if h.filled < hitRatioSamples {
		h.filled++
	}

	h.lastHits = hits
	h.lastMisses = misses
	h.lastComputed = nowMillis
}

func (h *hitRatioTracker) average() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.filled == 0 {
		return 0
	}

	var sum float64
	for i := range h.filled {
		sum += h.samples[i]
	}

	return sum / float64(h.filled)
}

// counting is the real Recorder implementation.
type counting struct {
	hits           atomic.Int64
	misses         atomic.Int64
	puts           atomic.Int64
	removes        atomic.Int64
	drops          atomic.Int64
	evictionCount  atomic.Int64
	evictionRounds atomic.Int64
	evictionHalts  atomic.Int64

	evictionWindow slidingWindow
	hitRatio       hitRatioTracker

	clock *clock.Source
}

// New returns a real, counting Recorder. A nil clock source uses
// clock.Default().
func New(source *clock.Source) Recorder {
	if source == nil {
		source = clock.Default()
	}

	return &counting{clock: source}
}

// Noop returns a Recorder that discards every event, for
// Options.Statistics == false.
func Noop() Recorder { return noop{} }

func (c *counting) IncHits()   { c.hits.Add(1) }
func (c *counting) IncMisses() { c.misses.Add(1) }
func (c *counting) IncPuts()   { c.puts.Add(1) }
func (c *counting) IncRemoves() {
	c.removes.Add(1)
}
func (c *counting) IncDrops() { c.drops.Add(1) }

func (c *counting) IncEvictions(n int64) {
	if n <= 0 {
		return
	}

	c.evictionCount.Add(n)
	c.evictionWindow.add(n, c.clock.Seconds())
}

func (c *counting) IncEvictionRounds() { c.evictionRounds.Add(1) }
func (c *counting) IncEvictionHalts()  { c.evictionHalts.Add(1) }

func (c *counting) Snapshot() Snapshot {
	hits := c.hits.Load()
	misses := c.misses.Load()

	c.hitRatio.sample(hits, misses, c.clock.Millis())

	return Snapshot{
		Hits:                  hits,
		Misses:                misses,
		Puts:                  c.puts.Load(),
		Removes:               c.removes.Load(),
		Drops:                 c.drops.Load(),
		EvictionCount:         c.evictionCount.Load(),
		EvictionRounds:        c.evictionRounds.Load(),
		EvictionHalts:         c.evictionHalts.Load(),
		HitRatio:              c.hitRatio.average(),
		EvictionRatePerSecond: c.evictionWindow.ratePerSecond(c.clock.Seconds()),
	}
}

type noop struct{}

func (noop) IncHits()           {}
func (noop) IncMisses()         {}
func (noop) IncPuts()           {}
func (noop) IncRemoves()        {}
func (noop) IncDrops()          {}
func (noop) IncEvictions(int64) {}
func (noop) IncEvictionRounds() {}
func (noop) IncEvictionHalts()  {}
func (noop) Snapshot() Snapshot { return Snapshot{} }
