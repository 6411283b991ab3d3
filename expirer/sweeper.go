// Package expirer implements the cache's background expiration sweeper: a
// single worker that walks the storage map, releases invalid holders, and
// removes them, restarting itself on demand rather than running forever.
package expirer

import (
	"sync"
	"time"

	"github.com/meridiancache/meridiancache/internal/logging"
	"github.com/meridiancache/meridiancache/stats"
)

// haltThreshold is the number of consecutive no-progress wakeups the sweeper
// tolerates before logging and halting, guarding against pathological
// interrupt storms.
const haltThreshold = 10

// Sweeper walks a storage map on a fixed interval, removing invalid
// (expired, released, or torn) entries. It is started lazily by the owning
// cache's first mutating operation and stops itself once the map drains to
// empty; the cache restarts it on the next mutation.
type Sweeper[K comparable] struct {
	interval time.Duration
	// IsExpired reports whether the holder for key is currently invalid and
	// should be released and removed.
	IsExpired func(key K) bool
	// Keys returns a weakly-consistent snapshot of the map's keys.
	Keys func() []K
	// Remove deletes key from the map, releasing its holder, and reports
	// whether it actually removed something (false if another goroutine
	// already won the race).
	Remove func(key K) bool
	// Size reports the current map size.
	Size func() int
	// OnExpired, if set, is invoked for every key the sweeper removes, after
	// the removal, so the cache can fire EXPIRED listener events and bump
	// statistics.
	OnExpired func(key K)

	logger   logging.Logger
	recorder stats.Recorder

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a Sweeper. A nil logger falls back to logging.Default(); a nil
// recorder falls back to stats.Noop().
func New[K comparable](interval time.Duration, logger logging.Logger, recorder stats.Recorder) *Sweeper[K] {
	if logger == nil {
		logger = logging.Default()
	}

	if recorder == nil {
		recorder = stats.Noop()
	}

	return &Sweeper[K]{
		interval: interval,
		logger:   logger,
		recorder: recorder,
	}
}

// EnsureRunning starts the sweeper's background goroutine if it is not
// already running. Safe to call from any mutating operation; it is cheap
// when the sweeper is already active.
func (s *Sweeper[K]) EnsureRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stop, s.done)
}

// Stop halts the sweeper unconditionally, used by the cache's Close(). Safe
// to call whether or not the sweeper is currently running.
func (s *Sweeper[K]) Stop() {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		return
	}

	stop, done := s.stop, s.done
	s.running = false
	s.mu.Unlock()

	close(stop)
	<-done
}

func (s *Sweeper[K]) loop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	noProgress := 0

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			removed := s.sweepOnce()

			if removed > 0 {
				noProgress = 0
			} else {
				noProgress++
			}

			if noProgress >= haltThreshold {
				s.recorder.IncEvictionHalts()
				s.logger.Warning("expiration sweeper halted after repeated no-progress wakeups")

				s.mu.Lock()
				s.running = false
				s.mu.Unlock()

				return
			}

			if s.Size() == 0 {
				s.mu.Lock()
				s.running = false
				s.mu.Unlock()

				return
			}
		}
	}
}

func (s *Sweeper[K]) sweepOnce() int {
	removed := 0

	for _, key := range s.Keys() {
		if !s.IsExpired(key) {
			continue
		}

		if s.Remove(key) {
			removed++

			if s.OnExpired != nil {
				s.OnExpired(key)
			}
		}
	}

	return removed
}
