// Package clock provides the cache's coarse time source: a ticker-driven
// cached clock so hot-path expiry checks never pay for a wall-clock syscall.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTick is the sampling interval used by Default(). Every expiry
// comparison the cache performs is correct only modulo this precision.
const DefaultTick = 10 * time.Millisecond

// Source is a coarse, cached wall clock. A dedicated goroutine wakes every
// tick, samples time.Now, and publishes it to an atomic so readers never
// touch the syscall layer.
type Source struct {
	millis atomic.Int64
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
}

// New starts a Source sampling at the given tick interval. Callers own the
// returned Source and must call Stop when done with it; Default() is the
// process-wide instance most callers should use instead.
func New(tick time.Duration) *Source {
	if tick <= 0 {
		tick = DefaultTick
	}

	s := &Source{
		ticker: time.NewTicker(tick),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.millis.Store(time.Now().UnixMilli())

	go s.run()

	return s
}

func (s *Source) run() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		case now := <-s.ticker.C:
			s.millis.Store(now.UnixMilli())
		}
	}
}

// Millis returns the last sampled wall-clock time in Unix milliseconds.
func (s *Source) Millis() int64 {
	return s.millis.Load()
}

// Seconds returns the last sampled wall-clock time in Unix seconds.
func (s *Source) Seconds() int64 {
	return s.millis.Load() / 1000
}

// Stop halts the sampling goroutine. Safe to call once; further calls are
// no-ops. Stopping the process-wide Default() source is almost never
// correct — only stop a Source you constructed with New yourself.
func (s *Source) Stop() {
	select {
	case <-s.stop:
		return
	default:
		close(s.stop)
	}
	s.ticker.Stop()
	<-s.done
}

var (
	defaultOnce   sync.Once
	defaultSource *Source
)

// Default returns the process-wide coarse clock, starting it lazily on
// first use.
func Default() *Source {
	defaultOnce.Do(func() {
		defaultSource = New(DefaultTick)
	})

	return defaultSource
}
