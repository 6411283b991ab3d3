// Package circuitbreaker guards a cache loader or writer call against a
// backend that is failing outright, so a read-through/write-through cache
// stops hammering a dead dependency and fails fast with ErrCircuitOpen
// instead of piling up one timeout per call.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State is one of the breaker's three operating modes.
type State int

const (
	// StateClosed lets every call through while counting consecutive
	// failures toward the trip threshold.
	StateClosed State = iota
	// StateOpen rejects every call with ErrCircuitOpen until the cooldown
	// elapses.
	StateOpen
	// StateHalfOpen lets a bounded number of probe calls through to test
	// whether the backend has recovered.
	StateHalfOpen
)

const (
	defaultTripAfter   = 6
	defaultCooldown    = 20 * time.Second
	defaultProbeBudget = 1
)

// ErrCircuitOpen is returned by Execute while the breaker is tripped. A
// cache wraps it in LoaderError or WriterError rather than surfacing it bare.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker guards one loader or writer collaborator. A cache builds one per
// WithLoaderBreaker/WithWriterBreaker option, so each collaborator trips
// independently of the other.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	probesOK    int
	trippedAt   time.Time
	tripAfter   int
	cooldown    time.Duration
	probeBudget int
	onChange    func(from, to State)
	now         func() time.Time
}

// Option tunes a Breaker away from its cache defaults.
type Option func(*Breaker)

// WithThreshold sets the consecutive-failure count that trips the breaker.
// Default: 6.
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.tripAfter = n
		}
	}
}

// WithTimeout sets how long the breaker stays open before allowing a probe
// call through. Default: 20s.
func WithTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		b.cooldown = d
	}
}

// WithHalfOpenMax sets how many consecutive probe successes are required to
// close the breaker again. Default: 1.
func WithHalfOpenMax(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.probeBudget = n
		}
	}
}

// WithOnStateChange registers a callback fired on every state transition,
// useful for surfacing breaker trips through the cache's own listeners.
func WithOnStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

// New builds a Breaker in StateClosed.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		state:       StateClosed,
		tripAfter:   defaultTripAfter,
		cooldown:    defaultCooldown,
		probeBudget: defaultProbeBudget,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Execute runs fn if the breaker's current state allows it, and folds the
// outcome back into the breaker's failure/success bookkeeping.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.trippedAt) >= b.cooldown {
			b.transitionTo(StateHalfOpen)
		} else {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
	case StateHalfOpen:
		if b.probesOK >= b.probeBudget {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
	case StateClosed:
	}

	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.onFailure()
	} else {
		b.onSuccess()
	}

	return err
}

// State reports the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to StateClosed, clearing its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.probesOK = 0

	if from != StateClosed && b.onChange != nil {
		b.onChange(from, StateClosed)
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probesOK++
		if b.probesOK >= b.probeBudget {
			b.transitionTo(StateClosed)
		}
	case StateOpen:
	}
}

func (b *Breaker) onFailure() {
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.tripAfter {
			b.trippedAt = b.now()
			b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		b.trippedAt = b.now()
		b.transitionTo(StateOpen)
	case StateOpen:
	}
}

func (b *Breaker) transitionTo(to State) {
	from := b.state
	b.state = to
	b.failures = 0
	b.probesOK = 0

	if b.onChange != nil {
		b.onChange(from, to)
	}
}
