// Package retry runs a cache loader or writer call under a bounded backoff
// policy. It exists so a transient backend failure behind a read-through or
// write-through cache doesn't surface as a permanent LoaderError/WriterError
// on the first hiccup.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy selects how the delay between attempts grows.
type Strategy int

const (
	// StrategyConstant repeats the same delay every attempt.
	StrategyConstant Strategy = iota
	// StrategyLinear grows the delay by one base unit per attempt.
	StrategyLinear
	// StrategyExponential doubles the delay every attempt.
	StrategyExponential
)

const (
	defaultMaxAttempts = 4
	defaultBaseDelay   = 75 * time.Millisecond
	defaultCeiling     = 20 * time.Second
	spreadFraction     = 0.20
)

// policy holds the resolved backoff settings for one Run call.
type policy struct {
	maxAttempts int
	baseDelay   time.Duration
	ceiling     time.Duration
	strategy    Strategy
	spread      bool
}

// Option tunes a retry policy away from its cache defaults.
type Option func(*policy)

// WithMaxAttempts caps the number of calls made, including the first.
// Default: 4, chosen so a loader/writer survives one full exponential
// backoff cycle before the caller sees a LoaderError/WriterError.
func WithMaxAttempts(n int) Option {
	return func(p *policy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithDelay sets the base delay the strategy scales from. Default: 75ms.
func WithDelay(d time.Duration) Option {
	return func(p *policy) {
		p.baseDelay = d
	}
}

// WithMaxDelay caps the delay any single attempt can wait. Default: 20s.
func WithMaxDelay(d time.Duration) Option {
	return func(p *policy) {
		p.ceiling = d
	}
}

// WithStrategy selects the backoff growth curve. Default: StrategyExponential.
func WithStrategy(s Strategy) Option {
	return func(p *policy) {
		p.strategy = s
	}
}

// WithJitter toggles +/-20% randomized spread on the computed delay, which
// keeps many callers retrying the same backend from synchronizing their
// retries into a thundering herd. Default: true.
func WithJitter(enabled bool) Option {
	return func(p *policy) {
		p.spread = enabled
	}
}

// Run calls fn, retrying on a non-nil error per the configured policy, and
// returns the outcome of the last attempt. It stops early and returns the
// context's error if ctx is cancelled while waiting between attempts.
func Run(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) error {
	p := &policy{
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		ceiling:     defaultCeiling,
		strategy:    StrategyExponential,
		spread:      true,
	}

	for _, opt := range opts {
		opt(p)
	}

	var lastErr error
	for attempt := range p.maxAttempts {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == p.maxAttempts-1 {
			break
		}

		wait := backoffFor(p, attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return lastErr
}

// backoffFor computes how long to wait before the next attempt.
func backoffFor(p *policy, attempt int) time.Duration {
	var wait time.Duration

	switch p.strategy {
	case StrategyConstant:
		wait = p.baseDelay
	case StrategyLinear:
		wait = p.baseDelay * time.Duration(attempt+1)
	case StrategyExponential:
		//nolint:gosec // math.Pow over a small bounded exponent is safe
		wait = p.baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	}

	if p.spread {
		delta := float64(wait) * spreadFraction
		offset := (rand.Float64()*2 - 1) * delta //nolint:gosec // jitter has no security requirement
		wait += time.Duration(offset)
	}

	if wait > p.ceiling {
		wait = p.ceiling
	}
	if wait < 0 {
		wait = 0
	}

	return wait
}
