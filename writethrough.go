package meridiancache

import (
	"context"

	"github.com/meridiancache/meridiancache/circuitbreaker"
	"github.com/meridiancache/meridiancache/retry"
)

// callLoader invokes the configured CacheLoader, wrapping it in retry and/or
// a circuit breaker when configured, and wraps any resulting failure in a
// LoaderError. circuitbreaker.ErrCircuitOpen is never returned bare — it
// always arrives wrapped inside a LoaderError, same as any other loader
// failure.
func (c *Cache[K, V]) callLoader(ctx context.Context, key K) (V, error) {
	var (
		value V
		err   error
	)

	call := func(ctx context.Context) error {
		value, err = c.loader(ctx, key)

		return err
	}

	if runErr := c.runThrough(ctx, call, c.loaderRetry, c.loaderBreaker); runErr != nil {
		var zero V

		return zero, &LoaderError[K]{Key: key, Err: runErr}
	}

	return value, nil
}

// callWriter invokes the configured CacheWriter for a put-family mutation.
// A nil writer means the cache is not write-through and this is a no-op.
func (c *Cache[K, V]) callWriter(ctx context.Context, key K, value V) error {
	if c.writer == nil {
		return nil
	}

	call := func(ctx context.Context) error {
		return c.writer(ctx, key, value)
	}

	if err := c.runThrough(ctx, call, c.writerRetry, c.writerBreaker); err != nil {
		return &WriterError[K]{Key: key, Err: err}
	}

	return nil
}

// callWriterRemove is the write-through hook for removals. CacheWriter only
// covers puts, so this is a no-op that always returns nil: the writer is
// never called for a removal. A backing store that needs delete
// notifications can get them from a listener on Removed/Expired events.
func (c *Cache[K, V]) callWriterRemove(_ context.Context, _ K) error {
	return nil
}

// runThrough wraps the call in the circuit breaker (innermost) and then in
// the retry loop: a breaker trip short-circuits before the call is attempted
// again, and a retry loop only re-enters the breaker, never bypasses it.
func (c *Cache[K, V]) runThrough(ctx context.Context, call func(ctx context.Context) error, retryOpts []retry.Option, breaker *circuitbreaker.Breaker) error {
	attempt := call
	if breaker != nil {
		attempt = func(ctx context.Context) error {
			return breaker.Execute(func() error { return call(ctx) })
		}
	}

	if len(retryOpts) > 0 {
		return retry.Run(ctx, attempt, retryOpts...)
	}

	return attempt(ctx)
}
