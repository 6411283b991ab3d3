package meridiancache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	meridiancache "github.com/meridiancache/meridiancache"
	"github.com/meridiancache/meridiancache/circuitbreaker"
	"github.com/meridiancache/meridiancache/retry"
)

func TestWriteThrough_RetryRecoversFromTransientFailure(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32

	c, err := meridiancache.New[string, int](
		meridiancache.WithEvictionPolicy[string, int](meridiancache.PolicyNone),
		meridiancache.WithWriter[string, int](func(_ context.Context, _ string, _ int) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}

			return nil
		}),
		meridiancache.WithWriterRetry[string, int](
			retry.WithMaxAttempts(3),
			retry.WithStrategy(retry.StrategyConstant),
			retry.WithDelay(0),
			retry.WithJitter(false),
		),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if err := c.Put(context.Background(), "a", 1); err != nil {
		t.Fatalf("expected retry to eventually succeed, got %v", err)
	}

	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestWriteThrough_CircuitBreakerTripWrapsErrCircuitOpen(t *testing.T) {
	t.Parallel()

	c, err := meridiancache.New[string, int](
		meridiancache.WithEvictionPolicy[string, int](meridiancache.PolicyNone),
		meridiancache.WithWriter[string, int](func(_ context.Context, _ string, _ int) error {
			return errors.New("backend down")
		}),
		meridiancache.WithWriterBreaker[string, int](
			circuitbreaker.WithThreshold(1),
		),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()

	// First failure trips the breaker.
	if err := c.Put(ctx, "a", 1); err == nil {
		t.Fatal("expected the first write-through failure to propagate")
	}

	err = c.Put(ctx, "a", 1)

	var we *meridiancache.WriterError[string]
	if !errors.As(err, &we) {
		t.Fatalf("expected WriterError, got %v", err)
	}

	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Fatalf("expected the open breaker's ErrCircuitOpen to surface wrapped, got %v", err)
	}
}

func TestWriteThrough_LoaderCircuitBreakerWrapsInLoaderError(t *testing.T) {
	t.Parallel()

	c, err := meridiancache.New[string, int](
		meridiancache.WithEvictionPolicy[string, int](meridiancache.PolicyNone),
		meridiancache.WithLoader[string, int](func(_ context.Context, _ string) (int, error) {
			return 0, errors.New("backend down")
		}),
		meridiancache.WithLoaderBreaker[string, int](
			circuitbreaker.WithThreshold(1),
		),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()

	if _, err := c.Get(ctx, "a"); err == nil {
		t.Fatal("expected the first read-through failure to propagate")
	}

	_, err = c.Get(ctx, "a")

	var le *meridiancache.LoaderError[string]
	if !errors.As(err, &le) {
		t.Fatalf("expected LoaderError, got %v", err)
	}

	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Fatalf("expected the open breaker's ErrCircuitOpen to surface wrapped, got %v", err)
	}
}
