package meridiancache_test

import (
	"context"
	"errors"
	"testing"

	meridiancache "github.com/meridiancache/meridiancache"
)

func TestInvoke_SetAppliesPut(t *testing.T) {
	t.Parallel()

	c, err := meridiancache.New[string, int](meridiancache.WithEvictionPolicy[string, int](meridiancache.PolicyNone))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()

	result, err := c.Invoke(ctx, "a", func(e *meridiancache.MutableEntry[string, int], _ ...any) {
		e.Set(42)
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if result != 42 {
		t.Fatalf("expected 42, got %d", result)
	}

	v, err := c.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if v != 42 {
		t.Fatalf("expected stored value 42, got %d", v)
	}
}

func TestInvoke_RemoveAppliesRemove(t *testing.T) {
	t.Parallel()

	c, err := meridiancache.New[string, int](meridiancache.WithEvictionPolicy[string, int](meridiancache.PolicyNone))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	_ = c.Put(ctx, "a", 1)

	if _, err := c.Invoke(ctx, "a", func(e *meridiancache.MutableEntry[string, int], _ ...any) {
		e.Remove()
	}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if c.ContainsKey("a") {
		t.Fatal("expected key to be removed after Invoke with Remove()")
	}
}

func TestInvoke_NopLeavesEntryUntouched(t *testing.T) {
	t.Parallel()

	c, err := meridiancache.New[string, int](meridiancache.WithEvictionPolicy[string, int](meridiancache.PolicyNone))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	_ = c.Put(ctx, "a", 1)

	if _, err := c.Invoke(ctx, "a", func(_ *meridiancache.MutableEntry[string, int], _ ...any) {}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	v, err := c.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if v != 1 {
		t.Fatalf("expected untouched value 1, got %d", v)
	}
}

func TestInvoke_WrapsProcessorErrorOnce(t *testing.T) {
	t.Parallel()

	c, err := meridiancache.New[string, int](meridiancache.WithEvictionPolicy[string, int](meridiancache.PolicyNone))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()

	inner := &meridiancache.ProcessorError[string]{Key: "a", Err: errors.New("boom")}

	_, err = c.Invoke(ctx, "a", func(_ *meridiancache.MutableEntry[string, int], _ ...any) {
		panic(inner)
	})

	var pe *meridiancache.ProcessorError[string]
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProcessorError, got %v", err)
	}

	if pe != inner {
		t.Fatal("expected a re-thrown ProcessorError to not be wrapped again")
	}
}

func TestInvokeAll_CollectsPerKeyFailures(t *testing.T) {
	t.Parallel()

	writerErr := errors.New("rejected")

	c, err := meridiancache.New[string, int](
		meridiancache.WithEvictionPolicy[string, int](meridiancache.PolicyNone),
		meridiancache.WithWriter[string, int](func(_ context.Context, key string, _ int) error {
			if key == "bad" {
				return writerErr
			}

			return nil
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()

	failures := c.InvokeAll(ctx, []string{"good", "bad"}, func(e *meridiancache.MutableEntry[string, int], _ ...any) {
		e.Set(1)
	})

	if len(failures) != 1 {
		t.Fatalf("expected exactly one failure, got %d", len(failures))
	}

	if _, ok := failures["bad"]; !ok {
		t.Fatalf("expected failure recorded for key %q", "bad")
	}

	if !c.ContainsKey("good") {
		t.Fatal("expected the non-failing key to have been applied")
	}
}
