package meridiancache_test

import (
	"context"
	"testing"

	meridiancache "github.com/meridiancache/meridiancache"
)

func TestIterate_VisitsAllLiveEntries(t *testing.T) {
	t.Parallel()

	c, err := meridiancache.New[string, int](meridiancache.WithEvictionPolicy[string, int](meridiancache.PolicyNone))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	want := map[string]int{"a": 1, "b": 2, "c": 3}

	for k, v := range want {
		if err := c.Put(ctx, k, v); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}

	got := make(map[string]int)

	it := c.Iterate()
	for {
		k, v, ok := it.Next()
		if !ok {
			break
		}

		got[k] = v
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}

	for k, v := range want {
		if got[k] != v {
			t.Fatalf("expected %s=%d, got %d", k, v, got[k])
		}
	}
}

func TestIterate_RemoveDeletesLastReturnedEntry(t *testing.T) {
	t.Parallel()

	c, err := meridiancache.New[string, int](meridiancache.WithEvictionPolicy[string, int](meridiancache.PolicyNone))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	_ = c.Put(ctx, "a", 1)

	it := c.Iterate()

	_, _, ok := it.Next()
	if !ok {
		t.Fatal("expected at least one entry")
	}

	removed, err := it.Remove(ctx)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if !removed {
		t.Fatal("expected Remove to report true")
	}

	if c.ContainsKey("a") {
		t.Fatal("expected the entry to be gone after iterator Remove")
	}
}

func TestIterate_SnapshotIsWeaklyConsistent(t *testing.T) {
	t.Parallel()

	c, err := meridiancache.New[string, int](meridiancache.WithEvictionPolicy[string, int](meridiancache.PolicyNone))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	_ = c.Put(ctx, "a", 1)

	it := c.Iterate()

	_ = c.Put(ctx, "b", 2)

	seen := make(map[string]bool)
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}

		seen[k] = true
	}

	if seen["b"] {
		t.Fatal("expected a key added after the snapshot was taken to be absent")
	}
}
