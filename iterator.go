package meridiancache

import "context"

// Iterator walks a weakly-consistent snapshot of the cache's keys taken at
// call time; entries added or removed after the snapshot are not reflected.
type Iterator[K comparable, V any] struct {
	cache *Cache[K, V]
	keys  []K
	pos   int
}

// Iterate returns an Iterator over the cache's current key set.
func (c *Cache[K, V]) Iterate() *Iterator[K, V] {
	return &Iterator[K, V]{cache: c, keys: c.snapshotKeys()}
}

// Next advances to the next entry, reporting whether one was found. A key
// that expired or was removed since the snapshot was taken is skipped.
func (it *Iterator[K, V]) Next() (key K, value V, ok bool) {
	for it.pos < len(it.keys) {
		k := it.keys[it.pos]
		it.pos++

		now := it.cache.clock.Millis()

		it.cache.mu.RLock()
		h, exists := it.cache.entries[k]
		it.cache.mu.RUnlock()

		if !exists || h.isInvalid(now) {
			continue
		}

		raw, got := h.get(now)
		if !got {
			continue
		}

		v, err := it.cache.decode(raw)
		if err != nil {
			continue
		}

		return k, v, true
	}

	var zeroK K

	var zeroV V

	return zeroK, zeroV, false
}

// Remove deletes the entry most recently returned by Next, dispatching
// REMOVED like Cache.Remove.
func (it *Iterator[K, V]) Remove(ctx context.Context) (bool, error) {
	if it.pos == 0 {
		return false, nil
	}

	key := it.keys[it.pos-1]

	return it.cache.Remove(ctx, key)
}
