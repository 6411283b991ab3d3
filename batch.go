package meridiancache

import (
	"context"
	"errors"
)

// GetAll resolves every key in keys, going through the configured
// read-through loader on a miss exactly as Get does. It returns as soon as
// any key fails, along with whatever results were already resolved.
func (c *Cache[K, V]) GetAll(ctx context.Context, keys []K) (map[K]V, error) {
	results := make(map[K]V, len(keys))

	for _, key := range keys {
		value, err := c.Get(ctx, key)
		if err != nil {
			return results, err
		}

		results[key] = value
	}

	return results, nil
}

// LoadAll forces a read-through reload of every key in keys, overwriting
// whatever is currently cached for it, and returns the freshly loaded
// values. It fails fast on the first loader error.
func (c *Cache[K, V]) LoadAll(ctx context.Context, keys []K) (map[K]V, error) {
	if c.closed.Load() {
		return nil, ErrClosedCache
	}

	if c.loader == nil {
		return map[K]V{}, nil
	}

	results := make(map[K]V, len(keys))

	for _, key := range keys {
		if isNilArg(key) {
			return results, ErrNullArgument
		}

		value, err := c.callLoader(ctx, key)
		if err != nil {
			return results, err
		}

		if _, err := c.putLocal(key, value); err != nil && !errors.Is(err, ErrDropped) {
			return results, err
		}

		results[key] = value
	}

	return results, nil
}

// PutAll stores every entry in values. A write-through writer rejecting one
// key skips that key's local mutation but does not stop the rest of the
// batch from applying; once the whole batch has been processed, the first
// writer failure encountered is returned.
func (c *Cache[K, V]) PutAll(ctx context.Context, values map[K]V) error {
	if c.closed.Load() {
		return ErrClosedCache
	}

	var firstErr error

	for key, value := range values {
		if err := c.Put(ctx, key, value); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// RemoveAll deletes every key in keys. As with PutAll, a write-through
// failure on one key does not stop the remaining keys from being processed;
// the first failure is returned once the batch completes.
func (c *Cache[K, V]) RemoveAll(ctx context.Context, keys []K) error {
	if c.closed.Load() {
		return ErrClosedCache
	}

	var firstErr error

	for _, key := range keys {
		if _, err := c.Remove(ctx, key); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
