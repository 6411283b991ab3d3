package meridiancache

import "context"

type processorOp int

const (
	opNop processorOp = iota
	opSet
	opRemove
	opRemoveWriteThrough
)

// MutableEntry is the surrogate a Processor mutates. Its recorded operation
// is applied to the owning cache once the processor returns.
type MutableEntry[K comparable, V any] struct {
	key      K
	value    V
	exists   bool
	op       processorOp
	newValue V
}

// Key returns the entry's key.
func (e *MutableEntry[K, V]) Key() K { return e.key }

// Get returns the entry's current value, resolved via read-through before
// the processor ran if it was absent. ok is false if no value exists.
func (e *MutableEntry[K, V]) Get() (V, bool) { return e.value, e.exists }

// Exists reports whether the entry currently has a value.
func (e *MutableEntry[K, V]) Exists() bool { return e.exists }

// Set records that the entry's value must become v.
func (e *MutableEntry[K, V]) Set(v V) {
	e.op = opSet
	e.newValue = v
	e.value = v
	e.exists = true
}

// Remove records that the entry must be deleted locally. The write-through
// writer is not called for the removal; CacheWriter only covers puts.
func (e *MutableEntry[K, V]) Remove() {
	e.op = opRemove
	e.exists = false
}

// RemoveWriteThroughOnly records a removal that bypasses local mutation.
// The local entry is left in place, and the writer is not called either
// (CacheWriter only covers puts), so applying it has no effect.
func (e *MutableEntry[K, V]) RemoveWriteThroughOnly() {
	e.op = opRemoveWriteThrough
	e.exists = false
}

// Processor is the user callback invoked by Invoke/InvokeAll.
type Processor[K comparable, V any] func(entry *MutableEntry[K, V], args ...any)

// Invoke materializes a mutable surrogate for key (resolving it via
// read-through if absent), runs processor against it, and applies whatever
// operation the processor recorded. A panic inside processor is recovered
// and reported as a ProcessorError, matching a returned error's treatment.
func (c *Cache[K, V]) Invoke(ctx context.Context, key K, processor Processor[K, V], args ...any) (result V, err error) {
	var zero V

	if c.closed.Load() {
		return zero, ErrClosedCache
	}

	if isNilArg(key) {
		return zero, ErrNullArgument
	}

	defer func() {
		if r := recover(); r != nil {
			err = wrapProcessorError[K](key, panicToError(r))
		}
	}()

	entry := &MutableEntry[K, V]{key: key}

	if current, getErr := c.Get(ctx, key); getErr == nil {
		if !isZeroLookupMiss(c, key) {
			entry.value = current
			entry.exists = true
		}
	} else {
		return zero, wrapProcessorError[K](key, getErr)
	}

	processor(entry, args...)

	switch entry.op {
	case opSet:
		if putErr := c.Put(ctx, key, entry.newValue); putErr != nil {
			return zero, wrapProcessorError[K](key, putErr)
		}

		return entry.newValue, nil
	case opRemove:
		if _, rmErr := c.Remove(ctx, key); rmErr != nil {
			return zero, wrapProcessorError[K](key, rmErr)
		}
	case opRemoveWriteThrough:
		if wErr := c.callWriterRemove(ctx, key); wErr != nil {
			return zero, wrapProcessorError[K](key, wErr)
		}
	case opNop:
	}

	return entry.value, nil
}

// InvokeAll runs Invoke once per key. Per-key failures are collected in the
// returned map rather than aborting the batch.
func (c *Cache[K, V]) InvokeAll(ctx context.Context, keys []K, processor Processor[K, V], args ...any) map[K]error {
	failures := make(map[K]error)

	for _, key := range keys {
		if _, err := c.Invoke(ctx, key, processor, args...); err != nil {
			failures[key] = err
		}
	}

	return failures
}

// isZeroLookupMiss reports whether the most recent ContainsKey check for key
// would fail, used to tell Invoke a Get returning the zero value actually
// means "absent" rather than "present with a zero value".
func isZeroLookupMiss[K comparable, V any](c *Cache[K, V], key K) bool {
	return !c.ContainsKey(key)
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}

	return &panicValue{r}
}

type panicValue struct{ v any }

func (p *panicValue) Error() string { return "entry processor panicked" }
