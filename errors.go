package meridiancache

import (
	"errors"
	"fmt"
	"reflect"
)

// Sentinel errors for the kinds that carry no per-call context. They follow
// the same shape as circuitbreaker.ErrCircuitOpen: a single package-level
// sentinel matched with errors.Is.
var (
	// ErrNullArgument is returned when a key or value is nil (a nil
	// pointer, map, slice, channel, func or interface) where the operation
	// does not permit it.
	ErrNullArgument = errors.New("meridiancache: null argument")
	// ErrClosedCache is returned by any operational method called after
	// Close.
	ErrClosedCache = errors.New("meridiancache: cache is closed")
	// ErrDuplicateListener is returned by RegisterListener when the
	// registration's Name is already registered.
	ErrDuplicateListener = errors.New("meridiancache: duplicate listener registration")
	// ErrInvalidConfig is returned by New when Options describe an
	// impossible configuration (bounded cache with no eviction policy,
	// CUSTOM policy with no implementation, concurrency_level < 1).
	ErrInvalidConfig = errors.New("meridiancache: invalid configuration")
)

// LoaderError wraps a failure from a configured CacheLoader.
type LoaderError[K comparable] struct {
	Key K
	Err error
}

func (e *LoaderError[K]) Error() string {
	return fmt.Sprintf("meridiancache: loader failed for key %v: %v", e.Key, e.Err)
}

func (e *LoaderError[K]) Unwrap() error { return e.Err }

// WriterError wraps a failure from a configured CacheWriter. For batch
// writes it reports the first key that failed; only the keys the writer
// rejected are skipped locally, and the rest of the batch is still applied.
type WriterError[K comparable] struct {
	Key K
	Err error
}

func (e *WriterError[K]) Error() string {
	return fmt.Sprintf("meridiancache: writer failed for key %v: %v", e.Key, e.Err)
}

func (e *WriterError[K]) Unwrap() error { return e.Err }

// ProcessorError wraps a panic or error raised by a user EntryProcessor. A
// ProcessorError returned by a nested Invoke call is never re-wrapped.
type ProcessorError[K comparable] struct {
	Key K
	Err error
}

func (e *ProcessorError[K]) Error() string {
	return fmt.Sprintf("meridiancache: entry processor failed for key %v: %v", e.Key, e.Err)
}

func (e *ProcessorError[K]) Unwrap() error { return e.Err }

// SerializationError wraps a failure encoding or decoding a value under
// WriteModeSerialize.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("meridiancache: serialization failed: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// wrapProcessorError ensures a ProcessorError is never double-wrapped when a
// processor re-throws an error it received from a nested cache call.
func wrapProcessorError[K comparable](key K, err error) error {
	if err == nil {
		return nil
	}

	var existing *ProcessorError[K]
	if errors.As(err, &existing) {
		return err
	}

	return &ProcessorError[K]{Key: key, Err: err}
}

// isNilArg reports whether v is a nil pointer, map, slice, channel, func, or
// interface boxed into the any it was passed as. A plain `v == nil` check
// misses the common case of a typed nil pointer boxed into an interface,
// which compares non-nil.
func isNilArg(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
