// Package meridiancache implements an in-process, concurrent, bounded
// key/value cache with expiration, pluggable eviction, read/write-through,
// listeners, and statistics.
package meridiancache

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meridiancache/meridiancache/circuitbreaker"
	"github.com/meridiancache/meridiancache/clock"
	"github.com/meridiancache/meridiancache/eviction"
	"github.com/meridiancache/meridiancache/expirer"
	"github.com/meridiancache/meridiancache/internal/logging"
	"github.com/meridiancache/meridiancache/listener"
	"github.com/meridiancache/meridiancache/retry"
	"github.com/meridiancache/meridiancache/stats"
)

// ErrDropped is returned by a put-family operation under JamDrop when the
// cache is over-full; the caller's value was not stored.
var ErrDropped = errors.New("meridiancache: put dropped, cache is over capacity")

// Cache is an in-process, concurrent key/value cache. The zero value is not
// usable; construct one with New.
type Cache[K comparable, V any] struct {
	id                 string
	maxIdleTime        time.Duration
	maxCacheTime       time.Duration
	maxCacheTimeSpread time.Duration
	expectedSize       int
	concurrencyLevel   int
	evictionPolicyKind EvictionPolicyKind
	customPolicy       eviction.Policy[K]
	jamPolicy          eviction.JamPolicy
	statisticsEnabled  bool
	prometheusRegistry *stats.Registry
	prometheusName     string
	writeMode          writeMode
	serializer         Serializer[V]
	loader             CacheLoader[K, V]
	writer             CacheWriter[K, V]
	loaderRetry        []retry.Option
	loaderBreaker      *circuitbreaker.Breaker
	writerRetry        []retry.Option
	writerBreaker      *circuitbreaker.Breaker
	logger             logging.Logger
	clock              *clock.Source

	mu      sync.RWMutex
	entries map[K]*holder[V]
	closed  atomic.Bool

	recorder   stats.Recorder
	dispatcher *listener.Dispatcher[K, V]
	sweeper    *expirer.Sweeper[K]
	policy     eviction.Policy[K]
	worker     *eviction.Worker[K]

	bounded           bool
	userDataElements  int
	blockStartAt      int
	evictNormally     int
	evictUntilAtLeast int
}

// New constructs a Cache. Without any options the cache is bounded by
// PolicyLFU at the default expected size (an unbounded cache needs an
// explicit PolicyNone), uses identity write mode, and has statistics enabled.
func New[K comparable, V any](opts ...Option[K, V]) (*Cache[K, V], error) {
	c := &Cache[K, V]{
		id:                 generateID(),
		maxIdleTime:        defaultMaxIdleTime,
		maxCacheTime:       defaultMaxCacheTime,
		expectedSize:       defaultExpectedSize,
		concurrencyLevel:   defaultConcurrencyLevel,
		evictionPolicyKind: PolicyLFU,
		jamPolicy:          eviction.JamWait,
		statisticsEnabled:  true,
		writeMode:          WriteModeIdentity,
		entries:            make(map[K]*holder[V]),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.concurrencyLevel < 1 {
		return nil, ErrInvalidConfig
	}

	if c.evictionPolicyKind == PolicyCustom && c.customPolicy == nil {
		return nil, ErrInvalidConfig
	}

	if c.expectedSize > 0 {
		c.entries = make(map[K]*holder[V], c.expectedSize)
	}

	if c.logger == nil {
		c.logger = logging.Default()
	}

	if c.clock == nil {
		c.clock = clock.Default()
	}

	if c.statisticsEnabled {
		var rec stats.Recorder = stats.New(c.clock)
		if c.prometheusRegistry != nil {
			rec = stats.NewPrometheusRecorder(c.prometheusRegistry, c.prometheusName, rec)
		}
		c.recorder = rec
	} else {
		c.recorder = stats.Noop()
	}

	c.dispatcher = listener.New[K, V](c.logger)

	cleanupInterval := c.maxIdleTime / defaultCleanupDivisor
	if cleanupInterval <= 0 {
		cleanupInterval = time.Second
	}

	c.sweeper = expirer.New[K](cleanupInterval, c.logger, c.recorder)
	c.sweeper.Keys = c.snapshotKeys
	c.sweeper.IsExpired = c.isKeyExpired
	c.sweeper.Remove = c.removeExpiredKey
	c.sweeper.Size = c.Size

	c.bounded = c.evictionPolicyKind != PolicyNone
	if c.bounded {
		c.userDataElements = c.expectedSize
		c.blockStartAt = c.userDataElements + int(float64(c.userDataElements)*blockStartSpreadFraction)
		c.evictNormally = max(1, int(float64(c.userDataElements)*evictNormallyFraction))
		c.evictUntilAtLeast = max(0, c.userDataElements-c.evictNormally)

		switch c.evictionPolicyKind {
		case PolicyLRU:
			c.policy = eviction.NewLRU[K](c)
		case PolicyCustom:
			c.policy = c.customPolicy
		case PolicyLFU, PolicyNone:
			c.policy = eviction.NewLFU[K](c)
		}

		c.worker = eviction.NewWorker(c.policy, c.snapshotKeys, c.removeForEviction, c.Size, c.elementsToRemove)
		c.worker.OnRound = c.onEvictionRound
		c.worker.Logger = c.logger
		c.worker.Start()
	}

	return c, nil
}

// ID returns the cache's configured or auto-generated name.
func (c *Cache[K, V]) ID() string { return c.id }

// Stats returns a snapshot of the statistics recorder's counters.
func (c *Cache[K, V]) Stats() stats.Snapshot { return c.recorder.Snapshot() }

// RegisterListener adds a listener registration. Returns ErrDuplicateListener
// if reg.Name is already registered.
func (c *Cache[K, V]) RegisterListener(reg listener.Registration[K, V]) error {
	if err := c.dispatcher.Register(reg); err != nil {
		return ErrDuplicateListener
	}

	return nil
}

// DeregisterListener removes a listener registration by name.
func (c *Cache[K, V]) DeregisterListener(name string) {
	c.dispatcher.Deregister(name)
}

// Get returns the value for key, going through the configured read-through
// loader on a miss.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	if c.closed.Load() {
		return zero, ErrClosedCache
	}

	if isNilArg(key) {
		return zero, ErrNullArgument
	}

	now := c.clock.Millis()

	c.mu.RLock()
	h, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && !h.isInvalid(now) {
		if raw, got := h.get(now); got {
			value, err := c.decode(raw)
			if err != nil {
				return zero, err
			}

			c.recorder.IncHits()

			return value, nil
		}
	}

	c.recorder.IncMisses()

	if c.loader == nil {
		return zero, nil
	}

	value, err := c.callLoader(ctx, key)
	if err != nil {
		return zero, err
	}

	if _, err := c.putLocal(key, value); err != nil && !errors.Is(err, ErrDropped) {
		return zero, err
	}

	return value, nil
}

// Put unconditionally stores value for key, dispatching CREATED or UPDATED.
func (c *Cache[K, V]) Put(ctx context.Context, key K, value V) error {
	if c.closed.Load() {
		return ErrClosedCache
	}

	if isNilArg(key) || isNilArg(value) {
		return ErrNullArgument
	}

	if err := c.callWriter(ctx, key, value); err != nil {
		return err
	}

	_, err := c.putLocal(key, value)

	return err
}

// PutIfAbsent stores value for key only if key is absent or expired. It
// reports whether the insertion happened; when it did not, previous holds
// the value already present.
func (c *Cache[K, V]) PutIfAbsent(ctx context.Context, key K, value V) (previous V, inserted bool, err error) {
	var zero V

	if c.closed.Load() {
		return zero, false, ErrClosedCache
	}

	if isNilArg(key) || isNilArg(value) {
		return zero, false, ErrNullArgument
	}

	now := c.clock.Millis()

	if v, ok, hitErr := c.existingValue(key, now); ok {
		return v, false, hitErr
	}

	if err := c.callWriter(ctx, key, value); err != nil {
		return zero, false, err
	}

	raw, err := c.encode(value)
	if err != nil {
		return zero, false, err
	}

	if dropped := c.reserveCapacity(); dropped {
		return zero, false, ErrDropped
	}

	h := newHolder[V](raw, c.writeMode)
	h.complete(c.effectiveMaxIdleMillis(), c.effectiveMaxCacheMillis(), now)

	c.mu.Lock()
	if existing, ok := c.entries[key]; ok && !existing.isInvalid(now) {
		c.mu.Unlock()

		if v, ok, hitErr := c.existingValue(key, now); ok {
			return v, false, hitErr
		}

		return zero, false, nil
	}

	c.entries[key] = h
	c.mu.Unlock()

	c.recorder.IncPuts()
	c.sweeper.EnsureRunning()
	c.dispatcher.Dispatch(listener.Event[K, V]{Type: listener.Created, Key: key, NewValue: value, HasNew: true})

	return zero, true, nil
}

func (c *Cache[K, V]) existingValue(key K, now int64) (V, bool, error) {
	var zero V

	c.mu.RLock()
	h, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || h.isInvalid(now) {
		return zero, false, nil
	}

	raw, got := h.get(now)
	if !got {
		return zero, false, nil
	}

	v, err := c.decode(raw)
	if err != nil {
		return zero, true, err
	}

	c.recorder.IncHits()

	return v, true, nil
}

// Replace stores value for key only if a complete, non-expired mapping
// already exists.
func (c *Cache[K, V]) Replace(ctx context.Context, key K, value V) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosedCache
	}

	if isNilArg(key) || isNilArg(value) {
		return false, ErrNullArgument
	}

	now := c.clock.Millis()

	c.mu.RLock()
	h, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || h.isInvalid(now) {
		return false, nil
	}

	if err := c.callWriter(ctx, key, value); err != nil {
		return false, err
	}

	if _, err := c.putLocal(key, value); err != nil {
		return false, err
	}

	return true, nil
}

// ReplaceIfEqual replaces key's value with newValue only if its current
// value deep-equals old.
func (c *Cache[K, V]) ReplaceIfEqual(ctx context.Context, key K, old, newValue V) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosedCache
	}

	if isNilArg(key) || isNilArg(newValue) {
		return false, ErrNullArgument
	}

	now := c.clock.Millis()

	c.mu.RLock()
	h, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || h.isInvalid(now) {
		return false, nil
	}

	raw, got := h.peek()
	if !got {
		return false, nil
	}

	current, err := c.decode(raw)
	if err != nil {
		return false, err
	}

	if !reflect.DeepEqual(current, old) {
		return false, nil
	}

	if err := c.callWriter(ctx, key, newValue); err != nil {
		return false, err
	}

	if _, err := c.putLocal(key, newValue); err != nil {
		return false, err
	}

	return true, nil
}

// GetAndReplace atomically stores value for key and returns the previous
// value, if any.
func (c *Cache[K, V]) GetAndReplace(ctx context.Context, key K, value V) (previous V, existed bool, err error) {
	var zero V

	if c.closed.Load() {
		return zero, false, ErrClosedCache
	}

	if isNilArg(key) || isNilArg(value) {
		return zero, false, ErrNullArgument
	}

	now := c.clock.Millis()

	c.mu.RLock()
	h, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && !h.isInvalid(now) {
		if raw, got := h.peek(); got {
			v, decErr := c.decode(raw)
			if decErr != nil {
				return zero, true, decErr
			}

			previous, existed = v, true
		}
	}

	if err := c.callWriter(ctx, key, value); err != nil {
		return zero, false, err
	}

	if _, err := c.putLocal(key, value); err != nil {
		return zero, false, err
	}

	return previous, existed, nil
}

// Remove deletes key unconditionally, reporting whether it was present.
func (c *Cache[K, V]) Remove(ctx context.Context, key K) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosedCache
	}

	if isNilArg(key) {
		return false, ErrNullArgument
	}

	return c.removeLocal(ctx, key, nil)
}

// RemoveIfEqual deletes key only if its current value deep-equals value.
func (c *Cache[K, V]) RemoveIfEqual(ctx context.Context, key K, value V) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosedCache
	}

	if isNilArg(key) {
		return false, ErrNullArgument
	}

	return c.removeLocal(ctx, key, &value)
}

func (c *Cache[K, V]) removeLocal(ctx context.Context, key K, expect *V) (bool, error) {
	now := c.clock.Millis()

	c.mu.RLock()
	h, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || h.isInvalid(now) {
		return false, nil
	}

	if expect != nil {
		raw, got := h.peek()
		if !got {
			return false, nil
		}

		current, err := c.decode(raw)
		if err != nil {
			return false, err
		}

		if !reflect.DeepEqual(current, *expect) {
			return false, nil
		}
	}

	raw, _ := h.peek()

	value, err := c.decode(raw)
	if err != nil {
		return false, err
	}

	if err := c.callWriterRemove(ctx, key); err != nil {
		return false, err
	}

	c.mu.Lock()
	current, stillPresent := c.entries[key]
	if !stillPresent || current != h {
		c.mu.Unlock()

		return false, nil
	}

	delete(c.entries, key)
	c.mu.Unlock()

	h.release()
	c.recorder.IncRemoves()
	c.dispatcher.Dispatch(listener.Event[K, V]{Type: listener.Removed, Key: key, OldValue: value, HasOld: true})

	return true, nil
}

// Clear empties the cache without firing listeners or recording per-entry
// removals, per spec.
func (c *Cache[K, V]) Clear(_ context.Context) error {
	if c.closed.Load() {
		return ErrClosedCache
	}

	c.mu.Lock()
	old := c.entries
	c.entries = make(map[K]*holder[V])
	c.mu.Unlock()

	for _, h := range old {
		h.release()
	}

	return nil
}

// ContainsKey reports whether key maps to a complete, non-expired holder.
func (c *Cache[K, V]) ContainsKey(key K) bool {
	if c.closed.Load() {
		return false
	}

	now := c.clock.Millis()

	c.mu.RLock()
	h, ok := c.entries[key]
	c.mu.RUnlock()

	return ok && !h.isInvalid(now)
}

// Size returns a best-effort count of entries currently in the map,
// including ones that have not yet been swept despite being invalid.
func (c *Cache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Close transitions the cache to closed, stopping both background workers.
// Safe to call more than once.
func (c *Cache[K, V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.sweeper.Stop()

	if c.worker != nil {
		c.worker.Stop()
	}

	c.dispatcher.Close()

	return nil
}

func (c *Cache[K, V]) putLocal(key K, value V) (created bool, err error) {
	raw, err := c.encode(value)
	if err != nil {
		return false, err
	}

	if dropped := c.reserveCapacity(); dropped {
		return false, ErrDropped
	}

	now := c.clock.Millis()
	h := newHolder[V](raw, c.writeMode)
	h.complete(c.effectiveMaxIdleMillis(), c.effectiveMaxCacheMillis(), now)

	c.mu.Lock()
	old, existed := c.entries[key]
	c.entries[key] = h
	c.mu.Unlock()

	if existed {
		old.release()
	}

	c.recorder.IncPuts()
	c.sweeper.EnsureRunning()

	eventType := listener.Created
	if existed {
		eventType = listener.Updated
	}

	c.dispatcher.Dispatch(listener.Event[K, V]{Type: eventType, Key: key, NewValue: value, HasNew: true})

	return !existed, nil
}

// reserveCapacity signals the eviction worker when the map has reached its
// target size, and enforces the WAIT/DROP jam policy once it is over-full.
// It reports whether the caller's put must be dropped.
func (c *Cache[K, V]) reserveCapacity() bool {
	if !c.bounded {
		return false
	}

	size := c.Size()
	if size < c.userDataElements {
		return false
	}

	c.worker.Signal()

	if size < c.blockStartAt {
		return false
	}

	if c.jamPolicy == eviction.JamDrop {
		c.recorder.IncDrops()

		return true
	}

	c.worker.WaitUntilBelow(c.blockStartAt)

	return false
}

func (c *Cache[K, V]) elementsToRemove() int {
	size := c.Size()
	if size < c.userDataElements {
		return 0
	}

	target := c.evictNormally
	if size-target < c.evictUntilAtLeast {
		target = size - c.evictUntilAtLeast
	}

	return max(0, target)
}

func (c *Cache[K, V]) onEvictionRound(evicted int) {
	c.recorder.IncEvictionRounds()
	c.recorder.IncEvictions(int64(evicted))
}

func (c *Cache[K, V]) removeForEviction(key K) bool {
	c.mu.Lock()
	h, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()

		return false
	}

	delete(c.entries, key)
	c.mu.Unlock()

	return h.release()
}

func (c *Cache[K, V]) snapshotKeys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]K, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}

	return keys
}

func (c *Cache[K, V]) isKeyExpired(key K) bool {
	c.mu.RLock()
	h, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return false
	}

	return h.isInvalid(c.clock.Millis())
}

func (c *Cache[K, V]) removeExpiredKey(key K) bool {
	c.mu.Lock()
	h, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()

		return false
	}

	raw, hadValue := h.peek()
	delete(c.entries, key)
	c.mu.Unlock()

	released := h.release()
	if released && hadValue {
		if value, err := c.decode(raw); err == nil {
			c.dispatcher.Dispatch(listener.Event[K, V]{Type: listener.Expired, Key: key, OldValue: value, HasOld: true})
		}
	}

	return released
}

// UseCount implements eviction.Accessor for the LFU policy.
func (c *Cache[K, V]) UseCount(key K) (int64, bool) {
	c.mu.RLock()
	h, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return 0, false
	}

	return h.useCountValue(), true
}

// LastAccessMillis implements eviction.Accessor for the LRU policy.
func (c *Cache[K, V]) LastAccessMillis(key K) (int64, bool) {
	c.mu.RLock()
	h, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return 0, false
	}

	return h.lastAccessValue(), true
}

func (c *Cache[K, V]) effectiveMaxIdleMillis() int64 {
	return c.maxIdleTime.Milliseconds()
}

func (c *Cache[K, V]) effectiveMaxCacheMillis() int64 {
	base := c.maxCacheTime.Milliseconds()
	if c.maxCacheTimeSpread <= 0 {
		return base
	}

	spreadMs := c.maxCacheTimeSpread.Milliseconds()

	return base + rand.Int64N(spreadMs+1) //nolint:gosec // spread jitter does not need crypto rand
}

func (c *Cache[K, V]) encode(value V) (any, error) {
	if c.writeMode != WriteModeSerialize {
		return any(value), nil
	}

	if c.serializer == nil {
		return nil, &SerializationError{Err: errSerializerRequired}
	}

	b, err := c.serializer.Marshal(value)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}

	return b, nil
}

func (c *Cache[K, V]) decode(raw any) (V, error) {
	var zero V

	if c.writeMode != WriteModeSerialize {
		v, ok := raw.(V)
		if !ok {
			return zero, nil
		}

		return v, nil
	}

	if c.serializer == nil {
		return zero, &SerializationError{Err: errSerializerRequired}
	}

	b, ok := raw.([]byte)
	if !ok {
		return zero, &SerializationError{Err: errSerializerRequired}
	}

	v, err := c.serializer.Unmarshal(b)
	if err != nil {
		return zero, &SerializationError{Err: err}
	}

	return v, nil
}

var errSerializerRequired = errors.New("write mode is SERIALIZE but no Serializer is configured")
