package meridiancache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/meridiancache/meridiancache/circuitbreaker"
	"github.com/meridiancache/meridiancache/clock"
	"github.com/meridiancache/meridiancache/eviction"
	"github.com/meridiancache/meridiancache/internal/logging"
	"github.com/meridiancache/meridiancache/retry"
	"github.com/meridiancache/meridiancache/stats"
)

// EvictionPolicyKind selects which built-in (or custom) eviction policy a
// bounded cache runs.
type EvictionPolicyKind int

const (
	// PolicyLFU evicts the least-frequently-used entry first.
	PolicyLFU EvictionPolicyKind = iota
	// PolicyLRU evicts the least-recently-used entry first.
	PolicyLRU
	// PolicyCustom delegates to a user-supplied eviction.Policy.
	PolicyCustom
	// PolicyNone disables eviction; the cache grows unboundedly.
	PolicyNone
)

const (
	defaultMaxIdleTime       = 1800 * time.Second
	defaultMaxCacheTime      = 3600 * time.Second
	defaultExpectedSize      = 10000
	defaultConcurrencyLevel  = 14
	defaultCleanupDivisor    = 10
	blockStartSpreadFraction = 0.15
	evictNormallyFraction    = 0.10
)

// CacheLoader is invoked on a read-through miss.
type CacheLoader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// CacheWriter is invoked before a mutation is applied locally, for
// write-through caches.
type CacheWriter[K comparable, V any] func(ctx context.Context, key K, value V) error

// Serializer marshals and unmarshals values for WriteModeSerialize. The core
// cache only declares the write-mode policy; supplying a codec is the
// caller's responsibility, matching the Non-goal that scopes a general
// serialization utility out of the core.
type Serializer[V any] interface {
	Marshal(V) ([]byte, error)
	Unmarshal([]byte) (V, error)
}

// Options is a flat, koanf-tagged settings struct mirroring spec.md §6.1.
// It is the shape config.Load populates from files/env/flags; pass the
// result to FromOptions to turn it into a functional Option.
type Options struct {
	ID                        string `koanf:"id"`
	MaxIdleTimeSeconds        int64  `koanf:"max_idle_time"`
	MaxCacheTimeSeconds       int64  `koanf:"max_cache_time"`
	MaxCacheTimeSpreadSeconds int64  `koanf:"max_cache_time_spread"`
	ExpectedSize              int    `koanf:"expected_size"`
	ConcurrencyLevel          int    `koanf:"concurrency_level"`
	EvictionPolicy            string `koanf:"eviction_policy"` // LFU | LRU | CUSTOM | NONE
	JamPolicy                 string `koanf:"jam_policy"`      // WAIT | DROP
	Statistics                bool   `koanf:"statistics"`
	WriteMode                 string `koanf:"write_mode"` // IDENTITY | SERIALIZE
}

// DefaultOptions returns the cache's documented defaults, suitable as the
// base layer for config.WithDefaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleTimeSeconds:  int64(defaultMaxIdleTime.Seconds()),
		MaxCacheTimeSeconds: int64(defaultMaxCacheTime.Seconds()),
		ExpectedSize:        defaultExpectedSize,
		ConcurrencyLevel:    defaultConcurrencyLevel,
		EvictionPolicy:      "LFU",
		JamPolicy:           "WAIT",
		Statistics:          true,
		WriteMode:           "IDENTITY",
	}
}

// Option configures a Cache at construction time.
type Option[K comparable, V any] func(*Cache[K, V])

// FromOptions applies every primitive field of a koanf-loaded Options
// struct. It does not and cannot configure function-valued collaborators
// (loader, writer, custom policy, logger) — compose it with the relevant
// With* option for those.
func FromOptions[K comparable, V any](o Options) Option[K, V] {
	return func(c *Cache[K, V]) {
		if o.ID != "" {
			c.id = o.ID
		}

		c.maxIdleTime = time.Duration(o.MaxIdleTimeSeconds) * time.Second
		c.maxCacheTime = time.Duration(o.MaxCacheTimeSeconds) * time.Second
		c.maxCacheTimeSpread = time.Duration(o.MaxCacheTimeSpreadSeconds) * time.Second

		if o.ExpectedSize > 0 {
			c.expectedSize = o.ExpectedSize
		}

		if o.ConcurrencyLevel > 0 {
			c.concurrencyLevel = o.ConcurrencyLevel
		}

		switch o.EvictionPolicy {
		case "LRU":
			c.evictionPolicyKind = PolicyLRU
		case "CUSTOM":
			c.evictionPolicyKind = PolicyCustom
		case "NONE":
			c.evictionPolicyKind = PolicyNone
		case "LFU", "":
			c.evictionPolicyKind = PolicyLFU
		}

		if o.JamPolicy == "DROP" {
			c.jamPolicy = eviction.JamDrop
		} else {
			c.jamPolicy = eviction.JamWait
		}

		c.statisticsEnabled = o.Statistics

		if o.WriteMode == "SERIALIZE" {
			c.writeMode = WriteModeSerialize
		} else {
			c.writeMode = WriteModeIdentity
		}
	}
}

// WithID sets the cache's human-readable name. Default: auto-generated.
func WithID[K comparable, V any](id string) Option[K, V] {
	return func(c *Cache[K, V]) { c.id = id }
}

// WithMaxIdleTime sets how long an entry may go unread before it expires.
// Zero disables idle expiry. Default: 1800s.
func WithMaxIdleTime[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) { c.maxIdleTime = d }
}

// WithMaxCacheTime sets an entry's absolute lifetime. Zero disables age
// expiry. Default: 3600s.
func WithMaxCacheTime[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) { c.maxCacheTime = d }
}

// WithMaxCacheTimeSpread adds a uniform-random extra lifetime per entry, up
// to d, to avoid synchronized mass expiration. Default: 0 (disabled).
func WithMaxCacheTimeSpread[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) { c.maxCacheTimeSpread = d }
}

// WithExpectedSize sets the target user capacity for a bounded cache and
// sizes the storage map's initial allocation. Default: 10000.
func WithExpectedSize[K comparable, V any](n int) Option[K, V] {
	return func(c *Cache[K, V]) { c.expectedSize = n }
}

// WithConcurrencyLevel hints at the expected number of concurrent writers.
// Must be >= 1. Default: 14.
func WithConcurrencyLevel[K comparable, V any](n int) Option[K, V] {
	return func(c *Cache[K, V]) { c.concurrencyLevel = n }
}

// WithEvictionPolicy selects a built-in eviction policy. Default: PolicyLFU.
func WithEvictionPolicy[K comparable, V any](kind EvictionPolicyKind) Option[K, V] {
	return func(c *Cache[K, V]) { c.evictionPolicyKind = kind }
}

// WithEvictionCustom supplies a user eviction.Policy for PolicyCustom.
func WithEvictionCustom[K comparable, V any](policy eviction.Policy[K]) Option[K, V] {
	return func(c *Cache[K, V]) { c.customPolicy = policy }
}

// WithJamPolicy selects how put-family operations behave when the cache is
// over-full. Default: eviction.JamWait.
func WithJamPolicy[K comparable, V any](p eviction.JamPolicy) Option[K, V] {
	return func(c *Cache[K, V]) { c.jamPolicy = p }
}

// WithStatistics enables or disables the statistics recorder. Default: true.
func WithStatistics[K comparable, V any](enabled bool) Option[K, V] {
	return func(c *Cache[K, V]) { c.statisticsEnabled = enabled }
}

// WithPrometheus mirrors the statistics recorder's counters onto reg under
// name. Requires WithStatistics(true) (the default).
func WithPrometheus[K comparable, V any](reg *stats.Registry, name string) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.prometheusRegistry = reg
		c.prometheusName = name
	}
}

// WithWriteMode selects identity or store-by-value semantics. Default:
// WriteModeIdentity.
func WithWriteMode[K comparable, V any](mode writeMode) Option[K, V] {
	return func(c *Cache[K, V]) { c.writeMode = mode }
}

// WithSerializer supplies the codec used under WriteModeSerialize.
func WithSerializer[K comparable, V any](s Serializer[V]) Option[K, V] {
	return func(c *Cache[K, V]) { c.serializer = s }
}

// WithLoader configures a read-through loader, invoked on a Get miss.
func WithLoader[K comparable, V any](loader CacheLoader[K, V]) Option[K, V] {
	return func(c *Cache[K, V]) { c.loader = loader }
}

// WithWriter configures a write-through writer, invoked before a mutation
// is applied locally.
func WithWriter[K comparable, V any](writer CacheWriter[K, V]) Option[K, V] {
	return func(c *Cache[K, V]) { c.writer = writer }
}

// WithLoaderRetry wraps loader calls in retry.Run with the given options.
func WithLoaderRetry[K comparable, V any](opts ...retry.Option) Option[K, V] {
	return func(c *Cache[K, V]) { c.loaderRetry = opts }
}

// WithLoaderBreaker wraps loader calls in a circuit breaker.
func WithLoaderBreaker[K comparable, V any](opts ...circuitbreaker.Option) Option[K, V] {
	return func(c *Cache[K, V]) { c.loaderBreaker = circuitbreaker.New(opts...) }
}

// WithWriterRetry wraps writer calls in retry.Run with the given options.
func WithWriterRetry[K comparable, V any](opts ...retry.Option) Option[K, V] {
	return func(c *Cache[K, V]) { c.writerRetry = opts }
}

// WithWriterBreaker wraps writer calls in a circuit breaker.
func WithWriterBreaker[K comparable, V any](opts ...circuitbreaker.Option) Option[K, V] {
	return func(c *Cache[K, V]) { c.writerBreaker = circuitbreaker.New(opts...) }
}

// WithLogger overrides the logger used for background-worker diagnostics.
// Default: logging.Default().
func WithLogger[K comparable, V any](logger logging.Logger) Option[K, V] {
	return func(c *Cache[K, V]) { c.logger = logger }
}

// WithClock overrides the time source, primarily for tests that need a
// finer or coarser tick than clock.Default().
func WithClock[K comparable, V any](source *clock.Source) Option[K, V] {
	return func(c *Cache[K, V]) { c.clock = source }
}

func generateID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "cache-0"
	}

	return "cache-" + hex.EncodeToString(buf)
}
