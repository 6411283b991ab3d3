package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a prometheus.Registry with a configured namespace and
// subsystem, providing convenience factories for the metric types the
// cache's statistics mirror needs.
type Registry struct {
	prometheus *prometheus.Registry
	namespace  string
	subsystem  string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// NewRegistry creates a Registry with the given options.
func NewRegistry(opts ...RegistryOption) *Registry {
	reg := &Registry{prometheus: prometheus.NewRegistry()}

	for _, opt := range opts {
		opt(reg)
	}

	return reg
}

// WithNamespace sets a global namespace prefix for all metrics created
// through this registry (e.g. "myapp").
func WithNamespace(ns string) RegistryOption {
	return func(r *Registry) { r.namespace = ns }
}

// WithSubsystem sets a global subsystem prefix for all metrics created
// through this registry (e.g. "cache").
func WithSubsystem(sub string) RegistryOption {
	return func(r *Registry) { r.subsystem = sub }
}

// PrometheusRegistry returns the underlying *prometheus.Registry so callers
// can integrate with third-party scrape servers.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheus
}

// Handler returns an http.Handler that serves the collected metrics in
// Prometheus exposition format. This is the only HTTP surface this package
// exposes; wiring it into a mux or server is the caller's responsibility.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheus, promhttp.HandlerOpts{})
}

func (r *Registry) newCounter(name, help string) prometheus.Counter {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      name,
		Help:      help,
	})
	r.prometheus.MustRegister(counter)

	return counter
}

func (r *Registry) newGauge(name, help string) prometheus.Gauge {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      name,
		Help:      help,
	})
	r.prometheus.MustRegister(gauge)

	return gauge
}

// mirrored metric instruments for one cache's statistics.
type mirrored struct {
	hits           prometheus.Counter
	misses         prometheus.Counter
	puts           prometheus.Counter
	removes        prometheus.Counter
	drops          prometheus.Counter
	evictions      prometheus.Counter
	evictionRounds prometheus.Counter
	evictionHalts  prometheus.Counter
	hitRatio       prometheus.Gauge
	evictionRate   prometheus.Gauge
}

func newMirrored(reg *Registry, name string) *mirrored {
	return &mirrored{
		hits:           reg.newCounter(name+"_hits_total", "Total number of cache hits."),
		misses:         reg.newCounter(name+"_misses_total", "Total number of cache misses."),
		puts:           reg.newCounter(name+"_puts_total", "Total number of cache put operations."),
		removes:        reg.newCounter(name+"_removes_total", "Total number of cache remove operations."),
		drops:          reg.newCounter(name+"_drops_total", "Total number of puts dropped under a full cache with the DROP jam policy."),
		evictions:      reg.newCounter(name+"_evictions_total", "Total number of entries evicted by the eviction worker."),
		evictionRounds: reg.newCounter(name+"_eviction_rounds_total", "Total number of eviction worker rounds run."),
		evictionHalts:  reg.newCounter(name+"_eviction_halts_total", "Total number of times the expiration sweeper halted due to lack of progress."),
		hitRatio:       reg.newGauge(name+"_hit_ratio", "Moving average hit ratio, as a percentage."),
		evictionRate:   reg.newGauge(name+"_eviction_rate_per_second", "Evicted entries per second over the last minute."),
	}
}

// mirroring is a Recorder decorator that forwards every event to an inner
// counting Recorder and also updates a matching set of Prometheus
// instruments, so a cache's statistics are observable both via Snapshot and
// via a Prometheus scrape.
type mirroring struct {
	inner Recorder
	m     *mirrored
}

// NewPrometheusRecorder returns a Recorder that counts exactly like New, and
// additionally mirrors every counter onto Prometheus instruments registered
// on reg under the given metric name prefix.
func NewPrometheusRecorder(reg *Registry, name string, inner Recorder) Recorder {
	return &mirroring{inner: inner, m: newMirrored(reg, name)}
}

func (m *mirroring) IncHits() {
	m.inner.IncHits()
	m.m.hits.Inc()
}

func (m *mirroring) IncMisses() {
	m.inner.IncMisses()
	m.m.misses.Inc()
}

func (m *mirroring) IncPuts() {
	m.inner.IncPuts()
	m.m.puts.Inc()
}

func (m *mirroring) IncRemoves() {
	m.inner.IncRemoves()
	m.m.removes.Inc()
}

func (m *mirroring) IncDrops() {
	m.inner.IncDrops()
	m.m.drops.Inc()
}

func (m *mirroring) IncEvictions(n int64) {
	m.inner.IncEvictions(n)

	if n > 0 {
		m.m.evictions.Add(float64(n))
	}
}

func (m *mirroring) IncEvictionRounds() {
	m.inner.IncEvictionRounds()
	m.m.evictionRounds.Inc()
}

func (m *mirroring) IncEvictionHalts() {
	m.inner.IncEvictionHalts()
	m.m.evictionHalts.Inc()
}

func (m *mirroring) Snapshot() Snapshot {
	snap := m.inner.Snapshot()

	m.m.hitRatio.Set(snap.HitRatio)
	m.m.evictionRate.Set(snap.EvictionRatePerSecond)

	return snap
}
