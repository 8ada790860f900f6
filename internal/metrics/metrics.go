// Package metrics exposes schema-version-cache activity as Prometheus
// counters, served on their own HTTP server the way Aleph-Alpha-std's
// metrics package serves its registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schemaregistry/internal/cache"
)

// Config selects the metrics listener address and service label.
type Config struct {
	Address                 string
	ServiceName             string
	EnableDefaultCollectors bool
}

// Metrics owns a Prometheus registry, its HTTP exposition server, and the
// cache gauges/counters derived from a cache.Stats snapshot.
type Metrics struct {
	Server   *http.Server
	Registry *prometheus.Registry

	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheSize      prometheus.Gauge
}

// New builds a Metrics instance registered under cfg.ServiceName and
// listening on cfg.Address.
func New(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()
	wrapped := prometheus.WrapRegistererWith(prometheus.Labels{"service": cfg.ServiceName}, registry)

	if cfg.EnableDefaultCollectors {
		wrapped.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
	}

	m := &Metrics{
		Registry: registry,
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schema_version_cache_hits_total",
			Help: "Schema version cache lookups served without a storage load.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schema_version_cache_misses_total",
			Help: "Schema version cache lookups that required a storage load.",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schema_version_cache_evictions_total",
			Help: "Schema version cache entries evicted for size or expiry.",
		}),
		cacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schema_version_cache_size",
			Help: "Current number of entries held in the schema version cache.",
		}),
	}
	wrapped.MustRegister(m.cacheHits, m.cacheMisses, m.cacheEvictions, m.cacheSize)

	m.Server = &http.Server{
		Addr:    cfg.Address,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	return m
}

// ObserveCache records a point-in-time cache.Stats snapshot as counter
// deltas and a gauge set. Counters only move forward, so this must be
// called with monotonically non-decreasing cumulative stats — true of
// cache.Cache.Stats(), whose fields never reset for the life of the
// process.
func (m *Metrics) ObserveCache(stats cache.Stats, prev cache.Stats) {
	if d := stats.Hits - prev.Hits; d > 0 {
		m.cacheHits.Add(float64(d))
	}
	if d := stats.Misses - prev.Misses; d > 0 {
		m.cacheMisses.Add(float64(d))
	}
	if d := stats.Evictions - prev.Evictions; d > 0 {
		m.cacheEvictions.Add(float64(d))
	}
	m.cacheSize.Set(float64(stats.Size))
}
