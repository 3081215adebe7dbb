// Package metrics holds the Prometheus collectors the publisher, the
// freshness cache, and the ingestion supervisor report to, plus the
// StepTimer helper used to time each finder invocation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every collector the publisher and cache report to.
type Registry struct {
	FinderDuration     *prometheus.HistogramVec
	OpportunitiesFound *prometheus.CounterVec
	CacheSize          prometheus.Gauge
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	PublisherTicks     prometheus.Counter
	PublisherErrors    *prometheus.CounterVec
	StreamFailures     *prometheus.CounterVec

	reg *prometheus.Registry
}

// NewRegistry constructs and registers all collectors against reg.
func NewRegistry(reg *prometheus.Registry) *Registry {
	r := &Registry{
		reg: reg,
		FinderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbitrage_search_duration_seconds",
			Help:    "Time spent searching for arbitrage opportunities",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		OpportunitiesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbitrage_opportunities_total",
			Help: "Total number of arbitrage opportunities found",
		}, []string{"type"}),
		CacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "freshness_cache_entries",
			Help: "Current number of live entries in the freshness cache",
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freshness_cache_hits_total",
			Help: "Freshness cache reads that found a fresh entry",
		}, []string{"namespace"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freshness_cache_misses_total",
			Help: "Freshness cache reads that found no fresh entry",
		}, []string{"namespace"}),
		PublisherTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "publisher_ticks_total",
			Help: "Total number of completed publisher loop iterations",
		}),
		PublisherErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publisher_errors_total",
			Help: "Total number of publisher iterations that hit a finder error",
		}, []string{"type"}),
		StreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venue_stream_failures_total",
			Help: "Total number of failed or broken venue stream sessions",
		}, []string{"venue"}),
	}

	reg.MustRegister(
		r.FinderDuration,
		r.OpportunitiesFound,
		r.CacheSize,
		r.CacheHits,
		r.CacheMisses,
		r.PublisherTicks,
		r.PublisherErrors,
		r.StreamFailures,
	)
	return r
}

// Gatherer exposes the underlying registry for the ops surface's /metrics
// exposition handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// StepTimer times one finder invocation and records its duration on Stop.
type StepTimer struct {
	start  time.Time
	kind   string
	hist   *prometheus.HistogramVec
}

func (r *Registry) StartFinderTimer(kind string) *StepTimer {
	return &StepTimer{start: time.Now(), kind: kind, hist: r.FinderDuration}
}

func (t *StepTimer) Stop() {
	t.hist.WithLabelValues(t.kind).Observe(time.Since(t.start).Seconds())
}
