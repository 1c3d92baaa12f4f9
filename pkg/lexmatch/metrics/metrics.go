// Package metrics provides Prometheus metrics for the lookup engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup and build outcomes used as the status label.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusNotReady = "not_ready"
)

// Metrics groups the engine's collectors
type Metrics struct {
	// LookupsTotal tracks lookups by status
	LookupsTotal *prometheus.CounterVec
	// LookupDuration tracks lookup latency in seconds
	LookupDuration prometheus.Histogram
	// MatchesPerLookup tracks how many attributes a lookup returns
	MatchesPerLookup prometheus.Histogram
	// BuildsTotal tracks index builds by status
	BuildsTotal *prometheus.CounterVec
	// BuildDuration tracks index build time in seconds
	BuildDuration prometheus.Histogram
	// IndexedEntities is the entity count of the current snapshot
	IndexedEntities prometheus.Gauge
	// SkippedRows counts catalog rows rejected during builds
	SkippedRows prometheus.Counter
	// SnapshotSwaps counts snapshot installs by origin (build or artifact)
	SnapshotSwaps *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg creates unregistered
// collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LookupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lexmatch",
				Subsystem: "lookup",
				Name:      "requests_total",
				Help:      "Total number of lookups by status",
			},
			[]string{"status"},
		),
		LookupDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "lexmatch",
				Subsystem: "lookup",
				Name:      "duration_seconds",
				Help:      "Duration of lookups in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
		),
		MatchesPerLookup: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "lexmatch",
				Subsystem: "lookup",
				Name:      "matches",
				Help:      "Number of attributes returned per lookup",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
			},
		),
		BuildsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lexmatch",
				Subsystem: "index",
				Name:      "builds_total",
				Help:      "Total number of index builds by status",
			},
			[]string{"status"},
		),
		BuildDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "lexmatch",
				Subsystem: "index",
				Name:      "build_duration_seconds",
				Help:      "Duration of index builds in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		IndexedEntities: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "lexmatch",
				Subsystem: "index",
				Name:      "entities",
				Help:      "Number of entities in the active snapshot",
			},
		),
		SkippedRows: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lexmatch",
				Subsystem: "index",
				Name:      "skipped_rows_total",
				Help:      "Total number of catalog rows skipped during builds",
			},
		),
		SnapshotSwaps: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lexmatch",
				Subsystem: "index",
				Name:      "snapshot_swaps_total",
				Help:      "Total number of snapshot installs by origin",
			},
			[]string{"origin"},
		),
	}
}

// ObserveLookup records one lookup.
func (m *Metrics) ObserveLookup(status string, d time.Duration, matches int) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(status).Inc()
	m.LookupDuration.Observe(d.Seconds())
	if status == StatusOK {
		m.MatchesPerLookup.Observe(float64(matches))
	}
}

// ObserveBuild records one index build.
func (m *Metrics) ObserveBuild(status string, d time.Duration, skipped int) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(status).Inc()
	m.BuildDuration.Observe(d.Seconds())
	m.SkippedRows.Add(float64(skipped))
}

// ObserveSwap records a snapshot install.
func (m *Metrics) ObserveSwap(origin string, entities int) {
	if m == nil {
		return
	}
	m.SnapshotSwaps.WithLabelValues(origin).Inc()
	m.IndexedEntities.Set(float64(entities))
}
