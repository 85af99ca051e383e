package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	// Prometheus metrics
	resolutions        *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cascadeSaves       *prometheus.CounterVec
	errors             *prometheus.CounterVec
	conditionHitRate   prometheus.Gauge
	conditionPrograms  prometheus.Gauge
}

// NewPrometheusExporter creates a new Prometheus exporter registering its metrics
// with reg. A nil reg selects the default registerer.
func NewPrometheusExporter(collector *Collector, reg prometheus.Registerer) *PrometheusExporter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusExporter{
		collector: collector,
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kankei_relationship_resolutions_total",
				Help: "Total number of relationship resolutions that queried the repositories",
			},
			[]string{"kind"},
		),
		resolutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kankei_relationship_resolution_duration_seconds",
				Help:    "Duration of relationship resolutions in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"kind"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kankei_relationship_cache_hits_total",
				Help: "Total number of relationships served from the instance cache",
			},
			[]string{"kind"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kankei_relationship_cache_misses_total",
				Help: "Total number of relationships resolved on access",
			},
			[]string{"kind"},
		),
		cascadeSaves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kankei_cascade_saves_total",
				Help: "Total number of related records saved by the save cascade",
			},
			[]string{"phase"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kankei_engine_errors_total",
				Help: "Total number of failed engine operations",
			},
			[]string{"operation"},
		),
		conditionHitRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kankei_condition_cache_hit_rate",
			Help: "Current hit rate of the compiled condition cache (0.0 to 1.0)",
		}),
		conditionPrograms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kankei_condition_cache_programs_current",
			Help: "Current number of compiled condition programs",
		}),
	}
}

// Update updates Gauge metrics from the collector.
// Counters are updated as they are recorded, so only update gauges here.
func (e *PrometheusExporter) Update() {
	cacheMetrics := e.collector.GetCacheMetrics()
	e.conditionHitRate.Set(cacheMetrics.HitRate)
	e.conditionPrograms.Set(float64(cacheMetrics.KeysCurrent))
}

// RecordResolution records a resolution and its duration in Prometheus.
func (e *PrometheusExporter) RecordResolution(kind string, durationSeconds float64) {
	e.resolutions.WithLabelValues(kind).Inc()
	e.resolutionDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordCacheHit records an instance cache hit.
func (e *PrometheusExporter) RecordCacheHit(kind string) {
	e.cacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records an instance cache miss.
func (e *PrometheusExporter) RecordCacheMiss(kind string) {
	e.cacheMisses.WithLabelValues(kind).Inc()
}

// RecordCascadeSave records a cascaded save.
func (e *PrometheusExporter) RecordCascadeSave(phase string) {
	e.cascadeSaves.WithLabelValues(phase).Inc()
}

// RecordError records an error in Prometheus.
func (e *PrometheusExporter) RecordError(operation string) {
	e.errors.WithLabelValues(operation).Inc()
}
