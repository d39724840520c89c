// Package metrics exposes Prometheus instrumentation for recommendations and
// the job pool. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "npk_advisor"

// Metrics owns a private registry so tests and embedded servers do not
// collide on the global one.
type Metrics struct {
	registry         *prometheus.Registry
	optimizations    *prometheus.CounterVec
	duration         prometheus.Histogram
	iterations       prometheus.Histogram
	jobs             *prometheus.GaugeVec
	weatherFallbacks prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		optimizations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimizations_total",
			Help:      "Optimizations by terminal status.",
		}, []string{"status"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "optimization_duration_seconds",
			Help:      "Wall time of a single optimization including the fallback.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		iterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "optimization_iterations",
			Help:      "Solver iterations per optimization.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 150},
		}),
		jobs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Recommendation jobs currently held, by state.",
		}, []string{"state"}),
		weatherFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_fallbacks_total",
			Help:      "Recommendations that used stored or default weather instead of the archive.",
		}),
	}
}

// ObserveOptimization records one optimization outcome.
func (m *Metrics) ObserveOptimization(status string, elapsed time.Duration, iterations int) {
	if m == nil {
		return
	}
	m.optimizations.WithLabelValues(status).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.iterations.Observe(float64(iterations))
}

// JobTransition moves one job between state gauges. An empty from marks a
// new job; an empty to marks an evicted one.
func (m *Metrics) JobTransition(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.jobs.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.jobs.WithLabelValues(to).Inc()
	}
}

// WeatherFallback counts a recommendation made without archive weather.
func (m *Metrics) WeatherFallback() {
	if m == nil {
		return
	}
	m.weatherFallbacks.Inc()
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
