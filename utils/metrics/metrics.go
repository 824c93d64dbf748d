// Package metrics holds the process-wide metric registry and the
// top level scan loop instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

// Registry returns the shared registry all scan metrics attach to.
func Registry() *prometheus.Registry {
	return registry
}

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ScanMetrics instruments the outer scan loop.
type ScanMetrics struct {
	Sweeps        prometheus.Counter
	Opportunities prometheus.Counter
	Executions    *prometheus.CounterVec
	SweepLatency  prometheus.Histogram
	BestProfitPct prometheus.Gauge
}

// NewScanMetrics registers the scan loop instruments under namespace.
func NewScanMetrics(namespace string) *ScanMetrics {
	factory := promauto.With(registry)
	return &ScanMetrics{
		Sweeps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Number of completed scan sweeps",
		}),
		Opportunities: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Number of opportunities that cleared the profit threshold",
		}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Trade executions by terminal state",
		}, []string{"state"}),
		SweepLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_latency_seconds",
			Help:      "Duration of a full scan sweep",
			Buckets:   prometheus.DefBuckets,
		}),
		BestProfitPct: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_profit_percent",
			Help:      "Profit percentage of the best opportunity in the last sweep",
		}),
	}
}
