package extraction

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Command outcomes recorded in droidprobe_commands_total.
const (
	resultOK      = "ok"
	resultCached  = "cached"
	resultFailed  = "failed"
	resultOffline = "offline"
	resultError   = "error"
)

// Metrics holds the Prometheus metrics for extraction passes.
type Metrics struct {
	CommandsTotal      *prometheus.CounterVec
	CacheHitsTotal     prometheus.Counter
	FieldsChangedTotal prometheus.Counter
	PassesTotal        *prometheus.CounterVec
	PassDuration       prometheus.Histogram
}

// NewMetrics returns the process-wide extraction metrics, registering them
// with the default registry on first use.
//
// Metrics:
//   - droidprobe_commands_total{source,result} - commands by outcome
//   - droidprobe_cache_hits_total - commands answered from the cache
//   - droidprobe_fields_changed_total - field values changed by passes
//   - droidprobe_passes_total{result} - passes by outcome
//   - droidprobe_pass_duration_seconds - pass wall time
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			CommandsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "droidprobe_commands_total",
					Help: "Total number of raw commands processed during extraction",
				},
				[]string{"source", "result"},
			),
			CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "droidprobe_cache_hits_total",
				Help: "Total number of raw commands served from the extraction cache",
			}),
			FieldsChangedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "droidprobe_fields_changed_total",
				Help: "Total number of device fields changed by extraction",
			}),
			PassesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "droidprobe_passes_total",
					Help: "Total number of extraction passes",
				},
				[]string{"result"}, // "ok" or "error"
			),
			PassDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "droidprobe_pass_duration_seconds",
				Help:    "Duration of extraction passes in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			}),
		}
	})
	return globalMetrics
}
