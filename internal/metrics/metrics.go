package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/i474232898/climate-timeseries/internal/climate"
)

// Collector provides retrieval metrics.
type Collector struct {
	RetrievalsTotal   *prometheus.CounterVec
	RetrievalDuration prometheus.Histogram
}

// NewCollector registers the retrieval metrics on reg.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		RetrievalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrievals_total",
				Help:      "Total number of retrievals by outcome (downloaded, cached, failed)",
			},
			[]string{"status"},
		),

		RetrievalDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_duration_seconds",
				Help:      "Duration of executed retrievals in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
		),
	}
}

// ObserveRetrieval implements climate.Observer. Cache hits are counted but
// not timed.
func (c *Collector) ObserveRetrieval(status climate.Status, elapsed time.Duration) {
	c.RetrievalsTotal.WithLabelValues(string(status)).Inc()
	if status != climate.StatusCached {
		c.RetrievalDuration.Observe(elapsed.Seconds())
	}
}
