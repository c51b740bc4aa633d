// Package prometheus reports repository and event store measurements to
// Prometheus.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/esrepo-go/core/metrics"
)

// Namespace prefixes every metric name.
const Namespace = "esrepo"

// latency buckets in seconds
var defaultBuckets = []float64{
	.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5,
}

func newTimer(o prometheus.Observer) metrics.Timer {
	return metrics.NewTimer(func(d time.Duration) { o.Observe(d.Seconds()) })
}

func histogram(name, help string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
		Buckets:   defaultBuckets,
	}, []string{"aggregate_type"})
}

func counter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, []string{"aggregate_type"})
}
