// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annotate_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "annotate_search_duration_seconds",
			Help:    "Annotation search latency by backend and outcome.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "outcome"},
	)

	SearchBatches = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "annotate_search_batches",
			Help:    "Store batches issued per search.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	SearchRowsExamined = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "annotate_search_rows_examined",
			Help:    "Raw rows read from the store per search.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
	)

	InconsistentSnapshots = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "annotate_search_inconsistent_snapshots_total",
			Help: "Searches whose store changed between count and fetch.",
		},
	)

	IndexOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annotate_index_operations_total",
			Help: "Search index writes by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)
)

// ObserveSearch records one finished search.
func ObserveSearch(backend string, started time.Time, batches, rowsExamined int, inconsistent bool, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	SearchDuration.WithLabelValues(backend, outcome).Observe(time.Since(started).Seconds())
	if err != nil {
		return
	}
	SearchBatches.Observe(float64(batches))
	SearchRowsExamined.Observe(float64(rowsExamined))
	if inconsistent {
		InconsistentSnapshots.Inc()
	}
}

// Outcome labels an index write.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func Handler() http.Handler {
	return promhttp.Handler()
}
