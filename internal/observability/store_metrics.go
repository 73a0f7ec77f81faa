package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values for store operations.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// storeOpDuration records complaint store latency by backing, operation and
// outcome. All three labels take values from small fixed sets.
var storeOpDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "complaint_store_operation_duration_seconds",
		Help:    "Duration of complaint store operations in seconds.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"backend", "op", "outcome"},
)

func init() {
	prometheus.MustRegister(storeOpDuration)
}

// ObserveStoreOp records one store call that started at start.
func ObserveStoreOp(backend, op, outcome string, start time.Time) {
	storeOpDuration.WithLabelValues(backend, op, outcome).Observe(time.Since(start).Seconds())
}
