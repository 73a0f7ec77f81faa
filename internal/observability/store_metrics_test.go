package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func sampleCount(t *testing.T, backend, op, outcome string) uint64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "complaint_store_operation_duration_seconds" {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			want := map[string]string{"backend": backend, "op": op, "outcome": outcome}
			for _, lp := range m.GetLabel() {
				if want[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func TestObserveStoreOp_RecordsByLabels(t *testing.T) {
	before := sampleCount(t, "sql", "get", OutcomeNotFound)

	ObserveStoreOp("sql", "get", OutcomeNotFound, time.Now().Add(-3*time.Millisecond))
	ObserveStoreOp("sql", "get", OutcomeNotFound, time.Now())

	if got := sampleCount(t, "sql", "get", OutcomeNotFound); got != before+2 {
		t.Fatalf("expected %d samples, got %d", before+2, got)
	}
	if got := sampleCount(t, "table", "get", OutcomeNotFound); got != 0 {
		t.Fatalf("other backend must not be touched, got %d", got)
	}
}
