package storage

import (
	"github.com/coffersTech/logvault/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var recordCount = metrics.StoreRecords

// observe starts a latency timer for a file operation; call the result when done.
func observe(op string) func() {
	timer := prometheus.NewTimer(metrics.StoreOperationDuration.WithLabelValues(op))
	return func() { timer.ObserveDuration() }
}
