package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_http_requests_total",
		Help: "Total number of HTTP requests processed",
	}, []string{"route", "method", "status"})

	LogsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_logs_ingested_total",
		Help: "The total number of log records stored",
	}, []string{"level", "source"})

	IngestRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_ingest_rejected_total",
		Help: "Ingest requests rejected before reaching storage",
	}, []string{"reason"})

	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logvault_store_operation_duration_seconds",
		Help:    "Duration of whole-file reads and writes of the record set",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	StoreRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logvault_store_records",
		Help: "Number of records in the file after the last write",
	})

	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logvault_stream_subscribers",
		Help: "Open live-tail connections",
	})

	StreamDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logvault_stream_dropped_total",
		Help: "Records dropped for slow live-tail subscribers",
	})

	KafkaMessagesConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logvault_kafka_messages_consumed_total",
		Help: "The total number of messages consumed from Kafka",
	})

	KafkaConsumerLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logvault_kafka_consumer_lag",
		Help: "The current lag of the consumer group",
	})

	ArchiveSnapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logvault_archive_snapshots_total",
		Help: "Archive snapshots written, by outcome",
	}, []string{"status"})
)

// RecordIngested counts one stored record.
func RecordIngested(level, source string) {
	LogsIngested.WithLabelValues(level, source).Inc()
}
