// Package metrics defines the Prometheus instruments for the ingestion
// pipeline and registers them with the default registry.
//
// Useful things to watch here: files coming into the system, rows moving
// through the pipeline, batch write latency, and how deep the queue is.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	prometheus.MustRegister(JobsSubmitted)
	prometheus.MustRegister(JobsFinished)
	prometheus.MustRegister(JobsInFlight)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(RowsParsed)
	prometheus.MustRegister(RowsCommitted)
	prometheus.MustRegister(RowsRejected)
	prometheus.MustRegister(BatchInsertDuration)
	prometheus.MustRegister(BatchSizeHistogram)
	prometheus.MustRegister(JobDuration)
}

var (
	// JobsSubmitted counts accepted submissions by file extension.
	// Example usage:
	//    metrics.JobsSubmitted.WithLabelValues(".csv").Inc()
	JobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_jobs_submitted_total",
			Help: "Number of import jobs accepted, by file extension.",
		}, []string{"extension"})

	// JobsFinished counts jobs reaching a terminal state, by outcome.
	// Example usage:
	//    metrics.JobsFinished.WithLabelValues("Completed").Inc()
	JobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_jobs_finished_total",
			Help: "Number of import jobs finished, by terminal status.",
		}, []string{"status"})

	// JobsInFlight tracks how many jobs are currently executing.
	JobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_jobs_in_flight",
			Help: "Number of import jobs currently being processed.",
		})

	// QueueDepth tracks how many tasks are waiting for a worker.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_queue_depth",
			Help: "Number of queued tasks waiting for a worker.",
		})

	// RowsParsed counts every row the producers pulled out of a parser,
	// valid or not.
	RowsParsed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_rows_parsed_total",
			Help: "Total rows read from parsers across all jobs.",
		})

	// RowsCommitted counts rows that reached the record store.
	RowsCommitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_rows_committed_total",
			Help: "Total rows persisted via bulk insert.",
		})

	// RowsRejected counts malformed rows dropped during parsing.
	RowsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_rows_rejected_total",
			Help: "Total malformed rows rejected during parsing.",
		})

	// BatchInsertDuration observes the latency of each bulk insert.
	// Example usage:
	//    timer := prometheus.NewTimer(metrics.BatchInsertDuration)
	//    defer timer.ObserveDuration()
	BatchInsertDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_insert_duration_seconds",
			Help:    "Latency of record bulk inserts.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		})

	// BatchSizeHistogram observes how many records each bulk insert
	// carried. A long tail of tiny batches means the producer is starving
	// the consumer.
	BatchSizeHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_size_rows",
			Help:    "Number of records per bulk insert.",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		})

	// JobDuration observes wall time from start to terminal state.
	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_job_duration_seconds",
			Help:    "Wall time of import jobs from start to completion.",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		})
)
