package pipeline

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kosarica/catalog-ingest/internal/types"
)

var (
	// itemsProcessed tracks items handed to the batch writer per retailer.
	itemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_ingest_items_processed_total",
		Help: "Total number of catalog items written by retailer",
	}, []string{"retailer"})

	// itemsSkipped tracks item candidates dropped before identity resolution.
	itemsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_ingest_items_skipped_total",
		Help: "Total number of item candidates skipped by reason",
	}, []string{"reason"})

	// batchOperations tracks the number of writes in each committed batch.
	batchOperations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_ingest_batch_operations",
		Help:    "Number of write operations per committed batch",
		Buckets: []float64{3, 50, 150, 300, 450, 500},
	})

	// commitErrors tracks rejected batch commits.
	commitErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_ingest_commit_errors_total",
		Help: "Total number of failed batch commits",
	})

	// runDuration tracks end-to-end ingestion runs by trigger surface.
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_ingest_run_duration_seconds",
		Help:    "Time taken by an ingestion run by surface",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"surface"})

	// runs tracks ingestion runs by surface and outcome.
	runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_ingest_runs_total",
		Help: "Total number of ingestion runs by surface and status",
	}, []string{"surface", "status"})
)

// MetricsRecorder provides methods to record ingestion metrics.
type MetricsRecorder struct{}

// NewMetricsRecorder creates a new metrics recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{}
}

// RecordItems records the written and skipped item counts of a run.
func (m *MetricsRecorder) RecordItems(retailer string, processed int, skipped map[types.SkipReason]int) {
	itemsProcessed.WithLabelValues(retailer).Add(float64(processed))
	for reason, n := range skipped {
		itemsSkipped.WithLabelValues(string(reason)).Add(float64(n))
	}
}

// RecordCommit records one batch commit attempt.
func (m *MetricsRecorder) RecordCommit(operations int, success bool) {
	if !success {
		commitErrors.Inc()
		return
	}
	batchOperations.Observe(float64(operations))
}

// RecordRun records the outcome of an ingestion run.
func (m *MetricsRecorder) RecordRun(surface string, duration time.Duration, err error) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrIgnoredObject):
		status = "ignored"
	default:
		status = "error"
	}
	runDuration.WithLabelValues(surface).Observe(duration.Seconds())
	runs.WithLabelValues(surface, status).Inc()
}
