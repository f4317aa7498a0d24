// Package metrics exposes Prometheus instrumentation for sync runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zukosync",
			Subsystem: "extract",
			Name:      "sessions_fetched_total",
			Help:      "Total number of sessions fetched from the API",
		},
		[]string{"form"},
	)

	recordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zukosync",
			Subsystem: "extract",
			Name:      "records_dropped_total",
			Help:      "Total number of records dropped during flattening",
		},
		[]string{"form"},
	)

	rowsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zukosync",
			Subsystem: "load",
			Name:      "rows_inserted_total",
			Help:      "Total number of rows inserted into the destination",
		},
		[]string{"form"},
	)

	rowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zukosync",
			Subsystem: "load",
			Name:      "rows_skipped_total",
			Help:      "Total number of batch rows skipped as already present",
		},
		[]string{"form"},
	)

	formFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zukosync",
			Subsystem: "sync",
			Name:      "form_failures_total",
			Help:      "Total number of per-form sync failures",
		},
		[]string{"form", "error_type"},
	)

	formDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zukosync",
			Subsystem: "sync",
			Name:      "form_duration_seconds",
			Help:      "Duration of one form's extract-and-load cycle",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"form", "status"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "zukosync",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full sync run across all forms",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)
)

// RecordSessionsFetched adds to the fetched-session counter for a form.
func RecordSessionsFetched(form string, n int) {
	sessionsFetched.WithLabelValues(form).Add(float64(n))
}

// RecordDropped counts records rejected during flattening.
func RecordDropped(form string, n int) {
	recordsDropped.WithLabelValues(form).Add(float64(n))
}

// RecordLoad counts inserted and skipped rows for a form.
func RecordLoad(form string, inserted, skipped int) {
	rowsInserted.WithLabelValues(form).Add(float64(inserted))
	rowsSkipped.WithLabelValues(form).Add(float64(skipped))
}

// RecordFormFailure counts a failed form sync by error type.
func RecordFormFailure(form, errorType string) {
	formFailures.WithLabelValues(form, errorType).Inc()
}

// ObserveFormDuration records how long one form's cycle took.
func ObserveFormDuration(form, status string, d time.Duration) {
	formDuration.WithLabelValues(form, status).Observe(d.Seconds())
}

// ObserveRunDuration records the duration of a full run.
func ObserveRunDuration(d time.Duration) {
	runDuration.Observe(d.Seconds())
}
