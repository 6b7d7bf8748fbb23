// Package metrics provides Prometheus metrics for treefs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Remote store requests
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treefs_remote_requests_total",
			Help: "Total number of requests sent to the remote store",
		},
		[]string{"method", "status"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "treefs_remote_request_duration_seconds",
			Help:    "Remote store request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	remoteRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "treefs_remote_retries_total",
			Help: "Total number of retried remote store requests",
		},
	)

	// Engines
	diffResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treefs_diff_results_total",
			Help: "Total number of reported differences by status",
		},
		[]string{"status"},
	)

	copyActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treefs_copy_actions_total",
			Help: "Total number of copy actions by action",
		},
		[]string{"action"},
	)

	// Mount
	mountReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treefs_mount_reads_total",
			Help: "Total number of file reads served by the mount",
		},
		[]string{"status"},
	)

	mountBytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "treefs_mount_bytes_read_total",
			Help: "Total bytes served by the mount",
		},
	)
)

// RecordRemoteRequest records a completed remote request. Use status 0 for
// requests that failed before a response arrived.
func RecordRemoteRequest(method string, status int, duration time.Duration) {
	remoteRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	remoteRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRemoteRetry records one retried remote request.
func RecordRemoteRetry() {
	remoteRetriesTotal.Inc()
}

// RecordDiffResult records one reported difference.
func RecordDiffResult(status string) {
	diffResultsTotal.WithLabelValues(status).Inc()
}

// RecordCopyAction records one copy action.
func RecordCopyAction(action string) {
	copyActionsTotal.WithLabelValues(action).Inc()
}

// RecordMountRead records a read served by the mount.
func RecordMountRead(success bool, bytes int) {
	status := "success"
	if !success {
		status = "error"
	}
	mountReadsTotal.WithLabelValues(status).Inc()
	mountBytesRead.Add(float64(bytes))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
