// Package observability provides the domain metrics and tracing setup.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stages at which a stored file can be left without a post.
const (
	StageIngest       = "ingest"
	StageDelete       = "delete"
	StagePartialWrite = "partial_write"
)

var (
	// UploadRejections counts uploads refused before any bytes hit disk, by error code.
	UploadRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lenscape_upload_rejections_total",
		Help: "Total number of uploads rejected by admission checks",
	}, []string{"code"})

	// Ingestions counts completed upload attempts by outcome.
	Ingestions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lenscape_ingestions_total",
		Help: "Total number of image ingestions by outcome",
	}, []string{"outcome"})

	// IngestedBytes records the size of files written to the content store.
	IngestedBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lenscape_ingested_bytes",
		Help:    "Size of ingested image files in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})

	// OrphanedFiles counts files that may remain on disk without a referencing post.
	OrphanedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lenscape_orphaned_files_total",
		Help: "Total number of stored files possibly left without a post",
	}, []string{"stage"})

	// ContainmentViolations counts stored references that resolved outside the content store.
	ContainmentViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lenscape_containment_violations_total",
		Help: "Total number of post references rejected by the content store containment check",
	})

	// DatabaseQueryLatency records query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lenscape_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
