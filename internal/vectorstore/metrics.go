package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts store operations.
	// Labels: provider, operation (upsert, search, delete), result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorrag",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"provider", "operation", "result"},
	)

	// OperationDuration tracks how long store operations take.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tutorrag",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	// RecordsUpserted counts records written.
	RecordsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorrag",
			Subsystem: "vectorstore",
			Name:      "records_upserted_total",
			Help:      "Total number of chunk records upserted",
		},
		[]string{"provider"},
	)

	// MatchesReturned counts raw rows returned by similarity search.
	MatchesReturned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorrag",
			Subsystem: "vectorstore",
			Name:      "matches_returned_total",
			Help:      "Total number of rows returned by similarity search",
		},
		[]string{"provider"},
	)
)

const (
	opUpsert = "upsert"
	opSearch = "search"
	opDelete = "delete"
)

// observe records the outcome of one operation. It takes a pointer so it can
// be deferred against a named error result.
func observe(provider, operation string, start time.Time, errp *error) {
	result := "success"
	if errp != nil && *errp != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(provider, operation, result).Inc()
	OperationDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}
