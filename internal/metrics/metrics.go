package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics holds all Prometheus metrics for the file store and its gateway.
type StoreMetrics struct {
	OperationsTotal *prometheus.CounterVec
	BytesUploaded   prometheus.Counter
	BytesDownloaded prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
}

// NewStoreMetrics initializes the metrics and registers them on reg.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	factory := promauto.With(reg)
	return &StoreMetrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filestore",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of file store operations by operation and status.",
		}, []string{"operation", "status"}), // status: ok, not_found, condition_not_met, error
		BytesUploaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "filestore",
			Subsystem: "store",
			Name:      "uploaded_bytes_total",
			Help:      "Total number of bytes uploaded.",
		}),
		BytesDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "filestore",
			Subsystem: "store",
			Name:      "downloaded_bytes_total",
			Help:      "Total number of bytes downloaded.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filestore",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of gateway requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
	}
}
