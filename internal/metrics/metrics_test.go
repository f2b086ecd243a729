package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStoreMetrics(reg)

	m.OperationsTotal.WithLabelValues("put", "ok").Inc()
	m.OperationsTotal.WithLabelValues("put", "ok").Inc()
	m.BytesUploaded.Add(128)
	m.HTTPRequests.WithLabelValues("GET", "/health", "200").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("put", "ok")))
	assert.Equal(t, 128.0, testutil.ToFloat64(m.BytesUploaded))

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "filestore_store_operations_total")
	assert.Contains(t, names, "filestore_store_uploaded_bytes_total")
	assert.Contains(t, names, "filestore_http_requests_total")
}

func TestNewStoreMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewStoreMetrics(prometheus.NewRegistry())
		NewStoreMetrics(prometheus.NewRegistry())
	})
}
