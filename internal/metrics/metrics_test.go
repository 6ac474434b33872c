package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCodecOperation(t *testing.T) {
	m := newMetricsWithRegistry(prometheus.NewRegistry())

	m.RecordCodecOperation("decode", 10*time.Millisecond, 4096)
	m.RecordCodecOperation("decode", 5*time.Millisecond, 1024)
	m.RecordCodecOperation("encode", time.Millisecond, 2048)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.codecOperations.WithLabelValues("decode")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.codecOperations.WithLabelValues("encode")))
	assert.Equal(t, float64(5120), testutil.ToFloat64(m.codecBytes.WithLabelValues("decode")))
}

func TestRecordCodecError(t *testing.T) {
	m := newMetricsWithRegistry(prometheus.NewRegistry())

	m.RecordCodecError("decode", "integrity")
	m.RecordCodecError("decode", "integrity")
	m.RecordCodecError("decode", "format")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.codecErrors.WithLabelValues("decode", "integrity")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.codecErrors.WithLabelValues("decode", "format")))
}

func TestRecordBatchFile(t *testing.T) {
	m := newMetricsWithRegistry(prometheus.NewRegistry())

	m.RecordBatchFile("resign", true, time.Millisecond)
	m.RecordBatchFile("resign", true, time.Millisecond)
	m.RecordBatchFile("resign", false, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.batchFiles.WithLabelValues("resign", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.batchFiles.WithLabelValues("resign", "failed")))
}

func TestSearchMetrics(t *testing.T) {
	m := newMetricsWithRegistry(prometheus.NewRegistry())

	m.AddSearchAttempts(1000)
	m.AddSearchAttempts(500)
	m.RecordSearchDuration(2 * time.Second)

	assert.Equal(t, float64(1500), testutil.ToFloat64(m.searchAttempts))
}

func TestRecordHTTPRequest(t *testing.T) {
	m := newMetricsWithRegistry(prometheus.NewRegistry())

	m.RecordHTTPRequest(http.MethodPost, "/v1/decode", http.StatusOK, 10*time.Millisecond)
	m.RecordHTTPRequest(http.MethodPost, "/v1/decode", http.StatusOK, 5*time.Millisecond)
	m.RecordHTTPRequest(http.MethodPost, "/v1/encode", http.StatusUnprocessableEntity, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodPost, "/v1/decode", http.StatusText(http.StatusOK))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodPost, "/v1/encode", http.StatusText(http.StatusUnprocessableEntity))))
}

func TestUpdateSystemMetrics(t *testing.T) {
	m := newMetricsWithRegistry(prometheus.NewRegistry())

	m.UpdateSystemMetrics()

	assert.Greater(t, testutil.ToFloat64(m.goroutines), float64(0))
	assert.Greater(t, testutil.ToFloat64(m.memoryAllocBytes), float64(0))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordCodecOperation("decode", time.Millisecond, 16)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "codec_operations_total")
}
