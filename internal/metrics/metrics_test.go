package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun(t *testing.T) {
	m := New()
	m.RecordRun("manual", "success", 3*time.Millisecond, 4)
	m.RecordRun("schedule", "failed", 0, 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("manual", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("schedule", "failed")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.alerts))
}

func TestSetCertificateCounts(t *testing.T) {
	m := New()
	m.SetCertificateCounts(map[string]int{"expired": 2, "valid": 5})

	assert.Equal(t, float64(2), testutil.ToFloat64(m.certificates.WithLabelValues("expired")))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.certificates.WithLabelValues("valid")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("gaschecker", "post", "/gas-checker/run", StatusLabel(http.StatusOK), time.Millisecond)
	m.RecordAuditFailure()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `compliance_layer_http_requests_total{method="POST",path="/gas-checker/run",service="gaschecker",status="200"} 1`))
	assert.True(t, strings.Contains(text, "compliance_layer_gaschecker_audit_write_errors_total 1"))
}
