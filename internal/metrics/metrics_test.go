package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCountsRequests(t *testing.T) {
	m := New()

	m.Observe("/login", http.MethodPost, http.StatusOK, 20*time.Millisecond)
	m.Observe("/login", http.MethodPost, http.StatusOK, 30*time.Millisecond)
	m.Observe("/login", http.MethodPost, http.StatusUnprocessableEntity, 10*time.Millisecond)
	m.CSRFRejected(http.MethodPut)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/login", "POST", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/login", "POST", "422")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.csrf.WithLabelValues("PUT")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.Observe("/csrf", http.MethodPost, http.StatusCreated, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `adminkit_http_request_duration_seconds_count{method="POST",route="/csrf"} 1`)
}
