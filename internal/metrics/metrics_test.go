package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndGauges(t *testing.T) {
	m := New()
	m.Question("intent")
	m.Question("intent")
	m.Question("assistant")
	m.Dataset(3, 120)
	m.AssistantCall(1500 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.questions.WithLabelValues("intent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.questions.WithLabelValues("assistant")))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.ticketsLoaded))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.datasetVersion))
	assert.Equal(t, 1, testutil.CollectAndCount(m.assistantDuration))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.HTTPRequest("/ask", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `coach_http_requests_total{code="200",route="/ask"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Question("intent")
	m.AssistantCall(time.Second)
	m.Dataset(1, 1)
	m.HTTPRequest("/", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
