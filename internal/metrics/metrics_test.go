package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robline/internal/metrics"
)

func TestCounters(t *testing.T) {
	m := metrics.New()
	m.Created()
	m.Created()
	m.Transition("Pending SDS", "Pending AR", "CAMO Planning")
	m.Rejected("missing_required_data")
	m.StatusCounts(map[string]int{"Pending AR": 1, "Rejected": 0})
	m.Since("transition", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("Pending SDS", "Pending AR", "CAMO Planning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("missing_required_data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsByStatus.WithLabelValues("Pending AR")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.Created()
		m.Transition("a", "b", "c")
		m.Rejected("x")
		m.StatusCounts(map[string]int{"a": 1})
		m.Since("op", time.Now())
	})
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := metrics.New()
	m.Created()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "robline_requests_created_total 1")
}
