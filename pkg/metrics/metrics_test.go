package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/automata/pkg/metrics"
	"github.com/dukex/automata/pkg/models"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := metrics.New()

	m.EventReceived("order.paid")
	m.EventReceived("order.paid")
	m.RunFinished(models.ExecutionStatusCompleted)
	m.ActionDispatched("webhook", "success", 20*time.Millisecond)
	m.CredentialAccess("get_api_client", models.CredentialAccessDenied)

	assert.InDelta(t, 2, promtestutil.ToFloat64(m.EventsReceived.WithLabelValues("order.paid")), 0)
	assert.InDelta(t, 1, promtestutil.ToFloat64(m.RunsTotal.WithLabelValues("completed")), 0)
	assert.InDelta(t, 1, promtestutil.ToFloat64(m.DispatchesTotal.WithLabelValues("webhook", "success")), 0)
	assert.InDelta(t, 1, promtestutil.ToFloat64(m.CredentialAccesses.WithLabelValues("get_api_client", "denied")), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.EventReceived("x")
		m.RunFinished(models.ExecutionStatusFailed)
		m.ActionDispatched("log", "success", time.Second)
		m.CredentialAccess("get_smtp_client", models.CredentialAccessSuccess)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := metrics.New()
	m.RunFinished(models.ExecutionStatusFailed)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `automata_runs_total{status="failed"} 1`)
}
