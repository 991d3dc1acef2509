package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.SetGate(2, 1)
	m.RecordLaunch()
	m.RecordLaunch()
	m.RecordDisconnect()
	m.ContextOpened()
	m.ContextOpened()
	m.ContextClosed()
	m.RecordScript("captured", 150*time.Millisecond)
	m.RecordScript("timeout", time.Minute)
	m.RecordCapture("image")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GateInUse))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateWaiting))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BrowserLaunches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrowserDisconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContextsOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScriptRuns.WithLabelValues("captured")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScriptRuns.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Captures.WithLabelValues("image")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetGate(1, 1)
		m.RecordLaunch()
		m.RecordDisconnect()
		m.ContextOpened()
		m.ContextClosed()
		m.RecordScript("runtime_error", time.Second)
		m.RecordCapture("markup")
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordLaunch()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "shotscript_browser_launches_total 1"))
}
