package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordersUpdateCollectors(t *testing.T) {
	m := New()

	m.RecordBuzz("accepted")
	m.RecordBuzz("accepted")
	m.RecordBuzz("queue_full")
	m.RecordJudgment(true)
	m.RecordRejection("BUZZ", "already_buzzed")
	m.RecordPublish("BUZZER_PRESSED", nil, time.Millisecond)
	m.RecordPublish("BUZZER_PRESSED", errors.New("bus down"), time.Millisecond)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	require.Equal(t, 2.0, testutil.ToFloat64(m.BuzzCounter.WithLabelValues("accepted")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.BuzzCounter.WithLabelValues("queue_full")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.JudgmentCounter.WithLabelValues("true")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("BUZZ", "already_buzzed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("BUZZER_PRESSED", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConnections))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordBuzz("accepted")
	m.RecordTransition("active", "start")
	m.ConnectionOpened()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.RecordTransition("active", "start")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "round_transitions_total"))
}

func TestInstancesDoNotShareRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordBuzz("accepted")
	require.Equal(t, 0.0, testutil.ToFloat64(b.BuzzCounter.WithLabelValues("accepted")))
	require.NotSame(t, a.Registry(), b.Registry())
}
