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

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSync("push", "ok", 3, []string{"household"})
	m.ObserveClient("push", "ok")
	m.SetQueueDepth(4)
	m.MatchesCreated(1)
	m.MatchTransition("completed")
	m.Recomputed(1, 0)
	m.AllocationRun(1, 0, time.Millisecond)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, m.Instrument(nil, h))
}

func TestObserveSync(t *testing.T) {
	m := New()
	m.ObserveSync("push", "partial", 5, []string{"household", "household", "need"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncBatches.WithLabelValues("push", "partial")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.syncRecords.WithLabelValues("push")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.syncConflicts.WithLabelValues("household")))
}

func TestInstrument_UsesRouteName(t *testing.T) {
	m := New()
	h := m.Instrument(func(*http.Request) string { return "/ai/priority/{id}" },
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ai/priority/h-123", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/ai/priority/{id}", "404")))
}

func TestHandler_ExposesNamespace(t *testing.T) {
	m := New()
	m.MatchesCreated(2)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "ataa_matching_matches_created_total 2"))
}

func TestCanonicalPath(t *testing.T) {
	assert.Equal(t, "/", canonicalPath(""))
	assert.Equal(t, "/sync", canonicalPath("/sync/push"))
	assert.Equal(t, "/healthz", canonicalPath("/healthz"))
}
