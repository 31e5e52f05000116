// Package metrics exposes Prometheus collectors for sync, matching,
// scoring and allocation, plus HTTP instrumentation.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ataa"

// Metrics owns one registry and the collectors registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	syncBatches   *prometheus.CounterVec
	syncRecords   *prometheus.CounterVec
	syncConflicts *prometheus.CounterVec
	clientSyncs   *prometheus.CounterVec
	queueDepth    prometheus.Gauge

	matchesCreated     prometheus.Counter
	matchTransitions   *prometheus.CounterVec
	scoresRecomputed   *prometheus.CounterVec
	allocationRuns     prometheus.Counter
	allocationItems    prometheus.Counter
	allocationUnmet    prometheus.Counter
	allocationDuration prometheus.Histogram
}

// New builds a registry with every collector plus the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "path"}),

		syncBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "batches_total",
			Help: "Push and pull batches served, by direction and outcome.",
		}, []string{"direction", "outcome"}),
		syncRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "records_total",
			Help: "Records accepted by push or returned by pull.",
		}, []string{"direction"}),
		syncConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "conflicts_total",
			Help: "Records that failed to apply during push, by entity type.",
		}, []string{"entity_type"}),
		clientSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "client_attempts_total",
			Help: "Client push and pull attempts, by result code.",
		}, []string{"op", "result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sync", Name: "queue_depth",
			Help: "Offline queue items waiting for upstream acknowledgment.",
		}),

		matchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "matching", Name: "matches_created_total",
			Help: "Matches created by the auto-matcher.",
		}),
		matchTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "matching", Name: "transitions_total",
			Help: "Match status transitions applied.",
		}, []string{"status"}),
		scoresRecomputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scoring", Name: "recomputed_total",
			Help: "Households processed by bulk recompute, by result.",
		}, []string{"result"}),
		allocationRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "allocation", Name: "runs_total",
			Help: "Allocation planning runs.",
		}),
		allocationItems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "allocation", Name: "items_planned_total",
			Help: "Item quantity suggested across allocation runs.",
		}),
		allocationUnmet: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "allocation", Name: "unmet_needs_total",
			Help: "Needs left without stock across allocation runs.",
		}),
		allocationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "allocation", Name: "run_duration_seconds",
			Help:    "Duration of allocation planning runs.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
	}

	m.Registry.MustRegister(
		m.httpInFlight, m.httpRequests, m.httpDuration,
		m.syncBatches, m.syncRecords, m.syncConflicts, m.clientSyncs, m.queueDepth,
		m.matchesCreated, m.matchTransitions, m.scoresRecomputed,
		m.allocationRuns, m.allocationItems, m.allocationUnmet, m.allocationDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveSync records one served push or pull.
func (m *Metrics) ObserveSync(direction, outcome string, records int, conflictTypes []string) {
	if m == nil {
		return
	}
	m.syncBatches.WithLabelValues(direction, outcome).Inc()
	m.syncRecords.WithLabelValues(direction).Add(float64(records))
	for _, et := range conflictTypes {
		m.syncConflicts.WithLabelValues(et).Inc()
	}
}

// ObserveClient records one client push or pull attempt. result is "ok" or
// an error code.
func (m *Metrics) ObserveClient(op, result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.clientSyncs.WithLabelValues(op, result).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) MatchesCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.matchesCreated.Add(float64(n))
}

func (m *Metrics) MatchTransition(status string) {
	if m == nil {
		return
	}
	m.matchTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) Recomputed(updated, skipped int) {
	if m == nil {
		return
	}
	m.scoresRecomputed.WithLabelValues("updated").Add(float64(updated))
	m.scoresRecomputed.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *Metrics) AllocationRun(items, unmet int, d time.Duration) {
	if m == nil {
		return
	}
	m.allocationRuns.Inc()
	m.allocationItems.Add(float64(items))
	m.allocationUnmet.Add(float64(unmet))
	m.allocationDuration.Observe(d.Seconds())
}

// Instrument wraps next with HTTP request metrics. The route template is
// used as the path label when routeName returns one.
func (m *Metrics) Instrument(routeName func(*http.Request) string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := ""
		if routeName != nil {
			path = routeName(r)
		}
		if path == "" {
			path = canonicalPath(r.URL.Path)
		}
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// canonicalPath keeps only the first segment so that IDs never become
// label values.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	first, _, _ := strings.Cut(trimmed, "/")
	return "/" + first
}
