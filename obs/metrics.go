package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "stuffing"

var (
	appInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "app",
			Name:      "info",
			Help:      "Static app info for deployment verification.",
		},
		[]string{"service", "version"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "route", "code"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	importRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Import runs by outcome (ok, partial, error).",
		},
		[]string{"result"},
	)
	importRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "import",
			Name:      "run_duration_seconds",
			Help:      "Import run duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
	)
	reconcileItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "reconcile",
			Name:      "items_total",
			Help:      "Items seen by reconciliation, by outcome.",
		},
		[]string{"result"},
	)

	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "export",
			Name:      "total",
			Help:      "Stuffing list exports by outcome.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(appInfo, httpRequestsTotal, httpRequestDuration,
		importRunsTotal, importRunDuration, reconcileItemsTotal, exportsTotal)
}

func SetAppInfo(service string) {
	svc := strings.TrimSpace(service)
	if svc == "" {
		svc = defaultService
	}
	appInfo.WithLabelValues(svc, appVersion()).Set(1)
}

// MetricsMiddleware records request count/latency.
// Session ids are folded out of the route label, see normalizeRouteLabel.
func MetricsMiddleware(next http.Handler) http.Handler {
	if next == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: 200}
		next.ServeHTTP(rec, r)
		route := normalizeRouteLabel(r.URL.Path)
		code := strconv.Itoa(rec.code)
		httpRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.code = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// RecordImport counts one import run. partial means at least one phase failed while the
// run itself completed.
func RecordImport(start time.Time, partial bool, err error) {
	res := "ok"
	switch {
	case err != nil:
		res = "error"
	case partial:
		res = "partial"
	}
	importRunsTotal.WithLabelValues(res).Inc()
	importRunDuration.Observe(time.Since(start).Seconds())
}

func RecordReconcile(matched, unmatched int) {
	if matched > 0 {
		reconcileItemsTotal.WithLabelValues("matched").Add(float64(matched))
	}
	if unmatched > 0 {
		reconcileItemsTotal.WithLabelValues("unmatched").Add(float64(unmatched))
	}
}

func RecordExport(err error) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	exportsTotal.WithLabelValues(res).Inc()
}

func normalizeRouteLabel(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return "/"
	}
	// Reduce cardinality for session routes.
	// /sessions/{id}
	// /sessions/{id}/items/{itemId}
	// /sessions/{id}/{action}
	if strings.HasPrefix(p, "/sessions/") {
		rest := strings.Trim(strings.TrimPrefix(p, "/sessions/"), "/")
		if rest == "" {
			return "/sessions"
		}
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1:
			return "/sessions/:id"
		case parts[1] == "items" && len(parts) >= 3:
			return "/sessions/:id/items/:itemId"
		default:
			return "/sessions/:id/" + parts[1]
		}
	}
	return p
}
