package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/iho/chainledger/internal/infrastructure/metrics"
)

// MetricsMiddleware feeds the ops HTTP counters.
type MetricsMiddleware struct {
	metrics *metrics.Metrics
}

// NewMetricsMiddleware creates a MetricsMiddleware over m.
func NewMetricsMiddleware(m *metrics.Metrics) *MetricsMiddleware {
	return &MetricsMiddleware{metrics: m}
}

// Wrap records request count and duration per method, path and status.
func (mw *MetricsMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := opsPath(r.URL.Path)
		mw.metrics.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		mw.metrics.HTTPDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// opsPath collapses anything outside the fixed ops surface to keep label
// cardinality bounded against scanner traffic.
func opsPath(path string) string {
	switch path {
	case "/health", "/ready", "/metrics":
		return path
	default:
		return "other"
	}
}
