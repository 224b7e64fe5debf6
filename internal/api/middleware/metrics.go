package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seracourt/ripple/internal/metrics"
)

// Metrics records request count and latency per route pattern. The chi
// pattern, not the raw path, keeps label cardinality bounded: every entry
// ID hits the same "/v1/wal/entries/{id}" series.
func Metrics(collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			// The pattern is only known after routing has happened.
			path := chi.RouteContext(r.Context()).RoutePattern()
			if path == "" {
				path = "unmatched"
			}
			status := strconv.Itoa(rw.statusCode)

			collector.RequestCount.WithLabelValues(r.Method, path, status).Inc()
			collector.RequestDuration.WithLabelValues(r.Method, path, status).
				Observe(time.Since(start).Seconds())
		})
	}
}
