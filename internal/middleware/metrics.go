package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Rorqualx/browserctl/internal/metrics"
)

// Metrics returns middleware that records one RequestsTotal/RequestDuration
// observation per request, labeled with protocol (the transport this mux
// serves) and the request's method plus URL path.
func Metrics(protocol string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			operation := r.Method + " " + r.URL.Path
			metrics.RecordRequest(protocol, operation, strconv.Itoa(wrapped.statusCode), time.Since(start))
		})
	}
}
