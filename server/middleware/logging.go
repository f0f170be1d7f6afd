package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

func BasicLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.DebugContext(r.Context(), "http request", "method", r.Method, "uri", r.RequestURI, "host", r.Host, "remote", r.RemoteAddr, "took", time.Since(start))
	})
}
