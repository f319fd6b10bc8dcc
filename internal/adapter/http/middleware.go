package http

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

var securityHeaderValues = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "SAMEORIGIN",
	"Referrer-Policy":        "same-origin",
	"Permissions-Policy":     "geolocation=(), microphone=(), camera=()",
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for k, v := range securityHeaderValues {
			if h.Get(k) == "" {
				h.Set(k, v)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// operational paths are never rate limited.
var unlimitedPaths = map[string]bool{"/healthz": true, "/readyz": true, "/metrics": true}

// rateLimit keys clients by address. Behind a trusted proxy, ProxyHeaders
// has already replaced RemoteAddr with the forwarded client address.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || unlimitedPaths[r.URL.Path] || s.limiter.Allow(clientIP(r)) {
			next.ServeHTTP(w, r)
			return
		}
		if s.metrics != nil {
			s.metrics.Rejections.WithLabelValues("rate_limit").Inc()
		}
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Detail: "Too many requests. Please slow down."})
	})
}

func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts requests of route by outcome.
func (s *Server) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		if s.metrics != nil {
			s.metrics.Requests.WithLabelValues(route, outcome(rec.status)).Inc()
		}
	})
}

func outcome(status int) string {
	switch {
	case status == http.StatusServiceUnavailable:
		return "busy"
	case status >= http.StatusInternalServerError:
		return "error"
	case status >= http.StatusBadRequest:
		return "rejected"
	default:
		return "ok"
	}
}

// recoveryLogger adapts slog to the gorilla recovery handler.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error("panic recovered", "error", fmt.Sprint(v...))
}
