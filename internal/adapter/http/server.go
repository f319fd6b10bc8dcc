package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/gateway"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/observability"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Analyzer is the request gateway as seen by the HTTP boundary.
type Analyzer interface {
	ReadinessChecker
	Analyze(ctx context.Context, in gateway.Input) (*gateway.Response, error)
	CoverageGeoJSON() (json.RawMessage, error)
	Bundle(id string) (string, error)
	ResultFile(id, name string) (string, error)
}

// Limiter admits requests per client address.
type Limiter interface {
	Allow(client string) bool
}

// Options configure the HTTP boundary.
type Options struct {
	Addr           string
	AllowedOrigins []string
	// MaxUploadBytes bounds request bodies; multipart framing gets a small
	// allowance on top.
	MaxUploadBytes int64
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a reverse proxy that overwrites them.
	TrustProxyHeaders bool
}

// Server exposes the analysis API plus health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	analyzer   Analyzer
	limiter    Limiter
	metrics    *observability.Metrics
	maxBody    int64
	logger     *slog.Logger
}

// NewServer creates the HTTP server with all routes and middleware.
func NewServer(opts Options, analyzer Analyzer, limiter Limiter, metrics *observability.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		analyzer: analyzer,
		limiter:  limiter,
		metrics:  metrics,
		maxBody:  opts.MaxUploadBytes + formOverhead,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(analyzer))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /api/analyze", s.instrument("analyze", s.handleAnalyze))
	mux.Handle("POST /api/analyze-geojson", s.instrument("analyze_geojson", s.handleAnalyzeGeoJSON))
	mux.Handle("GET /api/coverage", s.instrument("coverage", s.handleCoverage))
	mux.Handle("GET /api/runs/{id}/download", s.instrument("download", s.handleDownload))
	mux.Handle("GET /runs/{id}/results/{file}", s.instrument("result", s.handleResult))

	var handler http.Handler = mux
	handler = s.rateLimit(handler)
	handler = securityHeaders(handler)
	handler = handlers.CORS(
		handlers.AllowedOrigins(opts.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Accept", "Accept-Language"}),
	)(handler)
	if opts.TrustProxyHeaders {
		handler = handlers.ProxyHeaders(handler)
	}
	handler = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{logger}))(handler)

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No read or write deadline: uploads are large and an analysis can
		// hold the response for the whole analyzer timeout.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
