// Package http exposes the ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"time"

	"entregas/internal/log"
	"entregas/internal/metrics"
	"entregas/internal/middleware/ratelimit"
	"entregas/internal/middleware/security"
	"entregas/internal/middleware/trace"
	"entregas/internal/services"
)

const (
	defaultRequestTimeout = 15 * time.Second
	maxBodyBytes          = 1 << 20
	maxImportBytes        = 32 << 20
)

type Server struct {
	http.Server

	svc      *services.LedgerService
	logger   *log.Logger
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	ready          func(context.Context) error
	requestTimeout time.Duration
	rateLimit      int
}

type Option func(*Server)

// WithMetrics records request metrics and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithReadiness sets the check behind /readyz.
func WithReadiness(fn func(context.Context) error) Option {
	return func(s *Server) { s.ready = fn }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// WithRateLimit caps mutating requests per client per minute.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.rateLimit = perMinute }
}

func NewServer(addr string, svc *services.LedgerService, logger *log.Logger, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		logger:         logger.WithComponent(log.ComponentHTTP),
		detector:       security.NewDetector(),
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: s.rateLimit})

	var observe trace.Observer
	if s.metrics != nil {
		observe = s.metrics.ObserveHTTP
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP, observe)

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)
	h = s.detector.Middleware(logger)(h)
	h = log.Middleware(logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.handle(mux, "GET /api/data", s.handleLoadAll)

	s.handle(mux, "POST /api/companies", s.handleSaveCompany)
	s.handle(mux, "DELETE /api/companies/{id}", s.handleDeleteCompany)

	s.handle(mux, "GET /api/entries", s.handleListEntries)
	s.handle(mux, "POST /api/entries", s.handleSaveEntry)
	s.handle(mux, "DELETE /api/entries/{id}", s.handleDeleteEntry)
	s.handle(mux, "GET /api/entries.csv", s.handleEntriesCSV)
	s.handle(mux, "GET /api/entries.xlsx", s.handleEntriesXLSX)

	s.handle(mux, "GET /api/costs", s.handleListCosts)
	s.handle(mux, "POST /api/costs", s.handleSaveCost)
	s.handle(mux, "DELETE /api/costs/{id}", s.handleDeleteCost)

	s.handle(mux, "POST /api/refuels", s.handleSaveRefuel)
	s.handle(mux, "DELETE /api/refuels/{id}", s.handleDeleteRefuel)
	s.handle(mux, "GET /api/refuels/efficiency", s.handleEfficiency)

	s.handle(mux, "GET /api/settings/vehicle", s.handleGetSettings)
	s.handle(mux, "PUT /api/settings/vehicle", s.handleSaveSettings)
	s.handle(mux, "POST /api/settings/vehicle/use-average", s.handleUseAverage)

	s.handle(mux, "GET /api/maintenance", s.handleMaintenanceStatus)
	s.handle(mux, "POST /api/maintenance/items", s.handleSaveMaintenanceItem)
	s.handle(mux, "DELETE /api/maintenance/items/{id}", s.handleDeleteMaintenanceItem)
	s.handle(mux, "POST /api/maintenance/items/{id}/done", s.handleMarkDone)

	s.handle(mux, "GET /api/reports/monthly", s.handleMonthlyReport)

	s.handle(mux, "GET /api/export", s.handleExport)
	s.handle(mux, "POST /api/import", s.handleImport)
}

// handle registers an API route behind the rate limiter and request timeout.
// Both run inside the mux so the matched pattern stays visible to tracing.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	var next http.Handler = s.withTimeout(h)
	next = s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.MutatingOnly, s.onRateLimited)(next)
	mux.Handle(pattern, next)
}

func (s *Server) withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	writeMessage(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

// Shutdown stops accepting requests and releases the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
			writeMessage(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	tm := s.tracer.GetMetrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"requests":       tm.TotalRequests,
		"serverErrors":   tm.ServerErrors,
		"rateLimited":    s.limiter.GetMetrics().Rejected,
		"suspicious":     s.detector.GetMetrics().SuspiciousRequests,
		"trackedClients": s.limiter.ActiveClients(),
	})
}
