package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"saldo/internal/analytics"
	"saldo/internal/auth"
	"saldo/internal/core"
	"saldo/internal/ledger"
	"saldo/internal/log"
	"saldo/internal/middleware/ratelimit"
	"saldo/internal/middleware/security"
	"saldo/internal/middleware/trace"
)

// Ledger is the subset of ledger.Service the handlers call.
type Ledger interface {
	auth.AccountEnsurer

	CreateEntry(ctx context.Context, accountID string, in core.EntryInput) (core.Entry, error)
	GetEntry(ctx context.Context, accountID, entryID string) (core.Entry, error)
	UpdateEntry(ctx context.Context, accountID, entryID string, in core.EntryInput) (core.Entry, error)
	DeleteEntry(ctx context.Context, accountID, entryID string) (core.Money, error)
	ListEntries(ctx context.Context, accountID string, q core.ListQuery) (core.Page, error)

	CurrentBalance(ctx context.Context, accountID string) (ledger.BalanceView, error)
	SetInitialBalance(ctx context.Context, accountID string, amount core.Money) (core.Account, error)
	Profile(ctx context.Context, accountID string) (core.Account, error)
	UpdatePreferences(ctx context.Context, accountID string, prefs core.Preferences) (core.Account, error)

	VerifyBalance(ctx context.Context, accountID string) (ledger.Verification, error)
	Reconcile(ctx context.Context, accountID string) (ledger.ReconcileResult, error)

	BalanceSeries(ctx context.Context, accountID string, days int) ([]analytics.DayPoint, error)
	MonthlyTrend(ctx context.Context, accountID string, months int) ([]analytics.MonthPoint, error)
	CategoryBreakdown(ctx context.Context, accountID string, kind core.Kind) ([]analytics.CategoryShare, error)
	Overview(ctx context.Context, accountID string) (analytics.OverviewReport, error)
	Summary(ctx context.Context, accountID string, days int) (ledger.SummaryView, error)
}

// Options configure NewServer. Ledger and Verifier are required.
type Options struct {
	Addr     string
	Ledger   Ledger
	Verifier auth.Verifier
	// Ready reports whether dependencies can serve traffic; nil means always ready.
	Ready func(ctx context.Context) error
	Logger *log.Logger

	RequestsPerMinute int
	WritesPerMinute   int
	TrustedProxies    []string
	Headers           *security.HeadersConfig
}

type Server struct {
	http.Server

	ledger   Ledger
	ready    func(ctx context.Context) error
	logger   *log.Logger
	detector *security.Detector
	tracer   *trace.Middleware

	requestLimiter *ratelimit.Limiter
	writeLimiter   *ratelimit.Limiter

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	detector, err := security.NewDetector(logger, opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}

	headers := security.DefaultHeadersConfig()
	if opts.Headers != nil {
		headers = *opts.Headers
	}

	s := &Server{
		ledger:         opts.Ledger,
		ready:          opts.Ready,
		logger:         logger.WithComponent(log.ComponentHTTP),
		detector:       detector,
		tracer:         trace.NewMiddleware(logger, detector.ExtractClientIP),
		requestLimiter: newLimiter(opts.RequestsPerMinute),
		writeLimiter:   newLimiter(opts.WritesPerMinute),
		started:        time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	authn := auth.Middleware(opts.Verifier, opts.Ledger, writeError)
	limitWrites := s.writeLimiter.Middleware(s.writeKey, writeRateLimited)
	read := func(h http.HandlerFunc) http.Handler { return authn(h) }
	write := func(h http.HandlerFunc) http.Handler { return authn(limitWrites(h)) }

	mux.Handle("GET /api/transactions", read(s.handleListEntries))
	mux.Handle("POST /api/transactions", write(s.handleCreateEntry))
	mux.Handle("GET /api/transactions/summary", read(s.handleSummary))
	mux.Handle("GET /api/transactions/{id}", read(s.handleGetEntry))
	mux.Handle("PUT /api/transactions/{id}", write(s.handleUpdateEntry))
	mux.Handle("DELETE /api/transactions/{id}", write(s.handleDeleteEntry))

	mux.Handle("GET /api/balance/current", read(s.handleCurrentBalance))
	mux.Handle("GET /api/balance/history", read(s.handleBalanceHistory))
	mux.Handle("GET /api/balance/verify", read(s.handleVerifyBalance))
	mux.Handle("POST /api/balance/reconcile", write(s.handleReconcile))

	mux.Handle("GET /api/analytics/balance-trend", read(s.handleBalanceTrend))
	mux.Handle("GET /api/analytics/monthly", read(s.handleMonthly))
	mux.Handle("GET /api/analytics/categories", read(s.handleCategories))
	mux.Handle("GET /api/analytics/overview", read(s.handleOverview))

	mux.Handle("POST /api/user/initial-balance", write(s.handleInitialBalance))
	mux.Handle("GET /api/user/profile", read(s.handleGetProfile))
	mux.Handle("PUT /api/user/profile", write(s.handleUpdateProfile))

	var handler http.Handler = mux
	handler = s.requestLimiter.Middleware(detector.ExtractClientIP, writeRateLimited)(handler)
	handler = detector.Middleware(handler)
	handler = security.Headers(headers)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func newLimiter(perMinute int) *ratelimit.Limiter {
	cfg := ratelimit.DefaultConfig()
	if perMinute > 0 {
		cfg.RequestsPerMinute = perMinute
	}
	return ratelimit.NewLimiter(cfg)
}

// writeKey limits writes per account, falling back to the client address.
func (s *Server) writeKey(r *http.Request) string {
	if id := auth.AccountID(r.Context()); id != "" {
		return "account:" + id
	}
	return "ip:" + s.detector.ExtractClientIP(r)
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError().Write(w)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.requestLimiter.Stop()
		s.writeLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Stats snapshots the middleware counters served on /metrics.
type Stats struct {
	Trace    trace.Metrics
	Security security.DetectionMetrics
	Requests ratelimit.Metrics
	Writes   ratelimit.Metrics
}

func (s *Server) Stats() Stats {
	return Stats{
		Trace:    s.tracer.GetMetrics(),
		Security: s.detector.GetMetrics(),
		Requests: s.requestLimiter.GetMetrics(),
		Writes:   s.writeLimiter.GetMetrics(),
	}
}

// handleMetrics writes the middleware counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	st := s.Stats()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", st.Trace.TotalRequests)
	metric("http_response_time_avg_microseconds", "gauge", "Average response time", st.Trace.AverageResponseTime)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", st.Security.SuspiciousRequests)
	metric("blocked_requests_total", "counter", "Total requests blocked by the detector", st.Security.BlockedRequests)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total{limiter=\"requests\"} %d\n", st.Requests.TotalHits)
	fmt.Fprintf(w, "rate_limit_hits_total{limiter=\"writes\"} %d\n\n", st.Writes.TotalHits)
	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients{limiter=\"requests\"} %d\n", st.Requests.ClientCount)
	fmt.Fprintf(w, "active_rate_limit_clients{limiter=\"writes\"} %d\n\n", st.Writes.ClientCount)

	fmt.Fprintf(w, "# HELP uptime_seconds Server uptime in seconds\n# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
