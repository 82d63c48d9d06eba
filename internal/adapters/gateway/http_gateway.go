package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/metrics"
)

const (
	// SignupIPHeader carries the candidate's address when the registration
	// workflow calls on its behalf
	SignupIPHeader = "X-Signup-IP"

	maxRequestBytes = 64 << 10
	shutdownTimeout = 10 * time.Second
)

// HTTPConfig configures the HTTP gateway
type HTTPConfig struct {
	ListenAddress     string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IncludeReasons    bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	MetricsEnabled    bool
	MetricsPath       string
}

// HTTPGateway exposes the risk engine to the registration workflow
type HTTPGateway struct {
	engine *core.RiskEngine
	cfg    HTTPConfig
	logger *zap.Logger
	router chi.Router
	server *http.Server
}

// NewHTTPGateway creates a new HTTP gateway and builds its routes
func NewHTTPGateway(engine *core.RiskEngine, cfg HTTPConfig, logger *zap.Logger) *HTTPGateway {
	g := &HTTPGateway{
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}
	g.router = g.routes()
	return g
}

// Handler returns the routed handler
func (g *HTTPGateway) Handler() http.Handler {
	return g.router
}

func (g *HTTPGateway) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(g.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if g.cfg.MetricsEnabled {
		path := g.cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/forms/{form}/tokens", g.issueToken)

		r.Route("/signups", func(r chi.Router) {
			r.With(g.rateLimit()).Post("/evaluate", g.evaluate)
			r.Post("/quick-check", g.quickCheck)
		})

		r.Get("/ips", g.listReputations)
		r.Route("/ips/{ip}", func(r chi.Router) {
			r.Get("/reputation", g.reputation)
			r.Post("/events", g.recordEvent)
			r.Post("/spam", g.markSpam)
		})
	})

	return r
}

// rateLimit limits evaluate calls per candidate address
func (g *HTTPGateway) rateLimit() func(http.Handler) http.Handler {
	if g.cfg.RateLimitRequests <= 0 || g.cfg.RateLimitWindow <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		g.cfg.RateLimitRequests,
		g.cfg.RateLimitWindow,
		httprate.WithKeyFuncs(candidateKey),
		httprate.WithLimitHandler(g.onRateLimited),
	)
}

// candidateKey keys the limiter by the signup's address, not the caller's
func candidateKey(r *http.Request) (string, error) {
	if ip := strings.TrimSpace(r.Header.Get(SignupIPHeader)); ip != "" {
		return ip, nil
	}
	return httprate.KeyByRealIP(r)
}

func (g *HTTPGateway) onRateLimited(w http.ResponseWriter, r *http.Request) {
	metrics.RateLimitHits.Inc()

	ip, _ := candidateKey(r)
	if _, err := netip.ParseAddr(ip); err == nil {
		if _, err := g.engine.RecordEvent(r.Context(), ip, core.EventRateLimitHit); err != nil {
			g.logger.Warn("Failed to record rate limit hit", zap.String("ip", ip), zap.Error(err))
		}
	}

	writeError(w, http.StatusTooManyRequests, "too many signup attempts")
}

type tokenResponse struct {
	Token     string    `json:"token"`
	Form      string    `json:"form"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (g *HTTPGateway) issueToken(w http.ResponseWriter, r *http.Request) {
	tok, err := g.engine.IssueTimingToken(r.Context(), chi.URLParam(r, "form"))
	if err != nil {
		g.logger.Error("Failed to issue timing token", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "timing tokens unavailable")
		return
	}

	writeJSON(w, http.StatusCreated, tokenResponse{
		Token:     tok.Value,
		Form:      tok.Form,
		IssuedAt:  tok.IssuedAt,
		ExpiresAt: tok.ExpiresAt,
	})
}

type evaluateRequest struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	IP          string `json:"ip"`
	TimingToken string `json:"timing_token"`
	Honeypot    string `json:"honeypot"`
	Form        string `json:"form"`
}

// verdictSummary is returned when reasons are withheld
type verdictSummary struct {
	IsSpam         bool                `json:"is_spam"`
	IsHighRisk     bool                `json:"is_high_risk"`
	ShouldBlock    bool                `json:"should_block"`
	OverallScore   int                 `json:"overall_score"`
	Recommendation core.Recommendation `json:"recommendation"`
}

func (g *HTTPGateway) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.IP == "" {
		req.IP = strings.TrimSpace(r.Header.Get(SignupIPHeader))
	}

	verdict := g.engine.Evaluate(r.Context(), core.Candidate{
		Email:         req.Email,
		Name:          req.Name,
		IP:            req.IP,
		TimingToken:   req.TimingToken,
		HoneypotValue: req.Honeypot,
		Form:          req.Form,
	})
	g.writeVerdict(w, verdict)
}

type quickCheckRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (g *HTTPGateway) quickCheck(w http.ResponseWriter, r *http.Request) {
	var req quickCheckRequest
	if !decode(w, r, &req) {
		return
	}
	g.writeVerdict(w, g.engine.QuickCheck(req.Email, req.Name))
}

func (g *HTTPGateway) writeVerdict(w http.ResponseWriter, verdict *core.SpamVerdict) {
	if g.cfg.IncludeReasons {
		writeJSON(w, http.StatusOK, verdict)
		return
	}
	writeJSON(w, http.StatusOK, verdictSummary{
		IsSpam:         verdict.IsSpam,
		IsHighRisk:     verdict.IsHighRisk,
		ShouldBlock:    verdict.ShouldBlock,
		OverallScore:   verdict.OverallScore,
		Recommendation: verdict.Recommendation,
	})
}

type reputationResponse struct {
	Reputation *core.IPReputation `json:"reputation"`
	Decision   core.BlockDecision `json:"decision"`
}

func (g *HTTPGateway) reputation(w http.ResponseWriter, r *http.Request) {
	ip, ok := ipParam(w, r)
	if !ok {
		return
	}

	rep, decision, err := g.engine.Reputation(r.Context(), ip)
	if err != nil {
		g.storeError(w, "reputation lookup", ip, err)
		return
	}
	writeJSON(w, http.StatusOK, reputationResponse{Reputation: rep, Decision: decision})
}

func (g *HTTPGateway) listReputations(w http.ResponseWriter, r *http.Request) {
	records, err := g.engine.ListReputations(r.Context())
	if err != nil {
		g.storeError(w, "list reputations", "", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type eventRequest struct {
	Event core.ReputationEvent `json:"event"`
}

func (g *HTTPGateway) recordEvent(w http.ResponseWriter, r *http.Request) {
	ip, ok := ipParam(w, r)
	if !ok {
		return
	}
	var req eventRequest
	if !decode(w, r, &req) {
		return
	}
	if !req.Event.Valid() {
		writeError(w, http.StatusBadRequest, "unknown event")
		return
	}

	rep, err := g.engine.RecordEvent(r.Context(), ip, req.Event)
	if err != nil {
		g.storeError(w, "record event", ip, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (g *HTTPGateway) markSpam(w http.ResponseWriter, r *http.Request) {
	ip, ok := ipParam(w, r)
	if !ok {
		return
	}

	rep, err := g.engine.MarkAccountAsSpam(r.Context(), ip)
	if err != nil {
		g.storeError(w, "mark spam", ip, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (g *HTTPGateway) storeError(w http.ResponseWriter, op, ip string, err error) {
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no reputation record")
		return
	}
	g.logger.Warn("Store operation failed", zap.String("operation", op), zap.String("ip", ip), zap.Error(err))
	writeError(w, http.StatusServiceUnavailable, "reputation store unavailable")
}

// requestLogger logs each request at debug level
func (g *HTTPGateway) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		g.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start starts serving in the background
func (g *HTTPGateway) Start() error {
	g.server = &http.Server{
		Addr:         g.cfg.ListenAddress,
		Handler:      g.router,
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
	}

	g.logger.Info("HTTP gateway starting", zap.String("address", g.cfg.ListenAddress))

	go func() {
		if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts the server down
func (g *HTTPGateway) Stop() error {
	if g.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.server.Shutdown(ctx)
}

func ipParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	addr, err := netip.ParseAddr(chi.URLParam(r, "ip"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ip address")
		return "", false
	}
	return addr.String(), true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
