// Package httpapi implements the HTTP API gateway.
//
// Endpoints are open by design, authentication is expected at a reverse
// proxy. The gateway still applies request body size limits, per-client
// rate limiting, and logs every request with a correlation ID.
package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"

	"github.com/Samad191/agent/internal/classify"
	"github.com/Samad191/agent/internal/engine"
	"github.com/Samad191/agent/internal/observability"
	"github.com/Samad191/agent/internal/ratelimit"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// Engine is the conversation engine surface the gateway depends on.
type Engine interface {
	Answer(ctx context.Context, threadID, question string) (string, string, error)
	AnswerWithSearch(ctx context.Context, question string) (*engine.SearchAnswer, error)
	Route(ctx context.Context, threadID, question string) (*engine.RoutedAnswer, error)
}

// ErrorBody is the normalized JSON error envelope.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string // e.g., ":4000"
	MaxRequestSize int64  // Maximum request body in bytes. 0 = 1 MB default.

	// Observability
	MetricsRegistry *prometheus.Registry         // Custom Prometheus registry for /metrics.
	MetricsPath     string                       // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker // Health checker for /readyz.
	Metrics         *observability.Metrics       // Metrics for HTTP middleware.
	Tracer          trace.Tracer                 // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config  Config
	engine  Engine
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	server  *http.Server
	okapi   *okapi.Okapi

	// Extra handlers mounted on the HTTP mux (e.g., the Slack events handler).
	extraRoutes []extraRoute
}

type extraRoute struct {
	method  string
	pattern string
	handler http.Handler
}

// NewGateway creates an HTTP API gateway.
func NewGateway(cfg Config, eng Engine, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = defaultMaxRequestSize
	}
	return &Gateway{
		config:  cfg,
		engine:  eng,
		limiter: rl,
		logger:  logger,
		okapi:   okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
	}
}

// WithHandler mounts an additional handler at the given method and pattern.
// Used to serve the Slack events webhook on the same listener.
func (g *Gateway) WithHandler(method, pattern string, handler http.Handler) *Gateway {
	g.extraRoutes = append(g.extraRoutes, extraRoute{method: method, pattern: pattern, handler: handler})
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}

	// Conversation endpoints.
	g.okapi.HandleStd("GET", "/", g.handleRoot)
	g.okapi.HandleStd("POST", "/ask", g.handleAsk)
	g.okapi.HandleStd("POST", "/serp", g.handleSerp)
	g.okapi.HandleStd("POST", "/chat", g.handleChat)

	// Extra handlers (e.g., Slack events webhook).
	for _, er := range g.extraRoutes {
		g.okapi.HandleStd(er.method, er.pattern, er.handler.ServeHTTP)
	}

	// Observability endpoints.
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Handlers ---

// askRequest is the JSON body for POST /ask and POST /chat.
type askRequest struct {
	Question string `json:"question"`
	ThreadID string `json:"thread_id,omitempty"` // Empty = new thread.
}

func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "Hello world!", "")
}

// handleAsk answers a question in direct mode. Responds with the plain
// text reply; the resolved thread ID travels in the X-Thread-ID header.
func (g *Gateway) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decodeQuestion(w, r)
	if !ok {
		return
	}

	correlationID := newCorrelationID()
	g.logger.Info("ask request",
		slog.String("correlation_id", correlationID),
		slog.String("thread_id", req.ThreadID),
	)

	reply, threadID, err := g.engine.Answer(r.Context(), req.ThreadID, req.Question)
	if err != nil {
		g.logger.Error("direct answer failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: "Internal server error"})
		return
	}

	writeText(w, http.StatusOK, reply, threadID)
}

// handleSerp answers a question in search mode with the structured
// summary/images/sources payload.
func (g *Gateway) handleSerp(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decodeQuestion(w, r)
	if !ok {
		return
	}

	correlationID := newCorrelationID()
	g.logger.Info("serp request", slog.String("correlation_id", correlationID))

	answer, err := g.engine.AnswerWithSearch(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, engine.ErrNoResults) {
			writeJSON(w, http.StatusNotFound, ErrorBody{Error: "No documents found."})
			return
		}
		g.logger.Error("search answer failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// handleChat classifies the question and routes it: general questions get
// a plain text reply, search questions get the structured search payload.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decodeQuestion(w, r)
	if !ok {
		return
	}

	correlationID := newCorrelationID()
	g.logger.Info("chat request",
		slog.String("correlation_id", correlationID),
		slog.String("thread_id", req.ThreadID),
	)

	routed, err := g.engine.Route(r.Context(), req.ThreadID, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, classify.ErrUnexpectedLabel):
			writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: "Unexpected classification result"})
		case errors.Is(err, engine.ErrNoResults):
			writeJSON(w, http.StatusNotFound, ErrorBody{Error: "No documents found."})
		default:
			g.logger.Error("routed answer failed",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: "Internal server error"})
		}
		return
	}

	g.logger.Info("chat routed",
		slog.String("correlation_id", correlationID),
		slog.String("label", string(routed.Label)),
	)

	if routed.Search != nil {
		writeJSON(w, http.StatusOK, routed.Search)
		return
	}
	writeText(w, http.StatusOK, routed.Text, routed.ThreadID)
}

func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(okapi.M{"status": "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(okapi.M{"status": "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Helpers ---

// decodeQuestion rate limits the client and parses the question body.
// Writes the error response and returns false when the request is rejected.
func (g *Gateway) decodeQuestion(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var req askRequest

	if g.limiter != nil {
		if err := g.limiter.Allow(clientIP(r)); err != nil {
			writeJSON(w, http.StatusTooManyRequests, ErrorBody{Error: "rate limit exceeded"})
			return req, false
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, g.config.MaxRequestSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "invalid request body"})
		return req, false
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "invalid request body"})
		return req, false
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "question is required"})
		return req, false
	}
	return req, true
}

// clientIP returns the remote address without the port, used as the rate
// limit key.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, code int, text, threadID string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if threadID != "" {
		w.Header().Set("X-Thread-ID", threadID)
	}
	w.WriteHeader(code)
	_, _ = w.Write([]byte(text))
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
