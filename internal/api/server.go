// Package api exposes the orchestrator over JSON HTTP.
//
// Error mapping is uniform across handlers: validation failures are 400,
// unknown sessions or questions are 404, write conflicts are 409, a missing
// or unreachable required dependency is 503, anything else is 500.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/intervox/intervox/internal/health"
	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/internal/orchestrator"
)

// Server wires the orchestrator into HTTP handlers.
type Server struct {
	svc     *orchestrator.Service
	health  *health.Handler
	metrics *observe.Metrics
	log     *slog.Logger
}

// config holds optional configuration for Server.
type config struct {
	health  *health.Handler
	metrics *observe.Metrics
	log     *slog.Logger
}

// Option is a functional option for Server.
type Option func(*config)

// WithHealth registers the health handler for /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(c *config) { c.health = h }
}

// WithMetrics attaches the metrics instance used by the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithLogger sets the request logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) { c.log = log }
}

// NewServer creates a Server around svc.
func NewServer(svc *orchestrator.Service, opts ...Option) *Server {
	cfg := &config{
		health: health.New(),
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.metrics == nil {
		cfg.metrics = observe.DefaultMetrics()
	}
	return &Server{
		svc:     svc,
		health:  cfg.health,
		metrics: cfg.metrics,
		log:     cfg.log,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.POST("/interview/start", s.startInterview)
	r.POST("/interview/answer", s.submitAnswer)
	r.POST("/interview/finish", s.finishInterview)
	r.GET("/interview/session/:id", s.getSession)
	r.GET("/interview/session/:id/report", s.getReport)
	r.POST("/livekit/token", s.mintToken)

	r.GET("/healthz", gin.WrapF(s.health.Healthz))
	r.GET("/readyz", gin.WrapF(s.health.Readyz))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// requestLog opens a span per request, logs it, and records its latency. The
// trace ID doubles as the correlation identifier across the request's logs.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		ctx, span := observe.StartSpan(c.Request.Context(), c.Request.Method+" "+path)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		span.End()

		s.metrics.RecordHTTPRequest(ctx, c.Request.Method, path, elapsed)
		s.log.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", elapsed.Milliseconds(),
			"trace_id", observe.CorrelationID(ctx))
	}
}

// Serve runs the HTTP server until the listener fails.
func (s *Server) Serve(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
