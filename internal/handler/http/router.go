package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

// renderMaxAge is how long shared caches may keep a one-shot listing render.
const renderMaxAge = 30

// NewRouter creates a chi router with global middleware, health and metrics
// endpoints, and the listing API.
func NewRouter(
	cfg *config.Config,
	listings *ListingHandler,
	healthHandler *health.Handler,
	limiter *middleware.RateLimiter,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack (applied in order).
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins)))
	r.Use(limiter.Middleware(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())

	// Metrics endpoint with IP allowlist protection.
	r.With(middleware.IPAllowlist(cfg.MetricsAllowedCIDRs, logger)).Handle("/metrics", promhttp.Handler())

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	r.Route("/api/v1/listings", func(r chi.Router) {
		r.Get("/", listings.ListProfiles)
		r.With(middleware.CacheControl(renderMaxAge)).Get("/{profile}", listings.Render)
		r.Post("/{profile}/sessions", listings.Mount)
	})

	r.Route("/api/v1/sessions/{id}", func(r chi.Router) {
		r.Get("/", listings.GetSession)
		r.Delete("/", listings.Unmount)
		r.Post("/actions", listings.Dispatch)
		r.Post("/retry", listings.Retry)
		r.Get("/suggestions", listings.Suggestions)
	})

	return r
}
