// Package api provides the HTTP API server and handlers for the catalog server.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wishlistapp/catalog-server/internal/ratelimit"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// Config holds HTTP surface settings.
type Config struct {
	// CORSOrigins lists allowed origins; empty allows any origin.
	CORSOrigins []string
	// RateLimitRPS and RateLimitBurst bound per-client lookups. Zero RPS
	// disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
	// ProxyPrefix is the path cached images are served under.
	ProxyPrefix string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services *Services
	router   *chi.Mux
	api      huma.API
	limiter  *ratelimit.KeyedRateLimiter
	logger   *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, cfg Config, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	s := &Server{
		services: services,
		router:   router,
		logger:   logger,
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = ratelimit.New(cfg.RateLimitRPS, max(cfg.RateLimitBurst, 1))
	}

	s.setupMiddleware(cfg)

	humaConfig := huma.DefaultConfig("Catalog API", Version)
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.registerRoutes()
	s.mountRawHandlers(cfg.ProxyPrefix)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases background resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(cfg Config) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
}

// registerRoutes registers every huma operation.
func (s *Server) registerRoutes() {
	s.registerHealthRoutes()
	s.registerProductRoutes()
	s.registerPromotionRoutes()
	s.registerMaintenanceRoutes()
}

// mountRawHandlers mounts the non-JSON endpoints directly on the router.
func (s *Server) mountRawHandlers(proxyPrefix string) {
	if s.services.Metrics != nil {
		s.router.Handle("/metrics", s.services.Metrics.Handler())
	}

	prefix := strings.TrimSuffix(proxyPrefix, "/")
	if s.services.Proxy == nil || !strings.HasPrefix(prefix, "/") {
		// Absolute prefixes point at a CDN; nothing to serve here.
		return
	}
	s.router.Handle(prefix+"/*", http.StripPrefix(prefix, s.services.Proxy))
}
