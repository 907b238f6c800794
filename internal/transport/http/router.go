package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jwttoken "stampgate/internal/jwt_token"
	"stampgate/internal/platform/health"
	"stampgate/internal/verification/handler"
	"stampgate/pkg/platform/httputil"
	"stampgate/pkg/platform/middleware/auth"
	"stampgate/pkg/platform/middleware/request"
)

// RouterConfig carries everything the router mounts. Zero values disable the
// optional pieces: no validator means unauthenticated /v1, no origins means no
// CORS headers.
type RouterConfig struct {
	Verification   *handler.Handler
	Health         *health.Handler
	Gatherer       prometheus.Gatherer
	HTTPMetrics    *request.Metrics
	TokenValidator auth.JWTValidator
	CORSOrigins    []string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(logger))
	if cfg.HTTPMetrics != nil {
		r.Use(request.LatencyMiddleware(cfg.HTTPMetrics))
	}
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(request.Timeout(cfg.RequestTimeout))
		r.Use(request.ContentTypeJSON)
		r.Use(request.BodyLimit(httputil.MaxBodyBytes))
		r.Use(auth.RequireServiceToken(cfg.TokenValidator, jwttoken.ScopeVerify, logger))
		cfg.Verification.Register(r)
	})

	return r
}
