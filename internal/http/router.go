// Package httpapi mounts the complaint API on a gin engine. Every dependency
// comes in through Deps; the package never opens a store itself.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/tbourn/go-complaint-backend/docs" // swagger spec registration
	"github.com/tbourn/go-complaint-backend/internal/config"
	"github.com/tbourn/go-complaint-backend/internal/http/handlers"
	"github.com/tbourn/go-complaint-backend/internal/http/middleware"
)

const (
	// maxBodyBytes caps request bodies. Complaints are plain text.
	maxBodyBytes = 1 << 20
	// readyTimeout bounds one /ready probe of the store.
	readyTimeout = 2 * time.Second
	// corsMaxAge is how long browsers may cache a preflight answer.
	corsMaxAge = 12 * time.Hour
)

// Deps carries what the routes need from the composition root.
type Deps struct {
	// Complaints serves the /complaints endpoints (required).
	Complaints handlers.ComplaintService
	// Idempotency stores replayable outcomes; nil disables replay.
	Idempotency handlers.IdempotencyStore
	// Ready probes the backing store for /ready; nil reports ready.
	Ready func(ctx context.Context) error
}

// RegisterRoutes installs the middleware chain, the probes, /metrics,
// optional swagger and the complaint API under cfg.APIBasePath.
//
// The chain runs in this order: tracing, request ID, access log, panic
// recovery, body cap, metrics, Idempotency-Key validation, rate limiting
// (after validation so replays skip it), CORS, security headers, gzip.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders:     []string{"X-API-Key"},
			MaskQueryParams: []string{"search"},
		}),
		middleware.Recovery(),
		limitBody(maxBodyBytes),
		middleware.Metrics(),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, idempotencyLookup(deps.Idempotency)),
		middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByRoute(middleware.KeyByClientIP())).Handler(),
		corsMiddleware(cfg.CORS),
		middleware.SecurityHeaders(middleware.SecurityOptions{
			EnableHSTS:   cfg.Security.EnableHSTS,
			HSTSMaxAge:   cfg.Security.HSTSMaxAge,
			NoStore:      true,
			EnablePolicy: true,
		}),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})),
	)

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", readiness(deps.Ready))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps.Complaints, deps.Idempotency, cfg.APIBasePath, cfg.IdempotencyTTL)
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.GET("/complaints", h.ListComplaints)
	api.POST("/complaints", h.CreateComplaint)
	api.GET("/complaints/:id", h.GetComplaint)
	api.DELETE("/complaints/:id", h.DeleteComplaint)
	api.PUT("/complaints/:id/status", h.UpdateStatus)
	api.POST("/complaints/:id/comments", h.AddComment)
}

// idempotencyLookup adapts the record store to the validator's yes/no
// question. A nil store disables replay detection.
func idempotencyLookup(store handlers.IdempotencyStore) middleware.IdempotencyLookup {
	if store == nil {
		return nil
	}
	return func(ctx context.Context, scope, key string, now time.Time) (bool, error) {
		rec, err := store.Lookup(ctx, scope, key, now)
		return rec != nil, err
	}
}

// corsMiddleware allows any origin without credentials when no allowlist is
// configured, otherwise exactly the listed origins.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "If-None-Match", middleware.HeaderIdempotencyKey, "X-Request-ID"},
		ExposeHeaders: append([]string{"Content-Length"}, middleware.DefaultExposeHeaders...),
		MaxAge:        corsMaxAge,
	}
	if len(cfg.AllowedOrigins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = cfg.AllowedOrigins
	}
	return cors.New(cc)
}

// readiness answers 503 with Retry-After while probe fails.
func readiness(probe func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if probe != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
			defer cancel()
			if err := probe(ctx); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("readiness probe failed")
				c.Header("Retry-After", "5")
				handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, "complaint store not ready")
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// limitBody wraps every request body in http.MaxBytesReader; handlers turn
// the resulting read error into 413.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
