// Package httpapi wires the ops HTTP server of the bot: health, Prometheus
// metrics, the stats endpoint and (in webhook mode) the Telegram webhook.
// It centralizes cross-cutting concerns such as tracing, correlation IDs,
// logging/redaction, panic recovery, metrics, CORS, compression and
// security headers.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-report-bot/internal/cache"
	"github.com/tbourn/go-report-bot/internal/config"
	"github.com/tbourn/go-report-bot/internal/http/handlers"
	"github.com/tbourn/go-report-bot/internal/http/middleware"
	"github.com/tbourn/go-report-bot/internal/ratelimit"
	"github.com/tbourn/go-report-bot/internal/repo"
)

// maxBodyBytes caps request bodies; Telegram updates are far smaller.
const maxBodyBytes = 1 << 20

// Deps are the runtime components the ops server reports on or feeds.
type Deps struct {
	Cache    *cache.ReportCache
	Cooldown *ratelimit.Cooldown
	// DB is nil when the audit log is disabled.
	DB *gorm.DB
	// Updates receives webhook updates; nil in polling mode.
	Updates handlers.UpdateSink
}

// opsStats adapts the runtime components to handlers.StatsSource.
type opsStats struct {
	cache    *cache.ReportCache
	cooldown *ratelimit.Cooldown
	db       *gorm.DB
}

// CacheEntries proxies ReportCache.Len.
func (s opsStats) CacheEntries() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}

// TrackedUsers proxies Cooldown.Len.
func (s opsStats) TrackedUsers() int {
	if s.cooldown == nil {
		return 0
	}
	return s.cooldown.Len()
}

// OutcomeCounts proxies repo.OutcomeCounts.
func (s opsStats) OutcomeCounts(ctx context.Context, since time.Time) (map[string]int64, error) {
	if s.db == nil {
		return nil, nil
	}
	return repo.OutcomeCounts(ctx, s.db, since)
}

// LastQueryAt proxies repo.LastQueryAt.
func (s opsStats) LastQueryAt(ctx context.Context) (*time.Time, error) {
	if s.db == nil {
		return nil, nil
	}
	return repo.LastQueryAt(ctx, s.db)
}

// UserQueryCount proxies repo.UserQueryCount.
func (s opsStats) UserQueryCount(ctx context.Context, userID int64, since time.Time) (int64, error) {
	if s.db == nil {
		return 0, nil
	}
	return repo.UserQueryCount(ctx, s.db, userID, since)
}

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs, credentials and PII masked
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS, compression and security headers
//
// The stats group is additionally rate limited per client IP. The webhook
// route is mounted only when cfg selects webhook mode.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		QuietPaths: []string{"/health", "/metrics"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(middleware.Metrics(middleware.MetricsOptions{SkipPaths: []string{"/metrics"}}))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// promhttp negotiates its own compression.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", cfg.Telegram.WebhookPath})))

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStore:    true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlers.New(opsStats{cache: deps.Cache, cooldown: deps.Cooldown, db: deps.DB}, deps.Updates)

	rl := middleware.NewRateLimiter(cfg.OpsRateRPS, cfg.OpsRateBurst)
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.GET("/stats", rl.Handler(), h.Stats)

	if cfg.Telegram.UpdateMode == config.ModeWebhook {
		r.POST(cfg.Telegram.WebhookPath, middleware.WebhookSecret(cfg.Telegram.WebhookSecret), h.Webhook)
	}
}

// limitBody caps the request body size for all endpoints to maxBytes using
// http.MaxBytesReader. Requests exceeding the cap cause downstream body reads
// to error.
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
