// Package httpapi wires the HTTP transport (Gin) to the webhook handlers and
// middleware. It centralizes cross-cutting concerns: tracing, correlation
// IDs, structured logging, panic recovery, metrics, compression, body size
// limits, and rate limiting.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip compression
//  7. Metrics
//  8. Rate limiter (per source IP)
package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/psousaj/nexo-ai-sub000/internal/config"
	"github.com/psousaj/nexo-ai-sub000/internal/http/handlers"
	"github.com/psousaj/nexo-ai-sub000/internal/http/middleware"
	"github.com/psousaj/nexo-ai-sub000/internal/provider"
	"github.com/psousaj/nexo-ai-sub000/internal/queue"
)

// RegisterRoutes attaches all middleware and endpoints to the given Gin
// engine: /health, /metrics, the per-provider webhook ingestion route, and
// the WhatsApp subscription handshake.
func RegisterRoutes(r *gin.Engine, providers *provider.Registry, q queue.Queue, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", handlers.Health)

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())

	wh := handlers.NewWebhookHandler(providers, q, cfg.WhatsApp.VerifyToken, cfg.InsecureDev)
	hooks := r.Group("/webhooks", rl.Handler())
	hooks.GET("/whatsapp", wh.VerifySubscription)
	hooks.POST("/:provider", wh.Receive)
}

// limitBody rejects request bodies larger than n bytes with 413. The check is
// enforced by MaxBytesReader during the handler's own read.
func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    "body_too_large",
				"message": "request body too large",
			})
			return
		}
		c.Request.Body = asMaxBytes(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

func asMaxBytes(w gin.ResponseWriter, rc io.ReadCloser, n int64) io.ReadCloser {
	return http.MaxBytesReader(w, rc, n)
}
