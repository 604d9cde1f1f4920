// Package api assembles the genledger HTTP surface.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/genledger/internal/api/handler"
	"github.com/jmerrifield20/genledger/internal/config"
	"github.com/jmerrifield20/genledger/internal/generation"
	"github.com/jmerrifield20/genledger/internal/health"
	"github.com/jmerrifield20/genledger/internal/ledger"
	"github.com/jmerrifield20/genledger/internal/receipt"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Liveness is the body served at GET /.
const Liveness = "LangChain AI Service Backend is running!"

// HealthReporter exposes the latest ledger probe.
type HealthReporter interface {
	Status() health.Snapshot
}

// Deps are the collaborators the router serves.
type Deps struct {
	Service  *generation.Service
	Store    ledger.Store
	Receipts *receipt.Issuer // optional
	Health   HealthReporter  // optional
}

// NewRouter builds the gin engine. Background work started by the router
// (rate limiter cleanup) stops when ctx is done.
func NewRouter(ctx context.Context, deps Deps, cfg config.Server, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("genledger"))

	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	}

	router.Use(handler.SecurityHeaders())
	if cfg.MaxBodyBytes > 0 {
		router.Use(handler.BodyLimit(cfg.MaxBodyBytes))
	}
	router.Use(handler.RequestIDMiddleware())

	// Logged and counted ahead of the limiter so rejected requests show up.
	router.Use(handler.RequestLogger(logger))
	router.Use(handler.PrometheusMiddleware())

	// Per-IP rate limiting
	if cfg.RateLimitRPS > 0 {
		router.Use(handler.RateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitRPS*2))
	}

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, Liveness)
	})
	router.GET("/healthz", healthz(deps.Health))
	router.GET("/metrics", handler.MetricsHandler())

	handler.NewGenerationHandler(deps.Service, logger).Register(router)

	verify := handler.NewVerifyHandler(deps.Store, logger)
	if deps.Receipts != nil {
		verify.SetReceiptIssuer(deps.Receipts)
	}
	verify.Register(router)

	return router
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "X-Generation-Degraded"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}
	if containsWildcard(origins) {
		cc.AllowOrigins = nil
		cc.AllowAllOrigins = true
	}
	return cc
}

func healthz(h HealthReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		snap := h.Status()
		code := http.StatusOK
		if snap.Status != health.StatusServing {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, snap)
	}
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
