package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bod9dzys/BasicWFMbb/config"
	"github.com/bod9dzys/BasicWFMbb/internal/api/handler"
	"github.com/bod9dzys/BasicWFMbb/internal/api/middleware"
	"github.com/bod9dzys/BasicWFMbb/internal/model"
	"github.com/bod9dzys/BasicWFMbb/pkg/jwt"
)

// Deps are the collaborators the router wires into middleware.
type Deps struct {
	JWT      *jwt.Manager
	Checker  middleware.CapabilityChecker
	Limiter  middleware.Limiter // nil disables rate limiting
	Gatherer prometheus.Gatherer
	// Ping reports store health for /health; nil skips the check.
	Ping func(ctx context.Context) error
}

// Setup builds the gin engine.
func Setup(cfg *config.Config, h *handler.Handler, deps Deps, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── global middleware ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger, "/health", "/metrics"))
	r.Use(middleware.SecurityHeaders())
	if len(cfg.Server.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.Server.CORSOrigins, logger))
	}
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── health & metrics ──
	r.GET("/health", func(c *gin.Context) {
		if deps.Ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(deps.JWT))
	{
		exchanges := v1.Group("/exchanges")
		{
			exchanges.POST("",
				middleware.RateLimit(deps.Limiter, cfg.Exchange.RateLimit, cfg.Exchange.RateWindow, logger),
				h.Exchange.Propose)
			exchanges.GET("", h.Exchange.List)
		}

		v1.POST("/imports", middleware.RequireCapability(deps.Checker, model.CapImportRun, logger), h.Import.Import)

		v1.GET("/shifts/export", middleware.RequireCapability(deps.Checker, model.CapExportRun, logger), h.Export.ExportShifts)

		// own feed or export.run, checked in the handler
		v1.GET("/identities/:id/calendar.ics", h.Calendar.IdentityCalendar)
	}

	return r
}
