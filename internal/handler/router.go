package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"referralhub/internal/config"
	"referralhub/internal/handler/middleware"
	jwtpkg "referralhub/pkg/jwt"
)

func SetupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	jwtManager *jwtpkg.Manager,
	referralHandler *ReferralHandler,
	adminHandler *AdminHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.CORS))

	// Health check
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := middleware.RateLimit(middleware.NewIPRateLimiter(cfg.RateLimit))

	// Public referral routes, called by the storefront and checkout webhooks
	public := r.Group("/api/referrals")
	{
		public.POST("/track", limiter, referralHandler.Track)
		public.GET("/validate/:code", limiter, referralHandler.Validate)
	}

	// Protected routes
	protected := r.Group("/api/referrals")
	protected.Use(middleware.JWTAuth(jwtManager))
	{
		protected.POST("/code", referralHandler.IssueCode)
		protected.GET("/stats", referralHandler.Stats)
	}

	// Admin routes (JWT + admin check)
	if adminHandler != nil {
		admin := r.Group("/api/admin")
		admin.Use(middleware.JWTAuth(jwtManager))
		admin.Use(middleware.AdminAuth(cfg.Admin.UserIDs, logger))
		{
			admin.POST("/referral-codes/:code/deactivate", adminHandler.DeactivateCode)
		}
	}

	return r
}
