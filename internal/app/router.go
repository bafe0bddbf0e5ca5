package app

import (
	"time"

	"edu_insight_backend/internal/config"
	"edu_insight_backend/internal/middleware"
	"edu_insight_backend/internal/model"
	"edu_insight_backend/pkg/monitoring"
	"edu_insight_backend/pkg/security"
	"edu_insight_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
)

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.Health)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/profile", c.auth.Profile)

		// 学生侧：分析与许可
		authGroup.GET("/analytics/cross-course", c.analytics.GetCrossCourseAnalytics)
		authGroup.GET("/analytics/risk", c.analytics.GetAcademicRisk)
		authGroup.POST("/analytics/gaps", c.analytics.AnalyzeGaps)
		authGroup.GET("/consents", c.consent.List)
		authGroup.PUT("/consents", c.consent.Update)

		// 教师侧：依赖图与预警
		instructor := authGroup.Group("/instructor")
		instructor.Use(middleware.RoleMiddleware(model.Instructor))
		{
			instructor.GET("/courses/:courseId/dependencies", c.dependency.GetCourseDependencies)
			instructor.POST("/dependencies/analyze", c.dependency.AnalyzeDependencies)

			instructor.POST("/alerts/batch", c.alert.ProcessBatch)
			instructor.GET("/alerts", c.alert.List)
			instructor.GET("/alerts/analytics", c.alert.Analytics)
			instructor.GET("/alerts/:id", c.alert.Get)
			instructor.POST("/alerts/:id/acknowledge", c.alert.Acknowledge)
			instructor.PATCH("/alerts/:id/status", c.alert.UpdateStatus)
			instructor.POST("/alerts/:id/feedback", c.alert.RecordFeedback)
		}
	}
}
