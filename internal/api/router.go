package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "meetcorrect/docs"
	"meetcorrect/internal/auth"
	"meetcorrect/pkg/logger"
	"meetcorrect/pkg/middleware"
)

// SetupRoutes wires the full route table. Middleware ordering (recovery,
// then custom logger, then compression, then CORS) is the teacher's.
func SetupRoutes(handler *Handler, authService *auth.Service) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	logger.SetGinOutput()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinLogger())
	router.Use(middleware.CompressionMiddleware())

	router.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowOrigin := "*"
		if handler.config.IsProduction() && len(handler.config.AllowedOrigins) > 0 {
			allowOrigin = ""
			for _, allowed := range handler.config.AllowedOrigins {
				if origin == allowed {
					allowOrigin = origin
					break
				}
			}
		} else if origin != "" {
			allowOrigin = origin
		}

		if allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	router.GET("/health", handler.HealthCheck)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.GET("/registration-status", handler.GetRegistrationStatus)
			authGroup.POST("/register", handler.Register)
			authGroup.POST("/login", handler.Login)
			authGroup.POST("/logout", handler.Logout)
		}

		meetings := v1.Group("/meetings")
		meetings.Use(middleware.AuthMiddleware(authService, handler.apiKeys))
		{
			meetings.POST("", handler.CreateMeeting)
			meetings.GET("", handler.ListMeetings)
			meetings.GET("/:id", handler.GetMeeting)
			meetings.POST("/:id/answers", handler.AnswerQuestions)
			meetings.POST("/:id/retranscribe", handler.RetranscribeSegments)
			meetings.POST("/:id/heartbeat", handler.Heartbeat)
			meetings.GET("/stuck", handler.ListStuckMeetings)
			meetings.POST("/:id/requeue", handler.RequeueMeeting)
		}

		events := v1.Group("/events")
		events.Use(middleware.AuthMiddleware(authService, handler.apiKeys))
		{
			events.GET("", handler.Events)
		}

		stats := v1.Group("/stats")
		stats.Use(middleware.AuthMiddleware(authService, handler.apiKeys))
		{
			stats.GET("", handler.GetPipelineStats)
		}
	}

	return router
}
