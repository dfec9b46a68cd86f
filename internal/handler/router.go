package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
	"github.com/DarkSword404/CTF-Platform/internal/middleware"
	"github.com/DarkSword404/CTF-Platform/internal/service"
)

// Services bundles everything the HTTP layer calls into
type Services struct {
	Users       *service.UserService
	Challenges  *service.ChallengeService
	Submissions *service.SubmissionService
	Containers  *service.ContainerService
	AI          *service.AIService
	Providers   *service.ProviderService
	Admin       *service.AdminService
}

// RouterOptions carries the cross-cutting pieces of the router
type RouterOptions struct {
	CORS           infrastructure.CORSConfig
	Tracer         trace.Tracer
	Metrics        *infrastructure.TelemetryMetrics
	MetricsHandler http.Handler
	HealthCheck    func(ctx context.Context) error
	Version        string
}

// NewRouter wires middleware and every API route
func NewRouter(services Services, opts RouterOptions, logger *zap.Logger) *gin.Engine {
	authHandler := NewAuthHandler(services.Users, logger)
	userHandler := NewUserHandler(services.Users, logger)
	challengeHandler := NewChallengeHandler(services.Challenges, logger)
	playHandler := NewPlayHandler(services.Submissions, services.Containers, logger)
	aiHandler := NewAIHandler(services.AI, logger)
	adminHandler := NewAdminHandler(services.Admin, services.Providers, services.Containers, logger)

	router := gin.New()

	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.CORSMiddleware(opts.CORS))
	if opts.Tracer != nil {
		router.Use(middleware.TracingMiddleware(opts.Tracer))
	}
	router.Use(middleware.MetricsMiddleware(opts.Metrics))

	router.GET("/health", func(c *gin.Context) {
		if opts.HealthCheck != nil {
			if err := opts.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  "database connection failed",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": opts.Version,
		})
	})

	if opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
		}

		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(services.Users))
		{
			users := protected.Group("/users/me")
			{
				users.GET("", userHandler.GetCurrentUser)
				users.PUT("", userHandler.UpdateCurrentUser)
				users.PUT("/password", userHandler.ChangePassword)
				users.GET("/solves", userHandler.GetSolves)
			}

			challenges := protected.Group("/challenges")
			{
				challenges.GET("", challengeHandler.GetChallenges)
				challenges.GET("/categories", challengeHandler.GetCategories)
				challenges.GET("/difficulties", challengeHandler.GetDifficulties)
				challenges.POST("", middleware.RequireRoles(domain.RoleChallenger, domain.RoleAdmin), challengeHandler.CreateChallenge)
				challenges.GET("/:id", challengeHandler.GetChallenge)
				challenges.PUT("/:id", challengeHandler.UpdateChallenge)
				challenges.DELETE("/:id", challengeHandler.DeleteChallenge)
				challenges.POST("/:id/submit-review", challengeHandler.SubmitForReview)
				challenges.POST("/:id/submit", playHandler.SubmitFlag)
				challenges.POST("/:id/start", playHandler.StartInstance)
				challenges.POST("/:id/stop", playHandler.StopInstance)
			}

			protected.GET("/instances", playHandler.GetInstances)
			protected.GET("/scoreboard", playHandler.GetScoreboard)

			generation := protected.Group("/ai")
			generation.Use(middleware.RequireRoles(domain.RoleChallenger, domain.RoleAdmin))
			{
				generation.GET("/providers", aiHandler.GetProviders)
				generation.POST("/generate-challenge", aiHandler.GenerateChallenge)
				generation.POST("/generate-flag", aiHandler.GenerateFlag)
				generation.POST("/generate-text", aiHandler.GenerateText)
				generation.GET("/generation-history", aiHandler.GetGenerationHistory)
			}

			admin := protected.Group("/admin")
			admin.Use(middleware.RequireRoles(domain.RoleAdmin))
			{
				admin.GET("/users", adminHandler.GetUsers)
				admin.PUT("/users/:id", adminHandler.UpdateUser)
				admin.DELETE("/users/:id", adminHandler.DeleteUser)

				admin.POST("/challenges/:id/review", challengeHandler.ReviewChallenge)
				admin.PUT("/challenges/:id/status", challengeHandler.SetStatus)

				admin.GET("/statistics", adminHandler.GetStatistics)

				admin.GET("/ai/logs", adminHandler.GetCallLogs)
				admin.GET("/ai/usage-stats", adminHandler.GetUsageStats)
				admin.GET("/ai/providers", adminHandler.GetProviders)
				admin.POST("/ai/providers", adminHandler.CreateProvider)
				admin.POST("/ai/providers/init-defaults", adminHandler.InitDefaultProviders)
				admin.PUT("/ai/providers/:id", adminHandler.UpdateProvider)
				admin.DELETE("/ai/providers/:id", adminHandler.DeleteProvider)
				admin.POST("/ai/providers/:id/test", adminHandler.TestProvider)

				admin.GET("/containers", adminHandler.GetContainers)
				admin.POST("/containers/cleanup", adminHandler.CleanupContainers)
			}
		}
	}

	return router
}
