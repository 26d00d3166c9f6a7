package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailscope/api/handlers"
	"github.com/customeros/mailscope/api/middleware"
	"github.com/customeros/mailscope/internal/tracing"
	"github.com/customeros/mailscope/internal/utils"
	"github.com/customeros/mailscope/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	r.GET("/health", handlers.HealthCheck(s.Pool))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  middleware.APIKeyHeader,
		ValidAPIKey: apikey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware(utils.AppSourceMailscope))
	api.Use(middleware.TracingMiddleware())
	{
		accounts := api.Group("/accounts/:id")
		{
			accounts.POST("/sync", handlers.StartSync(s.SyncService))
			accounts.GET("/sync", handlers.GetSyncStatus(s.SyncService))
			accounts.POST("/sync/pause", handlers.PauseSync(s.SyncService))
			accounts.POST("/sync/resume", handlers.ResumeSync(s.SyncService))
			accounts.POST("/sync/stop", handlers.StopSync(s.SyncService))
			accounts.GET("/messages/:messageId/raw", handlers.GetRawMessage(s.Storage))
		}

		api.POST("/sync/start-all", handlers.StartAllSyncs(s.SyncService))
	}
}
