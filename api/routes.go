package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/enquira/mailtriage/api/handlers"
	"github.com/enquira/mailtriage/api/middleware"
	"github.com/enquira/mailtriage/internal/logger"
	"github.com/enquira/mailtriage/internal/repository"
	"github.com/enquira/mailtriage/internal/tracing"
	"github.com/enquira/mailtriage/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, repos *repository.Repositories, log logger.Logger, apiKey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	// Health check endpoint, no auth
	r.GET("/health", handlers.HealthCheck)

	api := r.Group("/api")
	api.Use(middleware.TracingMiddleware())
	if apiKey != "" {
		api.Use(middleware.APIKeyMiddleware(middleware.APIKeyConfig{
			HeaderName:  "X-MAILTRIAGE-API-KEY",
			ValidAPIKey: apiKey,
		}))
	}
	{
		api.GET("/logs", handlers.ListEmailLogs(repos.EmailLogRepository))
		api.GET("/logs/:id", handlers.GetEmailLog(repos.EmailLogRepository))
		api.POST("/fetch-emails", handlers.FetchEmails(s.IngestionService, log))
		api.POST("/analyze-attachments", handlers.AnalyzeAttachments(s.AnalysisService))
		api.POST("/confirm-email", handlers.ConfirmEmail(s.ConfirmationService))
	}
}
