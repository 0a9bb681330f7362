package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/enrollment-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "enrollment-api-service",
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	webhookHandler := handler.NewWebhookHandler(deps)
	syncHandler := handler.NewSyncHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/webhooks/payment - gateway webhook ingestion
		v1.POST("/webhooks/payment", webhookHandler.HandlePaymentWebhook)

		// POST /api/v1/sync/force - admin resync of one LMS resource
		v1.POST("/sync/force", syncHandler.ForceSync)

		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/cancel - Cancel a queued job
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)
		}
	}

	return r
}
