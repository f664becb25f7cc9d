package routes

import (
	"net/http"

	"reev-api/controllers"
	"reev-api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Controllers groups the handlers mounted by SetupRoutes.
type Controllers struct {
	SubmittingOrgs       *controllers.SubmittingOrgController
	SubmissionThreads    *controllers.SubmissionThreadController
	SubmissionActivities *controllers.SubmissionActivityController
}

func SetupRoutes(router *gin.Engine, ctl Controllers, jwtSecret string) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Health check
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"message": "REEV API is running",
			})
		})

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(jwtSecret))
		{
			orgs := protected.Group("/submittingorgs")
			{
				orgs.GET("", ctl.SubmittingOrgs.List)
				orgs.POST("", ctl.SubmittingOrgs.Create)
				orgs.GET("/:id", ctl.SubmittingOrgs.Get)
				orgs.PATCH("/:id", ctl.SubmittingOrgs.Update)
				orgs.DELETE("/:id", ctl.SubmittingOrgs.Delete)
			}

			threads := protected.Group("/submissionthreads")
			{
				threads.GET("", ctl.SubmissionThreads.List)
				threads.POST("", ctl.SubmissionThreads.Create)
				threads.GET("/:id", ctl.SubmissionThreads.Get)
				threads.PATCH("/:id", ctl.SubmissionThreads.Update)
				threads.DELETE("/:id", ctl.SubmissionThreads.Delete)

				threads.GET("/:id/activities", ctl.SubmissionActivities.ListByThread)
				threads.POST("/:id/activities", ctl.SubmissionActivities.Create)
			}

			activities := protected.Group("/submissionactivities")
			{
				activities.GET("/:id", ctl.SubmissionActivities.Get)
				activities.PATCH("/:id", ctl.SubmissionActivities.Update)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Endpoint not found"})
	})
}
