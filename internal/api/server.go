package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates the HTTP server with all routes configured
func NewServer(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS for the admin frontend
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler)

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler) {
	api := r.Group("/api")
	{
		api.POST("/import/submit", handler.SubmitImport)
		api.POST("/import/check-duplicates", handler.CheckDuplicates)
		api.POST("/import/reject", handler.RejectURL)
		api.POST("/import/unreject", handler.UnrejectURL)
		api.POST("/import/bulk", handler.BulkImport)
		api.GET("/import/progress", handler.ImportProgress)

		api.GET("/jobs", handler.ListJobs)

		api.GET("/workbench", handler.GetWorkbench)
		api.PATCH("/workbench/:tempId", handler.UpdateRecord)
		api.POST("/workbench/:tempId/select", handler.SelectRecord)
		api.POST("/workbench/:tempId/reject", handler.RejectRecord)
		api.POST("/workbench/:tempId/restore", handler.RestoreRecord)
		api.POST("/workbench/:tempId/import", handler.ImportRecord)

		api.POST("/events", handler.CreateEvent)
		api.GET("/events", handler.ListEvents)

		api.GET("/health", handler.HealthCheck)
	}

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}
