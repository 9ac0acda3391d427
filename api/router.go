package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/offline-mirror-go/api/handlers"
	"github.com/yourusername/offline-mirror-go/api/middleware"
	"github.com/yourusername/offline-mirror-go/internal/app"
	"github.com/yourusername/offline-mirror-go/pkg/logger"
)

// SetupRouter sets up the HTTP router
func SetupRouter(
	queueMgr *app.QueueManager,
	syncMgr *app.SyncManager,
	log *zap.Logger,
	multiLogger *logger.MultiLogger,
	logsDir string,
) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger(log, multiLogger))
	router.Use(middleware.Recovery(log, multiLogger))
	router.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(queueMgr)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		syncHandler := handlers.NewSyncHandler(queueMgr, syncMgr, log)
		sync := v1.Group("/sync")
		{
			sync.POST("/pages", syncHandler.AddPage)
			sync.POST("/attachments", syncHandler.AddAttachment)

			jobs := sync.Group("/jobs")
			jobs.GET("", syncHandler.ListJobs)
			jobs.GET("/stats", syncHandler.GetStats)
			jobs.GET("/:id", syncHandler.GetJob)
			jobs.POST("/:id/cancel", syncHandler.CancelJob)
			jobs.POST("/:id/retry", syncHandler.RetryJob)
			jobs.DELETE("/:id", syncHandler.DeleteJob)
		}

		logHandler := handlers.NewLogHandler(logsDir)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/export", logHandler.ExportLogs)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
