package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/offline-mirror-go/internal/app"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	queueMgr *app.QueueManager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(queueMgr *app.QueueManager) *HealthHandler {
	return &HealthHandler{
		queueMgr: queueMgr,
	}
}

// Version is reported by the health endpoint
var Version = "1.0.0"

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Queue   struct {
		Running bool  `json:"running"`
		Queued  int64 `json:"queued"`
		Active  int64 `json:"processing"`
	} `json:"queue"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	response.Queue.Running = h.queueMgr.IsRunning()

	if stats, err := h.queueMgr.GetStats(); err == nil {
		response.Queue.Queued = stats.Queued
		response.Queue.Active = stats.Processing
	} else {
		response.Status = "degraded"
	}

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.queueMgr.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "sync queue not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

