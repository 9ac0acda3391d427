package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/offline-mirror-go/internal/app"
	"github.com/yourusername/offline-mirror-go/internal/domain"
)

// SyncHandler handles sync job HTTP requests
type SyncHandler struct {
	queueMgr *app.QueueManager
	syncMgr  *app.SyncManager
	logger   *zap.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(queueMgr *app.QueueManager, syncMgr *app.SyncManager, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		queueMgr: queueMgr,
		syncMgr:  syncMgr,
		logger:   logger,
	}
}

// AddPageRequest represents a request to mirror an HTML resource
type AddPageRequest struct {
	CourseID   string `json:"course_id" binding:"required"`
	ResourceID string `json:"resource_id" binding:"required"`
	Section    string `json:"section" binding:"required"`
	BaseURL    string `json:"base_url,omitempty"`
	HTML       string `json:"html"`
}

// AddAttachmentRequest represents a request to mirror one file
type AddAttachmentRequest struct {
	CourseID   string `json:"course_id" binding:"required"`
	ResourceID string `json:"resource_id" binding:"required"`
	Section    string `json:"section" binding:"required"`
	URL        string `json:"url" binding:"required"`
}

// AddPage handles POST /api/v1/sync/pages
func (h *SyncHandler) AddPage(c *gin.Context) {
	var req AddPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.queueMgr.AddPageJob(req.CourseID, req.ResourceID, domain.Section(req.Section), req.BaseURL, req.HTML)
	if err != nil {
		h.respondError(c, "Failed to add page job", err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// AddAttachment handles POST /api/v1/sync/attachments
func (h *SyncHandler) AddAttachment(c *gin.Context) {
	var req AddAttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.queueMgr.AddAttachmentJob(req.CourseID, req.ResourceID, domain.Section(req.Section), req.URL)
	if err != nil {
		h.respondError(c, "Failed to add attachment job", err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// GetJob handles GET /api/v1/sync/jobs/:id
func (h *SyncHandler) GetJob(c *gin.Context) {
	job, err := h.queueMgr.GetJob(c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to get job", err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/v1/sync/jobs
func (h *SyncHandler) ListJobs(c *gin.Context) {
	filters := make(map[string]interface{})
	for _, key := range []string{"status", "kind", "course_id", "section"} {
		if value := c.Query(key); value != "" {
			filters[key] = value
		}
	}

	jobs, err := h.queueMgr.ListJobs(filters)
	if err != nil {
		h.respondError(c, "Failed to list jobs", err)
		return
	}
	if jobs == nil {
		jobs = []*domain.SyncJob{}
	}

	c.JSON(http.StatusOK, jobs)
}

// GetStats handles GET /api/v1/sync/jobs/stats
func (h *SyncHandler) GetStats(c *gin.Context) {
	stats, err := h.queueMgr.GetStats()
	if err != nil {
		h.respondError(c, "Failed to get stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CancelJob handles POST /api/v1/sync/jobs/:id/cancel
func (h *SyncHandler) CancelJob(c *gin.Context) {
	if err := h.syncMgr.CancelJob(c.Param("id")); err != nil {
		h.respondError(c, "Failed to cancel job", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job cancelled"})
}

// RetryJob handles POST /api/v1/sync/jobs/:id/retry
func (h *SyncHandler) RetryJob(c *gin.Context) {
	if err := h.syncMgr.RetryJob(c.Param("id")); err != nil {
		h.respondError(c, "Failed to retry job", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job queued for retry"})
}

// DeleteJob handles DELETE /api/v1/sync/jobs/:id
func (h *SyncHandler) DeleteJob(c *gin.Context) {
	if err := h.syncMgr.DeleteJob(c.Param("id")); err != nil {
		h.respondError(c, "Failed to delete job", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "job deleted"})
}

// respondError maps domain errors onto HTTP status codes
func (h *SyncHandler) respondError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidJob), errors.Is(err, domain.ErrInvalidURL):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrJobState):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("id", c.Param("id")), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
