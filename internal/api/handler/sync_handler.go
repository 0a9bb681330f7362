package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/enrollment-be/internal/api/dto"
	"github.com/learnhub/enrollment-be/internal/domain"
)

var forceSyncKinds = map[string]domain.JobKind{
	"users":       domain.KindForceSyncUsers,
	"courses":     domain.KindForceSyncCourses,
	"enrollments": domain.KindForceSyncEnrollments,
}

// ForceSync handles POST /api/v1/sync/force
// Queues an admin-requested resynchronization of one LMS resource.
func (h *SyncHandler) ForceSync(c *gin.Context) {
	var req dto.ForceSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "target is required (users, courses or enrollments)",
		})
		return
	}

	kind, ok := forceSyncKinds[req.Target]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown sync target: " + req.Target,
		})
		return
	}

	jobID, err := h.syncQueue.EnqueueForceSync(c.Request.Context(), kind)
	if err != nil {
		h.logger.Error("Failed to enqueue force sync",
			slog.String("target", req.Target),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to queue sync",
		})
		return
	}

	h.logger.Info("Force sync queued",
		slog.String("target", req.Target),
		slog.String("job_id", jobID),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"status": "queued",
		"target": req.Target,
		"job_id": jobID,
	})
}
