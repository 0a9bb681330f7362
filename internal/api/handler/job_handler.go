package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/enrollment-be/internal/api/dto"
	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/queue"
)

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves detailed information about a specific job
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id is required",
		})
		return
	}

	job, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, jobToDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := queue.JobFilter{
		Queue:    req.Queue,
		Kind:     req.Kind,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i, job := range jobs {
		jobResponse[i] = jobToDTO(&job)
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		cursorObj := queue.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.JobID,
		}
		nextCursor, err = EncodeJobCursor(&cursorObj)
		if err != nil {
			h.logger.Error("Failed to encode next cursor", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to encode next cursor",
			})
			return
		}
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Cancels a queued-but-not-started job. Running and terminal jobs refuse
// cancellation.
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id is required",
		})
		return
	}

	canceled, err := h.jobs.CancelJob(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to cancel job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel job",
		})
		return
	}

	if !canceled {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Job is not in a cancelable state",
		})
		return
	}

	h.logger.Info("Job canceled", slog.String("job_id", jobID))

	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"status": domain.JobStatusCanceled,
	})
}

func jobToDTO(job *domain.Job) dto.JobDTO {
	return dto.JobDTO{
		JobID:        job.JobID,
		Queue:        job.Queue,
		Kind:         string(job.Kind),
		Payload:      job.Payload,
		Priority:     job.Priority,
		Status:       job.Status,
		AttemptsMade: job.AttemptsMade,
		MaxAttempts:  job.MaxAttempts,
		Progress:     job.Progress,
		Result:       rawJSON(job.Result),
		LastError:    derefString(job.LastError),
		RepeatKey:    derefString(job.RepeatKey),
		RunAt:        formatTimePtr(job.RunAt),
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
	}
}
