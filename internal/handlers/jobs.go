package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/hpc-console/internal/middleware"
	"github.com/pandeptwidyaop/hpc-console/internal/models"
	"github.com/pandeptwidyaop/hpc-console/internal/services"
)

// JobHandler manages batch job scripts and talks to the scheduler.
type JobHandler struct {
	jobService *services.JobService
}

// NewJobHandler creates a new JobHandler instance.
func NewJobHandler(jobService *services.JobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

func (h *JobHandler) List(c *gin.Context) {
	jobs, err := h.jobService.List(middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *JobHandler) Get(c *gin.Context) {
	content, err := h.jobService.Get(middleware.CurrentUser(c), c.Param("filename"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

func (h *JobHandler) Create(c *gin.Context) {
	var req models.SaveScriptRequest
	if !bindJSON(c, &req) {
		return
	}

	saved, err := h.jobService.Save(middleware.CurrentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (h *JobHandler) Update(c *gin.Context) {
	var req models.SaveScriptRequest
	if !bindJSON(c, &req) {
		return
	}
	req.OriginalFilename = c.Param("filename")

	saved, err := h.jobService.Update(middleware.CurrentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *JobHandler) Delete(c *gin.Context) {
	deleted, err := h.jobService.Delete(middleware.CurrentUser(c), c.Param("filename"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deleted)
}

// Submit hands a job script to the scheduler with the selected
// applications injected.
func (h *JobHandler) Submit(c *gin.Context) {
	var req models.SubmitJobRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.jobService.Submit(c.Request.Context(), middleware.CurrentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Accounting returns the sacct report of a job.
func (h *JobHandler) Accounting(c *gin.Context) {
	jobID := c.Param("id")
	out, err := h.jobService.Accounting(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "output": out})
}

// Queue returns the scheduler queue.
func (h *JobHandler) Queue(c *gin.Context) {
	out, err := h.jobService.Queue(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"output": out})
}
