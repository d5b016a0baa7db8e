package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/hpc-console/internal/middleware"
	"github.com/pandeptwidyaop/hpc-console/internal/models"
	"github.com/pandeptwidyaop/hpc-console/internal/services"
)

// PlaybookHandler manages playbooks and runs them.
type PlaybookHandler struct {
	playbookService *services.PlaybookService
}

// NewPlaybookHandler creates a new PlaybookHandler instance.
func NewPlaybookHandler(playbookService *services.PlaybookService) *PlaybookHandler {
	return &PlaybookHandler{playbookService: playbookService}
}

func (h *PlaybookHandler) List(c *gin.Context) {
	playbooks, err := h.playbookService.List(middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, playbooks)
}

func (h *PlaybookHandler) Get(c *gin.Context) {
	content, err := h.playbookService.Get(middleware.CurrentUser(c), c.Param("filename"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

func (h *PlaybookHandler) Create(c *gin.Context) {
	var req models.SaveScriptRequest
	if !bindJSON(c, &req) {
		return
	}

	saved, err := h.playbookService.Save(middleware.CurrentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// Update rewrites the playbook named in the path. A different name in the
// body renames it.
func (h *PlaybookHandler) Update(c *gin.Context) {
	var req models.SaveScriptRequest
	if !bindJSON(c, &req) {
		return
	}
	req.OriginalFilename = c.Param("filename")

	saved, err := h.playbookService.Update(middleware.CurrentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *PlaybookHandler) Delete(c *gin.Context) {
	deleted, err := h.playbookService.Delete(middleware.CurrentUser(c), c.Param("filename"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deleted)
}

// Execute runs a playbook and returns its transcript. A playbook that ran
// but failed is still a 200 with success false.
func (h *PlaybookHandler) Execute(c *gin.Context) {
	var req models.ExecutePlaybookRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.playbookService.Execute(c.Request.Context(), middleware.CurrentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
