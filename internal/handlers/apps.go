package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/hpc-console/internal/middleware"
	"github.com/pandeptwidyaop/hpc-console/internal/services"
)

// ApplicationHandler serves the application catalog.
type ApplicationHandler struct {
	appService *services.ApplicationService
}

// NewApplicationHandler creates a new ApplicationHandler instance.
func NewApplicationHandler(appService *services.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{appService: appService}
}

// List returns the manifests visible to the current user.
func (h *ApplicationHandler) List(c *gin.Context) {
	apps, err := h.appService.ListForUser(middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, apps)
}

// TestFiles returns the sample input files of one application.
func (h *ApplicationHandler) TestFiles(c *gin.Context) {
	app, err := h.appService.FindForUser(middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"application": app.ID,
		"test_files":  app.TestFiles,
	})
}

// CondaEnvironments lists the conda environments available for manifests.
func (h *ApplicationHandler) CondaEnvironments(c *gin.Context) {
	envs, err := h.appService.Catalog().CondaEnvironments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"environments": envs})
}

// Sync reconciles the manifest directory into the database.
func (h *ApplicationHandler) Sync(c *gin.Context) {
	result, err := h.appService.Sync(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}
