package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/hpc-console/internal/inventory"
	"github.com/pandeptwidyaop/hpc-console/internal/manifest"
	"github.com/pandeptwidyaop/hpc-console/internal/runner"
	"github.com/pandeptwidyaop/hpc-console/internal/services"
)

var (
	notFoundErrors = []error{
		inventory.ErrNotFound,
		manifest.ErrNotFound,
		services.ErrAppNotFound,
		services.ErrPlaybookNotFound,
		services.ErrJobNotFound,
		services.ErrUserNotFound,
	}
	badRequestErrors = []error{
		inventory.ErrInvalidHost,
		inventory.ErrInvalidGroup,
		services.ErrInvalidYAML,
		services.ErrInvalidRequest,
	}
	conflictErrors = []error{
		inventory.ErrGroupExists,
		inventory.ErrHostExists,
		services.ErrPlaybookExists,
		services.ErrJobExists,
		services.ErrUserExists,
		services.ErrAppExists,
	}
)

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// errorStatus maps a service error to its HTTP status code.
func errorStatus(err error) int {
	switch {
	case isAny(err, notFoundErrors):
		return http.StatusNotFound
	case isAny(err, badRequestErrors):
		return http.StatusBadRequest
	case isAny(err, conflictErrors):
		return http.StatusConflict
	case errors.Is(err, runner.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrSchedulerFailed), errors.Is(err, services.ErrProvisioningFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body.
func respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// bindJSON binds the request body into req, answering 400 on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
