package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/hpc-console/internal/models"
)

// AuditRecorder stores audit entries.
type AuditRecorder interface {
	Log(ctx context.Context, entry models.AuditLog)
}

// Audit records every state-changing request made by an authenticated user,
// after the handler has run. It must run after AuthRequired.
func Audit(recorder AuditRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			return
		}
		user := CurrentUser(c)
		if user == nil {
			return
		}

		resourceType, action := auditTarget(c.Request.Method, c.FullPath())
		resourceID := c.Param("filename")
		if resourceID == "" {
			resourceID = c.Param("id")
		}

		recorder.Log(c.Request.Context(), models.AuditLog{
			UserID:       &user.ID,
			Username:     user.Username,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.ClientIP(),
			Status:       c.Writer.Status(),
		})
	}
}

// auditTarget derives the resource and action from a route pattern such as
// "/api/playbooks/:filename". A fixed trailing segment on a POST route names
// the action, as in "/api/jobs/submit".
func auditTarget(method, route string) (resourceType, action string) {
	if i := strings.Index(route, "/api/"); i >= 0 {
		route = route[i+len("/api/"):]
	}
	segments := strings.Split(strings.Trim(route, "/"), "/")
	resourceType = segments[0]

	switch method {
	case http.MethodPost:
		action = "create"
		if last := segments[len(segments)-1]; len(segments) > 1 && !strings.HasPrefix(last, ":") {
			action = last
		}
	case http.MethodPut, http.MethodPatch:
		action = "update"
	case http.MethodDelete:
		action = "delete"
	default:
		action = strings.ToLower(method)
	}
	return resourceType, action
}
