// Package middleware provides the gin middleware chain: request logging,
// session authentication, role checks, security headers and body limits.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/hpc-console/internal/models"
	"github.com/pandeptwidyaop/hpc-console/internal/services"
)

const (
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session_id"
	// UserContextKey is the key for storing user in request context.
	UserContextKey = "user"
)

// SessionValidator resolves a session cookie to its user.
type SessionValidator interface {
	ValidateSession(sessionID string) (*models.User, error)
}

// AuthRequired is a middleware that requires a valid session cookie.
func AuthRequired(sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(SessionCookieName)
		if err != nil || sessionID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		user, err := sessions.ValidateSession(sessionID)
		if err != nil {
			c.SetCookie(SessionCookieName, "", -1, CookiePath(c), "", false, true)
			msg := "unauthorized"
			if err == services.ErrSessionExpired {
				msg = "session expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(UserContextKey, user)
		c.Next()
	}
}

// AdminRequired rejects users without the admin role. It must run after
// AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := c.Get(UserContextKey)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if u, ok := user.(*models.User); !ok || !u.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user stored by AuthRequired.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(UserContextKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// CookiePath returns the path session cookies are scoped to.
func CookiePath(c *gin.Context) string {
	if prefix := strings.TrimSuffix(c.GetString("path_prefix"), "/"); prefix != "" {
		return prefix
	}
	return "/"
}
