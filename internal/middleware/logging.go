package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger is a middleware that logs HTTP requests.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		user := "-"
		if u := CurrentUser(c); u != nil {
			user = u.Username
		}

		log.Printf("[HTTP] %s %s %s %s %d %v",
			c.Request.Method,
			path,
			c.ClientIP(),
			user,
			c.Writer.Status(),
			time.Since(start),
		)
	}
}

// PathPrefix is a middleware that stores the path prefix in the context.
func PathPrefix(prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("path_prefix", prefix)
		c.Next()
	}
}
