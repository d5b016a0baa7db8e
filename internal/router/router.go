// Package router wires handlers and middleware into the gin engine.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/hpc-console/internal/config"
	"github.com/pandeptwidyaop/hpc-console/internal/handlers"
	"github.com/pandeptwidyaop/hpc-console/internal/inventory"
	"github.com/pandeptwidyaop/hpc-console/internal/middleware"
	"github.com/pandeptwidyaop/hpc-console/internal/services"
)

// Services bundles the components the API is served from.
type Services struct {
	Auth      *services.AuthService
	Users     *services.UserService
	Apps      *services.ApplicationService
	Playbooks *services.PlaybookService
	Jobs      *services.JobService
	Inventory *inventory.Store
	Audit     *services.AuditService
}

const (
	loginAttempts = 10
	loginWindow   = time.Minute
)

func New(cfg *config.Config, svc Services) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.PathPrefix(cfg.Server.PathPrefix))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodySizeLimit(cfg.Server.MaxBodyBytes))

	authHandler := handlers.NewAuthHandler(svc.Auth, svc.Users, cfg.Server.SecureCookie)
	userHandler := handlers.NewUserHandler(svc.Users)
	appHandler := handlers.NewApplicationHandler(svc.Apps)
	hostHandler := handlers.NewHostHandler(svc.Inventory)
	playbookHandler := handlers.NewPlaybookHandler(svc.Playbooks)
	jobHandler := handlers.NewJobHandler(svc.Jobs)
	auditHandler := handlers.NewAuditHandler(svc.Audit)
	versionHandler := handlers.NewVersionHandler()

	loginLimiter := middleware.NewRateLimiter(loginAttempts, loginWindow)

	api := r.Group(cfg.Server.PathPrefix + "/api")
	{
		api.GET("/version", versionHandler.Get)

		api.POST("/auth/login", loginLimiter.Middleware(), authHandler.Login)
		api.POST("/auth/logout", authHandler.Logout)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(svc.Auth))
		protected.Use(middleware.Audit(svc.Audit))
		{
			protected.GET("/auth/profile", authHandler.Profile)
			protected.PUT("/auth/profile", authHandler.UpdateProfile)

			protected.GET("/applications", appHandler.List)
			protected.GET("/applications/:id/test-files", appHandler.TestFiles)

			protected.GET("/hosts", hostHandler.List)

			protected.GET("/playbooks", playbookHandler.List)
			protected.POST("/playbooks", playbookHandler.Create)
			protected.GET("/playbooks/:filename", playbookHandler.Get)
			protected.PUT("/playbooks/:filename", playbookHandler.Update)
			protected.DELETE("/playbooks/:filename", playbookHandler.Delete)
			protected.POST("/playbooks/execute", playbookHandler.Execute)

			protected.GET("/jobs", jobHandler.List)
			protected.POST("/jobs", jobHandler.Create)
			protected.GET("/jobs/:filename", jobHandler.Get)
			protected.PUT("/jobs/:filename", jobHandler.Update)
			protected.DELETE("/jobs/:filename", jobHandler.Delete)
			protected.POST("/jobs/submit", jobHandler.Submit)
			protected.GET("/scheduler/queue", jobHandler.Queue)
			protected.GET("/scheduler/jobs/:id", jobHandler.Accounting)

			admin := protected.Group("")
			admin.Use(middleware.AdminRequired())
			{
				admin.POST("/hosts", hostHandler.AddHost)
				admin.DELETE("/hosts", hostHandler.RemoveHost)
				admin.POST("/groups", hostHandler.AddGroup)
				admin.DELETE("/groups", hostHandler.RemoveGroup)

				admin.GET("/conda/environments", appHandler.CondaEnvironments)
				admin.POST("/applications/sync", appHandler.Sync)

				admin.GET("/users", userHandler.List)
				admin.POST("/users", userHandler.Create)
				admin.GET("/users/:id", userHandler.Get)
				admin.PUT("/users/:id", userHandler.Update)
				admin.DELETE("/users/:id", userHandler.Delete)

				admin.GET("/audit-logs", auditHandler.List)
			}
		}
	}

	if cfg.Server.PathPrefix != "" && cfg.Server.PathPrefix != "/" {
		r.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusFound, cfg.Server.PathPrefix+"/api/version")
		})
	}

	return r
}
