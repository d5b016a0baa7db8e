// Package main is the entry point for the HPC Console server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pandeptwidyaop/hpc-console/internal/config"
	"github.com/pandeptwidyaop/hpc-console/internal/database"
	"github.com/pandeptwidyaop/hpc-console/internal/inventory"
	"github.com/pandeptwidyaop/hpc-console/internal/manifest"
	"github.com/pandeptwidyaop/hpc-console/internal/router"
	"github.com/pandeptwidyaop/hpc-console/internal/runner"
	"github.com/pandeptwidyaop/hpc-console/internal/service"
	"github.com/pandeptwidyaop/hpc-console/internal/services"
	"github.com/pandeptwidyaop/hpc-console/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	command := flag.Arg(0)
	switch command {
	case "version":
		fmt.Println(version.String())
		return
	case "install-service", "uninstall-service", "service-status":
		if err := manageService(command, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", command, err)
			os.Exit(1)
		}
		return
	case "", "serve", "sync-apps":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		fmt.Fprintln(os.Stderr, "usage: hpc-console [-config path] [serve|sync-apps|version|install-service|uninstall-service|service-status]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Warning: Could not load config from %s: %v", *configPath, err)
		log.Println("Using default configuration...")
		cfg, _ = config.Load("")
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	run := runner.New()
	catalog := manifest.NewCatalog(cfg.Paths.ManifestDir, cfg.Conda, run)
	appService := services.NewApplicationService(db, catalog)

	if command == "sync-apps" {
		result, err := appService.Sync(context.Background())
		if err != nil {
			log.Fatalf("Application sync failed: %v", err)
		}
		fmt.Printf("inserted=%d updated=%d deleted=%d discarded=%d\n",
			len(result.Inserted), len(result.Updated), len(result.Deleted), len(result.Discarded))
		return
	}

	if err := ensureDirectories(cfg); err != nil {
		log.Fatalf("Failed to prepare directories: %v", err)
	}

	authService := services.NewAuthService(db, cfg)
	if err := authService.EnsureAdminUser(); err != nil {
		log.Fatalf("Failed to ensure admin user: %v", err)
	}
	if err := authService.CleanExpiredSessions(); err != nil {
		log.Printf("Warning: Could not clean expired sessions: %v", err)
	}

	if _, err := appService.Sync(context.Background()); err != nil {
		log.Printf("Warning: Application sync failed: %v", err)
	}

	var provisioner *services.Provisioner
	if cfg.Provisioning.Enabled {
		provisioner = services.NewProvisioner(cfg, run)
	}

	store := inventory.NewStore(cfg.Paths.Inventory)
	r := router.New(cfg, router.Services{
		Auth:      authService,
		Users:     services.NewUserService(db, authService, provisioner),
		Apps:      appService,
		Playbooks: services.NewPlaybookService(cfg, run, store),
		Jobs:      services.NewJobService(cfg, run, appService),
		Inventory: store,
		Audit:     services.NewAuditService(db),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("%s starting on %s", version.String(), addr)
		log.Printf("API at: http://%s%s/api", addr, cfg.Server.PathPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}

// ensureDirectories creates the playbook and manifest directories and the
// directory holding the inventory file.
func ensureDirectories(cfg *config.Config) error {
	dirs := []string{cfg.Paths.ManifestDir, filepath.Dir(cfg.Paths.Inventory)}
	if len(cfg.Paths.PlaybookDirs) > 0 {
		dirs = append(dirs, cfg.Paths.PlaybookDirs[0])
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func manageService(command, configPath string) error {
	m := service.NewManager(runner.New())
	ctx := context.Background()

	switch command {
	case "install-service":
		if err := m.Install(ctx, service.DefaultConfig(configPath)); err != nil {
			return err
		}
		fmt.Println("Service installed and started")
	case "uninstall-service":
		if err := m.Uninstall(ctx); err != nil {
			return err
		}
		fmt.Println("Service removed")
	case "service-status":
		status, err := m.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("installed=%t enabled=%t running=%t state=%s/%s\n",
			status.IsInstalled, status.IsEnabled, status.IsRunning, status.ActiveState, status.SubState)
	}
	return nil
}
