package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	tempDir := t.TempDir()

	configPath := filepath.Join(tempDir, "config.yaml")
	configContent := `
server:
  host: "127.0.0.1"
  port: 9090
  path_prefix: "/console"

database:
  driver: "postgres"
  dsn: "postgres://console@localhost/console"

auth:
  session_duration: "12h"
  bcrypt_cost: 10

paths:
  inventory: "/srv/ansible/inventory.ini"
  playbook_dirs: ["/srv/ansible/playbooks"]
  jobs_dir_template: "/scratch/{user}/jobs"
  admin_jobs_dirs: []
  manifest_dir: "/srv/manifests"

conda:
  base_path: "/opt/conda"
  ignored_envs: ["base"]

execution:
  playbook_timeout: 60
  submit_timeout: 30
  query_timeout: 5
  use_sudo: true
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host '127.0.0.1', got '%s'", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected driver 'postgres', got '%s'", cfg.Database.Driver)
	}
	if cfg.Auth.GetSessionDuration() != 12*time.Hour {
		t.Errorf("expected session duration 12h, got %v", cfg.Auth.GetSessionDuration())
	}
	if cfg.Paths.JobsDir("alice") != "/scratch/alice/jobs" {
		t.Errorf("expected jobs dir '/scratch/alice/jobs', got '%s'", cfg.Paths.JobsDir("alice"))
	}
	if len(cfg.Paths.AdminJobsDirs) != 0 {
		t.Errorf("expected explicit empty admin_jobs_dirs to be kept, got %v", cfg.Paths.AdminJobsDirs)
	}
	if cfg.Conda.BasePath != "/opt/conda" {
		t.Errorf("expected conda base '/opt/conda', got '%s'", cfg.Conda.BasePath)
	}
	if cfg.Execution.PlaybookDuration() != time.Minute {
		t.Errorf("expected playbook timeout 1m, got %v", cfg.Execution.PlaybookDuration())
	}
	if !cfg.Execution.UseSudo {
		t.Error("expected use_sudo to be true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load default config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("expected default driver 'sqlite3', got '%s'", cfg.Database.Driver)
	}
	if cfg.Auth.BcryptCost != 12 {
		t.Errorf("expected default bcrypt cost 12, got %d", cfg.Auth.BcryptCost)
	}
	if cfg.Paths.ManifestDir != "/mnt/nfsshare/app-manifests" {
		t.Errorf("unexpected default manifest dir %q", cfg.Paths.ManifestDir)
	}
	if len(cfg.Conda.IgnoredEnvs) != 2 {
		t.Errorf("expected 2 ignored envs, got %v", cfg.Conda.IgnoredEnvs)
	}
	if cfg.Execution.QueryDuration() != 10*time.Second {
		t.Errorf("expected query timeout 10s, got %v", cfg.Execution.QueryDuration())
	}
	if cfg.Paths.JobOutput("bob") != "/home/bob/slurm-output-%j.log" {
		t.Errorf("unexpected job output pattern %q", cfg.Paths.JobOutput("bob"))
	}
}

func TestLoad_DSNFromEnvironment(t *testing.T) {
	t.Setenv(DatabaseDSNEnv, "postgres://env@db/console")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Database.DSN != "postgres://env@db/console" {
		t.Errorf("expected DSN from environment, got %q", cfg.Database.DSN)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestAuthConfig_InvalidSessionDuration(t *testing.T) {
	c := AuthConfig{SessionDuration: "soon"}
	if c.GetSessionDuration() != 7*24*time.Hour {
		t.Errorf("expected fallback of 7 days, got %v", c.GetSessionDuration())
	}
}
