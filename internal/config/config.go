// Package config loads the console configuration from YAML.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseDSNEnv overrides database.dsn when set.
const DatabaseDSNEnv = "HPC_CONSOLE_DATABASE_DSN"

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Auth         AuthConfig         `yaml:"auth"`
	Admin        AdminConfig        `yaml:"admin"`
	Paths        PathsConfig        `yaml:"paths"`
	Conda        CondaConfig        `yaml:"conda"`
	Execution    ExecutionConfig    `yaml:"execution"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
}

type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	PathPrefix   string `yaml:"path_prefix"`
	SecureCookie bool   `yaml:"secure_cookie"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

type DatabaseConfig struct {
	// Driver is either "sqlite3" or "postgres".
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type AuthConfig struct {
	SessionDuration       string `yaml:"session_duration"`
	BcryptCost            int    `yaml:"bcrypt_cost"`
	MinPasswordLength     int    `yaml:"min_password_length"`
	RejectCommonPasswords bool   `yaml:"reject_common_passwords"`
}

type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"`
}

// PathsConfig locates the files the console edits.
type PathsConfig struct {
	Inventory    string   `yaml:"inventory"`
	PlaybookDirs []string `yaml:"playbook_dirs"`
	// JobsDirTemplate is expanded with {user} to the per-user job directory.
	JobsDirTemplate   string   `yaml:"jobs_dir_template"`
	AdminJobsDirs     []string `yaml:"admin_jobs_dirs"`
	JobOutputTemplate string   `yaml:"job_output_template"`
	HomeDirTemplate   string   `yaml:"home_dir_template"`
	ManifestDir       string   `yaml:"manifest_dir"`
}

type CondaConfig struct {
	BasePath    string   `yaml:"base_path"`
	IgnoredEnvs []string `yaml:"ignored_envs"`
}

// ExecutionConfig holds timeouts in seconds for external commands.
type ExecutionConfig struct {
	PlaybookTimeout int  `yaml:"playbook_timeout"`
	SubmitTimeout   int  `yaml:"submit_timeout"`
	QueryTimeout    int  `yaml:"query_timeout"`
	UseSudo         bool `yaml:"use_sudo"`
}

// ProvisioningConfig controls the host-side user lifecycle playbooks.
type ProvisioningConfig struct {
	Enabled        bool   `yaml:"enabled"`
	KeyDir         string `yaml:"key_dir"`
	CreatePlaybook string `yaml:"create_playbook"`
	RenamePlaybook string `yaml:"rename_playbook"`
	DeletePlaybook string `yaml:"delete_playbook"`
	MinUID         int    `yaml:"min_uid"`
}

func (c *AuthConfig) GetSessionDuration() time.Duration {
	d, err := time.ParseDuration(c.SessionDuration)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

func (c *ExecutionConfig) PlaybookDuration() time.Duration {
	return time.Duration(c.PlaybookTimeout) * time.Second
}

func (c *ExecutionConfig) SubmitDuration() time.Duration {
	return time.Duration(c.SubmitTimeout) * time.Second
}

func (c *ExecutionConfig) QueryDuration() time.Duration {
	return time.Duration(c.QueryTimeout) * time.Second
}

// JobsDir returns the job script directory for username.
func (c *PathsConfig) JobsDir(username string) string {
	return strings.ReplaceAll(c.JobsDirTemplate, "{user}", username)
}

// HomeDir returns the home directory for username.
func (c *PathsConfig) HomeDir(username string) string {
	return strings.ReplaceAll(c.HomeDirTemplate, "{user}", username)
}

// JobOutput returns the sbatch --output pattern for username.
func (c *PathsConfig) JobOutput(username string) string {
	return strings.ReplaceAll(c.JobOutputTemplate, "{user}", username)
}

// Load reads the YAML file at path. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	if dsn := os.Getenv(DatabaseDSNEnv); dsn != "" {
		cfg.Database.DSN = dsn
	}

	setDefaults(&cfg)

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite3"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/console.db"
	}
	if cfg.Auth.SessionDuration == "" {
		cfg.Auth.SessionDuration = "168h"
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = 12
	}
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = "admin"
	}
	if cfg.Admin.Password == "" {
		cfg.Admin.Password = "changeme"
	}
	if cfg.Admin.Email == "" {
		cfg.Admin.Email = cfg.Admin.Username + "@localhost"
	}

	home, _ := os.UserHomeDir()
	if cfg.Paths.Inventory == "" {
		cfg.Paths.Inventory = home + "/ansible_quickstart/inventory.ini"
	}
	if len(cfg.Paths.PlaybookDirs) == 0 {
		cfg.Paths.PlaybookDirs = []string{
			home + "/ansible_quickstart/playbooks",
			"/root/ansible_quickstart/playbooks",
		}
	}
	if cfg.Paths.JobsDirTemplate == "" {
		cfg.Paths.JobsDirTemplate = "/home/{user}/slurm_jobs"
	}
	if cfg.Paths.AdminJobsDirs == nil {
		cfg.Paths.AdminJobsDirs = []string{"/root/slurm_jobs"}
	}
	if cfg.Paths.JobOutputTemplate == "" {
		cfg.Paths.JobOutputTemplate = "/home/{user}/slurm-output-%j.log"
	}
	if cfg.Paths.HomeDirTemplate == "" {
		cfg.Paths.HomeDirTemplate = "/home/{user}"
	}
	if cfg.Paths.ManifestDir == "" {
		cfg.Paths.ManifestDir = "/mnt/nfsshare/app-manifests"
	}

	if cfg.Conda.BasePath == "" {
		cfg.Conda.BasePath = "/mnt/nfsshare/miniforge3"
	}
	if cfg.Conda.IgnoredEnvs == nil {
		cfg.Conda.IgnoredEnvs = []string{"miniforge3", "base"}
	}

	if cfg.Execution.PlaybookTimeout == 0 {
		cfg.Execution.PlaybookTimeout = 1800
	}
	if cfg.Execution.SubmitTimeout == 0 {
		cfg.Execution.SubmitTimeout = 1800
	}
	if cfg.Execution.QueryTimeout == 0 {
		cfg.Execution.QueryTimeout = 10
	}

	if cfg.Provisioning.KeyDir == "" {
		cfg.Provisioning.KeyDir = os.TempDir()
	}
	if cfg.Provisioning.CreatePlaybook == "" {
		cfg.Provisioning.CreatePlaybook = "create_user.yml"
	}
	if cfg.Provisioning.RenamePlaybook == "" {
		cfg.Provisioning.RenamePlaybook = "rename_user.yml"
	}
	if cfg.Provisioning.DeletePlaybook == "" {
		cfg.Provisioning.DeletePlaybook = "delete_user.yml"
	}
	if cfg.Provisioning.MinUID == 0 {
		cfg.Provisioning.MinUID = 1001
	}
}
