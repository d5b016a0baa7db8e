// Package service installs the console as a systemd unit.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/pandeptwidyaop/hpc-console/internal/runner"
)

const (
	serviceName     = "hpc-console"
	serviceFilePath = "/etc/systemd/system/hpc-console.service"
)

// ErrUnsupported is returned when systemd cannot be managed from this host.
var ErrUnsupported = errors.New("systemd service management is only supported on Linux as root")

// ServiceStatus represents the status of the systemd service.
type ServiceStatus struct {
	IsRunning   bool   `json:"is_running"`
	IsEnabled   bool   `json:"is_enabled"`
	IsInstalled bool   `json:"is_installed"`
	ActiveState string `json:"active_state"`
	SubState    string `json:"sub_state"`
}

// ServiceConfig holds configuration for service installation.
type ServiceConfig struct {
	ExecPath   string
	ConfigPath string
	User       string
	WorkingDir string
}

// The console runs ansible-playbook and sbatch on behalf of its users, so the
// unit cannot use ProtectHome: job scripts live in home directories.
const serviceTemplate = `[Unit]
Description=HPC Console - cluster operations console
After=network.target

[Service]
Type=simple
User={{.User}}
Group={{.User}}
WorkingDirectory={{.WorkingDir}}
ExecStart={{.ExecPath}} -config {{.ConfigPath}}
Restart=always
RestartSec=5
StandardOutput=journal
StandardError=journal
PrivateTmp=true

[Install]
WantedBy=multi-user.target
`

// Manager drives systemctl through a runner.
type Manager struct {
	runner   runner.Runner
	unitPath string
	// checked skips the platform and privilege checks when false.
	checked bool
}

// NewManager returns a Manager for the system unit directory.
func NewManager(r runner.Runner) *Manager {
	return &Manager{runner: r, unitPath: serviceFilePath, checked: true}
}

// GenerateServiceFile generates the systemd service file content.
func GenerateServiceFile(cfg ServiceConfig) (string, error) {
	tmpl, err := template.New("service").Parse(serviceTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse service template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return "", fmt.Errorf("failed to execute service template: %w", err)
	}

	return buf.String(), nil
}

// Install writes the unit file, then enables and starts the service.
func (m *Manager) Install(ctx context.Context, cfg ServiceConfig) error {
	if err := m.supported(); err != nil {
		return err
	}

	content, err := GenerateServiceFile(cfg)
	if err != nil {
		return err
	}

	if err := os.WriteFile(m.unitPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	if err := m.systemctl(ctx, "daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if err := m.systemctl(ctx, "enable", serviceName); err != nil {
		return fmt.Errorf("failed to enable service: %w", err)
	}
	if err := m.systemctl(ctx, "start", serviceName); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	return nil
}

// Uninstall stops and removes the service. Stop and disable failures are
// ignored so a half-installed unit can still be removed.
func (m *Manager) Uninstall(ctx context.Context) error {
	if err := m.supported(); err != nil {
		return err
	}

	_ = m.systemctl(ctx, "stop", serviceName)
	_ = m.systemctl(ctx, "disable", serviceName)

	if err := os.Remove(m.unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove service file: %w", err)
	}

	if err := m.systemctl(ctx, "daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}

	return nil
}

// Status returns the current service status.
func (m *Manager) Status(ctx context.Context) (*ServiceStatus, error) {
	status := &ServiceStatus{}

	if _, err := os.Stat(m.unitPath); err == nil {
		status.IsInstalled = true
	}

	if state, err := m.property(ctx, "ActiveState"); err == nil {
		status.ActiveState = state
		status.IsRunning = state == "active"
	}
	if state, err := m.property(ctx, "SubState"); err == nil {
		status.SubState = state
	}

	res, err := m.runner.Run(ctx, runner.Command{Name: "systemctl", Args: []string{"is-enabled", serviceName}})
	if err != nil {
		return nil, err
	}
	status.IsEnabled = strings.TrimSpace(res.Stdout) == "enabled"

	return status, nil
}

// DefaultConfig returns the service configuration for the running binary.
func DefaultConfig(configPath string) ServiceConfig {
	execPath, _ := os.Executable()
	execPath, _ = filepath.EvalSymlinks(execPath)
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}

	return ServiceConfig{
		ExecPath:   execPath,
		ConfigPath: configPath,
		User:       "root",
		WorkingDir: filepath.Dir(configPath),
	}
}

func (m *Manager) supported() error {
	if !m.checked {
		return nil
	}
	if runtime.GOOS != "linux" || os.Geteuid() != 0 {
		return ErrUnsupported
	}
	return nil
}

func (m *Manager) systemctl(ctx context.Context, args ...string) error {
	res, err := m.runner.Run(ctx, runner.Command{Name: "systemctl", Args: args})
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("systemctl %s: exit status %d: %s", strings.Join(args, " "), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (m *Manager) property(ctx context.Context, name string) (string, error) {
	res, err := m.runner.Run(ctx, runner.Command{
		Name: "systemctl",
		Args: []string{"show", serviceName, "--property=" + name, "--value"},
	})
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", fmt.Errorf("systemctl show exited with %d", res.ExitCode)
	}
	return strings.TrimSpace(res.Stdout), nil
}
