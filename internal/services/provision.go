package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pandeptwidyaop/hpc-console/internal/config"
	"github.com/pandeptwidyaop/hpc-console/internal/runner"
)

// ErrProvisioningFailed indicates a node-side account playbook did not succeed.
var ErrProvisioningFailed = errors.New("provisioning failed")

// Provisioner mirrors console accounts onto the cluster nodes by running the
// create, rename and delete user playbooks against the inventory.
type Provisioner struct {
	cfg        *config.Config
	runner     runner.Runner
	passwdPath string
	groupPath  string
}

func NewProvisioner(cfg *config.Config, r runner.Runner) *Provisioner {
	return &Provisioner{cfg: cfg, runner: r, passwdPath: "/etc/passwd", groupPath: "/etc/group"}
}

// CreateAccount generates an SSH key pair for username and runs the create
// playbook with the next free uid and gid.
func (p *Provisioner) CreateAccount(ctx context.Context, username string) error {
	uid, err := nextFreeID(p.passwdPath, p.cfg.Provisioning.MinUID)
	if err != nil {
		return err
	}
	gid, err := nextFreeID(p.groupPath, p.cfg.Provisioning.MinUID)
	if err != nil {
		return err
	}

	keyPath := filepath.Join(p.cfg.Provisioning.KeyDir, username)
	for _, path := range []string{keyPath, keyPath + ".pub"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	res, err := p.runner.Run(ctx, runner.Command{
		Name:    "ssh-keygen",
		Args:    []string{"-t", "rsa", "-b", "4096", "-N", "", "-f", keyPath},
		Timeout: p.cfg.Execution.QueryDuration(),
	})
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("%w: ssh-keygen: %s", ErrProvisioningFailed, strings.TrimSpace(res.Stderr))
	}
	defer func() { _ = os.Remove(keyPath + ".pub") }()

	return p.runPlaybook(ctx, p.cfg.Provisioning.CreatePlaybook,
		"username="+username, "uid="+strconv.Itoa(uid), "gid="+strconv.Itoa(gid))
}

func (p *Provisioner) RenameAccount(ctx context.Context, oldUsername, newUsername string) error {
	return p.runPlaybook(ctx, p.cfg.Provisioning.RenamePlaybook,
		"old_username="+oldUsername, "new_username="+newUsername)
}

func (p *Provisioner) DeleteAccount(ctx context.Context, username string) error {
	return p.runPlaybook(ctx, p.cfg.Provisioning.DeletePlaybook, "username="+username)
}

func (p *Provisioner) runPlaybook(ctx context.Context, playbook string, vars ...string) error {
	if !filepath.IsAbs(playbook) && len(p.cfg.Paths.PlaybookDirs) > 0 {
		playbook = filepath.Join(p.cfg.Paths.PlaybookDirs[0], playbook)
	}

	args := []string{"-i", p.cfg.Paths.Inventory, playbook}
	for _, v := range vars {
		args = append(args, "-e", v)
	}
	cmd := runner.Command{Name: "ansible-playbook", Args: args, Timeout: p.cfg.Execution.PlaybookDuration()}

	res, err := p.runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.Success() {
		log.Printf("[Provision] %s", runner.Transcript(cmd, res))
		return fmt.Errorf("%w: %s exited with %d", ErrProvisioningFailed, filepath.Base(playbook), res.ExitCode)
	}
	log.Printf("[Provision] %s completed", filepath.Base(playbook))
	return nil
}

// nextFreeID returns the lowest id >= min not used in the third field of a
// passwd or group style file. A missing file means every id is free.
func nextFreeID(path string, min int) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return min, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	used := make(map[int]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ":")
		if len(fields) < 3 {
			continue
		}
		if id, err := strconv.Atoi(fields[2]); err == nil && id >= min {
			used[id] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}

	id := min
	for used[id] {
		id++
	}
	return id, nil
}
