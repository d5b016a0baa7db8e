package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pandeptwidyaop/hpc-console/internal/config"
	"github.com/pandeptwidyaop/hpc-console/internal/inventory"
	"github.com/pandeptwidyaop/hpc-console/internal/models"
	"github.com/pandeptwidyaop/hpc-console/internal/runner"
	"github.com/pandeptwidyaop/hpc-console/internal/script"
)

var (
	ErrPlaybookNotFound = errors.New("playbook not found")
	ErrPlaybookExists   = errors.New("playbook already exists")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
)

var playbookExts = []string{".yml", ".yaml"}

// PlaybookService stores playbooks and runs them against the inventory.
// Users work in the first playbook directory; admins see all of them.
type PlaybookService struct {
	cfg       *config.Config
	runner    runner.Runner
	inventory *inventory.Store
}

func NewPlaybookService(cfg *config.Config, r runner.Runner, inv *inventory.Store) *PlaybookService {
	return &PlaybookService{cfg: cfg, runner: r, inventory: inv}
}

func (s *PlaybookService) dirs(user *models.User) []scriptDir {
	var dirs []scriptDir
	for i, path := range s.cfg.Paths.PlaybookDirs {
		if i > 0 && !user.IsAdmin() {
			break
		}
		dirs = append(dirs, scriptDir{path: path})
	}
	return dirs
}

func (s *PlaybookService) List(user *models.User) ([]models.Playbook, error) {
	files, err := listScripts(s.dirs(user), playbookExts)
	if err != nil {
		return nil, err
	}

	playbooks := make([]models.Playbook, 0, len(files))
	for _, f := range files {
		playbooks = append(playbooks, models.Playbook{Filename: f.filename, Name: f.name, Path: f.path})
	}
	return playbooks, nil
}

func (s *PlaybookService) find(user *models.User, filename string) (scriptFile, error) {
	if err := validateFilename(filename); err != nil {
		return scriptFile{}, err
	}
	f, ok := findScript(s.dirs(user), filename)
	if !ok {
		return scriptFile{}, fmt.Errorf("%w: %s", ErrPlaybookNotFound, filename)
	}
	return f, nil
}

func (s *PlaybookService) Get(user *models.User, filename string) (*models.ScriptContent, error) {
	f, err := s.find(user, filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	description, content := script.SplitDescription(string(data))
	return &models.ScriptContent{
		Filename:    f.filename,
		Name:        f.name,
		Description: description,
		Content:     content,
	}, nil
}

func (s *PlaybookService) prepare(req *models.SaveScriptRequest) (filename, content string, err error) {
	filename, err = scriptFilename(req.Name, playbookExts, ".yml")
	if err != nil {
		return "", "", err
	}

	content = strings.TrimSpace(req.Content)
	var doc any
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return filename, script.PrependPlaybookDescription(content, strings.TrimSpace(req.Description)), nil
}

// Save creates a playbook in the user's playbook directory.
func (s *PlaybookService) Save(user *models.User, req *models.SaveScriptRequest) (*models.SavedScript, error) {
	filename, content, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	if len(s.cfg.Paths.PlaybookDirs) == 0 {
		return nil, fmt.Errorf("%w: no playbook directory configured", ErrInvalidRequest)
	}

	dir := s.cfg.Paths.PlaybookDirs[0]
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, filename)
	if err := createScript(path, content, 0644, ErrPlaybookExists); err != nil {
		return nil, err
	}

	log.Printf("[Playbooks] %s saved %s", user.Username, path)
	return &models.SavedScript{
		Filename: filename,
		Path:     path,
		Message:  fmt.Sprintf("Playbook %s saved successfully", filename),
	}, nil
}

// Update rewrites a playbook, renaming it when the name changed.
func (s *PlaybookService) Update(user *models.User, req *models.SaveScriptRequest) (*models.SavedScript, error) {
	old, err := s.find(user, req.OriginalFilename)
	if err != nil {
		return nil, err
	}
	filename, content, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	path, err := replaceScript(old, filename, content, 0644, ErrPlaybookExists)
	if err != nil {
		return nil, err
	}

	log.Printf("[Playbooks] %s updated %s", user.Username, path)
	return &models.SavedScript{
		Filename: filename,
		Path:     path,
		Message:  fmt.Sprintf("Playbook %s updated successfully", filename),
	}, nil
}

func (s *PlaybookService) Delete(user *models.User, filename string) (*models.SavedScript, error) {
	f, err := s.find(user, filename)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(f.path); err != nil {
		return nil, err
	}

	log.Printf("[Playbooks] %s deleted %s", user.Username, f.path)
	return &models.SavedScript{
		Filename: filename,
		Message:  fmt.Sprintf("Playbook %s deleted successfully", filename),
	}, nil
}

// Execute runs ansible-playbook against the inventory, limited to the
// selected host or group unless "all" is selected.
func (s *PlaybookService) Execute(ctx context.Context, user *models.User, req *models.ExecutePlaybookRequest) (*models.ExecutionResult, error) {
	if !s.inventory.Exists() {
		return nil, inventory.ErrNotFound
	}
	f, err := s.find(user, req.Playbook)
	if err != nil {
		return nil, err
	}

	args := []string{"-i", s.inventory.Path(), f.path, "-v"}
	if limit := inventory.LimitPattern(req.Hosts); limit != "" {
		args = append(args, "--limit", limit)
	}
	cmd := runner.Command{Name: "ansible-playbook", Args: args, Timeout: s.cfg.Execution.PlaybookDuration()}

	log.Printf("[Playbooks] %s running %s on %s", user.Username, f.filename, req.Hosts)
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}

	return &models.ExecutionResult{
		Success:    res.Success(),
		Output:     runner.Transcript(cmd, res),
		ReturnCode: res.ExitCode,
		Username:   user.Username,
	}, nil
}
