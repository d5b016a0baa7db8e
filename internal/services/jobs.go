package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/pandeptwidyaop/hpc-console/internal/config"
	"github.com/pandeptwidyaop/hpc-console/internal/inventory"
	"github.com/pandeptwidyaop/hpc-console/internal/models"
	"github.com/pandeptwidyaop/hpc-console/internal/runner"
	"github.com/pandeptwidyaop/hpc-console/internal/script"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
	// ErrSchedulerFailed indicates a scheduler query exited non-zero.
	ErrSchedulerFailed = errors.New("scheduler command failed")
)

const (
	adminJobsOwner = "root"
	squeueFormat   = "%.18i %.9P %.8j %.8u %.2t %.10M %.6D %R"
	sacctFormat    = "JobID,JobName,Partition,User,NodeList,State,Start,End,Elapsed,ExitCode"
)

var (
	jobExts      = []string{".sh", ".slurm", ".yml", ".yaml"}
	jobSaveExts  = []string{".sh", ".slurm"}
	submittedJob = regexp.MustCompile(`Submitted batch job (\d+)`)
	jobIDPattern = regexp.MustCompile(`^\d+(_\d+)?(\.\w+)?$`)
)

// JobService stores batch job scripts and submits them to the scheduler.
// Users see their own jobs directory; admins additionally see the admin
// directories.
type JobService struct {
	cfg    *config.Config
	runner runner.Runner
	apps   *ApplicationService

	// per script path, so the inject/submit/restore sequence of one script
	// is never interleaved with another submission of the same script
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewJobService(cfg *config.Config, r runner.Runner, apps *ApplicationService) *JobService {
	return &JobService{cfg: cfg, runner: r, apps: apps, locks: make(map[string]*sync.Mutex)}
}

func (s *JobService) dirs(user *models.User) []scriptDir {
	dirs := []scriptDir{{path: s.cfg.Paths.JobsDir(user.Username), owner: user.Username}}
	if user.IsAdmin() {
		for _, path := range s.cfg.Paths.AdminJobsDirs {
			dirs = append(dirs, scriptDir{path: path, owner: adminJobsOwner})
		}
	}
	return dirs
}

func (s *JobService) List(user *models.User) ([]models.Job, error) {
	files, err := listScripts(s.dirs(user), jobExts)
	if err != nil {
		return nil, err
	}

	jobs := make([]models.Job, 0, len(files))
	for _, f := range files {
		jobs = append(jobs, models.Job{Filename: f.filename, Name: f.name, Path: f.path, Owner: f.owner})
	}
	return jobs, nil
}

func (s *JobService) find(user *models.User, filename string) (scriptFile, error) {
	if err := validateFilename(filename); err != nil {
		return scriptFile{}, err
	}
	f, ok := findScript(s.dirs(user), filename)
	if !ok {
		return scriptFile{}, fmt.Errorf("%w: %s", ErrJobNotFound, filename)
	}
	return f, nil
}

func (s *JobService) Get(user *models.User, filename string) (*models.ScriptContent, error) {
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

func prepareJob(req *models.SaveScriptRequest) (filename, content string, err error) {
	filename, err = scriptFilename(req.Name, jobSaveExts, ".sh")
	if err != nil {
		return "", "", err
	}
	content = strings.TrimSpace(req.Content)
	if content == "" {
		return "", "", fmt.Errorf("%w: name and content are required", ErrInvalidRequest)
	}
	return filename, script.PrependDescription(content, strings.TrimSpace(req.Description)), nil
}

// Save creates an executable job script. Admins may save into another
// user's jobs directory through TargetUser.
func (s *JobService) Save(user *models.User, req *models.SaveScriptRequest) (*models.SavedScript, error) {
	filename, content, err := prepareJob(req)
	if err != nil {
		return nil, err
	}

	owner := user.Username
	if user.IsAdmin() && strings.TrimSpace(req.TargetUser) != "" {
		owner = strings.TrimSpace(req.TargetUser)
		if err := validateFilename(owner); err != nil {
			return nil, err
		}
	}

	dir := s.cfg.Paths.JobsDir(owner)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, filename)
	if err := createScript(path, content, 0755, ErrJobExists); err != nil {
		return nil, err
	}

	log.Printf("[Jobs] %s saved %s", user.Username, path)
	return &models.SavedScript{
		Filename: filename,
		Path:     path,
		Message:  fmt.Sprintf("Job %s saved successfully", filename),
	}, nil
}

// Update rewrites a job script, renaming it when the name changed.
func (s *JobService) Update(user *models.User, req *models.SaveScriptRequest) (*models.SavedScript, error) {
	old, err := s.find(user, req.OriginalFilename)
	if err != nil {
		return nil, err
	}
	filename, content, err := prepareJob(req)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(old.path)
	defer unlock()

	path, err := replaceScript(old, filename, content, 0755, ErrJobExists)
	if err != nil {
		return nil, err
	}

	log.Printf("[Jobs] %s updated %s", user.Username, path)
	return &models.SavedScript{
		Filename: filename,
		Path:     path,
		Message:  fmt.Sprintf("Job %s updated successfully", filename),
	}, nil
}

func (s *JobService) Delete(user *models.User, filename string) (*models.SavedScript, error) {
	f, err := s.find(user, filename)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(f.path)
	defer unlock()

	if err := os.Remove(f.path); err != nil {
		return nil, err
	}

	log.Printf("[Jobs] %s deleted %s", user.Username, f.path)
	return &models.SavedScript{
		Filename: filename,
		Message:  fmt.Sprintf("Job %s deleted successfully", filename),
	}, nil
}

// Submit hands a job script to sbatch. The selected applications' setup is
// injected into the script for the duration of the submission and the
// original text is written back afterwards, whatever the outcome.
func (s *JobService) Submit(ctx context.Context, user *models.User, req *models.SubmitJobRequest) (*models.ExecutionResult, error) {
	f, err := s.find(user, req.Job)
	if err != nil {
		return nil, err
	}

	selected, err := s.selectedApplications(user, req)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(f.path)
	defer unlock()

	if len(selected) > 0 {
		restore, err := s.injectApplications(f.path, selected)
		if err != nil {
			return nil, err
		}
		defer restore()
	}

	cmd := s.sbatchCommand(user.Username, req.Hosts, f.path, selected)

	log.Printf("[Jobs] %s submitting %s on %s", user.Username, f.filename, req.Hosts)
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}

	result := &models.ExecutionResult{
		Success:    res.Success(),
		Output:     fmt.Sprintf("Starting execution of %s on %s...\n", f.filename, req.Hosts) + runner.Transcript(cmd, res),
		ReturnCode: res.ExitCode,
		Username:   user.Username,
	}
	if res.Success() {
		if m := submittedJob.FindStringSubmatch(res.Stdout); m != nil {
			result.JobID = m[1]
			log.Printf("[Jobs] %s submitted as batch job %s", f.filename, result.JobID)
		}
	}
	return result, nil
}

func (s *JobService) selectedApplications(user *models.User, req *models.SubmitJobRequest) ([]models.ApplicationManifest, error) {
	selections := req.Applications
	if len(selections) == 0 && req.Application != nil {
		selections = []models.AppSelection{*req.Application}
	}

	var manifests []models.ApplicationManifest
	seen := make(map[string]bool)
	for _, sel := range selections {
		if sel.ID == "" || seen[sel.ID] {
			continue
		}
		seen[sel.ID] = true

		m, err := s.apps.FindForUser(user, sel.ID)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// injectApplications rewrites the script at path and returns a func that
// puts the original text back.
func (s *JobService) injectApplications(path string, manifests []models.ApplicationManifest) (func(), error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	original, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfgs := make([]script.AppConfig, 0, len(manifests))
	for _, m := range manifests {
		cfgs = append(cfgs, script.NewAppConfig(m, s.apps.Catalog().CondaBase()))
	}
	injected := script.InjectAll(string(original), cfgs...)

	if err := os.WriteFile(path, []byte(injected), info.Mode().Perm()); err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0755); err != nil {
		log.Printf("[Jobs] chmod %s: %v", path, err)
	}

	return func() {
		if err := os.WriteFile(path, original, info.Mode().Perm()); err != nil {
			log.Printf("[Jobs] Failed to restore %s: %v", path, err)
		}
	}, nil
}

func (s *JobService) sbatchCommand(username, hosts, path string, apps []models.ApplicationManifest) runner.Command {
	var args []string
	name := "sbatch"
	if s.cfg.Execution.UseSudo {
		name = "sudo"
		args = append(args, "-u", username, "sbatch")
	}
	args = append(args,
		"--output="+s.cfg.Paths.JobOutput(username),
		"--chdir="+s.cfg.Paths.HomeDir(username),
	)
	if limit := inventory.LimitPattern(hosts); limit != "" {
		args = append(args, "--nodelist", limit)
	}
	args = append(args, path)

	cmd := runner.Command{Name: name, Args: args, Timeout: s.cfg.Execution.SubmitDuration()}
	if len(apps) > 0 {
		names := make([]string, 0, len(apps))
		kinds := make([]string, 0, len(apps))
		for _, m := range apps {
			names = append(names, m.Name)
			kinds = append(kinds, string(m.Kind))
		}
		cmd.Env = []string{
			"SELECTED_APPLICATION=" + strings.Join(names, ","),
			"APPLICATION_TYPE=" + strings.Join(kinds, ","),
		}
	}
	return cmd
}

// Accounting returns the sacct report for one job.
func (s *JobService) Accounting(ctx context.Context, jobID string) (string, error) {
	if !jobIDPattern.MatchString(jobID) {
		return "", fmt.Errorf("%w: invalid job id %q", ErrInvalidRequest, jobID)
	}
	return s.query(ctx, runner.Command{
		Name: "sacct",
		Args: []string{"-j", jobID, "--format=" + sacctFormat},
	})
}

// Queue returns the squeue listing: every job for admins, own jobs otherwise.
func (s *JobService) Queue(ctx context.Context, user *models.User) (string, error) {
	args := []string{"-o", squeueFormat}
	if !user.IsAdmin() {
		args = append([]string{"-u", user.Username}, args...)
	}
	return s.query(ctx, runner.Command{Name: "squeue", Args: args})
}

func (s *JobService) query(ctx context.Context, cmd runner.Command) (string, error) {
	cmd.Timeout = s.cfg.Execution.QueryDuration()
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", fmt.Errorf("%w: %s: %s", ErrSchedulerFailed, cmd.Name, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

func (s *JobService) lock(path string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[path]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[path] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
