// Package manifest loads application descriptors from the shared manifest
// directory and discovers the test inputs and conda environments they use.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pandeptwidyaop/hpc-console/internal/config"
	"github.com/pandeptwidyaop/hpc-console/internal/models"
	"github.com/pandeptwidyaop/hpc-console/internal/runner"
)

// ErrNotFound indicates no manifest declares the requested id.
var ErrNotFound = errors.New("application manifest not found")

const condaListTimeout = 30 * time.Second

// Catalog reads manifests from a directory. It keeps no state between calls:
// every load sees the directory as it is now.
type Catalog struct {
	dir    string
	conda  config.CondaConfig
	runner runner.Runner
}

// NewCatalog creates a Catalog over dir. The runner is used for conda queries.
func NewCatalog(dir string, conda config.CondaConfig, r runner.Runner) *Catalog {
	return &Catalog{dir: dir, conda: conda, runner: r}
}

// Dir returns the manifest directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// CondaBase returns the conda installation prefix used for injected setup.
func (c *Catalog) CondaBase() string {
	return c.conda.BasePath
}

// LoadAll parses every .yaml and .yml file in the directory, in name order.
// A missing directory yields no manifests. Files that fail to parse or do not
// hold a mapping are logged and skipped.
func (c *Catalog) LoadAll() ([]models.ApplicationManifest, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("[Catalog] Warning: manifest directory %s not found", c.dir)
		return []models.ApplicationManifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest directory: %w", err)
	}

	manifests := make([]models.ApplicationManifest, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isManifestFile(entry.Name()) {
			continue
		}

		path := filepath.Join(c.dir, entry.Name())
		m, err := loadFile(path)
		if err != nil {
			log.Printf("[Catalog] Skipping %s: %v", entry.Name(), err)
			continue
		}
		m.TestFiles = findTestFiles(m)
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// Find returns the manifest with the given id.
func (c *Catalog) Find(id string) (models.ApplicationManifest, error) {
	manifests, err := c.LoadAll()
	if err != nil {
		return models.ApplicationManifest{}, err
	}
	for _, m := range manifests {
		if m.ID == id {
			return m, nil
		}
	}
	return models.ApplicationManifest{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// CondaEnvironments lists the environment names of the configured conda
// installation, minus the ignored ones. A missing installation or a failing
// conda command yields an empty list.
func (c *Catalog) CondaEnvironments(ctx context.Context) ([]string, error) {
	envs := []string{}

	condaBin := filepath.Join(c.conda.BasePath, "bin", "conda")
	if _, err := os.Stat(condaBin); err != nil {
		log.Printf("[Catalog] Warning: conda executable not found at %s", condaBin)
		return envs, nil
	}

	res, err := c.runner.Run(ctx, runner.Command{
		Name:    condaBin,
		Args:    []string{"env", "list", "--json"},
		Timeout: condaListTimeout,
	})
	if err != nil {
		return envs, err
	}
	if !res.Success() {
		log.Printf("[Catalog] conda env list failed: %s", res.Stderr)
		return envs, nil
	}

	return parseCondaEnvList(res.Stdout, c.conda.IgnoredEnvs)
}

func parseCondaEnvList(out string, ignored []string) ([]string, error) {
	var data struct {
		Envs []string `json:"envs"`
	}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		return []string{}, fmt.Errorf("parse conda env list: %w", err)
	}

	skip := make(map[string]bool, len(ignored))
	for _, name := range ignored {
		skip[name] = true
	}

	envs := []string{}
	for _, p := range data.Envs {
		name := filepath.Base(p)
		if !skip[name] {
			envs = append(envs, name)
		}
	}
	return envs, nil
}

func isManifestFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
