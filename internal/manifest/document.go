package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/pandeptwidyaop/hpc-console/internal/models"
)

var errNotMapping = errors.New("manifest is not a mapping")

// document is the on-disk manifest layout.
type document struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Type        string    `yaml:"type"`
	Environment string    `yaml:"environment"`
	Executable  string    `yaml:"executable"`
	Workdir     string    `yaml:"workdir"`
	Input       inputSpec `yaml:"input"`
}

type inputSpec struct {
	Extensions stringList `yaml:"extensions"`
	Ext        string     `yaml:"ext"`
}

// stringList accepts either a sequence or a single scalar.
type stringList []string

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = stringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	return fmt.Errorf("line %d: extensions must be a list or a string", value.Line)
}

func loadFile(path string) (models.ApplicationManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ApplicationManifest{}, err
	}
	return parse(filepath.Base(path), path, data)
}

// parse decodes one manifest file. Missing id and name default to the file
// stem, and a missing description to "Run <name>".
func parse(filename, path string, data []byte) (models.ApplicationManifest, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return models.ApplicationManifest{}, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return models.ApplicationManifest{}, errNotMapping
	}

	var doc document
	if err := root.Content[0].Decode(&doc); err != nil {
		return models.ApplicationManifest{}, err
	}

	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	m := models.ApplicationManifest{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Kind:        models.AppKind(doc.Type),
		Workdir:     doc.Workdir,
		Filename:    filename,
		Path:        path,
		Extensions:  extensions(doc.Input),
	}
	if m.ID == "" {
		m.ID = stem
	}
	if m.Name == "" {
		m.Name = stem
	}
	if m.Description == "" {
		m.Description = "Run " + m.Name
	}
	if m.Kind == "" {
		m.Kind = models.KindUnknown
	}

	switch m.Kind {
	case models.KindConda:
		m.Environment = doc.Environment
	case models.KindBinary:
		m.Executable = doc.Executable
	}

	// these values are written into job scripts one per line
	for field, v := range map[string]string{"name": m.Name, "environment": m.Environment, "executable": m.Executable} {
		if strings.ContainsFunc(v, unicode.IsControl) {
			return models.ApplicationManifest{}, fmt.Errorf("%s contains control characters", field)
		}
	}
	return m, nil
}

// extensions normalizes the input filter to lowercase ".ext" form.
func extensions(in inputSpec) []string {
	raw := []string(in.Extensions)
	if len(raw) == 0 && in.Ext != "" {
		raw = []string{in.Ext}
	}

	var out []string
	for _, ext := range raw {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

// findTestFiles walks the manifest workdir for files matching its extension
// filter. An empty filter matches every file.
func findTestFiles(m models.ApplicationManifest) []models.TestFile {
	files := []models.TestFile{}
	if m.Workdir == "" {
		return files
	}
	if _, err := os.Stat(m.Workdir); err != nil {
		log.Printf("[Catalog] Warning: workdir %s not found for %s", m.Workdir, m.Name)
		return files
	}

	err := filepath.WalkDir(m.Workdir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("[Catalog] Skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !matchesExtension(d.Name(), m.Extensions) {
			return nil
		}

		dir := filepath.Dir(path)
		rel, err := filepath.Rel(m.Workdir, dir)
		if err != nil || rel == "." {
			rel = ""
		}
		display := d.Name()
		if rel != "" {
			display = filepath.ToSlash(rel) + "/" + d.Name()
		}

		files = append(files, models.TestFile{
			Name:        d.Name(),
			Path:        path,
			Directory:   dir,
			RelativeDir: rel,
			DisplayName: display,
		})
		return nil
	})
	if err != nil {
		log.Printf("[Catalog] Error finding test files for %s: %v", m.Name, err)
	}
	return files
}

func matchesExtension(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}
