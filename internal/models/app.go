// Package models defines data models for hosts, applications, users, playbooks and jobs.
package models

// AppKind is the manifest "type" field.
type AppKind string

const (
	// KindConda runs inside a named conda environment.
	KindConda AppKind = "conda"
	// KindBinary runs a single executable.
	KindBinary AppKind = "binary"
	// KindUnknown is used when a manifest declares no type.
	KindUnknown AppKind = "Unknown"
)

// Known reports whether the kind contributes environment setup to job scripts.
func (k AppKind) Known() bool {
	return k == KindConda || k == KindBinary
}

// ApplicationManifest is one application descriptor loaded from the manifest directory.
type ApplicationManifest struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Kind        AppKind    `json:"kind"`
	Environment string     `json:"environment,omitempty"`
	Executable  string     `json:"executable,omitempty"`
	Workdir     string     `json:"workdir,omitempty"`
	Extensions  []string   `json:"extensions,omitempty"`
	Filename    string     `json:"filename"`
	Path        string     `json:"path"`
	TestFiles   []TestFile `json:"test_files"`
}

// TestFile is an input file found beneath a manifest's workdir.
type TestFile struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Directory   string `json:"directory"`
	RelativeDir string `json:"relative_dir"`
	DisplayName string `json:"display_name"`
}

// ApplicationRecord is the persisted mirror of a manifest.
type ApplicationRecord struct {
	AppID       string `json:"app_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ID          int64  `json:"id"`
}
