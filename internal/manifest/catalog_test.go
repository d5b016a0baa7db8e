package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pandeptwidyaop/hpc-console/internal/config"
	"github.com/pandeptwidyaop/hpc-console/internal/models"
	"github.com/pandeptwidyaop/hpc-console/internal/runner"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	workdir := t.TempDir()

	writeFile(t, filepath.Join(dir, "gromacs.yaml"), `
id: gmx
name: GROMACS
description: Molecular dynamics
type: conda
environment: gmx-2024
executable: /ignored/for/conda
workdir: `+workdir+`
input:
  extensions: [".TPR", gro]
`)
	writeFile(t, filepath.Join(dir, "solver.yml"), `
type: binary
executable: /opt/solver/bin/solver
input:
  ext: .dat
`)
	writeFile(t, filepath.Join(dir, "broken.yaml"), "name: [unclosed")
	writeFile(t, filepath.Join(dir, "list.yaml"), "- a\n- b\n")
	writeFile(t, filepath.Join(dir, "empty.yaml"), "")
	writeFile(t, filepath.Join(dir, "README.md"), "# not a manifest")
	writeFile(t, filepath.Join(dir, "viewer.yaml"), "name: Viewer\ntype: gui\n")

	writeFile(t, filepath.Join(workdir, "a.tpr"), "x")
	writeFile(t, filepath.Join(workdir, "notes.txt"), "x")
	writeFile(t, filepath.Join(workdir, "sub", "b.gro"), "x")

	catalog := NewCatalog(dir, config.CondaConfig{}, nil)
	manifests, err := catalog.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	want := []models.ApplicationManifest{
		{
			ID:          "gmx",
			Name:        "GROMACS",
			Description: "Molecular dynamics",
			Kind:        models.KindConda,
			Environment: "gmx-2024",
			Workdir:     workdir,
			Extensions:  []string{".tpr", ".gro"},
			Filename:    "gromacs.yaml",
			Path:        filepath.Join(dir, "gromacs.yaml"),
			TestFiles: []models.TestFile{
				{
					Name:        "a.tpr",
					Path:        filepath.Join(workdir, "a.tpr"),
					Directory:   workdir,
					RelativeDir: "",
					DisplayName: "a.tpr",
				},
				{
					Name:        "b.gro",
					Path:        filepath.Join(workdir, "sub", "b.gro"),
					Directory:   filepath.Join(workdir, "sub"),
					RelativeDir: "sub",
					DisplayName: "sub/b.gro",
				},
			},
		},
		{
			ID:          "solver",
			Name:        "solver",
			Description: "Run solver",
			Kind:        models.KindBinary,
			Executable:  "/opt/solver/bin/solver",
			Extensions:  []string{".dat"},
			Filename:    "solver.yml",
			Path:        filepath.Join(dir, "solver.yml"),
			TestFiles:   []models.TestFile{},
		},
		{
			ID:          "viewer",
			Name:        "Viewer",
			Description: "Run Viewer",
			Kind:        models.AppKind("gui"),
			Filename:    "viewer.yaml",
			Path:        filepath.Join(dir, "viewer.yaml"),
			TestFiles:   []models.TestFile{},
		},
	}

	if diff := cmp.Diff(want, manifests); diff != "" {
		t.Errorf("manifests mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadAll_MissingDirectory(t *testing.T) {
	catalog := NewCatalog(filepath.Join(t.TempDir(), "nope"), config.CondaConfig{}, nil)

	manifests, err := catalog.LoadAll()
	if err != nil {
		t.Fatalf("expected no error for missing directory, got %v", err)
	}
	if len(manifests) != 0 {
		t.Errorf("expected no manifests, got %d", len(manifests))
	}
}

func TestLoadAll_MissingWorkdir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.yaml"), "workdir: /does/not/exist\n")

	manifests, err := NewCatalog(dir, config.CondaConfig{}, nil).LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(manifests) != 1 || len(manifests[0].TestFiles) != 0 {
		t.Errorf("expected one manifest without test files, got %+v", manifests)
	}
	if manifests[0].Kind != models.KindUnknown {
		t.Errorf("expected Unknown kind, got %q", manifests[0].Kind)
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "id: alpha\nname: Alpha\n")

	catalog := NewCatalog(dir, config.CondaConfig{}, nil)

	m, err := catalog.Find("alpha")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if m.Name != "Alpha" {
		t.Errorf("expected Alpha, got %s", m.Name)
	}

	if _, err := catalog.Find("beta"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCondaEnvironments(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "bin", "conda"), "#!/bin/sh\n")

	var got runner.Command
	fake := runner.Func(func(ctx context.Context, cmd runner.Command) (runner.Result, error) {
		got = cmd
		return runner.Result{Stdout: `{"envs": ["` + base + `", "` + base + `/envs/ml-env", "` + base + `/envs/gmx"]}`}, nil
	})

	catalog := NewCatalog(t.TempDir(), config.CondaConfig{
		BasePath:    base,
		IgnoredEnvs: []string{filepath.Base(base), "base"},
	}, fake)

	envs, err := catalog.CondaEnvironments(context.Background())
	if err != nil {
		t.Fatalf("CondaEnvironments failed: %v", err)
	}
	if diff := cmp.Diff([]string{"ml-env", "gmx"}, envs); diff != "" {
		t.Errorf("envs mismatch (-want +got):\n%s", diff)
	}
	if got.Name != filepath.Join(base, "bin", "conda") {
		t.Errorf("unexpected command %s", got.Name)
	}
	if diff := cmp.Diff([]string{"env", "list", "--json"}, got.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestCondaEnvironments_NotInstalled(t *testing.T) {
	called := false
	fake := runner.Func(func(ctx context.Context, cmd runner.Command) (runner.Result, error) {
		called = true
		return runner.Result{}, nil
	})

	catalog := NewCatalog(t.TempDir(), config.CondaConfig{BasePath: filepath.Join(t.TempDir(), "none")}, fake)
	envs, err := catalog.CondaEnvironments(context.Background())
	if err != nil || len(envs) != 0 {
		t.Errorf("expected empty list, got %v, %v", envs, err)
	}
	if called {
		t.Error("conda must not be invoked when it is not installed")
	}
}

func TestCondaEnvironments_CommandFails(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "bin", "conda"), "#!/bin/sh\n")

	fake := runner.Func(func(ctx context.Context, cmd runner.Command) (runner.Result, error) {
		return runner.Result{ExitCode: 1, Stderr: "boom"}, nil
	})

	envs, err := NewCatalog("", config.CondaConfig{BasePath: base}, fake).CondaEnvironments(context.Background())
	if err != nil || len(envs) != 0 {
		t.Errorf("expected empty list, got %v, %v", envs, err)
	}
}

func TestParse_Defaults(t *testing.T) {
	m, err := parse("My Tool.yaml", "/m/My Tool.yaml", []byte("type: conda\nenvironment: e\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if m.ID != "My Tool" || m.Name != "My Tool" || m.Description != "Run My Tool" {
		t.Errorf("unexpected defaults %+v", m)
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, src := range []string{
		"",
		"just a string",
		"- item",
		"input:\n  extensions: {a: b}\n",
		"type: conda\nenvironment: \"ml\\tenv\"\n",
		"type: binary\nexecutable: \"/opt/a\\nrm -rf /\"\n",
	} {
		if _, err := parse("x.yaml", "x.yaml", []byte(src)); err == nil {
			t.Errorf("expected error for %q", src)
		}
	}
}
