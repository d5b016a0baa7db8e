package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// scriptDir is a directory of playbooks or job scripts and the account owning it.
type scriptDir struct {
	path  string
	owner string
}

// scriptFile is a script found in one of the visible directories.
type scriptFile struct {
	filename string
	name     string
	path     string
	owner    string
}

// listScripts returns the files with one of exts across dirs. A filename seen
// in an earlier directory hides later ones. Missing directories are skipped.
func listScripts(dirs []scriptDir, exts []string) ([]scriptFile, error) {
	seen := make(map[string]bool)
	var files []scriptFile

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir.path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !hasExtension(e.Name(), exts) || seen[e.Name()] {
				continue
			}
			seen[e.Name()] = true
			files = append(files, scriptFile{
				filename: e.Name(),
				name:     strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
				path:     filepath.Join(dir.path, e.Name()),
				owner:    dir.owner,
			})
		}
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

// findScript returns the first directory holding filename.
func findScript(dirs []scriptDir, filename string) (scriptFile, bool) {
	for _, dir := range dirs {
		path := filepath.Join(dir.path, filename)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return scriptFile{
				filename: filename,
				name:     strings.TrimSuffix(filename, filepath.Ext(filename)),
				path:     path,
				owner:    dir.owner,
			}, true
		}
	}
	return scriptFile{}, false
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// scriptFilename validates a user supplied name and adds defaultExt unless it
// already ends in one of allowed.
func scriptFilename(name string, allowed []string, defaultExt string) (string, error) {
	name = strings.TrimSpace(name)
	if err := validateFilename(name); err != nil {
		return "", err
	}
	if !hasExtension(name, allowed) {
		name += defaultExt
	}
	return name, nil
}

func validateFilename(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: invalid filename %q", ErrInvalidRequest, name)
	}
	return nil
}

// createScript writes a new file, failing with exists when the path is taken.
func createScript(path, content string, perm os.FileMode, exists error) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", exists, filepath.Base(path))
	}
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Chmod(path, perm)
}

// replaceScript writes content to newPath in the directory of old and removes
// old when the name changed. The old file is kept if the write fails.
func replaceScript(old scriptFile, newFilename, content string, perm os.FileMode, exists error) (string, error) {
	newPath := filepath.Join(filepath.Dir(old.path), newFilename)
	if newFilename != old.filename {
		if _, err := os.Stat(newPath); err == nil {
			return "", fmt.Errorf("%w: %s", exists, newFilename)
		}
	}

	if err := os.WriteFile(newPath, []byte(content), perm); err != nil {
		return "", err
	}
	if err := os.Chmod(newPath, perm); err != nil {
		return "", err
	}

	if newFilename != old.filename {
		if err := os.Remove(old.path); err != nil {
			return newPath, err
		}
	}
	return newPath, nil
}
