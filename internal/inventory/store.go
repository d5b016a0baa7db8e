package inventory

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sync"

	"github.com/pandeptwidyaop/hpc-console/internal/models"
)

// ErrNotFound indicates the inventory file does not exist.
var ErrNotFound = errors.New("inventory file not found")

// Store reads and rewrites one inventory file. Every mutation is a whole-file
// read-modify-write serialized by an in-process mutex; other processes
// editing the same file are not coordinated with.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a Store for the inventory file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the inventory file location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the inventory file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load parses the inventory file.
func (s *Store) Load() (*Inventory, error) {
	s.mu.Lock()
	text, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	inv := Parse(text)
	for _, skipped := range inv.Skipped {
		log.Printf("[Inventory] %s: skipped %s", s.path, skipped)
	}
	return inv, nil
}

// AddHost adds h to group, or to DefaultGroup when group is empty.
func (s *Store) AddHost(h models.Host, group string) error {
	if group == "" {
		group = DefaultGroup
	}
	return s.update(func(text string) (string, error) {
		return AddHostToGroup(text, group, h)
	})
}

// RemoveHost removes every line declaring the named host.
func (s *Store) RemoveHost(name string) error {
	return s.update(func(text string) (string, error) {
		return RemoveHost(text, name), nil
	})
}

// AddGroup appends a group section.
func (s *Store) AddGroup(name string, hosts []models.Host) error {
	return s.update(func(text string) (string, error) {
		return AddGroup(text, name, hosts)
	})
}

// RemoveGroup removes a group section.
func (s *Store) RemoveGroup(name string) error {
	return s.update(func(text string) (string, error) {
		return RemoveGroup(text, name), nil
	})
}

func (s *Store) update(edit func(string) (string, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	text, err := s.read()
	if err != nil {
		return err
	}

	updated, err := edit(text)
	if err != nil {
		return err
	}
	if updated == text {
		return nil
	}

	if err := os.WriteFile(s.path, []byte(updated), 0644); err != nil {
		return fmt.Errorf("write inventory: %w", err)
	}
	return nil
}

func (s *Store) read() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read inventory: %w", err)
	}
	return string(data), nil
}
