package service

import "github.com/pandeptwidyaop/hpc-console/internal/runner"

// NewTestManager returns a Manager writing its unit to unitPath without
// requiring root.
func NewTestManager(r runner.Runner, unitPath string) *Manager {
	return &Manager{runner: r, unitPath: unitPath}
}
