//go:build !linux

package security

import "log/slog"

// Config contains the paths the unprivileged user must be able to access.
type Config struct {
	RunAsUser      string
	ReadPaths      []string
	ReadWritePaths []string
}

// Manager is a no-op outside Linux.
type Manager struct{}

// NewManager returns a new Manager.
func NewManager(_ *Config, _ *slog.Logger) (*Manager, error) {
	return &Manager{}, nil
}

// DropPrivileges is a no-op outside Linux.
func (m *Manager) DropPrivileges() error {
	return nil
}

// Restore is a no-op outside Linux.
func (m *Manager) Restore() error {
	return nil
}
