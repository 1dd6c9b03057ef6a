//go:build linux

// Package security drops root privileges of the apps while keeping the files
// they need readable.
package security

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strconv"
	"syscall"

	"github.com/steiler/acls"
	"github.com/wneessen/go-fileperm"
	"kernel.org/pub/linux/libs/security/libcap/cap"
)

// Config contains the paths the unprivileged user must be able to access.
type Config struct {
	RunAsUser      string   // Change to this user if app is started as root
	ReadPaths      []string // Paths that RunAsUser must be able to read
	ReadWritePaths []string // Paths that RunAsUser must be able to read and write
}

type acl struct {
	path  string
	entry *acls.ACLEntry
}

// Manager drops privileges and restores the ACLs it added.
type Manager struct {
	logger    *slog.Logger
	runAsUser *user.User
	acls      []acl
}

// access is the permission a path needs for the unprivileged user.
type access struct {
	dirPerms  uint16
	filePerms uint16
	otherBits os.FileMode
}

var (
	readAccess      = access{dirPerms: 5, filePerms: 4, otherBits: fileperm.OsOthR}
	readWriteAccess = access{dirPerms: 7, filePerms: 6, otherBits: fileperm.OsOthR | fileperm.OsOthW}
)

// NewManager returns a new Manager. ACL entries are computed only for the
// paths that RunAsUser cannot access already.
func NewManager(c *Config, logger *slog.Logger) (*Manager, error) {
	runAsUser, err := lookupUser(c.RunAsUser)
	if err != nil {
		return nil, err
	}

	uid, err := strconv.ParseUint(runAsUser.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to parse UID %s: %w", runAsUser.Uid, err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	m := &Manager{logger: logger, runAsUser: runAsUser}

	for _, group := range []struct {
		paths  []string
		access access
	}{
		{c.ReadPaths, readAccess},
		{c.ReadWritePaths, readWriteAccess},
	} {
		for _, path := range group.paths {
			if path == "" {
				continue
			}

			perms, err := fileperm.New(path)
			if err != nil {
				return nil, fmt.Errorf("failed to get permissions of %s: %w", path, err)
			}

			bits := group.access.filePerms
			other := group.access.otherBits

			if perms.Stat.Mode().IsDir() {
				bits = group.access.dirPerms
				other |= fileperm.OsOthX
			}

			if hasAccess(perms, currentUser, runAsUser, bits, other) {
				continue
			}

			m.acls = append(m.acls, acl{path: path, entry: acls.NewEntry(acls.TAG_ACL_USER, uint32(uid), bits)})
		}
	}

	return m, nil
}

// DropPrivileges switches to RunAsUser when the process runs as root. Only
// CAP_FOWNER is kept, and only when ACLs were added, so that they can be
// removed by Restore. A process that is not root only loses its capabilities.
func (m *Manager) DropPrivileges() error {
	if syscall.Geteuid() != 0 {
		// Nothing to drop when the process has no capabilities
		if diff, err := cap.GetProc().Cf(cap.NewSet()); err == nil && diff == 0 {
			return nil
		}

		return setCapabilities(nil)
	}

	if err := m.applyACLs(); err != nil {
		return err
	}

	if err := m.changeUser(); err != nil {
		return err
	}

	// Parent directories without x for others make paths unreachable
	for _, a := range m.acls {
		if _, err := os.Stat(a.path); err != nil {
			return fmt.Errorf("could not reach path %s after changing user to %s", a.path, m.runAsUser.Username)
		}
	}

	var keep []cap.Value
	if len(m.acls) > 0 {
		keep = []cap.Value{cap.FOWNER}
	}

	return setCapabilities(keep)
}

// Restore removes the ACL entries added by DropPrivileges.
func (m *Manager) Restore() error {
	if len(m.acls) == 0 {
		return nil
	}

	if err := raiseEffective(cap.FOWNER, true); err != nil {
		return err
	}

	errs := m.removeACLs()

	return errors.Join(errs, raiseEffective(cap.FOWNER, false))
}

func (m *Manager) applyACLs() error {
	for _, a := range m.acls {
		entries := &acls.ACL{}

		if err := entries.Load(a.path, acls.PosixACLAccess); err != nil {
			return fmt.Errorf("failed to load acl entries of %s: %w", a.path, err)
		}

		if err := entries.AddEntry(a.entry); err != nil {
			return fmt.Errorf("failed to add acl entry %s: %w", a.entry, err)
		}

		if err := entries.Apply(a.path, acls.PosixACLAccess); err != nil {
			return fmt.Errorf("failed to apply acl entries to %s: %w", a.path, err)
		}

		m.logger.Debug("ACL applied", "path", a.path, "acl", a.entry)
	}

	return nil
}

func (m *Manager) removeACLs() error {
	var errs error

	for _, a := range m.acls {
		entries := &acls.ACL{}

		if err := entries.Load(a.path, acls.PosixACLAccess); err != nil {
			errs = errors.Join(errs, err)

			continue
		}

		entries.DeleteEntry(a.entry)

		if err := entries.Apply(a.path, acls.PosixACLAccess); err != nil {
			errs = errors.Join(errs, err)
		}
	}

	return errs
}

func (m *Manager) changeUser() error {
	uid, err := strconv.Atoi(m.runAsUser.Uid)
	if err != nil {
		return fmt.Errorf("could not parse UID %s: %w", m.runAsUser.Uid, err)
	}

	gid, err := strconv.Atoi(m.runAsUser.Gid)
	if err != nil {
		return fmt.Errorf("could not parse GID %s: %w", m.runAsUser.Gid, err)
	}

	if err := syscall.Setgid(gid); err != nil {
		return fmt.Errorf("could not set gid to %d: %w", gid, err)
	}

	// cap.SetUID keeps permitted capabilities across the switch
	if err := cap.SetUID(uid); err != nil {
		return fmt.Errorf("could not setuid to %d: %w", uid, err)
	}

	m.logger.Info("Privileges dropped", "user", m.runAsUser.Username)

	return os.Setenv("HOME", m.runAsUser.HomeDir)
}

// lookupUser finds a user by name and then by UID.
func lookupUser(name string) (*user.User, error) {
	u, err := user.Lookup(name)
	if err == nil {
		return u, nil
	}

	u, errID := user.LookupId(name)
	if errID != nil {
		return nil, fmt.Errorf("could not lookup %s: %w", name, errors.Join(err, errID))
	}

	return u, nil
}

// hasAccess returns true when runAsUser already has bits on the path.
func hasAccess(p fileperm.PermUser, currentUser, runAsUser *user.User, bits uint16, other os.FileMode) bool {
	if currentUser.Uid == runAsUser.Uid {
		switch bits {
		case 4:
			return p.UserReadable()
		case 5:
			return p.UserReadExecutable()
		case 6:
			return p.UserWriteReadable()
		default:
			return p.UserWriteReadExecutable()
		}
	}

	return p.Stat.Mode().Perm()&other == other
}

// setCapabilities keeps only caps in the permitted set of the process.
func setCapabilities(caps []cap.Value) error {
	set := cap.NewSet()

	if err := set.SetFlag(cap.Permitted, true, caps...); err != nil {
		return fmt.Errorf("error setting permitted capabilities: %w", err)
	}

	if err := set.SetProc(); err != nil {
		return fmt.Errorf("error setting process capabilities: %w", err)
	}

	return nil
}

func raiseEffective(value cap.Value, enable bool) error {
	set := cap.GetProc()

	if err := set.SetFlag(cap.Effective, enable, value); err != nil {
		return fmt.Errorf("error setting effective capability %s: %w", value, err)
	}

	return set.SetProc()
}
