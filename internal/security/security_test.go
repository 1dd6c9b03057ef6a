//go:build linux

package security

import (
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/steiler/acls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noOpLogger = slog.New(slog.DiscardHandler)

func skipUnprivileged(t *testing.T) {
	t.Helper()

	currentUser, err := user.Current()
	require.NoError(t, err)

	if currentUser.Uid != "0" {
		t.Skip("Skipping testing due to lack of privileges")
	}
}

func testConfig(t *testing.T, tmpDir string) *Config {
	t.Helper()

	configDir := filepath.Join(tmpDir, "etc", "marzstat")
	require.NoError(t, os.MkdirAll(configDir, 0o700))

	// Others can traverse etc but not marzstat
	require.NoError(t, os.Chmod(filepath.Join(tmpDir, "etc"), 0o705))

	configFile := filepath.Join(configDir, "config.yml")
	require.NoError(t, os.WriteFile(configFile, []byte("credentials: {}"), 0o600))

	knownHosts := filepath.Join(tmpDir, "known_hosts")
	require.NoError(t, os.WriteFile(knownHosts, []byte(""), 0o644)) //nolint:gosec

	logDir := filepath.Join(tmpDir, "log")
	require.NoError(t, os.MkdirAll(logDir, 0o700))

	return &Config{
		RunAsUser: "nobody",
		ReadPaths: []string{
			configFile,
			configDir,
			filepath.Join(tmpDir, "etc"),
			knownHosts,
			"",
		},
		ReadWritePaths: []string{logDir},
	}
}

func TestNewManager(t *testing.T) {
	tmpDir := t.TempDir()

	c := testConfig(t, tmpDir)

	m, err := NewManager(c, noOpLogger)
	require.NoError(t, err)

	expectedEntries := []acl{
		{path: filepath.Join(tmpDir, "etc", "marzstat", "config.yml"), entry: acls.NewEntry(acls.TAG_ACL_USER, 65534, 4)},
		{path: filepath.Join(tmpDir, "etc", "marzstat"), entry: acls.NewEntry(acls.TAG_ACL_USER, 65534, 5)},
		{path: filepath.Join(tmpDir, "log"), entry: acls.NewEntry(acls.TAG_ACL_USER, 65534, 7)},
	}

	assert.ElementsMatch(t, expectedEntries, m.acls)

	// Unknown user
	c.RunAsUser = "illegal"

	_, err = NewManager(c, noOpLogger)
	require.Error(t, err)

	// Missing path
	c.RunAsUser = "nobody"
	c.ReadPaths = []string{filepath.Join(tmpDir, "missing")}

	_, err = NewManager(c, noOpLogger)
	require.Error(t, err)
}

func TestACLs(t *testing.T) {
	skipUnprivileged(t)

	tmpDir := t.TempDir()

	m, err := NewManager(testConfig(t, tmpDir), noOpLogger)
	require.NoError(t, err)

	require.NoError(t, m.applyACLs())

	// Running as root, every path stays reachable
	for _, a := range m.acls {
		_, err := os.Stat(a.path)
		require.NoError(t, err)
	}

	require.NoError(t, m.Restore())
}

func TestLookupUser(t *testing.T) {
	u, err := lookupUser("nobody")
	require.NoError(t, err)
	assert.Equal(t, "65534", u.Uid)

	u, err = lookupUser("65534")
	require.NoError(t, err)
	assert.Equal(t, "nobody", u.Username)
}
