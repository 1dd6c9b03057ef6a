package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConfig struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func TestMakeConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yml")

	err := os.WriteFile(configPath, []byte("name: foo\ncount: 3\n"), 0o600)
	require.NoError(t, err)

	config, err := MakeConfig[mockConfig](configPath)
	require.NoError(t, err)
	assert.Equal(t, "foo", config.Name)
	assert.Equal(t, 3, config.Count)
}

func TestMakeConfigErrors(t *testing.T) {
	_, err := MakeConfig[mockConfig]("")
	require.ErrorIs(t, err, ErrMissingConfigPath)

	_, err = MakeConfig[mockConfig](filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)

	configPath := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(configPath, []byte("name: [unclosed"), 0o600))

	_, err = MakeConfig[mockConfig](configPath)
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("SELECT 1")
	b := Fingerprint("SELECT 1")
	c := Fingerprint("SELECT 2")

	assert.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
