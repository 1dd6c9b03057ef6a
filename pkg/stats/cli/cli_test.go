package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/marzstat/marzstat/internal/common"
	internal_runtime "github.com/marzstat/marzstat/internal/runtime"
	"github.com/marzstat/marzstat/pkg/stats/dashboard"
	"github.com/marzstat/marzstat/pkg/stats/models"
	"github.com/marzstat/marzstat/pkg/stats/render"
	"github.com/marzstat/marzstat/pkg/stats/source"
	"github.com/marzstat/marzstat/pkg/stats/usage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noOpLogger = slog.New(slog.DiscardHandler)

const credentialsBlock = `
credentials:
  ssh_host: vpn.example.com
  ssh_user: stats
  ssh_pass: secret
  sql_hostname: 127.0.0.1
  sql_username: marzban
  sql_password: secret
  sql_main_database: marzban
`

func makeConfigFile(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return configPath
}

func TestConfigDefaults(t *testing.T) {
	config, err := loadConfig(makeConfigFile(t, credentialsBlock))
	require.NoError(t, err)

	assert.Equal(t, 22, config.Credentials.SSHPort)
	assert.Equal(t, 3306, config.Credentials.SQLPort)
	assert.Equal(t, "stats", config.Credentials.SSHUser)
	assert.Equal(t, 10*time.Second, time.Duration(config.Source.DialTimeout))
	assert.Equal(t, time.Minute, time.Duration(config.Source.QueryTimeout))
	assert.Equal(t, 5*time.Minute, time.Duration(config.Source.CacheTTL))
	assert.Equal(t, uint64(64), config.Source.CacheCapacity)
	assert.Equal(t, 3*time.Hour, time.Duration(config.Source.TimezoneOffset))
	assert.Equal(t, 5, config.Dashboard.TopN)
	assert.Equal(t, "ru", config.Dashboard.Locale)
}

func TestConfigOverrides(t *testing.T) {
	content := credentialsBlock + `  ssh_port: 2222
source:
  cache_ttl: 30s
  timezone_offset: 5h30m
dashboard:
  top_n: 10
  locale: en
`

	config, err := loadConfig(makeConfigFile(t, content))
	require.NoError(t, err)

	assert.Equal(t, 2222, config.Credentials.SSHPort)
	assert.Equal(t, 30*time.Second, time.Duration(config.Source.CacheTTL))
	assert.Equal(t, 5*time.Hour+30*time.Minute, time.Duration(config.Source.TimezoneOffset))
	assert.Equal(t, 10, config.Dashboard.TopN)
	assert.Equal(t, "en", config.Dashboard.Locale)

	// Unchanged defaults
	assert.Equal(t, time.Minute, time.Duration(config.Source.QueryTimeout))
}

func TestConfigMissingCredentials(t *testing.T) {
	for _, key := range []string{
		"ssh_host", "ssh_user", "ssh_pass", "sql_hostname", "sql_username", "sql_password", "sql_main_database",
	} {
		t.Run(key, func(t *testing.T) {
			var lines []string

			for _, line := range strings.Split(credentialsBlock, "\n") {
				if !strings.Contains(line, key+":") {
					lines = append(lines, line)
				}
			}

			_, err := loadConfig(makeConfigFile(t, strings.Join(lines, "\n")))
			require.ErrorIs(t, err, ErrMissingCredential)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
	}{
		{name: "bad locale", content: credentialsBlock + "dashboard:\n  locale: de\n", err: render.ErrUnknownLocale},
		{name: "bad offset", content: credentialsBlock + "source:\n  timezone_offset: 90s\n", err: source.ErrInvalidOffset},
		{name: "offset of a day", content: credentialsBlock + "source:\n  timezone_offset: 24h\n", err: source.ErrInvalidOffset},
		{name: "zero top", content: credentialsBlock + "dashboard:\n  top_n: 0\n", err: ErrInvalidConfig},
		{name: "zero ttl", content: credentialsBlock + "source:\n  cache_ttl: 0s\n", err: ErrInvalidConfig},
		{name: "empty file", content: "", err: ErrMissingCredential},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := loadConfig(makeConfigFile(t, test.content))
			require.ErrorIs(t, err, test.err)
		})
	}

	_, err := loadConfig(makeConfigFile(t, "credentials: ["))
	require.Error(t, err)

	_, err = loadConfig("")
	require.ErrorIs(t, err, common.ErrMissingConfigPath)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewPipeline(t *testing.T) {
	config, err := loadConfig(makeConfigFile(t, credentialsBlock+"dashboard:\n  top_n: 3\n"))
	require.NoError(t, err)

	registry := prometheus.NewRegistry()

	// Nothing is dialed until the first query
	pipeline, err := newPipeline(config, registry, noOpLogger)
	require.NoError(t, err)
	assert.Equal(t, 3, pipeline.builder.TopN())
	require.NoError(t, pipeline.Close())

	// Metrics cannot be registered twice
	assert.Panics(t, func() { newPipeline(config, registry, noOpLogger) }) //nolint:errcheck

	config.Source.KnownHostsFile = filepath.Join(t.TempDir(), "known_hosts")
	_, err = newPipeline(config, prometheus.NewRegistry(), noOpLogger)
	require.Error(t, err)
}

type fakeBuilder struct {
	err error
}

func (b *fakeBuilder) Build(_ context.Context) (*dashboard.Dashboard, error) {
	if b.err != nil {
		return nil, b.err
	}

	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	events := usage.EventTable{
		HasTimestamp: true,
		Events: []models.UsageEvent{
			{CreatedAt: ts, Username: "alice", Node: models.DefaultNode, UsedTraffic: models.BytesPerGB, UsedTrafficGB: 1, Hour: 9},
		},
	}
	summary := usage.SummaryTable{Users: []models.UserLifetimeSummary{
		{Username: "alice", Connections: 7, UsedTrafficGB: 12.5, LifetimeDays: 3},
	}}

	d := dashboard.Compute("b9d3c1aa-0000-4000-8000-000000000000", events, summary, 5)
	d.LoadedAt = ts

	return d, nil
}

func TestReport(t *testing.T) {
	labels, err := render.LabelsFor("en")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report(t.Context(), &buf, &fakeBuilder{}, labels, []string{render.SectionLifetime}, "markdown"))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "User statistics\nUpdated: 2024-05-01 09:00:00"))
	assert.Contains(t, out, "Overall")
	assert.Contains(t, out, "| alice |")
	assert.NotContains(t, out, "Raw data")
	assert.NotContains(t, out, "Today by hour")

	// All sections by default
	buf.Reset()
	require.NoError(t, report(t.Context(), &buf, &fakeBuilder{}, labels, nil, "text"))

	out = buf.String()
	for _, title := range []string{"Today by hour", "Top 5 users", "Overall", "Raw data"} {
		assert.Contains(t, out, title)
	}
}

func TestReportErrors(t *testing.T) {
	labels, _ := render.LabelsFor("ru")

	var buf bytes.Buffer

	errFetch := errors.New("tunnel down")
	require.ErrorIs(t, report(t.Context(), &buf, &fakeBuilder{err: errFetch}, labels, nil, "text"), errFetch)
	assert.Empty(t, buf.String())

	require.ErrorIs(t, report(t.Context(), &buf, &fakeBuilder{}, labels, nil, "pdf"), render.ErrUnknownFormat)
}

func TestLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marzstat.log")

	app := kingpin.New("test", "")
	c := addLogFlags(app)

	_, err := app.Parse([]string{"--log.file", path, "--log.level", "debug"})
	require.NoError(t, err)

	paths, err := c.writablePaths()
	require.NoError(t, err)
	assert.Equal(t, []string{path, filepath.Dir(path)}, paths)
	assert.FileExists(t, path)

	logger, closer := c.newLogger()
	logger.Debug("dashboard loaded", "load_id", "b9d3c1aa")
	require.NoError(t, closer.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "dashboard loaded")

	// Stderr needs no writable paths
	app = kingpin.New("test", "")
	c = addLogFlags(app)

	_, err = app.Parse(nil)
	require.NoError(t, err)

	paths, err = c.writablePaths()
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestLogOperationalInfo(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logOperationalInfo(logger, func() (internal_runtime.Host, error) {
		return internal_runtime.Host{}, errors.New("uname failed")
	})

	out := buf.String()
	assert.Contains(t, out, "level=WARN msg=\"Failed to get host details\" err=\"uname failed\"")
	assert.Contains(t, out, "Operational information")
	assert.NotContains(t, out, "host_details")

	buf.Reset()
	logOperationalInfo(logger, func() (internal_runtime.Host, error) {
		return internal_runtime.Host{}, nil
	})

	assert.Contains(t, buf.String(), "host_details")
	assert.NotContains(t, buf.String(), "WARN")
}
