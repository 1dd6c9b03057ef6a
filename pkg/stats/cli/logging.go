package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/common/promslog"
	"github.com/prometheus/common/promslog/flag"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// logConfig holds the logging flags of an app.
type logConfig struct {
	promslog *promslog.Config
	file     *string
	maxSize  *int
	backups  *int
}

// addLogFlags registers promslog flags and the log file flags on app.
func addLogFlags(app *kingpin.Application) *logConfig {
	c := &logConfig{promslog: &promslog.Config{}}
	flag.AddFlags(app, c.promslog)

	c.file = app.Flag(
		"log.file",
		"Write logs to this file instead of stderr. File is rotated by size.",
	).Default("").String()
	c.maxSize = app.Flag(
		"log.file.max-size",
		"Maximum size in megabytes of the log file before it is rotated.",
	).Default("100").Int()
	c.backups = app.Flag(
		"log.file.max-backups",
		"Maximum number of rotated log files to retain.",
	).Default("3").Int()

	return c
}

// writablePaths creates the log file when it is configured and returns the
// paths that must stay writable after dropping privileges.
func (c *logConfig) writablePaths() ([]string, error) {
	if *c.file == "" {
		return nil, nil
	}

	path, err := filepath.Abs(*c.file)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return []string{path, filepath.Dir(path)}, f.Close()
}

// newLogger returns the app logger and a closer of its output.
func (c *logConfig) newLogger() (*slog.Logger, io.Closer) {
	if *c.file == "" {
		c.promslog.Writer = os.Stderr

		return promslog.New(c.promslog), nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   *c.file,
		MaxSize:    *c.maxSize,
		MaxBackups: *c.backups,
		Compress:   true,
	}
	c.promslog.Writer = rotator

	return promslog.New(c.promslog), rotator
}
