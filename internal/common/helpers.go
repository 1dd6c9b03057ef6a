// Package common provides general utility helper functions and types
package common

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"
)

// ErrMissingConfigPath is returned when no config file path is provided.
var ErrMissingConfigPath = errors.New("config file path missing")

// TimeTrack tracks execution time of each function.
func TimeTrack(start time.Time, name string, logger *slog.Logger) {
	elapsed := time.Since(start)
	logger.Debug(name, "elapsed_time", elapsed)
}

// Fingerprint returns a short stable identifier of a query string so that
// queries can be referred to in logs and metrics without dumping the SQL.
func Fingerprint(query string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(query))
}

// MakeConfig reads config file, merges with passed default config and returns updated
// config instance.
func MakeConfig[T any](filePath string) (*T, error) {
	// Create a new pointer to config instance
	config := new(T)

	// If no config file path provided, return default config
	if filePath == "" {
		return config, ErrMissingConfigPath
	}

	// Read config file
	configFile, err := os.ReadFile(filePath)
	if err != nil {
		return config, err
	}

	if err = yaml.Unmarshal(configFile, config); err != nil {
		return config, err
	}

	return config, nil
}
