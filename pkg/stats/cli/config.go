package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marzstat/marzstat/pkg/stats/aggregate"
	"github.com/marzstat/marzstat/pkg/stats/dashboard"
	"github.com/marzstat/marzstat/pkg/stats/render"
	"github.com/marzstat/marzstat/pkg/stats/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/model"
)

// Custom errors.
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidConfig     = errors.New("invalid config")
)

// Credentials are the SSH and MySQL credentials. Key names are kept compatible
// with existing Marzban stats deployments.
type Credentials struct {
	SSHHost     string `yaml:"ssh_host"`
	SSHPort     int    `yaml:"ssh_port"`
	SSHUser     string `yaml:"ssh_user"`
	SSHPassword string `yaml:"ssh_pass"`
	SQLHost     string `yaml:"sql_hostname"`
	SQLPort     int    `yaml:"sql_port"`
	SQLUser     string `yaml:"sql_username"`
	SQLPassword string `yaml:"sql_password"`
	SQLDatabase string `yaml:"sql_main_database"`
}

// SourceConfig configures the data source.
type SourceConfig struct {
	KnownHostsFile string         `yaml:"known_hosts_file"`
	DialTimeout    model.Duration `yaml:"dial_timeout"`
	QueryTimeout   model.Duration `yaml:"query_timeout"`
	CacheTTL       model.Duration `yaml:"cache_ttl"`
	CacheCapacity  uint64         `yaml:"cache_capacity"`
	TimezoneOffset model.Duration `yaml:"timezone_offset"`
}

// DashboardConfig configures the presentation.
type DashboardConfig struct {
	TopN   int    `yaml:"top_n"`
	Locale string `yaml:"locale"`
}

// AppConfig contains the configuration of marzstat apps.
type AppConfig struct {
	Credentials Credentials     `yaml:"credentials"`
	Source      SourceConfig    `yaml:"source"`
	Dashboard   DashboardConfig `yaml:"dashboard"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *AppConfig) UnmarshalYAML(unmarshal func(any) error) error {
	// Set a default config
	*c = AppConfig{
		Credentials: Credentials{
			SSHPort: 22,
			SQLPort: 3306,
		},
		Source: SourceConfig{
			DialTimeout:    model.Duration(10 * time.Second),
			QueryTimeout:   model.Duration(time.Minute),
			CacheTTL:       model.Duration(5 * time.Minute),
			CacheCapacity:  64,
			TimezoneOffset: model.Duration(3 * time.Hour),
		},
		Dashboard: DashboardConfig{
			TopN:   aggregate.DefaultN,
			Locale: render.DefaultLocale,
		},
	}

	type plain AppConfig

	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}

	return c.Validate()
}

// Validate checks that every credential is set and options are in range.
func (c *AppConfig) Validate() error {
	creds := []struct {
		key   string
		value string
	}{
		{"ssh_host", c.Credentials.SSHHost},
		{"ssh_user", c.Credentials.SSHUser},
		{"ssh_pass", c.Credentials.SSHPassword},
		{"sql_hostname", c.Credentials.SQLHost},
		{"sql_username", c.Credentials.SQLUser},
		{"sql_password", c.Credentials.SQLPassword},
		{"sql_main_database", c.Credentials.SQLDatabase},
	}

	for _, cred := range creds {
		if cred.value == "" {
			return fmt.Errorf("%w: credentials.%s", ErrMissingCredential, cred.key)
		}
	}

	if c.Credentials.SSHPort <= 0 || c.Credentials.SQLPort <= 0 {
		return fmt.Errorf("%w: ports must be positive", ErrInvalidConfig)
	}

	if c.Dashboard.TopN <= 0 {
		return fmt.Errorf("%w: dashboard.top_n must be positive", ErrInvalidConfig)
	}

	if c.Source.QueryTimeout <= 0 || c.Source.DialTimeout <= 0 || c.Source.CacheTTL <= 0 {
		return fmt.Errorf("%w: source timeouts and cache_ttl must be positive", ErrInvalidConfig)
	}

	if _, err := render.LabelsFor(c.Dashboard.Locale); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if _, err := source.NewQueries(time.Duration(c.Source.TimezoneOffset)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// pipeline is the fetch and build chain shared by both apps.
type pipeline struct {
	fetcher *source.SQLFetcher
	cache   *source.TTLCache
	builder *dashboard.Builder
}

// Close stops the cache and closes the database.
func (p *pipeline) Close() error {
	p.cache.Stop()

	return p.fetcher.Close()
}

// newPipeline wires SQL fetcher, cache and dashboard builder from config.
// Metrics are registered on registerer.
func newPipeline(c *AppConfig, registerer prometheus.Registerer, logger *slog.Logger) (*pipeline, error) {
	queries, err := source.NewQueries(time.Duration(c.Source.TimezoneOffset))
	if err != nil {
		return nil, err
	}

	metrics := source.NewMetrics(registerer)

	fetcher, err := source.NewSQLFetcher(&source.Config{
		Logger: logger.With("sub_system", "source"),
		Tunnel: source.TunnelConfig{
			Host:           c.Credentials.SSHHost,
			Port:           c.Credentials.SSHPort,
			User:           c.Credentials.SSHUser,
			Password:       c.Credentials.SSHPassword,
			KnownHostsFile: c.Source.KnownHostsFile,
			DialTimeout:    time.Duration(c.Source.DialTimeout),
		},
		DB: source.DBConfig{
			Host:     c.Credentials.SQLHost,
			Port:     c.Credentials.SQLPort,
			User:     c.Credentials.SQLUser,
			Password: c.Credentials.SQLPassword,
			Database: c.Credentials.SQLDatabase,
		},
		QueryTimeout: time.Duration(c.Source.QueryTimeout),
		Metrics:      metrics,
	})
	if err != nil {
		return nil, err
	}

	cache := source.NewTTLCache(time.Duration(c.Source.CacheTTL), c.Source.CacheCapacity)

	builder, err := dashboard.New(&dashboard.Config{
		Logger:     logger.With("sub_system", "dashboard"),
		Fetcher:    source.NewCachedFetcher(logger.With("sub_system", "cache"), fetcher, cache, metrics),
		Queries:    queries,
		TopN:       c.Dashboard.TopN,
		Registerer: registerer,
	})
	if err != nil {
		cache.Stop()
		fetcher.Close()

		return nil, err
	}

	return &pipeline{fetcher: fetcher, cache: cache, builder: builder}, nil
}
