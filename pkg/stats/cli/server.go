// Package cli implements the marzstat and mstat CLI apps.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/marzstat/marzstat/internal/common"
	internal_runtime "github.com/marzstat/marzstat/internal/runtime"
	"github.com/marzstat/marzstat/internal/security"
	"github.com/marzstat/marzstat/pkg/stats/base"
	marzstat_http "github.com/marzstat/marzstat/pkg/stats/http"
	"github.com/marzstat/marzstat/pkg/stats/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/common/version"
)

// MarzstatServer represents the `marzstat` cli.
type MarzstatServer struct {
	appName string
	App     kingpin.Application
}

// NewMarzstatServer returns a new MarzstatServer instance.
func NewMarzstatServer() (*MarzstatServer, error) {
	return &MarzstatServer{
		appName: base.ServerAppName,
		App:     base.ServerApp,
	}, nil
}

// Main is the entry point of the `marzstat` command.
func (m *MarzstatServer) Main() error {
	var (
		webListenAddresses = m.App.Flag(
			"web.listen-address",
			"Addresses on which to expose the dashboard and metrics.",
		).Default(":8501").Strings()
		webConfigFile = m.App.Flag(
			"web.config.file",
			"Path to configuration file that can enable TLS or authentication. See: https://github.com/prometheus/exporter-toolkit/blob/master/docs/web-configuration.md",
		).Envar("MARZSTAT_WEB_CONFIG_FILE").Default("").String()
		requestsLimit = m.App.Flag(
			"web.requests-limit",
			"Maximum number of requests per minute from a single client IP. Zero disables rate limiting.",
		).Default("0").Int()
		configFile = m.App.Flag(
			"config.file",
			"Configuration file path.",
		).Envar("MARZSTAT_CONFIG_FILE").Default("").String()
		maxProcs = m.App.Flag(
			"runtime.gomaxprocs", "The target number of CPUs Go will run on (GOMAXPROCS)",
		).Envar("GOMAXPROCS").Default("1").Int()

		runAsUser = m.App.Flag(
			"security.run-as-user",
			"User to run as when marzstat is started as root.",
		).Default("nobody").String()

		// Hidden test flags
		enableDebugServer = m.App.Flag(
			"web.debug-server",
			"Enable debug server on localhost (default: disabled).",
		).Default("false").Hidden().Bool()
		dropPrivs = m.App.Flag(
			"security.drop-privileges",
			"Drop privileges and run as --security.run-as-user when started as root.",
		).Default("true").Hidden().Bool()
	)

	// Socket activation only available on Linux
	systemdSocket := func() *bool { b := false; return &b }() //nolint:nlreturn
	if runtime.GOOS == "linux" {
		systemdSocket = m.App.Flag(
			"web.systemd-socket",
			"Use systemd socket activation listeners instead of port listeners (Linux only).",
		).Hidden().Bool()
	}

	logConfig := addLogFlags(&m.App)
	m.App.Version(version.Print(m.appName))
	m.App.UsageWriter(os.Stdout)
	m.App.HelpFlag.Short('h')

	_, err := m.App.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("failed to parse CLI flags: %w", err)
	}

	// Get absolute path for web config file if provided
	var webConfigFilePath string
	if *webConfigFile != "" {
		webConfigFilePath, err = filepath.Abs(*webConfigFile)
		if err != nil {
			return fmt.Errorf("failed to get absolute path of the web config file: %w", err)
		}
	}

	config, err := loadConfig(*configFile)
	if err != nil {
		return err
	}

	logPaths, err := logConfig.writablePaths()
	if err != nil {
		return err
	}

	// Set logger here after properly configuring promlog
	logger, logCloser := logConfig.newLogger()
	defer logCloser.Close()

	if *dropPrivs {
		configFilePath, _ := filepath.Abs(*configFile)

		securityManager, err := security.NewManager(&security.Config{
			RunAsUser:      *runAsUser,
			ReadPaths:      []string{configFilePath, webConfigFilePath, config.Source.KnownHostsFile},
			ReadWritePaths: logPaths,
		}, logger)
		if err != nil {
			logger.Error("Failed to create security manager", "err", err)

			return err
		}

		if err := securityManager.DropPrivileges(); err != nil {
			logger.Error("Failed to drop privileges", "err", err)

			return err
		}

		defer func() {
			if err := securityManager.Restore(); err != nil {
				logger.Error("Failed to remove ACL entries", "err", err)
			}
		}()
	}

	logger.Info("Starting "+m.appName, "version", version.Info())
	logOperationalInfo(logger, internal_runtime.Info)

	runtime.GOMAXPROCS(*maxProcs)
	logger.Debug("Go MAXPROCS", "procs", runtime.GOMAXPROCS(0))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		versioncollector.NewCollector(m.appName),
	)

	pipeline, err := newPipeline(config, registry, logger)
	if err != nil {
		logger.Error("Failed to create data source", "err", err)

		return err
	}
	defer pipeline.Close()

	labels, err := render.LabelsFor(config.Dashboard.Locale)
	if err != nil {
		return err
	}

	server, err := marzstat_http.New(&marzstat_http.Config{
		Logger: logger.With("sub_system", "http"),
		Web: base.WebConfig{
			Addresses:         *webListenAddresses,
			WebSystemdSocket:  *systemdSocket,
			WebConfigFile:     webConfigFilePath,
			RequestsLimit:     *requestsLimit,
			EnableDebugServer: *enableDebugServer,
		},
		Loader:   pipeline.builder,
		Labels:   labels,
		Gatherer: registry,
	})
	if err != nil {
		logger.Error("Failed to create dashboard server", "err", err)

		return err
	}

	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initializing the server in a goroutine so that
	// it won't block the graceful shutdown handling below
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Failed to start server", "err", err)
			stop()
		}
	}()

	// Listen for the interrupt signal.
	<-ctx.Done()

	// Restore default behavior on the interrupt signal and notify user of shutdown.
	stop()
	logger.Info("Shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutDownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutDownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "err", err)
	}

	logger.Info("See you next time!!")

	return nil
}

// loadConfig reads and validates the config file at path.
func loadConfig(path string) (*AppConfig, error) {
	if path == "" {
		return nil, common.ErrMissingConfigPath
	}

	configFilePath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path of the config file: %w", err)
	}

	config, err := common.MakeConfig[AppConfig](configFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Empty documents skip UnmarshalYAML
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// logOperationalInfo logs build context and host details. Host details are
// left out when they cannot be read.
func logOperationalInfo(logger *slog.Logger, hostInfo func() (internal_runtime.Host, error)) {
	attrs := []any{"build_context", version.BuildContext()}

	host, err := hostInfo()
	if err != nil {
		logger.Warn("Failed to get host details", "err", err)
	} else {
		attrs = append(attrs, "host_details", host)
	}

	logger.Info("Operational information", attrs...)
}
