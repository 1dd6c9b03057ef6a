package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/marzstat/marzstat/pkg/stats/base"
	"github.com/marzstat/marzstat/pkg/stats/dashboard"
	"github.com/marzstat/marzstat/pkg/stats/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"
)

// dashboardBuilder builds a single dashboard.
type dashboardBuilder interface {
	Build(ctx context.Context) (*dashboard.Dashboard, error)
}

// MarzstatReport represents the `mstat` cli.
type MarzstatReport struct {
	appName string
	App     kingpin.Application
}

// NewMarzstatReport returns a new MarzstatReport instance.
func NewMarzstatReport() (*MarzstatReport, error) {
	return &MarzstatReport{
		appName: base.ReportAppName,
		App:     base.ReportApp,
	}, nil
}

// Main is the entry point of the `mstat` command.
func (m *MarzstatReport) Main() error {
	var (
		configFile = m.App.Flag(
			"config.file",
			"Configuration file path.",
		).Envar("MARZSTAT_CONFIG_FILE").Default("").String()
		topN = m.App.Flag(
			"top",
			"Number of users in rankings. Overrides dashboard.top_n of the config file.",
		).Default("0").Int()
		sections = m.App.Flag(
			"section",
			"Section to print. Repeat to print several sections. All sections are printed by default.",
		).Enums(render.SectionIDs()...)
		format = m.App.Flag(
			"format",
			"Output format of tables.",
		).Default("text").Enum("text", "markdown", "csv", "html")
		locale = m.App.Flag(
			"locale",
			"Locale of titles. Overrides dashboard.locale of the config file.",
		).Default("").String()
		timeout = m.App.Flag(
			"timeout",
			"Maximum time to wait for the data.",
		).Default("2m").Duration()
	)

	logConfig := addLogFlags(&m.App)
	m.App.Version(version.Print(m.appName))
	m.App.UsageWriter(os.Stdout)
	m.App.HelpFlag.Short('h')

	_, err := m.App.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("failed to parse CLI flags: %w", err)
	}

	config, err := loadConfig(*configFile)
	if err != nil {
		return err
	}

	if *topN < 0 {
		return fmt.Errorf("%w: --top must not be negative", ErrInvalidConfig)
	}

	if *topN > 0 {
		config.Dashboard.TopN = *topN
	}

	if *locale != "" {
		config.Dashboard.Locale = *locale
	}

	labels, err := render.LabelsFor(config.Dashboard.Locale)
	if err != nil {
		return err
	}

	logger, logCloser := logConfig.newLogger()
	defer logCloser.Close()

	// Metrics are not exposed by the report
	pipeline, err := newPipeline(config, prometheus.NewRegistry(), logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	return report(ctx, os.Stdout, pipeline.builder, labels, *sections, *format)
}

// report builds a dashboard and writes the selected sections to w. Empty
// selection writes all sections.
func report(ctx context.Context, w io.Writer, builder dashboardBuilder, labels render.Labels, selected []string, format string) error {
	start := time.Now()

	d, err := builder.Build(ctx)
	if err != nil {
		return err
	}

	sections := render.Sections(d, labels)
	if len(selected) > 0 {
		sections = slices.DeleteFunc(sections, func(s render.Section) bool {
			return !slices.Contains(selected, s.ID)
		})
	}

	if _, err := fmt.Fprintf(w, "%s\n%s: %s (%s)\n",
		labels.Title, labels.Updated, d.LoadedAt.Format(time.DateTime), time.Since(start).Round(time.Millisecond),
	); err != nil {
		return err
	}

	return render.WriteSections(w, sections, format)
}
