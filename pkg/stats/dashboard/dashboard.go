// Package dashboard runs the fetch, decode and aggregate pipeline that produces
// a single dashboard snapshot.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/marzstat/marzstat/internal/common"
	"github.com/marzstat/marzstat/pkg/stats/aggregate"
	"github.com/marzstat/marzstat/pkg/stats/models"
	"github.com/marzstat/marzstat/pkg/stats/source"
	"github.com/marzstat/marzstat/pkg/stats/usage"
	"github.com/prometheus/client_golang/prometheus"
)

// Custom errors.
var (
	ErrFetch  = errors.New("failed to fetch data")
	ErrDecode = errors.New("failed to decode data")
)

// Today holds the views computed from the events of the current day.
type Today struct {
	HourlyConnections []models.HourlyConnections `json:"hourly_connections"`
	HourlyTraffic     []models.HourlyTraffic     `json:"hourly_traffic"`
	MeanConnections   float64                    `json:"mean_connections"`
	MeanTraffic       float64                    `json:"mean_traffic"`

	// Per user rollups of the whole day and of the most recent timestamp
	Users         []models.UserRollup `json:"users"`
	LastHourUsers []models.UserRollup `json:"last_hour_users"`

	TopConnections     []models.UserRollup `json:"top_connections"`
	TopTraffic         []models.UserRollup `json:"top_traffic"`
	TopLastHourTraffic []models.UserRollup `json:"top_last_hour_traffic"`
}

// Lifetime holds the all time rankings.
type Lifetime struct {
	TopTraffic        []models.UserLifetimeSummary `json:"top_traffic"`
	TopConnections    []models.UserLifetimeSummary `json:"top_connections"`
	TopLifetime       []models.UserLifetimeSummary `json:"top_lifetime"`
	BottomTraffic     []models.UserLifetimeSummary `json:"bottom_traffic"`
	BottomConnections []models.UserLifetimeSummary `json:"bottom_connections"`
}

// Dashboard is an immutable snapshot of one load. Nothing in it must be
// modified once Build returns.
type Dashboard struct {
	ID       string    `json:"id"`
	LoadedAt time.Time `json:"loaded_at"`
	TopN     int       `json:"top_n"`

	Events   usage.EventTable   `json:"events"`
	LastHour usage.EventTable   `json:"last_hour"`
	Summary  usage.SummaryTable `json:"summary"`

	Today    Today    `json:"today"`
	Lifetime Lifetime `json:"lifetime"`
}

// Config contains the configuration of dashboard Builder.
type Config struct {
	Logger     *slog.Logger
	Fetcher    source.Fetcher
	Queries    source.Queries
	TopN       int
	Registerer prometheus.Registerer
}

// Builder builds dashboards.
type Builder struct {
	logger  *slog.Logger
	fetcher source.Fetcher
	queries source.Queries
	topN    int
	loads   *prometheus.CounterVec
}

// New returns a new dashboard Builder.
func New(c *Config) (*Builder, error) {
	if c.Fetcher == nil {
		return nil, errors.New("dashboard needs a fetcher")
	}

	topN := c.TopN
	if topN <= 0 {
		topN = aggregate.DefaultN
	}

	b := &Builder{
		logger:  c.Logger,
		fetcher: c.Fetcher,
		queries: c.Queries,
		topN:    topN,
	}

	if c.Registerer != nil {
		b.loads = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "marzstat",
				Subsystem: "dashboard",
				Name:      "loads_total",
				Help:      "Total number of dashboard loads.",
			},
			[]string{"result"},
		)
		c.Registerer.MustRegister(b.loads)
	}

	return b, nil
}

// TopN returns the default ranking size.
func (b *Builder) TopN() int {
	return b.topN
}

// Build fetches both row sets and computes every view. Any failure fails the
// whole load and no partial dashboard is returned.
func (b *Builder) Build(ctx context.Context) (*Dashboard, error) {
	id := uuid.NewString()
	logger := b.logger.With("load_id", id)

	defer common.TimeTrack(time.Now(), "Dashboard built", logger)

	d, err := b.build(ctx, id)

	if b.loads != nil {
		if err != nil {
			b.loads.WithLabelValues("error").Inc()
		} else {
			b.loads.WithLabelValues("success").Inc()
		}
	}

	if err != nil {
		logger.Error("Failed to build dashboard", "err", err)

		return nil, err
	}

	logger.Debug("Dashboard loaded", "events", d.Events.Len(), "users", d.Summary.Len())

	return d, nil
}

func (b *Builder) build(ctx context.Context, id string) (*Dashboard, error) {
	// Queries are issued one after the other
	eventRows, err := b.fetcher.Fetch(ctx, b.queries.Events)
	if err != nil {
		return nil, fmt.Errorf("%w: usage events: %w", ErrFetch, err)
	}

	summaryRows, err := b.fetcher.Fetch(ctx, b.queries.Lifetime)
	if err != nil {
		return nil, fmt.Errorf("%w: lifetime summary: %w", ErrFetch, err)
	}

	events, err := usage.NewEventTable(eventRows)
	if err != nil {
		return nil, fmt.Errorf("%w: usage events: %w", ErrDecode, err)
	}

	summary, err := usage.NewSummaryTable(summaryRows)
	if err != nil {
		return nil, fmt.Errorf("%w: lifetime summary: %w", ErrDecode, err)
	}

	return Compute(id, events, summary, b.topN), nil
}

// Compute derives every view of a dashboard from decoded tables.
func Compute(id string, events usage.EventTable, summary usage.SummaryTable, topN int) *Dashboard {
	lastHour := aggregate.LastHour(events)

	hourlyConnections := aggregate.ConnectionsByHour(events)
	hourlyTraffic := aggregate.TrafficByHour(events)
	users := aggregate.TrafficByUser(events)
	lastHourUsers := aggregate.TrafficByUser(lastHour)

	return &Dashboard{
		ID:       id,
		LoadedAt: time.Now(),
		TopN:     topN,
		Events:   events,
		LastHour: lastHour,
		Summary:  summary,
		Today: Today{
			HourlyConnections:  hourlyConnections,
			HourlyTraffic:      hourlyTraffic,
			MeanConnections:    aggregate.MeanConnections(hourlyConnections),
			MeanTraffic:        aggregate.MeanTraffic(hourlyTraffic),
			Users:              users,
			LastHourUsers:      lastHourUsers,
			TopConnections:     aggregate.Top(users, topN, aggregate.RollupConnections),
			TopTraffic:         aggregate.Top(users, topN, aggregate.RollupTraffic),
			TopLastHourTraffic: aggregate.Top(lastHourUsers, topN, aggregate.RollupTraffic),
		},
		Lifetime: Lifetime{
			TopTraffic:        aggregate.Top(summary.Users, topN, aggregate.SummaryTraffic),
			TopConnections:    aggregate.Top(summary.Users, topN, aggregate.SummaryConnections),
			TopLifetime:       aggregate.Top(summary.Users, topN, aggregate.SummaryLifetime),
			BottomTraffic:     aggregate.Bottom(summary.Users, topN, aggregate.SummaryTraffic),
			BottomConnections: aggregate.Bottom(summary.Users, topN, aggregate.SummaryConnections),
		},
	}
}
