package render

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/marzstat/marzstat/pkg/stats/dashboard"
	"github.com/marzstat/marzstat/pkg/stats/models"
)

// ErrUnknownFormat is returned for unsupported table formats.
var ErrUnknownFormat = errors.New("unknown table format")

const timeLayout = "2006-01-02 15:04:05"

// Section IDs.
const (
	SectionHourly   = "hourly"
	SectionToday    = "today"
	SectionLifetime = "lifetime"
	SectionRaw      = "raw"
)

// SectionIDs returns the IDs of all sections in display order.
func SectionIDs() []string {
	return []string{SectionHourly, SectionToday, SectionLifetime, SectionRaw}
}

// Section is a titled group of charts and tables.
type Section struct {
	ID     string
	Title  string
	Charts []Chart
	Tables []table.Writer

	// Collapsed sections are folded on the HTML page
	Collapsed bool
}

type column[T any] struct {
	title string
	value func(T) any
}

var tableStyle = table.Style{
	Name:    "MarzstatLight",
	Box:     table.StyleBoxLight,
	Color:   table.ColorOptionsDefault,
	HTML:    table.DefaultHTMLOptions,
	Options: table.OptionsDefault,
	Size:    table.SizeOptionsDefault,
	Title:   table.TitleOptionsDefault,
	Format: table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	},
}

// newTable returns a table writer with one row per element of rows.
func newTable[T any](title string, rows []T, columns []column[T]) table.Writer {
	t := table.NewWriter()
	t.SetTitle(title)
	t.SetStyle(tableStyle)
	t.SuppressTrailingSpaces()

	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c.title
	}

	t.AppendHeader(header)

	for _, r := range rows {
		row := make(table.Row, len(columns))
		for i, c := range columns {
			row[i] = c.value(r)
		}

		t.AppendRow(row)
	}

	return t
}

func formatGB(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format(timeLayout)
}

func rollupColumns(l Labels, withTraffic, withConnections bool) []column[models.UserRollup] {
	columns := []column[models.UserRollup]{
		{l.Username, func(r models.UserRollup) any { return r.Username }},
	}

	if withTraffic {
		columns = append(columns, column[models.UserRollup]{l.TrafficGB, func(r models.UserRollup) any { return formatGB(r.TotalTrafficGB) }})
	}

	if withConnections {
		columns = append(columns, column[models.UserRollup]{l.ConnectionsCol, func(r models.UserRollup) any { return r.Connections }})
	}

	return columns
}

func summaryColumn(l Labels, ranking string) column[models.UserLifetimeSummary] {
	switch ranking {
	case "connections":
		return column[models.UserLifetimeSummary]{l.TotalConnections, func(s models.UserLifetimeSummary) any { return s.Connections }}
	case "lifetime":
		return column[models.UserLifetimeSummary]{l.LifetimeDays, func(s models.UserLifetimeSummary) any { return s.LifetimeDays }}
	default:
		return column[models.UserLifetimeSummary]{l.TrafficGB, func(s models.UserLifetimeSummary) any { return formatGB(s.UsedTrafficGB) }}
	}
}

// RollupTable returns a table of per user rollups.
func RollupTable(title string, rows []models.UserRollup, l Labels) table.Writer {
	return newTable(title, rows, rollupColumns(l, true, true))
}

// RankingTable returns a two column table of username and the ranking value
// of lifetime summaries.
func RankingTable(title string, rows []models.UserLifetimeSummary, ranking string, l Labels) table.Writer {
	return newTable(title, rows, []column[models.UserLifetimeSummary]{
		{l.Username, func(s models.UserLifetimeSummary) any { return s.Username }},
		summaryColumn(l, ranking),
	})
}

// SummaryTable returns the full lifetime summary table.
func SummaryTable(title string, rows []models.UserLifetimeSummary, l Labels) table.Writer {
	return newTable(title, rows, []column[models.UserLifetimeSummary]{
		{l.Username, func(s models.UserLifetimeSummary) any { return s.Username }},
		{l.TotalConnections, func(s models.UserLifetimeSummary) any { return s.Connections }},
		{l.TrafficGB, func(s models.UserLifetimeSummary) any { return formatGB(s.UsedTrafficGB) }},
		{l.FirstConn, func(s models.UserLifetimeSummary) any { return formatTime(s.FirstConn) }},
		{l.LastConn, func(s models.UserLifetimeSummary) any { return formatTime(s.LastConn) }},
		{l.LifetimeDays, func(s models.UserLifetimeSummary) any { return s.LifetimeDays }},
	})
}

// EventsTable returns a table of raw usage events.
func EventsTable(title string, rows []models.UsageEvent, l Labels) table.Writer {
	return newTable(title, rows, []column[models.UsageEvent]{
		{l.CreatedAt, func(e models.UsageEvent) any { return formatTime(e.CreatedAt) }},
		{l.Username, func(e models.UsageEvent) any { return e.Username }},
		{l.Node, func(e models.UsageEvent) any { return e.Node }},
		{l.UsedTraffic, func(e models.UsageEvent) any { return e.UsedTraffic }},
		{l.TrafficGB, func(e models.UsageEvent) any { return formatGB(e.UsedTrafficGB) }},
	})
}

// HourlyTable returns hourly connections and traffic side by side. Hours
// missing in either series are left blank.
func HourlyTable(title string, connections []models.HourlyConnections, traffic []models.HourlyTraffic, l Labels) table.Writer {
	type hourly struct {
		hour        int
		connections any
		traffic     any
	}

	byHour := make(map[int]*hourly)
	rows := make([]*hourly, 0, len(connections))

	get := func(h int) *hourly {
		if r, ok := byHour[h]; ok {
			return r
		}

		r := &hourly{hour: h, connections: "", traffic: ""}
		byHour[h] = r
		rows = append(rows, r)

		return r
	}

	for _, c := range connections {
		get(c.Hour).connections = c.Connections
	}

	for _, t := range traffic {
		get(t.Hour).traffic = fmt.Sprintf("%.1f", t.Traffic)
	}

	slices.SortFunc(rows, func(a, b *hourly) int {
		return cmp.Compare(a.hour, b.hour)
	})

	return newTable(title, rows, []column[*hourly]{
		{l.Hour, func(r *hourly) any { return r.hour }},
		{l.Connections, func(r *hourly) any { return r.connections }},
		{l.TrafficGB, func(r *hourly) any { return r.traffic }},
	})
}

// Sections returns all sections of a dashboard in display order.
func Sections(d *dashboard.Dashboard, l Labels) []Section {
	n := d.TopN

	return []Section{
		{
			ID:    SectionHourly,
			Title: l.TodayByHour,
			Charts: []Chart{
				HourlyConnectionsChart(d.Today.HourlyConnections, d.Today.MeanConnections, l),
				HourlyTrafficChart(d.Today.HourlyTraffic, d.Today.MeanTraffic, l),
			},
			Tables: []table.Writer{
				HourlyTable(l.HourlyTable, d.Today.HourlyConnections, d.Today.HourlyTraffic, l),
			},
		},
		{
			ID:    SectionToday,
			Title: fmt.Sprintf(l.TopTodayFmt, n),
			Tables: []table.Writer{
				newTable(l.ByConnectionsDay, d.Today.TopConnections, rollupColumns(l, false, true)),
				newTable(l.ByTrafficDay, d.Today.TopTraffic, rollupColumns(l, true, false)),
				newTable(l.ByTrafficLastHour, d.Today.TopLastHourTraffic, rollupColumns(l, true, false)),
			},
		},
		{
			ID:     SectionLifetime,
			Title:  l.Overall,
			Charts: lifetimeCharts(d, l),
			Tables: []table.Writer{
				RankingTable(fmt.Sprintf(l.TopUsersFmt, n)+": "+l.ByTraffic, d.Lifetime.TopTraffic, "traffic", l),
				RankingTable(fmt.Sprintf(l.TopUsersFmt, n)+": "+l.ByConnections, d.Lifetime.TopConnections, "connections", l),
				RankingTable(fmt.Sprintf(l.TopUsersFmt, n)+": "+l.ByLifetime, d.Lifetime.TopLifetime, "lifetime", l),
				RankingTable(fmt.Sprintf(l.AntiTopUsersFmt, n)+": "+l.ByTraffic, d.Lifetime.BottomTraffic, "traffic", l),
				RankingTable(fmt.Sprintf(l.AntiTopUsersFmt, n)+": "+l.ByConnections, d.Lifetime.BottomConnections, "connections", l),
			},
		},
		{
			ID:        SectionRaw,
			Title:     l.RawData,
			Collapsed: true,
			Tables: []table.Writer{
				EventsTable(l.Events, d.Events.Events, l),
				EventsTable(l.LastHour, d.LastHour.Events, l),
				RollupTable(l.UsersToday, d.Today.Users, l),
				RollupTable(l.UsersLastHour, d.Today.LastHourUsers, l),
				SummaryTable(l.AllUsers, d.Summary.Users, l),
			},
		},
	}
}

// WriteSections renders tables of sections to w in format, which is one of
// text, markdown, csv or html.
func WriteSections(w io.Writer, sections []Section, format string) error {
	for _, s := range sections {
		if _, err := fmt.Fprintf(w, "\n%s\n\n", s.Title); err != nil {
			return err
		}

		for _, t := range s.Tables {
			var out string

			switch format {
			case "", "text":
				out = t.Render()
			case "markdown":
				out = t.RenderMarkdown()
			case "csv":
				out = t.RenderCSV()
			case "html":
				out = t.RenderHTML()
			default:
				return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
			}

			if _, err := fmt.Fprintln(w, out); err != nil {
				return err
			}
		}
	}

	return nil
}
