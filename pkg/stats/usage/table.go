// Package usage builds normalized usage tables from fetched row sets and
// computes their derived columns.
package usage

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/marzstat/marzstat/internal/structset"
	"github.com/marzstat/marzstat/pkg/stats/models"
)

// Custom errors.
var (
	ErrMissingColumn   = errors.New("missing required column")
	ErrNegativeTraffic = errors.New("negative traffic")
	ErrDuplicateUser   = errors.New("duplicate username in lifetime summary")
)

var (
	eventIndexes   = structset.CachedFieldIndexes(reflect.TypeOf(models.UsageEvent{}))
	summaryIndexes = structset.CachedFieldIndexes(reflect.TypeOf(models.UserLifetimeSummary{}))
)

// EventTable is the normalized raw events table.
type EventTable struct {
	Events []models.UsageEvent `json:"events"`

	// HasTimestamp is set when the source row set carried a created_at column.
	// Hour of each event is only valid when it is true.
	HasTimestamp bool `json:"has_timestamp"`
}

// Len returns number of events.
func (t EventTable) Len() int {
	return len(t.Events)
}

// SummaryTable is the normalized lifetime summary table, one row per user.
type SummaryTable struct {
	Users []models.UserLifetimeSummary `json:"users"`
}

// Len returns number of users.
func (t SummaryTable) Len() int {
	return len(t.Users)
}

// NewEventTable decodes a row set of usage events and derives traffic in GB
// and, when a timestamp column is present, the hour of day of every event.
func NewEventTable(rs models.RowSet) (EventTable, error) {
	table := EventTable{
		Events:       []models.UsageEvent{},
		HasTimestamp: rs.HasColumn(models.ColCreatedAt),
	}

	if rs.Len() == 0 {
		return table, nil
	}

	if !rs.HasColumn(models.ColUsedTraffic) {
		return EventTable{}, fmt.Errorf("%w: %s", ErrMissingColumn, models.ColUsedTraffic)
	}

	table.Events = make([]models.UsageEvent, rs.Len())

	for i, row := range rs.Rows {
		var event models.UsageEvent
		if err := structset.DecodeRow(rs.Columns, row, eventIndexes, &event); err != nil {
			return EventTable{}, fmt.Errorf("failed to decode event row %d: %w", i, err)
		}

		if event.UsedTraffic < 0 {
			return EventTable{}, fmt.Errorf("%w in event row %d: %d", ErrNegativeTraffic, i, event.UsedTraffic)
		}

		if event.Node == "" {
			event.Node = models.DefaultNode
		}

		event.UsedTrafficGB = models.TrafficGB(event.UsedTraffic)

		if table.HasTimestamp {
			event.Hour = event.CreatedAt.Hour()
		}

		table.Events[i] = event
	}

	return table, nil
}

// NewSummaryTable decodes a row set of per user lifetime aggregates. When the
// source does not provide lifetime_days it is derived from first and last
// connection dates.
func NewSummaryTable(rs models.RowSet) (SummaryTable, error) {
	table := SummaryTable{Users: []models.UserLifetimeSummary{}}

	if rs.Len() == 0 {
		return table, nil
	}

	for _, col := range []string{models.ColUsername, models.ColUsedTraffic} {
		if !rs.HasColumn(col) {
			return SummaryTable{}, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	deriveLifetime := !rs.HasColumn(models.ColLifetimeDays) &&
		rs.HasColumn(models.ColFirstConn) && rs.HasColumn(models.ColLastConn)

	seen := make(map[string]struct{}, rs.Len())
	table.Users = make([]models.UserLifetimeSummary, rs.Len())

	for i, row := range rs.Rows {
		var user models.UserLifetimeSummary
		if err := structset.DecodeRow(rs.Columns, row, summaryIndexes, &user); err != nil {
			return SummaryTable{}, fmt.Errorf("failed to decode summary row %d: %w", i, err)
		}

		if _, ok := seen[user.Username]; ok {
			return SummaryTable{}, fmt.Errorf("%w: %s", ErrDuplicateUser, user.Username)
		}

		seen[user.Username] = struct{}{}

		if user.UsedTraffic < 0 {
			return SummaryTable{}, fmt.Errorf("%w for user %s: %d", ErrNegativeTraffic, user.Username, user.UsedTraffic)
		}

		if deriveLifetime {
			user.LifetimeDays = models.LifetimeDays(user.FirstConn, user.LastConn)
		}

		user.UsedTrafficGB = models.TrafficGB(user.UsedTraffic)
		table.Users[i] = user
	}

	return table, nil
}
