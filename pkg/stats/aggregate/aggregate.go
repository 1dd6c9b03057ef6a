// Package aggregate implements the pure transformations that turn usage tables
// into the views shown on the dashboard: hourly buckets, per user rollups and
// top/bottom N rankings.
//
// Functions in this package never mutate their input and always return
// non-nil slices so that empty views serialize as empty lists.
package aggregate

import (
	"cmp"
	"maps"
	"math"
	"slices"

	"github.com/marzstat/marzstat/pkg/stats/models"
	"github.com/marzstat/marzstat/pkg/stats/usage"
)

// LastHour returns the events whose timestamp equals the most recent timestamp
// of the table. All events sharing that exact timestamp are returned, so the
// width of the window depends on the granularity of the source.
func LastHour(t usage.EventTable) usage.EventTable {
	out := usage.EventTable{HasTimestamp: t.HasTimestamp, Events: []models.UsageEvent{}}
	if !t.HasTimestamp || t.Len() == 0 {
		return out
	}

	latest := t.Events[0].CreatedAt
	for _, event := range t.Events[1:] {
		if event.CreatedAt.After(latest) {
			latest = event.CreatedAt
		}
	}

	for _, event := range t.Events {
		if event.CreatedAt.Equal(latest) {
			out.Events = append(out.Events, event)
		}
	}

	return out
}

// ConnectionsByHour returns the number of distinct users per hour of day.
// Hours without events are omitted. Events of unknown users still open their
// hour but are not counted. Result is sorted by hour.
func ConnectionsByHour(t usage.EventTable) []models.HourlyConnections {
	if !t.HasTimestamp {
		return []models.HourlyConnections{}
	}

	users := make(map[int]map[string]struct{})

	for _, event := range t.Events {
		if users[event.Hour] == nil {
			users[event.Hour] = make(map[string]struct{})
		}

		if event.Username == "" {
			continue
		}

		users[event.Hour][event.Username] = struct{}{}
	}

	buckets := make([]models.HourlyConnections, 0, len(users))
	for _, hour := range slices.Sorted(maps.Keys(users)) {
		buckets = append(buckets, models.HourlyConnections{Hour: hour, Connections: len(users[hour])})
	}

	return buckets
}

// TrafficByHour returns the traffic in GB per hour of day, rounded to one
// decimal. Hours without events are omitted. Result is sorted by hour.
//
// Each bucket is rounded on its own, so the sum of the buckets can differ
// from the rounded total of the table.
func TrafficByHour(t usage.EventTable) []models.HourlyTraffic {
	if !t.HasTimestamp {
		return []models.HourlyTraffic{}
	}

	sums := make(map[int]float64)
	for _, event := range t.Events {
		sums[event.Hour] += event.UsedTrafficGB
	}

	buckets := make([]models.HourlyTraffic, 0, len(sums))
	for _, hour := range slices.Sorted(maps.Keys(sums)) {
		buckets = append(buckets, models.HourlyTraffic{Hour: hour, Traffic: Round(sums[hour], 1)})
	}

	return buckets
}

// TrafficByUser returns the total traffic and number of events of every user,
// sorted by traffic and then by number of events, both descending. Users
// that tie on both keys keep their alphabetical order. Events of unknown
// users are skipped.
func TrafficByUser(t usage.EventTable) []models.UserRollup {
	index := make(map[string]int)
	rollups := []models.UserRollup{}

	for _, event := range t.Events {
		if event.Username == "" {
			continue
		}

		i, ok := index[event.Username]
		if !ok {
			i = len(rollups)
			index[event.Username] = i
			rollups = append(rollups, models.UserRollup{Username: event.Username})
		}

		rollups[i].TotalTrafficGB += event.UsedTrafficGB
		rollups[i].Connections++
	}

	slices.SortFunc(rollups, func(a, b models.UserRollup) int {
		return cmp.Compare(a.Username, b.Username)
	})
	slices.SortStableFunc(rollups, func(a, b models.UserRollup) int {
		if c := cmp.Compare(b.TotalTrafficGB, a.TotalTrafficGB); c != 0 {
			return c
		}

		return cmp.Compare(b.Connections, a.Connections)
	})

	return rollups
}

// MeanConnections returns the mean number of connections over hourly buckets.
func MeanConnections(buckets []models.HourlyConnections) float64 {
	if len(buckets) == 0 {
		return 0
	}

	var total int
	for _, b := range buckets {
		total += b.Connections
	}

	return float64(total) / float64(len(buckets))
}

// MeanTraffic returns the mean traffic over hourly buckets.
func MeanTraffic(buckets []models.HourlyTraffic) float64 {
	if len(buckets) == 0 {
		return 0
	}

	var total float64
	for _, b := range buckets {
		total += b.Traffic
	}

	return total / float64(len(buckets))
}

// Round rounds v to given decimals. Exact halves are rounded to the nearest
// even digit.
func Round(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)

	return math.RoundToEven(v*scale) / scale
}
