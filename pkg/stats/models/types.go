// Package models defines the data types shared by the fetcher, the aggregations
// and the presentation layer.
package models

import (
	"slices"
	"time"
)

// BytesPerGB is the number of bytes in a binary gigabyte (GiB).
const BytesPerGB = 1 << 30

// DefaultNode is the node name used for events that are not attributed to any node.
const DefaultNode = "Main"

// Column names as returned by the canonical queries.
const (
	ColCreatedAt      = "created_at"
	ColUsedTraffic    = "used_traffic"
	ColNode           = "node"
	ColUsername       = "username"
	ColCntConnections = "cnt_connections"
	ColFirstConn      = "first_conn"
	ColLastConn       = "last_conn"
	ColLifetimeDays   = "lifetime_days"
)

// RowSet is the tabular result of a single query: column names and rows of raw
// driver values.
type RowSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len returns number of rows.
func (r RowSet) Len() int {
	return len(r.Rows)
}

// HasColumn returns true when the row set contains column name.
func (r RowSet) HasColumn(name string) bool {
	return slices.Contains(r.Columns, name)
}

// UsageEvent is one usage record: traffic consumed by one user during one
// interval, attributed to a node.
type UsageEvent struct {
	CreatedAt     time.Time `json:"created_at"      sql:"created_at"`
	UsedTraffic   int64     `json:"used_traffic"    sql:"used_traffic"`
	Node          string    `json:"node"            sql:"node"`
	Username      string    `json:"username"        sql:"username"`
	UsedTrafficGB float64   `json:"used_traffic_gb" sql:"-"`
	Hour          int       `json:"hour"            sql:"-"` // Only meaningful when the table has a timestamp column
}

// UserLifetimeSummary is the all-time aggregate of a single user.
type UserLifetimeSummary struct {
	Username      string    `json:"username"        sql:"username"`
	Connections   int64     `json:"cnt_connections" sql:"cnt_connections"`
	UsedTraffic   int64     `json:"used_traffic"    sql:"used_traffic"`
	FirstConn     time.Time `json:"first_conn"      sql:"first_conn"`
	LastConn      time.Time `json:"last_conn"       sql:"last_conn"`
	LifetimeDays  int64     `json:"lifetime_days"   sql:"lifetime_days"`
	UsedTrafficGB float64   `json:"used_traffic_gb" sql:"-"`
}

// HourlyConnections is the number of distinct users seen in an hour of day.
type HourlyConnections struct {
	Hour        int `json:"hour"`
	Connections int `json:"connections"`
}

// HourlyTraffic is the traffic in GB consumed in an hour of day.
type HourlyTraffic struct {
	Hour    int     `json:"hour"`
	Traffic float64 `json:"traffic"`
}

// UserRollup is the per user traffic and number of events.
type UserRollup struct {
	Username       string  `json:"username"`
	TotalTrafficGB float64 `json:"total_traffic_gb"`
	Connections    int64   `json:"connections"`
}

// TrafficGB converts bytes into binary gigabytes.
func TrafficGB(bytes int64) float64 {
	return float64(bytes) / BytesPerGB
}

// LifetimeDays returns the difference of day numbers of last and first. Time
// of day is ignored, so two timestamps on consecutive dates are one day apart.
func LifetimeDays(first, last time.Time) int64 {
	return dayNumber(last) - dayNumber(first)
}

// dayNumber returns the number of days since epoch of the calendar date of t
// in its own location.
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / int64(24*time.Hour/time.Second)
}
