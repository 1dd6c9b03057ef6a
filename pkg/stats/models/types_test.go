package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrafficGB(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected float64
	}{
		{0, 0},
		{1073741824, 1},
		{2147483648, 2},
		{536870912, 0.5},
		{1, 1.0 / 1073741824},
	}

	for _, test := range tests {
		assert.InDelta(t, test.expected, TrafficGB(test.bytes), 1e-15)
	}
}

func TestLifetimeDays(t *testing.T) {
	first := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	last := time.Date(2024, 1, 3, 0, 5, 0, 0, time.UTC)
	assert.Equal(t, int64(2), LifetimeDays(first, last))

	// Same calendar day regardless of time of day
	assert.Equal(t, int64(0), LifetimeDays(first, first.Add(13*time.Hour)))

	// Crossing midnight counts as one day
	late := time.Date(2024, 2, 28, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, int64(1), LifetimeDays(late, late.Add(2*time.Minute)))

	// Leap year
	assert.Equal(t, int64(366), LifetimeDays(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	))
}

func TestRowSet(t *testing.T) {
	rs := RowSet{
		Columns: []string{ColUsername, ColUsedTraffic},
		Rows:    [][]any{{"a", int64(1)}},
	}

	assert.Equal(t, 1, rs.Len())
	assert.True(t, rs.HasColumn(ColUsername))
	assert.False(t, rs.HasColumn(ColCreatedAt))
	assert.Equal(t, 0, RowSet{}.Len())
}
