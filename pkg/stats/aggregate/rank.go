package aggregate

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/marzstat/marzstat/pkg/stats/models"
)

// DefaultN is the default number of rows returned by Top and Bottom.
const DefaultN = 5

// ErrUnknownRanking is returned when a ranking name is not known.
var ErrUnknownRanking = errors.New("unknown ranking")

// Key returns the value a row is ranked by.
type Key[T any] func(T) float64

// Ranking keys of user rollups.
var (
	RollupTraffic     Key[models.UserRollup] = func(r models.UserRollup) float64 { return r.TotalTrafficGB }
	RollupConnections Key[models.UserRollup] = func(r models.UserRollup) float64 { return float64(r.Connections) }
)

// Ranking keys of lifetime summaries.
var (
	SummaryTraffic     Key[models.UserLifetimeSummary] = func(s models.UserLifetimeSummary) float64 { return s.UsedTrafficGB }
	SummaryConnections Key[models.UserLifetimeSummary] = func(s models.UserLifetimeSummary) float64 { return float64(s.Connections) }
	SummaryLifetime    Key[models.UserLifetimeSummary] = func(s models.UserLifetimeSummary) float64 { return float64(s.LifetimeDays) }
)

var (
	rollupKeys = map[string]Key[models.UserRollup]{
		"traffic":     RollupTraffic,
		"connections": RollupConnections,
	}
	summaryKeys = map[string]Key[models.UserLifetimeSummary]{
		"traffic":     SummaryTraffic,
		"connections": SummaryConnections,
		"lifetime":    SummaryLifetime,
	}
)

// RollupKey returns the rollup ranking key by name.
func RollupKey(name string) (Key[models.UserRollup], error) {
	if key, ok := rollupKeys[name]; ok {
		return key, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownRanking, name)
}

// SummaryKey returns the lifetime summary ranking key by name.
func SummaryKey(name string) (Key[models.UserLifetimeSummary], error) {
	if key, ok := summaryKeys[name]; ok {
		return key, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownRanking, name)
}

// Top returns the n rows with the largest key, largest first. Rows with equal
// keys keep their input order. When fewer than n rows exist all rows are returned.
func Top[T any](rows []T, n int, key Key[T]) []T {
	return selectN(rows, n, func(a, b T) int {
		return cmp.Compare(key(b), key(a))
	})
}

// Bottom returns the n rows with the smallest key, smallest first. Rows with
// equal keys keep their input order. When fewer than n rows exist all rows are returned.
func Bottom[T any](rows []T, n int, key Key[T]) []T {
	return selectN(rows, n, func(a, b T) int {
		return cmp.Compare(key(a), key(b))
	})
}

func selectN[T any](rows []T, n int, compare func(a, b T) int) []T {
	if n <= 0 || len(rows) == 0 {
		return []T{}
	}

	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, compare)

	return slices.Clip(sorted[:min(n, len(sorted))])
}
