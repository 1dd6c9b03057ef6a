package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueries(t *testing.T) {
	tests := []struct {
		offset   time.Duration
		interval string
		cutoff   string
	}{
		{3 * time.Hour, "interval 3 hour", "concat( (curdate() - interval 1 day), ' 21:00:00' )"},
		{5*time.Hour + 30*time.Minute, "interval 330 minute", "concat( (curdate() - interval 1 day), ' 18:30:00' )"},
		{0, "interval 0 hour", "concat( curdate(), ' 00:00:00' )"},
	}

	for _, test := range tests {
		t.Run(test.offset.String(), func(t *testing.T) {
			queries, err := NewQueries(test.offset)
			require.NoError(t, err)

			assert.Contains(t, queries.Events, "`a`.`created_at` + interval "+test.interval[len("interval "):])
			assert.Contains(t, queries.Events, test.cutoff)
			assert.Contains(t, queries.Events, "ifnull(`n`.`name`, 'Main') AS `node`")
			assert.Contains(t, queries.Events, "order by `a`.`created_at` desc")
			assert.Contains(t, queries.Lifetime, "AS `lifetime_days`")
			assert.Contains(t, queries.Lifetime, "order by count(`users_usage`.`created_at`) desc")
		})
	}
}

func TestNewQueriesInvalidOffset(t *testing.T) {
	for _, offset := range []time.Duration{-time.Hour, 24 * time.Hour, 90 * time.Second} {
		_, err := NewQueries(offset)
		require.ErrorIs(t, err, ErrInvalidOffset)
	}
}
