package source

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidOffset is returned for timezone offsets outside of [0, 24h) or not
// in whole minutes.
var ErrInvalidOffset = errors.New("timezone offset must be whole minutes in [0h, 24h)")

// Templates of canonical queries. Marzban stores timestamps in UTC, so the
// events are shifted into the dashboard timezone in SQL and "today" starts
// at local midnight expressed in UTC.
const (
	eventsQueryTmpl = `select (
        ` + "`a`.`created_at`" + ` + interval %[1]s
    ) AS ` + "`created_at`" + `,
    ` + "`a`.`used_traffic`" + ` AS ` + "`used_traffic`" + `,
    ifnull(` + "`n`.`name`" + `, 'Main') AS ` + "`node`" + `,
    ` + "`u`.`username`" + ` AS ` + "`username`" + `
from ( (
            ` + "`node_user_usages` `a`" + `
            left join ` + "`users` `u`" + ` on( (` + "`u`.`id` = `a`.`user_id`" + `))
        )
        left join ` + "`nodes` `n`" + ` on( (` + "`n`.`id` = `a`.`node_id`" + `))
    )
where (
        ` + "`a`.`created_at`" + ` >= concat( %[2]s, ' %[3]s' )
    )
order by ` + "`a`.`created_at`" + ` desc`

	lifetimeQuery = "select `users_usage`.`username` AS `username`,\n" +
		"    count(`users_usage`.`created_at`) AS `cnt_connections`,\n" +
		"    sum(`users_usage`.`used_traffic`) AS `used_traffic`,\n" +
		"    min(`users_usage`.`created_at`) AS `first_conn`,\n" +
		"    max(`users_usage`.`created_at`) AS `last_conn`, (\n" +
		"        to_days(max(`users_usage`.`created_at`)) - to_days(min(`users_usage`.`created_at`))\n" +
		"    ) AS `lifetime_days`\n" +
		"from `users_usage`\n" +
		"group by `users_usage`.`username`\n" +
		"order by count(`users_usage`.`created_at`) desc"
)

// Queries holds the two canonical queries of the dashboard.
type Queries struct {
	// Events returns created_at (shifted), used_traffic, node and username of
	// every usage event since local midnight, most recent first.
	Events string

	// Lifetime returns per user connection count, total traffic, first and
	// last connection and lifetime in days, most active users first.
	Lifetime string
}

// NewQueries returns the canonical queries for a dashboard whose local time is
// UTC+offset.
func NewQueries(offset time.Duration) (Queries, error) {
	if offset < 0 || offset >= 24*time.Hour || offset%time.Minute != 0 {
		return Queries{}, fmt.Errorf("%w: %s", ErrInvalidOffset, offset)
	}

	// Interval expression of the shift
	interval := fmt.Sprintf("%d minute", int(offset.Minutes()))
	if offset%time.Hour == 0 {
		interval = fmt.Sprintf("%d hour", int(offset.Hours()))
	}

	// Local midnight in UTC is on the previous day unless there is no shift
	day := "(curdate() - interval 1 day)"
	if offset == 0 {
		day = "curdate()"
	}

	cutoff := (24*time.Hour - offset) % (24 * time.Hour)
	clock := fmt.Sprintf("%02d:%02d:00", int(cutoff.Hours()), int(cutoff.Minutes())%60)

	return Queries{
		Events:   fmt.Sprintf(eventsQueryTmpl, interval, day, clock),
		Lifetime: lifetimeQuery,
	}, nil
}
