// Package source fetches usage row sets from the panel database through an
// SSH tunnel and caches them per query.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/marzstat/marzstat/internal/common"
	"github.com/marzstat/marzstat/pkg/stats/models"
)

// Custom errors.
var (
	ErrQuery = errors.New("query failed")
	ErrScan  = errors.New("failed to scan rows")
)

// Fetcher executes a read-only query and returns its rows.
type Fetcher interface {
	Fetch(ctx context.Context, query string) (models.RowSet, error)
}

// DBConfig contains the MySQL parameters as seen from the SSH host.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Config contains the configuration of SQLFetcher.
type Config struct {
	Logger       *slog.Logger
	Tunnel       TunnelConfig
	DB           DBConfig
	QueryTimeout time.Duration
	Metrics      *Metrics
}

// SQLFetcher runs queries on MySQL through an SSH tunnel.
type SQLFetcher struct {
	logger       *slog.Logger
	db           *sql.DB
	queryTimeout time.Duration
	metrics      *Metrics
}

// NewSQLFetcher returns a new SQLFetcher. Every database connection gets its own
// SSH connection and both are closed once the connection is idle.
func NewSQLFetcher(c *Config) (*SQLFetcher, error) {
	tunnel, err := NewTunnel(c.Tunnel, c.Logger)
	if err != nil {
		return nil, err
	}

	// Dial networks are global to the driver so make the name unique
	network := "ssh-" + uuid.NewString()
	mysql.RegisterDialContext(network, tunnel.DialContext)

	dsn := mysql.NewConfig()
	dsn.User = c.DB.User
	dsn.Passwd = c.DB.Password
	dsn.Net = network
	dsn.Addr = net.JoinHostPort(c.DB.Host, strconv.Itoa(c.DB.Port))
	dsn.DBName = c.DB.Database
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.Timeout = c.Tunnel.DialTimeout

	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxIdleConns(0)

	c.Logger.Info("Database source configured", "ssh_host", c.Tunnel.Host, "db", dsn.Addr, "database", c.DB.Database)

	return newSQLFetcher(db, c), nil
}

func newSQLFetcher(db *sql.DB, c *Config) *SQLFetcher {
	return &SQLFetcher{
		logger:       c.Logger,
		db:           db,
		queryTimeout: c.QueryTimeout,
		metrics:      c.Metrics,
	}
}

// Fetch runs query and returns all its rows.
func (f *SQLFetcher) Fetch(ctx context.Context, query string) (rs models.RowSet, err error) {
	start := time.Now()

	defer func() {
		f.metrics.observeFetch(start, err)
	}()

	defer common.TimeTrack(start, "Query executed", f.logger.With("query", common.Fingerprint(query)))

	if f.queryTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, f.queryTimeout)
		defer cancel()
	}

	rows, err := f.db.QueryContext(ctx, query)
	if err != nil {
		return models.RowSet{}, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Close closes the database handle.
func (f *SQLFetcher) Close() error {
	return f.db.Close()
}

// scanRows reads all rows into a RowSet. Byte slices are converted to strings
// as MySQL returns DECIMAL and textual columns that way.
func scanRows(rows *sql.Rows) (models.RowSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return models.RowSet{}, fmt.Errorf("%w: %w", ErrScan, err)
	}

	rs := models.RowSet{Columns: columns, Rows: make([][]any, 0)}

	for rows.Next() {
		values := make([]any, len(columns))

		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return models.RowSet{}, fmt.Errorf("%w: %w", ErrScan, err)
		}

		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		rs.Rows = append(rs.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return models.RowSet{}, fmt.Errorf("%w: %w", ErrScan, err)
	}

	return rs, nil
}
