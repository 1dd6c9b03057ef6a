package source

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/marzstat/marzstat/pkg/stats/models"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noOpLogger = slog.New(slog.DiscardHandler)

func newMockFetcher(t *testing.T, metrics *Metrics) (*SQLFetcher, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return newSQLFetcher(db, &Config{Logger: noOpLogger, QueryTimeout: time.Second, Metrics: metrics}), mock
}

func TestSQLFetcherFetch(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	fetcher, mock := newMockFetcher(t, metrics)

	queries, err := NewQueries(3 * time.Hour)
	require.NoError(t, err)

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"created_at", "used_traffic", "node", "username"}).
		AddRow(ts, int64(1073741824), []byte("Main"), []byte("alice")).
		AddRow(ts, int64(10), []byte("de-1"), nil)
	mock.ExpectQuery(queries.Events).WillReturnRows(rows)

	rs, err := fetcher.Fetch(context.Background(), queries.Events)
	require.NoError(t, err)

	assert.Equal(t, []string{"created_at", "used_traffic", "node", "username"}, rs.Columns)
	assert.Equal(t, [][]any{
		{ts, int64(1073741824), "Main", "alice"},
		{ts, int64(10), "de-1", nil},
	}, rs.Rows)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.InDelta(t, 1.0, counterValue(t, metrics.fetchTotal, "success"), 0)
}

func TestSQLFetcherEmpty(t *testing.T) {
	fetcher, mock := newMockFetcher(t, nil)

	mock.ExpectQuery(lifetimeQuery).WillReturnRows(sqlmock.NewRows([]string{"username", "cnt_connections"}))

	rs, err := fetcher.Fetch(context.Background(), lifetimeQuery)
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())
	assert.NotNil(t, rs.Rows)
	assert.True(t, rs.HasColumn("cnt_connections"))
}

func TestSQLFetcherErrors(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	fetcher, mock := newMockFetcher(t, metrics)

	mock.ExpectQuery("select 1").WillReturnError(errors.New("connection refused"))

	_, err := fetcher.Fetch(context.Background(), "select 1")
	require.ErrorIs(t, err, ErrQuery)

	rows := sqlmock.NewRows([]string{"a"}).AddRow(1).RowError(0, errors.New("broken"))
	mock.ExpectQuery("select 2").WillReturnRows(rows)

	_, err = fetcher.Fetch(context.Background(), "select 2")
	require.ErrorIs(t, err, ErrScan)

	require.NoError(t, mock.ExpectationsWereMet())
	assert.InDelta(t, 2.0, counterValue(t, metrics.fetchTotal, "error"), 0)
}

func TestNewTunnel(t *testing.T) {
	_, err := NewTunnel(TunnelConfig{Host: "localhost", Port: 22}, noOpLogger)
	require.NoError(t, err)

	_, err = NewTunnel(TunnelConfig{
		Host:           "localhost",
		Port:           22,
		KnownHostsFile: filepath.Join(t.TempDir(), "missing"),
	}, noOpLogger)
	require.Error(t, err)
}

func TestTunnelDialUnreachable(t *testing.T) {
	// Grab a free port and release it so nothing listens there
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	tunnel, err := NewTunnel(TunnelConfig{Host: "127.0.0.1", Port: port, DialTimeout: time.Second}, noOpLogger)
	require.NoError(t, err)

	_, err = tunnel.DialContext(context.Background(), "127.0.0.1:3306")
	require.Error(t, err)
}

func TestNewSQLFetcher(t *testing.T) {
	fetcher, err := NewSQLFetcher(&Config{
		Logger: noOpLogger,
		Tunnel: TunnelConfig{Host: "127.0.0.1", Port: 22, DialTimeout: time.Second},
		DB:     DBConfig{Host: "127.0.0.1", Port: 3306, User: "marzban", Password: "secret", Database: "marzban"},
	})
	require.NoError(t, err)
	require.NoError(t, fetcher.Close())

	_, err = NewSQLFetcher(&Config{
		Logger: noOpLogger,
		Tunnel: TunnelConfig{Host: "127.0.0.1", Port: 22, KnownHostsFile: filepath.Join(t.TempDir(), "missing")},
	})
	require.Error(t, err)
}

func TestScanRowsDecimalAsString(t *testing.T) {
	fetcher, mock := newMockFetcher(t, nil)

	rows := sqlmock.NewRows([]string{"username", "used_traffic"}).AddRow("bob", []byte("2147483648"))
	mock.ExpectQuery(lifetimeQuery).WillReturnRows(rows)

	rs, err := fetcher.Fetch(context.Background(), lifetimeQuery)
	require.NoError(t, err)
	assert.Equal(t, models.RowSet{Columns: []string{"username", "used_traffic"}, Rows: [][]any{{"bob", "2147483648"}}}, rs)
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, label string) float64 {
	t.Helper()

	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(label).Write(m))

	return m.GetCounter().GetValue()
}
