package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/melkeydev/db-export/config"
	"github.com/melkeydev/db-export/databases"
	"github.com/melkeydev/db-export/export"
	"github.com/melkeydev/db-export/metrics"
	"github.com/melkeydev/db-export/session"
	"github.com/melkeydev/db-export/types"
)

// memConnector serves tables from memory.
type memConnector struct {
	kind      types.Kind
	tables    map[string][]types.Row
	failTable string

	mu      sync.Mutex
	fetched []string
}

func (c *memConnector) Kind() types.Kind               { return c.kind }
func (c *memConnector) Ping(ctx context.Context) error { return nil }
func (c *memConnector) Close() error                   { return nil }

func (c *memConnector) ListTables(ctx context.Context, schema string) ([]string, error) {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *memConnector) ListSchemas(ctx context.Context) ([]string, error) {
	if c.kind != types.KindPostgres {
		return nil, types.ErrSchemasUnsupported
	}
	return []string{"public"}, nil
}

func (c *memConnector) FetchRows(ctx context.Context, schema, table string) (types.RowSource, error) {
	c.mu.Lock()
	c.fetched = append(c.fetched, table)
	c.mu.Unlock()

	if table == c.failTable {
		return nil, &types.QueryError{Table: table, Cause: errors.New("permission denied")}
	}
	return &memSource{rows: c.tables[table]}, nil
}

func (c *memConnector) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fetched)
}

type memSource struct {
	rows []types.Row
	pos  int
}

func (s *memSource) Next() (types.Row, error) {
	if s.pos >= len(s.rows) {
		return types.Row{}, io.EOF
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}

func (s *memSource) Close() error { return nil }

var (
	userCols  = []string{"id", "name", "email"}
	orderCols = []string{"id", "user_id", "total"}
)

func shopTables() map[string][]types.Row {
	return map[string][]types.Row{
		"users": {
			{Columns: userCols, Values: []any{int64(1), "Ada", "ada@example.com"}},
			{Columns: userCols, Values: []any{int64(2), "Bob", nil}},
		},
		"orders": {
			{Columns: orderCols, Values: []any{int64(10), int64(1), 19.99}},
		},
	}
}

type testEnv struct {
	server   *Server
	sessions *session.Manager
	conn     *memConnector
	metrics  *metrics.Collector
	opened   int
}

// newTestEnv wires a server whose connects open conn.
func newTestEnv(conn *memConnector, environment string) *testEnv {
	env := &testEnv{conn: conn}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.Environment = environment
	cfg.Metrics.Enabled = true
	cfg.Server.CORS.Enabled = true

	env.metrics = metrics.NewCollector(nil)
	env.sessions = session.NewManager(session.Options{
		Metrics: env.metrics,
		Logger:  logger,
		Open: func(ctx context.Context, d types.Descriptor) (databases.Connector, error) {
			if d.Host == "unreachable" {
				return nil, &types.ConnectionError{Kind: d.Kind, Cause: errors.New("dial tcp 10.0.0.1:5432: i/o timeout")}
			}
			env.opened++
			conn.kind = d.Kind
			return conn, nil
		},
	})
	exporter := export.NewExporter(env.sessions, export.Options{
		Recorder: env.metrics,
		Logger:   logger,
	})
	env.server = NewServer(cfg, env.sessions, exporter, env.metrics, logger)
	return env
}
