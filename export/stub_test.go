package export

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/melkeydev/db-export/databases"
	"github.com/melkeydev/db-export/types"
)

// sliceSource is a RowSource over rows held in memory.
type sliceSource struct {
	rows   []types.Row
	pos    int
	failAt int
	closed bool
}

func newSliceSource(rows ...types.Row) *sliceSource {
	return &sliceSource{rows: rows, failAt: -1}
}

func (s *sliceSource) Next() (types.Row, error) {
	if s.failAt >= 0 && s.pos == s.failAt {
		return types.Row{}, errors.New("connection reset by peer")
	}
	if s.pos >= len(s.rows) {
		return types.Row{}, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func row(cols []string, vals ...any) types.Row {
	return types.Row{Columns: cols, Values: vals}
}

// stubConnector serves fixed tables from memory.
type stubConnector struct {
	kind      types.Kind
	tables    map[string][]types.Row
	order     []string
	failTable string
	listErr   error

	mu      sync.Mutex
	fetched []string
}

func (c *stubConnector) Kind() types.Kind               { return c.kind }
func (c *stubConnector) Ping(ctx context.Context) error { return nil }
func (c *stubConnector) Close() error                   { return nil }

func (c *stubConnector) ListTables(ctx context.Context, schema string) ([]string, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.order, nil
}

func (c *stubConnector) ListSchemas(ctx context.Context) ([]string, error) {
	return []string{"public"}, nil
}

func (c *stubConnector) FetchRows(ctx context.Context, schema, table string) (types.RowSource, error) {
	c.mu.Lock()
	c.fetched = append(c.fetched, table)
	c.mu.Unlock()

	if table == c.failTable {
		return nil, &types.QueryError{Table: table, Cause: errors.New("permission denied")}
	}
	return newSliceSource(c.tables[table]...), nil
}

// stubSessions hands out one connector.
type stubSessions struct {
	conn databases.Connector
}

func (s *stubSessions) Connector(kind types.Kind) (databases.Connector, error) {
	if s.conn == nil || s.conn.Kind() != kind {
		return nil, &types.NoActiveConnectionError{Kind: kind}
	}
	return s.conn, nil
}

// countingRecorder tallies recorder calls.
type countingRecorder struct {
	mu      sync.Mutex
	tables  int
	rows    int64
	results map[string]int
}

func (r *countingRecorder) RecordTableExport(kind types.Kind, rows int64, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables++
	r.rows += rows
}

func (r *countingRecorder) RecordExport(kind types.Kind, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[string]int{}
	}
	r.results[result]++
}
