package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/melkeydev/db-export/databases"
	"github.com/melkeydev/db-export/types"
)

type fakeConnector struct {
	kind     types.Kind
	tables   []string
	closeErr error

	mu     sync.Mutex
	closed int
}

func (c *fakeConnector) Kind() types.Kind               { return c.kind }
func (c *fakeConnector) Ping(ctx context.Context) error { return nil }

func (c *fakeConnector) ListTables(ctx context.Context, schema string) ([]string, error) {
	return c.tables, nil
}

func (c *fakeConnector) ListSchemas(ctx context.Context) ([]string, error) {
	if c.kind != types.KindPostgres {
		return nil, types.ErrSchemasUnsupported
	}
	return []string{"public", "sales"}, nil
}

func (c *fakeConnector) FetchRows(ctx context.Context, schema, table string) (types.RowSource, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return c.closeErr
}

type fakeMetrics struct {
	connects map[string]int
	active   int
}

func (f *fakeMetrics) RecordConnect(kind types.Kind, result string) {
	if f.connects == nil {
		f.connects = map[string]int{}
	}
	f.connects[string(kind)+":"+result]++
}

func (f *fakeMetrics) SetActiveSessions(n int) { f.active = n }

// opener returns an OpenFunc that records every connector it hands out.
func opener(opened *[]*fakeConnector) OpenFunc {
	return func(ctx context.Context, d types.Descriptor) (databases.Connector, error) {
		if d.Host == "unreachable" {
			return nil, errors.New("dial tcp: connection refused")
		}
		c := &fakeConnector{kind: d.Kind, tables: []string{"orders", "users"}}
		*opened = append(*opened, c)
		return c, nil
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pg() types.Descriptor {
	return types.Descriptor{Kind: types.KindPostgres, User: "app", Database: "shop"}
}

func my() types.Descriptor {
	return types.Descriptor{Kind: types.KindMySQL, User: "app", Database: "shop"}
}

func TestManager_NoActiveConnection(t *testing.T) {
	m := NewManager(Options{Logger: quietLogger()})

	if _, err := m.ListTables(context.Background(), types.KindMySQL, ""); err == nil {
		t.Fatal("expected an error")
	} else {
		var nac *types.NoActiveConnectionError
		if !errors.As(err, &nac) || nac.Kind != types.KindMySQL {
			t.Errorf("expected NoActiveConnectionError for mysql, got %v", err)
		}
	}

	var nac *types.NoActiveConnectionError
	if _, err := m.ListSchemas(context.Background()); !errors.As(err, &nac) {
		t.Errorf("expected NoActiveConnectionError, got %v", err)
	}
}

func TestManager_ConnectReplacesAllSessions(t *testing.T) {
	var opened []*fakeConnector
	metrics := &fakeMetrics{}
	m := NewManager(Options{Open: opener(&opened), Metrics: metrics, Logger: quietLogger()})
	ctx := context.Background()

	if err := m.Connect(ctx, pg()); err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if !m.Connected(types.KindPostgres) {
		t.Fatal("expected postgres to be connected")
	}

	if err := m.Connect(ctx, my()); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}

	if opened[0].closed != 1 {
		t.Errorf("expected the postgres handle to be closed once, got %d", opened[0].closed)
	}
	if m.Connected(types.KindPostgres) {
		t.Error("postgres handle should have been torn down")
	}
	if !m.Connected(types.KindMySQL) {
		t.Error("expected mysql to be connected")
	}

	tables, err := m.ListTables(ctx, types.KindMySQL, "")
	if err != nil || len(tables) != 2 {
		t.Errorf("ListTables = %v, %v", tables, err)
	}

	var nac *types.NoActiveConnectionError
	if _, err := m.ListTables(ctx, types.KindPostgres, "public"); !errors.As(err, &nac) {
		t.Errorf("expected NoActiveConnectionError for postgres, got %v", err)
	}

	if metrics.connects["postgres:success"] != 1 || metrics.connects["mysql:success"] != 1 {
		t.Errorf("connect metrics = %v", metrics.connects)
	}
	if metrics.active != 1 {
		t.Errorf("active sessions = %d, want 1", metrics.active)
	}
}

func TestManager_ConnectSameKindReplaces(t *testing.T) {
	var opened []*fakeConnector
	m := NewManager(Options{Open: opener(&opened), Logger: quietLogger()})
	ctx := context.Background()

	m.Connect(ctx, pg())
	m.Connect(ctx, pg())

	if len(opened) != 2 {
		t.Fatalf("expected 2 opens, got %d", len(opened))
	}
	if opened[0].closed != 1 || opened[1].closed != 0 {
		t.Errorf("closed counts = %d, %d", opened[0].closed, opened[1].closed)
	}

	conn, err := m.Connector(types.KindPostgres)
	if err != nil {
		t.Fatalf("Connector: %v", err)
	}
	if conn != opened[1] {
		t.Error("expected the newest handle to be active")
	}
}

func TestManager_TeardownErrorIsIgnored(t *testing.T) {
	first := &fakeConnector{kind: types.KindPostgres, closeErr: errors.New("already closed")}
	calls := 0
	m := NewManager(Options{
		Logger: quietLogger(),
		Open: func(ctx context.Context, d types.Descriptor) (databases.Connector, error) {
			calls++
			if calls == 1 {
				return first, nil
			}
			return &fakeConnector{kind: d.Kind}, nil
		},
	})

	m.Connect(context.Background(), pg())
	if err := m.Connect(context.Background(), my()); err != nil {
		t.Errorf("teardown error should not fail connect: %v", err)
	}
}

func TestManager_ConnectFailureLeavesNoSession(t *testing.T) {
	var opened []*fakeConnector
	metrics := &fakeMetrics{}
	m := NewManager(Options{Open: opener(&opened), Metrics: metrics, Logger: quietLogger()})
	ctx := context.Background()

	m.Connect(ctx, pg())

	bad := my()
	bad.Host = "unreachable"
	err := m.Connect(ctx, bad)

	var ce *types.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if m.Connected(types.KindPostgres) || m.Connected(types.KindMySQL) {
		t.Error("expected no active handles after a failed connect")
	}
	if metrics.connects["mysql:error"] != 1 {
		t.Errorf("connect metrics = %v", metrics.connects)
	}
}

func TestManager_ConnectValidates(t *testing.T) {
	called := false
	m := NewManager(Options{
		Logger: quietLogger(),
		Open: func(ctx context.Context, d types.Descriptor) (databases.Connector, error) {
			called = true
			return nil, nil
		},
	})

	err := m.Connect(context.Background(), types.Descriptor{Kind: types.KindMySQL})
	var bad *types.BadRequestError
	if !errors.As(err, &bad) {
		t.Errorf("expected BadRequestError, got %v", err)
	}
	if called {
		t.Error("open must not run for an invalid descriptor")
	}
}

func TestManager_UnsupportedKindKeepsSession(t *testing.T) {
	var opened []*fakeConnector
	m := NewManager(Options{Open: opener(&opened), Logger: quietLogger()})
	ctx := context.Background()

	if err := m.Connect(ctx, pg()); err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	err := m.Connect(ctx, types.Descriptor{Kind: "oracle", User: "app", Database: "shop"})
	var bad *types.BadRequestError
	if !errors.As(err, &bad) {
		t.Fatalf("expected BadRequestError, got %v", err)
	}
	if !m.Connected(types.KindPostgres) || opened[0].closed != 0 {
		t.Error("a rejected descriptor must not tear down the active session")
	}
	if len(opened) != 1 {
		t.Errorf("open called %d times, want 1", len(opened))
	}
}

func TestManager_ConnectTimeout(t *testing.T) {
	m := NewManager(Options{
		Logger:         quietLogger(),
		ConnectTimeout: 20 * time.Millisecond,
		Open: func(ctx context.Context, d types.Descriptor) (databases.Connector, error) {
			<-ctx.Done()
			return nil, &types.ConnectionError{Kind: d.Kind, Cause: ctx.Err()}
		},
	})

	err := m.Connect(context.Background(), pg())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestManager_ListSchemas(t *testing.T) {
	var opened []*fakeConnector
	m := NewManager(Options{Open: opener(&opened), Logger: quietLogger()})

	m.Connect(context.Background(), pg())
	schemas, err := m.ListSchemas(context.Background())
	if err != nil {
		t.Fatalf("ListSchemas: %v", err)
	}
	if len(schemas) != 2 || schemas[0] != "public" {
		t.Errorf("schemas = %v", schemas)
	}
}

func TestManager_Shutdown(t *testing.T) {
	var opened []*fakeConnector
	m := NewManager(Options{Open: opener(&opened), Logger: quietLogger()})

	m.Connect(context.Background(), types.Descriptor{Kind: types.KindSQLite, Database: "shop.db"})
	m.Shutdown()

	if opened[0].closed != 1 {
		t.Errorf("expected handle closed on shutdown, got %d", opened[0].closed)
	}
	if m.Connected(types.KindSQLite) {
		t.Error("expected no handles after shutdown")
	}
}
