package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/melkeydev/db-export/databases"
	"github.com/melkeydev/db-export/types"
)

// OpenFunc opens and probes a connector for a descriptor.
type OpenFunc func(ctx context.Context, d types.Descriptor) (databases.Connector, error)

// Metrics receives session events.
type Metrics interface {
	RecordConnect(kind types.Kind, result string)
	SetActiveSessions(n int)
}

type Options struct {
	Open           OpenFunc
	ConnectTimeout time.Duration
	Metrics        Metrics
	Logger         *slog.Logger
}

// Manager owns the live database handles, at most one per kind. A new
// connection replaces every handle the manager holds.
type Manager struct {
	open    OpenFunc
	timeout time.Duration
	metrics Metrics
	logger  *slog.Logger

	mu    sync.RWMutex
	conns map[types.Kind]databases.Connector
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		open:    opts.Open,
		timeout: opts.ConnectTimeout,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		conns:   make(map[types.Kind]databases.Connector),
	}
	if m.open == nil {
		m.open = databases.Open
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Connect closes every open handle, then opens and probes a new one for d.
// Teardown errors are logged and do not fail the connect. When the new
// connection fails the manager is left with no handles.
func (m *Manager) Connect(ctx context.Context, d types.Descriptor) error {
	d = d.WithDefaults()
	if err := d.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeAllLocked()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	conn, err := m.open(ctx, d)
	if err != nil {
		m.record(d.Kind, "error")
		m.logger.WarnContext(ctx, "connect failed", "database", d, "error", err)

		var bad *types.BadRequestError
		var ce *types.ConnectionError
		if !errors.As(err, &bad) && !errors.As(err, &ce) {
			err = &types.ConnectionError{Kind: d.Kind, Cause: err}
		}
		return err
	}

	m.conns[d.Kind] = conn
	m.record(d.Kind, "success")
	m.logger.InfoContext(ctx, "connected", "database", d)
	return nil
}

func (m *Manager) closeAllLocked() {
	for kind, conn := range m.conns {
		if err := conn.Close(); err != nil {
			m.logger.Warn("failed to close previous connection", "type", kind, "error", err)
		}
		delete(m.conns, kind)
	}
	if m.metrics != nil {
		m.metrics.SetActiveSessions(0)
	}
}

func (m *Manager) record(kind types.Kind, result string) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordConnect(kind, result)
	m.metrics.SetActiveSessions(len(m.conns))
}

// Connector returns the active handle for kind.
func (m *Manager) Connector(kind types.Kind) (databases.Connector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.conns[kind]
	if !ok {
		return nil, &types.NoActiveConnectionError{Kind: kind}
	}
	return conn, nil
}

// Connected reports whether a handle of kind is open.
func (m *Manager) Connected(kind types.Kind) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[kind]
	return ok
}

// ListTables lists tables on the active handle of kind.
func (m *Manager) ListTables(ctx context.Context, kind types.Kind, schema string) ([]string, error) {
	conn, err := m.Connector(kind)
	if err != nil {
		return nil, err
	}
	return conn.ListTables(ctx, schema)
}

// ListSchemas lists schemas on the active PostgreSQL handle.
func (m *Manager) ListSchemas(ctx context.Context) ([]string, error) {
	conn, err := m.Connector(types.KindPostgres)
	if err != nil {
		return nil, err
	}
	return conn.ListSchemas(ctx)
}

// Shutdown closes every handle.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeAllLocked()
}
