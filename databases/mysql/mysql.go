package mysql

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/melkeydev/db-export/databases/sqlutil"
	"github.com/melkeydev/db-export/types"
)

const listTablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_type = 'BASE TABLE'
	AND table_schema = DATABASE()
	ORDER BY table_name
`

type MySQLConnector struct {
	db *sqlx.DB
}

// DSN renders a go-sql-driver connection string for the descriptor.
func DSN(d types.Descriptor) string {
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	cfg.DBName = d.Database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func NewMySQLConnector(ctx context.Context, d types.Descriptor) (*MySQLConnector, error) {
	db, err := sqlx.Open("mysql", DSN(d))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	connector := &MySQLConnector{
		db: db,
	}

	if err := connector.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return connector, nil
}

func (c *MySQLConnector) Kind() types.Kind {
	return types.KindMySQL
}

func (c *MySQLConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// ListTables returns the base tables of the connected database. MySQL has
// no schema level below the database, so schema is ignored.
func (c *MySQLConnector) ListTables(ctx context.Context, _ string) ([]string, error) {
	var tables []string
	if err := c.db.SelectContext(ctx, &tables, listTablesQuery); err != nil {
		return nil, &types.QueryError{Cause: fmt.Errorf("failed to query tables: %w", err)}
	}
	return tables, nil
}

func (c *MySQLConnector) ListSchemas(ctx context.Context) ([]string, error) {
	return nil, types.ErrSchemasUnsupported
}

func (c *MySQLConnector) FetchRows(ctx context.Context, _ string, table string) (types.RowSource, error) {
	query := "SELECT * FROM " + sqlutil.QuoteMySQLIdent(table)
	return sqlutil.SelectAll(ctx, c.db, table, query)
}

func (c *MySQLConnector) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
