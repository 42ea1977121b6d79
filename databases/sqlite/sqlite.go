package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/melkeydev/db-export/databases/sqlutil"
	"github.com/melkeydev/db-export/types"
)

const listTablesQuery = `
	SELECT name
	FROM sqlite_master
	WHERE type = 'table'
	AND name NOT LIKE 'sqlite_%'
	ORDER BY name
`

type SQLiteConnector struct {
	db *sqlx.DB
}

// NewSQLiteConnector opens the database file named by d.Database.
func NewSQLiteConnector(ctx context.Context, d types.Descriptor) (*SQLiteConnector, error) {
	db, err := sqlx.Open("sqlite3", d.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	connector := &SQLiteConnector{
		db: db,
	}

	// Test the connection
	if err := connector.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return connector, nil
}

func (c *SQLiteConnector) Kind() types.Kind {
	return types.KindSQLite
}

func (c *SQLiteConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *SQLiteConnector) ListTables(ctx context.Context, _ string) ([]string, error) {
	var tables []string
	if err := c.db.SelectContext(ctx, &tables, listTablesQuery); err != nil {
		return nil, &types.QueryError{Cause: fmt.Errorf("failed to query tables: %w", err)}
	}
	return tables, nil
}

func (c *SQLiteConnector) ListSchemas(ctx context.Context) ([]string, error) {
	return nil, types.ErrSchemasUnsupported
}

func (c *SQLiteConnector) FetchRows(ctx context.Context, _ string, table string) (types.RowSource, error) {
	query := "SELECT * FROM " + sqlutil.QuoteANSIIdent(table)
	return sqlutil.SelectAll(ctx, c.db, table, query)
}

func (c *SQLiteConnector) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
