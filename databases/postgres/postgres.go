package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/melkeydev/db-export/databases/sqlutil"
	"github.com/melkeydev/db-export/types"
)

const (
	listSchemasQuery = `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		AND schema_name NOT LIKE 'pg_temp_%'
		AND schema_name NOT LIKE 'pg_toast_temp_%'
		ORDER BY schema_name
	`

	listTablesQuery = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		AND table_schema = $1
		ORDER BY table_name
	`
)

type PostgresConnector struct {
	db     *sqlx.DB
	schema string
}

// ConnString renders a postgres:// URL for the descriptor.
func ConnString(d types.Descriptor) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

func NewPostgresConnector(ctx context.Context, d types.Descriptor) (*PostgresConnector, error) {
	config, err := pgx.ParseConfig(ConnString(d))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.PreferSimpleProtocol = true

	db := sqlx.NewDb(stdlib.OpenDB(*config), "pgx")

	schema := d.Schema
	if schema == "" {
		schema = types.DefaultSchema
	}

	connector := &PostgresConnector{
		db:     db,
		schema: schema,
	}

	if err := connector.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return connector, nil
}

func (c *PostgresConnector) Kind() types.Kind {
	return types.KindPostgres
}

func (c *PostgresConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *PostgresConnector) ListSchemas(ctx context.Context) ([]string, error) {
	var schemas []string
	if err := c.db.SelectContext(ctx, &schemas, listSchemasQuery); err != nil {
		return nil, &types.QueryError{Cause: fmt.Errorf("failed to query schemas: %w", err)}
	}
	return schemas, nil
}

// ListTables returns the base tables in schema, falling back to the
// schema the connection was opened with.
func (c *PostgresConnector) ListTables(ctx context.Context, schema string) ([]string, error) {
	var tables []string
	if err := c.db.SelectContext(ctx, &tables, listTablesQuery, c.schemaOrDefault(schema)); err != nil {
		return nil, &types.QueryError{Cause: fmt.Errorf("failed to query tables: %w", err)}
	}
	return tables, nil
}

func (c *PostgresConnector) FetchRows(ctx context.Context, schema, table string) (types.RowSource, error) {
	query := fmt.Sprintf("SELECT * FROM %s.%s",
		sqlutil.QuoteANSIIdent(c.schemaOrDefault(schema)),
		sqlutil.QuoteANSIIdent(table),
	)
	return sqlutil.SelectAll(ctx, c.db, table, query)
}

func (c *PostgresConnector) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *PostgresConnector) schemaOrDefault(schema string) string {
	if schema != "" {
		return schema
	}
	return c.schema
}
