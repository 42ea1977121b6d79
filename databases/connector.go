package databases

import (
	"context"
	"fmt"

	"github.com/melkeydev/db-export/databases/mysql"
	"github.com/melkeydev/db-export/databases/postgres"
	"github.com/melkeydev/db-export/databases/sqlite"
	"github.com/melkeydev/db-export/types"
)

// Connector is a live handle to one database.
type Connector interface {
	Kind() types.Kind
	Ping(ctx context.Context) error

	// ListTables returns the table names visible under schema.
	ListTables(ctx context.Context, schema string) ([]string, error)

	// ListSchemas returns user schemas. Only PostgreSQL supports it.
	ListSchemas(ctx context.Context) ([]string, error)

	// FetchRows streams every row of table. The caller must Close the source.
	FetchRows(ctx context.Context, schema, table string) (types.RowSource, error)

	Close() error
}

// Open connects to the database described by d and probes it before returning.
func Open(ctx context.Context, d types.Descriptor) (Connector, error) {
	d = d.WithDefaults()

	var (
		c   Connector
		err error
	)
	switch d.Kind {
	case types.KindMySQL:
		c, err = mysql.NewMySQLConnector(ctx, d)
	case types.KindPostgres:
		c, err = postgres.NewPostgresConnector(ctx, d)
	case types.KindSQLite:
		c, err = sqlite.NewSQLiteConnector(ctx, d)
	default:
		return nil, &types.BadRequestError{Message: fmt.Sprintf("unsupported database type: %q", d.Kind)}
	}
	if err != nil {
		return nil, &types.ConnectionError{Kind: d.Kind, Cause: err}
	}
	return c, nil
}
