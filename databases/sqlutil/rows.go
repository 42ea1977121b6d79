package sqlutil

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/melkeydev/db-export/types"
)

// rowSource streams rows out of a read-only transaction.
type rowSource struct {
	tx      *sqlx.Tx
	rows    *sqlx.Rows
	columns []string
	table   string
	done    bool
}

// SelectAll runs query inside a read-only transaction and returns a
// RowSource over the result. The transaction ends when the source is closed.
func SelectAll(ctx context.Context, db *sqlx.DB, table, query string) (types.RowSource, error) {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{
		ReadOnly: true,
	})
	if err != nil {
		return nil, &types.QueryError{Table: table, Cause: fmt.Errorf("failed to begin transaction: %w", err)}
	}

	rows, err := tx.QueryxContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return nil, &types.QueryError{Table: table, Cause: err}
	}

	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		tx.Rollback()
		return nil, &types.QueryError{Table: table, Cause: fmt.Errorf("failed to read columns: %w", err)}
	}

	return &rowSource{tx: tx, rows: rows, columns: columns, table: table}, nil
}

func (s *rowSource) Next() (types.Row, error) {
	if s.done {
		return types.Row{}, io.EOF
	}
	if !s.rows.Next() {
		s.done = true
		if err := s.rows.Err(); err != nil {
			return types.Row{}, &types.QueryError{Table: s.table, Cause: err}
		}
		return types.Row{}, io.EOF
	}

	values, err := s.rows.SliceScan()
	if err != nil {
		return types.Row{}, &types.QueryError{Table: s.table, Cause: fmt.Errorf("unable to scan row: %w", err)}
	}
	return types.Row{Columns: s.columns, Values: values}, nil
}

func (s *rowSource) Close() error {
	s.done = true
	err := s.rows.Close()
	if cerr := s.tx.Commit(); err == nil && cerr != nil && cerr != sql.ErrTxDone {
		err = cerr
	}
	return err
}
