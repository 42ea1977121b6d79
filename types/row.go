package types

// Row is one result row. Columns and Values are parallel and keep the
// order the database returned them in.
type Row struct {
	Columns []string
	Values  []any
}

// Value returns the value stored under column name.
func (r Row) Value(name string) (any, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// RowSource yields the rows of one table in result order.
// Next returns io.EOF once the source is exhausted.
type RowSource interface {
	Next() (Row, error)
	Close() error
}
