package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/melkeydev/db-export/types"
)

// DefaultFlushEvery is how many rows the encoder buffers before flushing.
const DefaultFlushEvery = 100

// Encoder renders a RowSource as CSV.
type Encoder struct {
	// FlushEvery flushes the csv writer after this many rows.
	FlushEvery int
}

// NewEncoder creates a CSV encoder. flushEvery <= 0 selects DefaultFlushEvery.
func NewEncoder(flushEvery int) *Encoder {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}
	return &Encoder{FlushEvery: flushEvery}
}

// Encode writes every row of src to w and returns the number of data rows.
// The header is taken from the first row; an empty source writes nothing.
// Rows are matched to the header by column name and a row with a different
// column set fails with *types.ColumnMismatchError.
func (e *Encoder) Encode(ctx context.Context, src types.RowSource, w io.Writer) (int64, error) {
	writer := csv.NewWriter(w)

	var (
		header []string
		record []string
		count  int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, err
		}

		if header == nil {
			header = append([]string(nil), row.Columns...)
			if err := writeRecord(writer, w, header); err != nil {
				return count, fmt.Errorf("write header: %w", err)
			}
			record = make([]string, len(header))
		}

		if err := fillRecord(record, header, row, count+1); err != nil {
			return count, err
		}
		if err := writeRecord(writer, w, record); err != nil {
			return count, fmt.Errorf("write row %d: %w", count+1, err)
		}
		count++

		if count%int64(e.FlushEvery) == 0 {
			writer.Flush()
			if err := writer.Error(); err != nil {
				return count, fmt.Errorf("flush: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return count, fmt.Errorf("flush: %w", err)
	}
	return count, nil
}

// writeRecord writes one CSV line. A record holding a single empty field
// is written as a quoted empty string; csv.Writer would emit a blank line,
// which readers skip.
func writeRecord(writer *csv.Writer, w io.Writer, record []string) error {
	if len(record) != 1 || record[0] != "" {
		return writer.Write(record)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\"\"\n")
	return err
}

// fillRecord renders row into record in header order.
func fillRecord(record, header []string, row types.Row, n int64) error {
	if len(row.Columns) != len(header) || len(row.Values) != len(row.Columns) {
		return &types.ColumnMismatchError{Row: n, Header: header, Columns: row.Columns}
	}

	// Fast path: same order as the header.
	aligned := true
	for i, c := range row.Columns {
		if c != header[i] {
			aligned = false
			break
		}
	}
	if aligned {
		for i, v := range row.Values {
			record[i] = formatValue(v)
		}
		return nil
	}

	for i, name := range header {
		v, ok := row.Value(name)
		if !ok {
			return &types.ColumnMismatchError{Row: n, Header: header, Columns: row.Columns}
		}
		record[i] = formatValue(v)
	}
	return nil
}
