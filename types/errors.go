package types

import (
	"errors"
	"fmt"
)

// ErrSchemasUnsupported is returned when schema listing is asked of a
// database kind that has no schemas.
var ErrSchemasUnsupported = errors.New("schema listing is only supported for postgres")

// BadRequestError is a request the caller has to fix.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

// NoActiveConnectionError means no handle of Kind has been connected.
type NoActiveConnectionError struct {
	Kind Kind
}

func (e *NoActiveConnectionError) Error() string {
	if e.Kind == "" {
		return "no active database connection"
	}
	return fmt.Sprintf("no active %s connection", e.Kind)
}

// ConnectionError represents a failure to reach or authenticate against a database.
type ConnectionError struct {
	Kind  Kind
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection error: %v", e.Kind, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// QueryError represents a failed statement against an active handle.
type QueryError struct {
	Table string
	Cause error
}

func (e *QueryError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("query error: %v", e.Cause)
	}
	return fmt.Sprintf("query error on table %s: %v", e.Table, e.Cause)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// ColumnMismatchError is returned when a row does not carry the header's column set.
type ColumnMismatchError struct {
	Row     int64
	Header  []string
	Columns []string
}

func (e *ColumnMismatchError) Error() string {
	return fmt.Sprintf("row %d has columns %v, header is %v", e.Row, e.Columns, e.Header)
}

// StreamError is a failure after the response started; it cannot be
// reported to the client in a structured way.
type StreamError struct {
	Entry string
	Cause error
}

func (e *StreamError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("stream error: %v", e.Cause)
	}
	return fmt.Sprintf("stream error in %s: %v", e.Entry, e.Cause)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}
