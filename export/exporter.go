package export

import (
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/melkeydev/db-export/databases"
	"github.com/melkeydev/db-export/types"
)

// Sessions hands out the active connector for a database kind.
type Sessions interface {
	Connector(kind types.Kind) (databases.Connector, error)
}

// Recorder receives export metrics.
type Recorder interface {
	RecordTableExport(kind types.Kind, rows int64, duration time.Duration)
	RecordExport(kind types.Kind, result string)
}

// State is the lifecycle of one export.
type State int

const (
	StateValidating State = iota
	StateHeadersSent
	StateStreaming
	StateFinalized
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateHeadersSent:
		return "headers_sent"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures an Exporter.
type Options struct {
	// CompressionLevel is the deflate level for archive entries.
	CompressionLevel int

	// FlushEvery is the CSV flush interval in rows.
	FlushEvery int

	Recorder Recorder
	Logger   *slog.Logger
}

// Exporter turns export requests into ZIP archives of CSV files.
type Exporter struct {
	sessions Sessions
	encoder  *Encoder
	level    int
	recorder Recorder
	logger   *slog.Logger
}

func NewExporter(sessions Sessions, opts Options) *Exporter {
	level := opts.CompressionLevel
	if level == 0 {
		level = flate.BestCompression
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		sessions: sessions,
		encoder:  NewEncoder(opts.FlushEvery),
		level:    level,
		recorder: opts.Recorder,
		logger:   logger,
	}
}

// Prepare validates req before anything is written. Every requested table
// must exist under the requested schema on the active connection.
func (e *Exporter) Prepare(ctx context.Context, req types.ExportRequest) (*Job, error) {
	if len(req.Tables) == 0 {
		return nil, &types.BadRequestError{Message: "no tables selected"}
	}
	if req.Kind == "" {
		return nil, &types.BadRequestError{Message: "missing database type"}
	}
	for _, t := range req.Tables {
		if strings.TrimSpace(t) == "" {
			return nil, &types.BadRequestError{Message: "empty table name"}
		}
	}

	conn, err := e.sessions.Connector(req.Kind)
	if err != nil {
		return nil, err
	}

	if req.Kind == types.KindPostgres && req.Schema == "" {
		req.Schema = types.DefaultSchema
	}

	known, err := conn.ListTables(ctx, req.Schema)
	if err != nil {
		return nil, err
	}
	if unknown := missingTables(req.Tables, known); len(unknown) > 0 {
		return nil, &types.BadRequestError{Message: "unknown tables: " + strings.Join(unknown, ", ")}
	}
	if err := checkEntryNames(req.Tables); err != nil {
		return nil, err
	}

	return &Job{
		exporter: e,
		conn:     conn,
		req:      req,
		state:    StateValidating,
	}, nil
}

func missingTables(requested, known []string) []string {
	set := make(map[string]struct{}, len(known))
	for _, t := range known {
		set[t] = struct{}{}
	}

	var missing []string
	for _, t := range requested {
		if _, ok := set[t]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

// checkEntryNames rejects distinct tables that share an archive entry name.
// Repeating the same table is allowed.
func checkEntryNames(tables []string) error {
	seen := make(map[string]string, len(tables))
	for _, t := range tables {
		name := EntryName(t)
		if prev, ok := seen[name]; ok && prev != t {
			return &types.BadRequestError{Message: fmt.Sprintf("tables %q and %q both map to archive entry %s", prev, t, name)}
		}
		seen[name] = t
	}
	return nil
}

// EntryName is the archive entry name for a table. Path separators become
// underscores, so "a/b" and "a_b" share the entry a_b.csv; Prepare rejects
// such a pair.
func EntryName(table string) string {
	r := strings.NewReplacer("/", "_", `\`, "_")
	return r.Replace(table) + ".csv"
}

// Job is one validated export.
type Job struct {
	exporter *Exporter
	conn     databases.Connector
	req      types.ExportRequest

	mu    sync.Mutex
	state State
	rows  int64
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Rows returns the number of data rows written so far.
func (j *Job) Rows() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rows
}

// Tables returns the tables the job exports, in request order.
func (j *Job) Tables() []string {
	return append([]string(nil), j.req.Tables...)
}

// Begin records that the response has been committed. From here on a
// failure can only abort the stream.
func (j *Job) Begin() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateValidating {
		j.state = StateHeadersSent
	}
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// Run streams every table into a ZIP archive on w, in request order. Any
// failure leaves the job Aborted and is returned as a *types.StreamError.
func (j *Job) Run(ctx context.Context, w io.Writer) error {
	j.Begin()

	j.mu.Lock()
	if j.state != StateHeadersSent {
		state := j.state
		j.mu.Unlock()
		return fmt.Errorf("export cannot run in state %s", state)
	}
	j.state = StateStreaming
	j.mu.Unlock()

	e := j.exporter
	start := time.Now()
	archive := NewArchive(w, e.level)

	for _, table := range j.req.Tables {
		if err := j.exportTable(ctx, archive, table); err != nil {
			return j.abort(ctx, err)
		}
	}

	if err := archive.Close(); err != nil {
		return j.abort(ctx, &types.StreamError{Cause: err})
	}

	j.setState(StateFinalized)
	if e.recorder != nil {
		e.recorder.RecordExport(j.req.Kind, "success")
	}
	e.logger.InfoContext(ctx, "export finished",
		"type", j.req.Kind,
		"tables", len(j.req.Tables),
		"rows", j.Rows(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (j *Job) exportTable(ctx context.Context, archive *Archive, table string) error {
	e := j.exporter
	name := EntryName(table)
	start := time.Now()

	src, err := j.conn.FetchRows(ctx, j.req.Schema, table)
	if err != nil {
		return &types.StreamError{Entry: name, Cause: err}
	}
	defer src.Close()

	entry, err := archive.Entry(name)
	if err != nil {
		return &types.StreamError{Entry: name, Cause: err}
	}

	n, err := e.encoder.Encode(ctx, src, entry)
	j.mu.Lock()
	j.rows += n
	j.mu.Unlock()
	if err != nil {
		return &types.StreamError{Entry: name, Cause: err}
	}

	if e.recorder != nil {
		e.recorder.RecordTableExport(j.req.Kind, n, time.Since(start))
	}
	e.logger.DebugContext(ctx, "table exported", "table", table, "rows", n)
	return nil
}

func (j *Job) abort(ctx context.Context, err error) error {
	j.setState(StateAborted)

	e := j.exporter
	if e.recorder != nil {
		e.recorder.RecordExport(j.req.Kind, "aborted")
	}
	e.logger.ErrorContext(ctx, "export aborted", "type", j.req.Kind, "error", err)

	var se *types.StreamError
	if !errors.As(err, &se) {
		err = &types.StreamError{Cause: err}
	}
	return err
}
