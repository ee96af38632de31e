package database

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"strings"
	"time"
)

// BulkCopyType selects the transfer mechanism.
type BulkCopyType int

const (
	// CopyDefault lets the provider choose its fastest mechanism.
	CopyDefault BulkCopyType = iota
	// CopyRowByRow sends one INSERT per record.
	CopyRowByRow
	// CopyMultipleRows sends multi-row INSERT statements per batch.
	CopyMultipleRows
	// CopyProviderSpecific uses the native bulk protocol (COPY on postgres).
	CopyProviderSpecific
)

func (t BulkCopyType) String() string {
	switch t {
	case CopyRowByRow:
		return "row_by_row"
	case CopyMultipleRows:
		return "multiple_rows"
	case CopyProviderSpecific:
		return "provider_specific"
	default:
		return "default"
	}
}

// UnmarshalText accepts the String form, case-insensitively.
func (t *BulkCopyType) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "default":
		*t = CopyDefault
	case "row_by_row":
		*t = CopyRowByRow
	case "multiple_rows":
		*t = CopyMultipleRows
	case "provider_specific":
		*t = CopyProviderSpecific
	default:
		return errInvalidInput(fmt.Sprintf("unknown bulk copy type %q", text))
	}
	return nil
}

// defaultBatchSize applies to INSERT based copies when MaxBatchSize is unset.
const defaultBatchSize = 1000

// BulkCopyOptions tunes a bulk copy. Zero values mean "use the default".
type BulkCopyOptions struct {
	// MaxBatchSize caps records per statement or COPY. 0 lets the provider
	// decide; postgres then streams everything through a single COPY.
	MaxBatchSize int          `yaml:"max_batch_size"`
	CopyType     BulkCopyType `yaml:"copy_type"`

	// KeepIdentity sends identity columns instead of letting the database
	// generate them.
	KeepIdentity bool `yaml:"keep_identity"`

	// NotifyAfter is the number of rows between RowsCopiedCallback calls.
	// Notifications happen at batch boundaries.
	NotifyAfter        int                       `yaml:"notify_after"`
	RowsCopiedCallback func(*BulkCopyRowsCopied) `yaml:"-"`

	// Target overrides. Each one set here wins over the table handle.
	TableName    string `yaml:"table_name"`
	SchemaName   string `yaml:"schema_name"`
	DatabaseName string `yaml:"database_name"`
}

func (o BulkCopyOptions) identity() TableIdentity {
	return TableIdentity{Name: o.TableName, Schema: o.SchemaName, Database: o.DatabaseName}
}

// withDefaults fills unset tuning fields from d. Target overrides are never
// taken from defaults.
func (o BulkCopyOptions) withDefaults(d BulkCopyOptions) BulkCopyOptions {
	if o.MaxBatchSize == 0 {
		o.MaxBatchSize = d.MaxBatchSize
	}
	if o.CopyType == CopyDefault {
		o.CopyType = d.CopyType
	}
	if o.NotifyAfter == 0 {
		o.NotifyAfter = d.NotifyAfter
	}
	if o.RowsCopiedCallback == nil {
		o.RowsCopiedCallback = d.RowsCopiedCallback
	}
	o.KeepIdentity = o.KeepIdentity || d.KeepIdentity
	return o
}

// BulkCopyRowsCopied is the running result of a bulk copy. Progress
// callbacks receive it and may set Abort to stop after the current batch.
type BulkCopyRowsCopied struct {
	RowsCopied int64
	Abort      bool
	StartTime  time.Time
}

// BulkCopyRequest is what a provider receives: the resolved target, the
// columns to send and a single-pass stream of their values.
type BulkCopyRequest struct {
	Options BulkCopyOptions
	Table   TableIdentity
	Entity  *Entity
	Columns []*Column

	records    iter.Seq2[[]any, error]
	result     *BulkCopyRowsCopied
	lastNotify int64
}

// NewBulkCopyRequest builds a request over already extracted records.
// Providers use it when they stage data through another bulk copy.
func NewBulkCopyRequest(opts BulkCopyOptions, table TableIdentity, e *Entity, cols []*Column, records iter.Seq2[[]any, error]) *BulkCopyRequest {
	return &BulkCopyRequest{
		Options: opts,
		Table:   table,
		Entity:  e,
		Columns: cols,
		records: records,
		result:  &BulkCopyRowsCopied{StartTime: time.Now()},
	}
}

// Records streams the column values of each source record, in source
// order. It can be ranged over once.
func (r *BulkCopyRequest) Records() iter.Seq2[[]any, error] {
	return r.records
}

// Batches groups Records into slices of at most size records. size <= 0
// uses the default batch size.
func (r *BulkCopyRequest) Batches(size int) iter.Seq2[[][]any, error] {
	if size <= 0 {
		size = defaultBatchSize
	}
	return func(yield func([][]any, error) bool) {
		batch := make([][]any, 0, size)
		for rec, err := range r.records {
			if err != nil {
				yield(nil, err)
				return
			}
			batch = append(batch, rec)
			if len(batch) == size {
				if !yield(batch, nil) {
					return
				}
				batch = make([][]any, 0, size)
			}
		}
		if len(batch) > 0 {
			yield(batch, nil)
		}
	}
}

// Copied records n more transferred rows, fires the progress callback when
// NotifyAfter rows have passed since the last one, and reports whether the
// copy should continue.
func (r *BulkCopyRequest) Copied(n int) bool {
	r.result.RowsCopied += int64(n)
	every := int64(r.Options.NotifyAfter)
	if every > 0 && r.Options.RowsCopiedCallback != nil && r.result.RowsCopied/every > r.lastNotify/every {
		r.lastNotify = r.result.RowsCopied
		r.Options.RowsCopiedCallback(r.result)
	}
	return !r.result.Abort
}

// Result returns the running result.
func (r *BulkCopyRequest) Result() *BulkCopyRowsCopied {
	return r.result
}

// BatchSize returns the effective records per INSERT statement for this
// request, bounded by the placeholder limit.
func (r *BulkCopyRequest) BatchSize() int {
	size := r.Options.MaxBatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	if n := len(r.Columns); n > 0 && size*n > maxPlaceholders {
		size = maxPlaceholders / n
	}
	return size
}

// BulkCopy loads source into T's table. Identity fields set in opts override
// the mapped table.
func BulkCopy[T any](ctx context.Context, conn *Connection, opts BulkCopyOptions, source iter.Seq[T]) (*BulkCopyRowsCopied, error) {
	return bulkCopy(ctx, conn, opts, TableIdentity{}, source)
}

// BulkCopyBatch loads source with maxBatchSize and otherwise default options.
func BulkCopyBatch[T any](ctx context.Context, conn *Connection, maxBatchSize int, source iter.Seq[T]) (*BulkCopyRowsCopied, error) {
	return bulkCopy(ctx, conn, BulkCopyOptions{MaxBatchSize: maxBatchSize}, TableIdentity{}, source)
}

// BulkCopyDefault loads source with default options.
func BulkCopyDefault[T any](ctx context.Context, conn *Connection, source iter.Seq[T]) (*BulkCopyRowsCopied, error) {
	return bulkCopy(ctx, conn, BulkCopyOptions{}, TableIdentity{}, source)
}

func bulkCopy[T any](ctx context.Context, conn *Connection, opts BulkCopyOptions, handle TableIdentity, source iter.Seq[T]) (*BulkCopyRowsCopied, error) {
	if conn == nil {
		return nil, errInvalidInput("connection is nil")
	}
	if conn.closed {
		return nil, errClosed()
	}
	if source == nil {
		return nil, errInvalidInput("source is nil")
	}
	e, err := conn.schema.Entity(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}

	opts = opts.withDefaults(conn.bulkDefaults)
	table := opts.identity().Or(handle).Or(e.Table)

	cols := make([]*Column, 0, len(e.Columns))
	for _, c := range e.Columns {
		if c.Identity && !opts.KeepIdentity {
			continue
		}
		cols = append(cols, c)
	}
	if len(cols) == 0 {
		return nil, errInvalidTarget(fmt.Sprintf("%s has no columns to copy", e.Type))
	}

	records, stop, ok := peekRecords(conn.schema, e, cols, source)
	defer stop()
	if !ok {
		return &BulkCopyRowsCopied{StartTime: time.Now()}, nil
	}

	req := NewBulkCopyRequest(opts, table, e, cols, records)
	res, err := conn.provider.BulkCopy(ctx, conn, req)
	if err != nil {
		return res, err
	}

	if res.Abort {
		conn.log.With().
			Str("table", table.String()).
			Int64("rows_copied", res.RowsCopied).
			Logger().Warn("bulk copy aborted by progress callback")
	}
	conn.log.InfoWith("bulk copy finished", map[string]any{
		"provider":    conn.provider.Name(),
		"table":       table.String(),
		"copy_type":   opts.CopyType.String(),
		"rows_copied": res.RowsCopied,
		"aborted":     res.Abort,
		"duration_ms": time.Since(res.StartTime).Milliseconds(),
	})
	return res, nil
}

// peekRecords pulls the first record of source so empty sources never reach
// the provider. The returned sequence replays it and streams the rest; stop
// must be called once the sequence is no longer needed.
func peekRecords[T any](ms *MappingSchema, e *Entity, cols []*Column, source iter.Seq[T]) (iter.Seq2[[]any, error], func(), bool) {
	next, stop := iter.Pull(source)
	first, ok := next()
	if !ok {
		return nil, stop, false
	}

	records := func(yield func([]any, error) bool) {
		rec, more := first, true
		for more {
			vals, err := ms.Values(e, cols, rec)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(vals, nil) {
				return
			}
			rec, more = next()
		}
	}
	return records, stop, true
}

// InsertMultipleRows copies req with one multi-row INSERT per batch. It is
// the generic fallback every provider can use.
func InsertMultipleRows(ctx context.Context, conn *Connection, d Dialect, req *BulkCopyRequest) (*BulkCopyRowsCopied, error) {
	var (
		size   = req.BatchSize()
		stmt   string
		stmtN  int
		values []any
	)
	for batch, err := range req.Batches(size) {
		if err != nil {
			return req.Result(), err
		}
		if len(batch) != stmtN {
			stmt, stmtN = d.InsertSQL(req.Table, req.Columns, len(batch)), len(batch)
		}
		values = values[:0]
		for _, rec := range batch {
			values = append(values, rec...)
		}
		if _, err := conn.ExecSQL(ctx, stmt, values...); err != nil {
			return req.Result(), err
		}
		if !req.Copied(len(batch)) {
			break
		}
	}
	return req.Result(), nil
}

// InsertRowByRow copies req with one single-row INSERT per record.
func InsertRowByRow(ctx context.Context, conn *Connection, d Dialect, req *BulkCopyRequest) (*BulkCopyRowsCopied, error) {
	stmt := d.InsertSQL(req.Table, req.Columns, 1)
	for rec, err := range req.Records() {
		if err != nil {
			return req.Result(), err
		}
		if _, err := conn.ExecSQL(ctx, stmt, rec...); err != nil {
			return req.Result(), err
		}
		if !req.Copied(1) {
			break
		}
	}
	return req.Result(), nil
}
