package database

import (
	"context"
	"iter"
	"reflect"
)

// TableIdentity names a physical table. Empty fields are unset.
type TableIdentity struct {
	Name     string `yaml:"name"`
	Schema   string `yaml:"schema"`
	Database string `yaml:"database"`
}

// Or fills every unset field of t from fallback. Chaining
// explicit.Or(handle).Or(defaults) resolves each field independently with
// explicit taking precedence over the handle and the handle over defaults.
func (t TableIdentity) Or(fallback TableIdentity) TableIdentity {
	if t.Name == "" {
		t.Name = fallback.Name
	}
	if t.Schema == "" {
		t.Schema = fallback.Schema
	}
	if t.Database == "" {
		t.Database = fallback.Database
	}
	return t
}

func (t TableIdentity) String() string {
	switch {
	case t.Database != "" && t.Schema != "":
		return t.Database + "." + t.Schema + "." + t.Name
	case t.Database != "":
		return t.Database + "." + t.Name
	case t.Schema != "":
		return t.Schema + "." + t.Name
	}
	return t.Name
}

// ConcreteTable is a real table bound to a live connection: the only kind
// of target bulk copy and merge accept.
type ConcreteTable interface {
	Identity() TableIdentity
	Connection() *Connection
}

// Table is a typed handle on the table a mapped type lives in.
type Table[T any] struct {
	conn  *Connection
	ident TableIdentity
}

var _ ConcreteTable = (*Table[struct{}])(nil)

// GetTable returns the table handle for T on conn. The identity comes from
// T's mapping (TableName / TableIdentity methods or the snake-cased type name).
func GetTable[T any](conn *Connection) *Table[T] {
	t := &Table[T]{conn: conn}
	ms := DefaultMappingSchema
	if conn != nil {
		ms = conn.schema
	}
	if e, err := ms.Entity(reflect.TypeFor[T]()); err == nil {
		t.ident = e.Table
	}
	return t
}

func (t *Table[T]) Identity() TableIdentity { return t.ident }
func (t *Table[T]) Connection() *Connection { return t.conn }

// WithName returns a copy of the handle pointing at another table name,
// keeping T's column layout.
func (t *Table[T]) WithName(name string) *Table[T] {
	c := *t
	c.ident.Name = name
	return &c
}

// WithSchema returns a copy of the handle with another schema.
func (t *Table[T]) WithSchema(schema string) *Table[T] {
	c := *t
	c.ident.Schema = schema
	return &c
}

// WithDatabase returns a copy of the handle with another database.
func (t *Table[T]) WithDatabase(database string) *Table[T] {
	c := *t
	c.ident.Database = database
	return &c
}

// concrete validates the handle before any bulk or merge work.
func (t *Table[T]) concrete() (*Connection, error) {
	if t == nil {
		return nil, errInvalidInput("table is nil")
	}
	if t.conn == nil {
		return nil, errInvalidTarget("table " + t.ident.String() + " is not bound to a connection")
	}
	return t.conn, nil
}

// BulkCopy loads source into the table. Identity fields set in opts win over
// the handle's.
func (t *Table[T]) BulkCopy(ctx context.Context, opts BulkCopyOptions, source iter.Seq[T]) (*BulkCopyRowsCopied, error) {
	conn, err := t.concrete()
	if err != nil {
		return nil, err
	}
	return bulkCopy(ctx, conn, opts, t.ident, source)
}

// BulkCopyBatch loads source with the given batch size and default options.
func (t *Table[T]) BulkCopyBatch(ctx context.Context, maxBatchSize int, source iter.Seq[T]) (*BulkCopyRowsCopied, error) {
	return t.BulkCopy(ctx, BulkCopyOptions{MaxBatchSize: maxBatchSize}, source)
}

// BulkCopyDefault loads source with default options.
func (t *Table[T]) BulkCopyDefault(ctx context.Context, source iter.Seq[T]) (*BulkCopyRowsCopied, error) {
	return t.BulkCopy(ctx, BulkCopyOptions{}, source)
}

// Merge upserts source into the table. Target fields set in opts win over
// the handle.
func (t *Table[T]) Merge(ctx context.Context, source iter.Seq[T], opts MergeOptions) (int64, error) {
	return t.MergeWith(ctx, nil, false, source, opts)
}

// MergeDelete upserts source and, when del is set, deletes table rows
// missing from source.
func (t *Table[T]) MergeDelete(ctx context.Context, del bool, source iter.Seq[T], opts MergeOptions) (int64, error) {
	return t.MergeWith(ctx, nil, del, source, opts)
}

// MergeScoped upserts source and deletes rows matching pred that are missing
// from source.
func (t *Table[T]) MergeScoped(ctx context.Context, pred *Predicate[T], source iter.Seq[T], opts MergeOptions) (int64, error) {
	if pred == nil {
		return 0, errInvalidInput("predicate is nil")
	}
	return t.MergeWith(ctx, pred, true, source, opts)
}

// MergeFiltered filters source with pred before a scoped merge.
func (t *Table[T]) MergeFiltered(ctx context.Context, source iter.Seq[T], pred *Predicate[T], opts MergeOptions) (int64, error) {
	if pred == nil {
		return 0, errInvalidInput("predicate is nil")
	}
	return t.MergeWith(ctx, pred, true, pred.Filter(source), opts)
}

// MergeWith is the fully explicit form.
func (t *Table[T]) MergeWith(ctx context.Context, pred *Predicate[T], del bool, source iter.Seq[T], opts MergeOptions) (int64, error) {
	conn, err := t.concrete()
	if err != nil {
		return 0, err
	}
	return merge(ctx, conn, pred, del, source, opts, t.ident)
}
