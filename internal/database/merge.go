package database

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"strings"
	"time"
)

// Predicate selects rows of T. Match filters source records in memory;
// Where is the same condition as SQL over the target table, with @name
// tokens bound from Args. Either part may be empty.
type Predicate[T any] struct {
	Match func(T) bool
	Where string
	Args  Args
}

// Filter returns the records of source that Match accepts. A predicate
// without Match passes source through.
func (p *Predicate[T]) Filter(source iter.Seq[T]) iter.Seq[T] {
	if p == nil || p.Match == nil || source == nil {
		return source
	}
	return func(yield func(T) bool) {
		for v := range source {
			if p.Match(v) && !yield(v) {
				return
			}
		}
	}
}

func (p *Predicate[T]) scope(ms *MappingSchema) (*MergeScope, error) {
	if p == nil || strings.TrimSpace(p.Where) == "" {
		return nil, nil
	}
	params, err := Normalize(ms, p.Args)
	if err != nil {
		return nil, err
	}
	return &MergeScope{Where: p.Where, Params: params}, nil
}

// MergeScope restricts the delete step of a merge to target rows matching
// Where.
type MergeScope struct {
	Where  string
	Params []Parameter
}

// MergeOptions carries target overrides. Each one set here wins over the
// table handle.
type MergeOptions struct {
	TableName    string `yaml:"table_name"`
	SchemaName   string `yaml:"schema_name"`
	DatabaseName string `yaml:"database_name"`
}

func (o MergeOptions) identity() TableIdentity {
	return TableIdentity{Name: o.TableName, Schema: o.SchemaName, Database: o.DatabaseName}
}

// MergeRequest is what a provider receives for a merge.
type MergeRequest struct {
	Table   TableIdentity
	Entity  *Entity
	Columns []*Column
	Keys    []*Column // from pk tags; providers may fill it with UseKeys

	// Delete removes target rows in Scope (or all rows, without a scope)
	// whose keys are missing from the source.
	Delete bool
	Scope  *MergeScope

	records iter.Seq2[[]any, error]
}

// NewMergeRequest builds a request over already extracted records.
func NewMergeRequest(table TableIdentity, e *Entity, cols []*Column, del bool, scope *MergeScope, records iter.Seq2[[]any, error]) *MergeRequest {
	return &MergeRequest{
		Table:   table,
		Entity:  e,
		Columns: cols,
		Keys:    e.Keys(),
		Delete:  del,
		Scope:   scope,
		records: records,
	}
}

// Records streams the values of Columns for each source record. It can be
// ranged over once.
func (r *MergeRequest) Records() iter.Seq2[[]any, error] {
	return r.records
}

// UseKeys sets Keys from database column names, typically the table's
// primary key as reported by the catalog.
func (r *MergeRequest) UseKeys(names []string) error {
	keys := make([]*Column, 0, len(names))
	for _, name := range names {
		c := r.Entity.Column(name)
		if c == nil {
			return errInvalidTarget(fmt.Sprintf("key column %q of %s is not mapped by %s", name, r.Table, r.Entity.Type))
		}
		keys = append(keys, c)
	}
	if len(keys) == 0 {
		return errInvalidTarget(fmt.Sprintf("%s has no primary key", r.Table))
	}
	r.Keys = keys
	return nil
}

// IsKey reports whether c is one of the merge keys.
func (r *MergeRequest) IsKey(c *Column) bool {
	for _, k := range r.Keys {
		if k == c {
			return true
		}
	}
	return false
}

// Merge upserts source into T's table.
func Merge[T any](ctx context.Context, conn *Connection, source iter.Seq[T], opts MergeOptions) (int64, error) {
	return merge(ctx, conn, nil, false, source, opts, TableIdentity{})
}

// MergeDelete upserts source and, when del is set, deletes target rows
// missing from it.
func MergeDelete[T any](ctx context.Context, conn *Connection, del bool, source iter.Seq[T], opts MergeOptions) (int64, error) {
	return merge(ctx, conn, nil, del, source, opts, TableIdentity{})
}

// MergeScoped upserts source and deletes target rows matching pred that are
// missing from it.
func MergeScoped[T any](ctx context.Context, conn *Connection, pred *Predicate[T], source iter.Seq[T], opts MergeOptions) (int64, error) {
	if pred == nil {
		return 0, errInvalidInput("predicate is nil")
	}
	return merge(ctx, conn, pred, true, source, opts, TableIdentity{})
}

// MergeFiltered filters source with pred and merges the result scoped by
// the same predicate. pred must select exactly the target rows the filtered
// source is meant to replace.
func MergeFiltered[T any](ctx context.Context, conn *Connection, source iter.Seq[T], pred *Predicate[T], opts MergeOptions) (int64, error) {
	if pred == nil {
		return 0, errInvalidInput("predicate is nil")
	}
	return merge(ctx, conn, pred, true, pred.Filter(source), opts, TableIdentity{})
}

// MergeWith is the fully explicit form. pred may be nil.
func MergeWith[T any](ctx context.Context, conn *Connection, pred *Predicate[T], del bool, source iter.Seq[T], opts MergeOptions) (int64, error) {
	return merge(ctx, conn, pred, del, source, opts, TableIdentity{})
}

func merge[T any](ctx context.Context, conn *Connection, pred *Predicate[T], del bool, source iter.Seq[T], opts MergeOptions, handle TableIdentity) (int64, error) {
	if conn == nil {
		return 0, errInvalidInput("connection is nil")
	}
	if conn.closed {
		return 0, errClosed()
	}
	if source == nil {
		return 0, errInvalidInput("source is nil")
	}
	ms := conn.schema
	e, err := ms.Entity(reflect.TypeFor[T]())
	if err != nil {
		return 0, err
	}
	scope, err := pred.scope(ms)
	if err != nil {
		return 0, err
	}

	table := opts.identity().Or(handle).Or(e.Table)
	cols := e.Columns
	records := func(yield func([]any, error) bool) {
		for rec := range source {
			vals, err := ms.Values(e, cols, rec)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(vals, nil) {
				return
			}
		}
	}

	start := time.Now()
	req := NewMergeRequest(table, e, cols, del, scope, records)
	n, err := conn.provider.Merge(ctx, conn, req)
	if err != nil {
		return n, err
	}

	conn.log.InfoWith("merge finished", map[string]any{
		"provider":      conn.provider.Name(),
		"table":         table.String(),
		"delete":        del,
		"scoped":        scope != nil,
		"rows_affected": n,
		"duration_ms":   time.Since(start).Milliseconds(),
	})
	return n, nil
}
