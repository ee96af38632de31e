package database

import (
	"iter"
	"reflect"

	"github.com/koustreak/dataconn/internal/errs"
)

// Cursor is a lazy, single-pass sequence of mapped rows backed by a live
// result set. It cannot be restarted: once exhausted or closed it yields
// nothing. Always Close a cursor that was not drained.
type Cursor[T any] struct {
	rows    Rows
	release func() error
	mapRow  func(Rows) (T, error)

	single bool // stop after the first row
	schema bool // never read rows

	cur      T
	read     int
	err      error
	reported bool
	closed   bool
}

// Next advances to the next row. It returns false when rows are exhausted,
// mapping failed or the cursor was closed; check Err afterwards.
func (c *Cursor[T]) Next() bool {
	if c.closed {
		return false
	}
	if c.schema || (c.single && c.read > 0) {
		c.Close()
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		c.Close()
		return false
	}
	v, err := c.mapRow(c.rows)
	if err != nil {
		c.err = err
		c.Close()
		return false
	}
	c.cur = v
	c.read++
	return true
}

// Value returns the row produced by the last successful Next.
func (c *Cursor[T]) Value() T { return c.cur }

// Err returns the first error met while reading or mapping.
func (c *Cursor[T]) Err() error { return c.err }

// Close releases the result set. It is safe to call more than once.
func (c *Cursor[T]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.release()
}

// All ranges over the remaining rows. The cursor is closed when the loop
// ends, including on break. A failure is yielded once as the final pair.
func (c *Cursor[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer c.Close()
		for c.Next() {
			if !yield(c.cur, nil) {
				return
			}
		}
		if c.err != nil && !c.reported {
			c.reported = true
			var zero T
			yield(zero, c.err)
		}
	}
}

// Collect drains c into a slice and closes it.
func Collect[T any](c *Cursor[T]) ([]T, error) {
	if c == nil {
		return nil, errInvalidInput("cursor is nil")
	}
	defer c.Close()
	var out []T
	for c.Next() {
		out = append(out, c.cur)
	}
	return out, c.err
}

// rowPlan maps result rows onto T by column name. The plan is resolved on
// the first row from the result's columns.
type rowPlan[T any] struct {
	schema *MappingSchema

	ready   bool
	cols    []string
	kind    planKind
	entity  *Entity
	targets []*Column // per result column; nil when T has no such field
}

type planKind int

const (
	planScalar planKind = iota
	planStruct
	planStructPtr
	planMap
)

var mapType = reflect.TypeFor[map[string]any]()

func (p *rowPlan[T]) prepare(rows Rows) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	p.cols = cols
	p.ready = true

	t := reflect.TypeFor[T]()
	switch {
	case t == mapType:
		p.kind = planMap
		return nil
	case t.Kind() == reflect.Struct && !isScalarStruct(t):
		p.kind = planStruct
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct && !isScalarStruct(t.Elem()):
		p.kind = planStructPtr
	default:
		p.kind = planScalar
		return nil
	}

	e, err := p.schema.Entity(t)
	if err != nil {
		return err
	}
	p.entity = e
	p.targets = make([]*Column, len(cols))
	for i, name := range cols {
		p.targets[i] = e.Column(name)
	}
	return nil
}

func (p *rowPlan[T]) mapRow(rows Rows) (T, error) {
	var zero T
	if !p.ready {
		if err := p.prepare(rows); err != nil {
			return zero, err
		}
	}

	vals := scanTargets(len(p.cols))
	if err := rows.Scan(vals...); err != nil {
		return zero, err
	}

	switch p.kind {
	case planMap:
		m := make(map[string]any, len(p.cols))
		for i, name := range p.cols {
			m[name] = *(vals[i].(*any))
		}
		return any(m).(T), nil

	case planScalar:
		if len(p.cols) == 0 {
			return zero, nil
		}
		t := reflect.TypeFor[T]()
		rv, err := p.schema.convertValue(*(vals[0].(*any)), t)
		if err != nil {
			return zero, errs.RowMapping(p.cols[0], t.String(), err)
		}
		return valueAs[T](rv), nil
	}

	rec := reflect.New(p.entity.Type)
	for i, col := range p.targets {
		if col == nil {
			continue
		}
		rv, err := p.schema.convertValue(*(vals[i].(*any)), col.Type)
		if err != nil {
			return zero, errs.RowMapping(p.cols[i], p.entity.Type.Name()+"."+col.Field, err)
		}
		setField(rec.Elem(), col, rv)
	}
	if p.kind == planStructPtr {
		return rec.Interface().(T), nil
	}
	return rec.Elem().Interface().(T), nil
}

// setField writes v into the field at col's index path, allocating nil
// embedded pointers on the way.
func setField(rv reflect.Value, col *Column, v reflect.Value) {
	for i, idx := range col.Index {
		if i > 0 && rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				rv.Set(reflect.New(rv.Type().Elem()))
			}
			rv = rv.Elem()
		}
		rv = rv.Field(idx)
	}
	rv.Set(v)
}
