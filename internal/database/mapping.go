package database

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode"
)

// MappingSchema maps Go types to tables and columns and owns the conversion
// rules between Go values and database values. It is safe for concurrent use.
type MappingSchema struct {
	entities   sync.Map // reflect.Type -> *Entity
	mu         sync.RWMutex
	paramConvs map[reflect.Type]func(v any, name string) Parameter
	valueConvs map[convKey]func(v any) (any, error)
}

type convKey struct {
	from, to reflect.Type
}

// DefaultMappingSchema is used by connections created without WithMappingSchema.
var DefaultMappingSchema = NewMappingSchema()

func NewMappingSchema() *MappingSchema {
	return &MappingSchema{
		paramConvs: make(map[reflect.Type]func(any, string) Parameter),
		valueConvs: make(map[convKey]func(any) (any, error)),
	}
}

// RegisterParameterConverter makes every column of type t produce its
// parameter through fn. fn receives the field value and the column name.
func (ms *MappingSchema) RegisterParameterConverter(t reflect.Type, fn func(v any, name string) Parameter) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.paramConvs[t] = fn
}

// SetParameterConverter is the typed form of RegisterParameterConverter.
func SetParameterConverter[T any](ms *MappingSchema, fn func(v T, name string) Parameter) {
	ms.RegisterParameterConverter(reflect.TypeFor[T](), func(v any, name string) Parameter {
		return fn(v.(T), name)
	})
}

// SetValueConverter registers a scalar conversion from From to To that takes
// precedence over the built-in rules.
func SetValueConverter[From, To any](ms *MappingSchema, fn func(From) (To, error)) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.valueConvs[convKey{reflect.TypeFor[From](), reflect.TypeFor[To]()}] = func(v any) (any, error) {
		return fn(v.(From))
	}
}

func (ms *MappingSchema) parameterConverter(t reflect.Type) (func(any, string) Parameter, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	fn, ok := ms.paramConvs[t]
	return fn, ok
}

func (ms *MappingSchema) valueConverter(from, to reflect.Type) (func(any) (any, error), bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	fn, ok := ms.valueConvs[convKey{from, to}]
	return fn, ok
}

// Column is one mapped struct field.
type Column struct {
	Name       string       // column name in the database
	Field      string       // Go field name
	Index      []int        // field index path, through embedded structs
	Type       reflect.Type // field type
	PrimaryKey bool
	Identity   bool // generated by the database; skipped by bulk copy unless KeepIdentity
}

// Entity describes how a struct type maps onto a table.
type Entity struct {
	Type    reflect.Type
	Table   TableIdentity
	Columns []*Column // declared order

	byName map[string]*Column // lower-case column and field names
}

// Column finds a column by database or field name, case-insensitively.
func (e *Entity) Column(name string) *Column {
	return e.byName[strings.ToLower(name)]
}

// Keys returns the primary key columns in declared order.
func (e *Entity) Keys() []*Column {
	var keys []*Column
	for _, c := range e.Columns {
		if c.PrimaryKey {
			keys = append(keys, c)
		}
	}
	return keys
}

// FieldValue reads col from a struct value. Nil embedded pointers read as
// the field's zero value.
func (e *Entity) FieldValue(rv reflect.Value, col *Column) reflect.Value {
	v := rv
	for i, idx := range col.Index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Zero(col.Type)
			}
			v = v.Elem()
		}
		v = v.Field(idx)
	}
	return v
}

// Values returns the values of cols for record, which may be a struct or a
// pointer to one, converted to parameter values.
func (ms *MappingSchema) Values(e *Entity, cols []*Column, record any) ([]any, error) {
	rv := reflect.ValueOf(record)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, errInvalidInput(fmt.Sprintf("nil %s record", e.Type))
		}
		rv = rv.Elem()
	}
	if rv.Type() != e.Type {
		return nil, errInvalidInput(fmt.Sprintf("record of type %s does not match entity %s", rv.Type(), e.Type))
	}

	out := make([]any, len(cols))
	for i, col := range cols {
		p, err := ms.columnParameter(col, e.FieldValue(rv, col))
		if err != nil {
			return nil, err
		}
		out[i] = p.Value
	}
	return out, nil
}

// Entity returns the mapping for struct type t (or pointer to struct).
func (ms *MappingSchema) Entity(t reflect.Type) (*Entity, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if v, ok := ms.entities.Load(t); ok {
		return v.(*Entity), nil
	}
	if t.Kind() != reflect.Struct || isScalarStruct(t) {
		return nil, errInvalidInput(fmt.Sprintf("%s is not a mapped struct type", t))
	}

	e := buildEntity(t)
	actual, _ := ms.entities.LoadOrStore(t, e)
	return actual.(*Entity), nil
}

// EntityFor is the typed form of Entity.
func EntityFor[T any](ms *MappingSchema) (*Entity, error) {
	return ms.Entity(reflect.TypeFor[T]())
}

type tableNamer interface {
	TableName() string
}

type tableIdentifier interface {
	TableIdentity() TableIdentity
}

func buildEntity(t reflect.Type) *Entity {
	e := &Entity{
		Type:   t,
		byName: make(map[string]*Column),
	}

	zero := reflect.New(t)
	switch x := zero.Interface().(type) {
	case tableIdentifier:
		e.Table = x.TableIdentity()
	case tableNamer:
		e.Table.Name = x.TableName()
	}
	if e.Table.Name == "" {
		e.Table.Name = snakeCase(t.Name())
	}

	// walking holds the embedded types on the current path; an embedded
	// struct already on it is skipped.
	walking := map[reflect.Type]bool{t: true}
	var walk func(t reflect.Type, base []int)
	walk = func(t reflect.Type, base []int) {
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			tag := parseDBTag(sf.Tag.Get("db"))
			if tag.omit {
				continue
			}
			path := append(append([]int(nil), base...), i)

			ft := sf.Type
			if sf.Anonymous && tag.name == "" {
				inner := ft
				if inner.Kind() == reflect.Pointer {
					inner = inner.Elem()
				}
				if inner.Kind() == reflect.Struct && !isScalarStruct(inner) {
					if !walking[inner] {
						walking[inner] = true
						walk(inner, path)
						delete(walking, inner)
					}
					continue
				}
			}
			name := tag.name
			if name == "" {
				name = snakeCase(sf.Name)
			}
			col := &Column{
				Name:       name,
				Field:      sf.Name,
				Index:      path,
				Type:       ft,
				PrimaryKey: tag.pk,
				Identity:   tag.identity,
			}
			if _, dup := e.byName[strings.ToLower(name)]; dup {
				continue
			}
			e.Columns = append(e.Columns, col)
			e.byName[strings.ToLower(name)] = col
			if _, taken := e.byName[strings.ToLower(sf.Name)]; !taken {
				e.byName[strings.ToLower(sf.Name)] = col
			}
		}
	}
	walk(t, nil)
	return e
}

type dbTag struct {
	name     string
	omit     bool
	pk       bool
	identity bool
}

// parseDBTag supports "-", "name", "name,pk", "name,identity", ",pk,identity".
func parseDBTag(tag string) dbTag {
	if tag == "-" {
		return dbTag{omit: true}
	}
	var t dbTag
	for i, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		switch {
		case i == 0:
			t.name = part
		case part == "pk":
			t.pk = true
		case part == "identity":
			t.identity = true
		}
	}
	return t
}

var (
	timeType    = reflect.TypeFor[time.Time]()
	scannerType = reflect.TypeFor[sql.Scanner]()
)

// isScalarStruct reports struct types that are stored in a single column.
func isScalarStruct(t reflect.Type) bool {
	return t == timeType || reflect.PointerTo(t).Implements(scannerType)
}

// snakeCase converts "UserID" to "user_id" and "CreatedAt" to "created_at".
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
