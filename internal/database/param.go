package database

import (
	"reflect"
)

// Direction tells the provider how a parameter travels.
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
	DirectionInputOutput
	DirectionReturnValue
)

func (d Direction) String() string {
	switch d {
	case DirectionOutput:
		return "output"
	case DirectionInputOutput:
		return "input_output"
	case DirectionReturnValue:
		return "return_value"
	default:
		return "input"
	}
}

// sendsValue reports whether the parameter is passed to the database as an argument.
func (d Direction) sendsValue() bool {
	return d == DirectionInput || d == DirectionInputOutput
}

// Parameter is a named command parameter.
type Parameter struct {
	Name      string
	Value     any
	Direction Direction

	// DBType is an optional native type (e.g. "jsonb"). Bound placeholders
	// are cast to it: $1::jsonb on postgres, CAST(? AS JSON) on mysql.
	DBType string
}

// P returns an input parameter.
func P(name string, value any) Parameter {
	return Parameter{Name: name, Value: value}
}

// Out returns an output parameter.
func Out(name string) Parameter {
	return Parameter{Name: name, Direction: DirectionOutput}
}

var (
	parameterType    = reflect.TypeOf(Parameter{})
	parameterPtrType = reflect.TypeOf(&Parameter{})
)

// Args is caller-supplied parameter input in one of four shapes: none, a
// single parameter, an ordered list of parameters, or a mapped object.
// Normalize reduces every shape to the same []Parameter.
type Args interface {
	normalize(ms *MappingSchema) ([]Parameter, error)
}

type noArgs struct{}

type singleArg struct{ p Parameter }

type argList []Parameter

type objectArg struct{ v any }

// NoArgs is the empty parameter set.
func NoArgs() Args { return noArgs{} }

// Arg wraps a single parameter.
func Arg(p Parameter) Args { return singleArg{p: p} }

// ArgList wraps an ordered list of parameters. Duplicate names are kept.
func ArgList(ps ...Parameter) Args {
	return argList(append([]Parameter(nil), ps...))
}

// ArgObject accepts any value. nil, Parameter, *Parameter and []Parameter are
// treated as the matching shape; anything else must be a mapped struct (or a
// pointer to one) whose columns become parameters.
func ArgObject(v any) Args {
	switch x := v.(type) {
	case nil:
		return noArgs{}
	case Parameter:
		return singleArg{p: x}
	case *Parameter:
		if x == nil {
			return noArgs{}
		}
		return singleArg{p: *x}
	case []Parameter:
		return ArgList(x...)
	case Args:
		return x
	}
	return objectArg{v: v}
}

// Normalize converts a into an ordered parameter slice using ms for object
// shapes. A nil ms means DefaultMappingSchema; a nil a means no parameters.
func Normalize(ms *MappingSchema, a Args) ([]Parameter, error) {
	if ms == nil {
		ms = DefaultMappingSchema
	}
	if a == nil {
		return []Parameter{}, nil
	}
	return a.normalize(ms)
}

func (noArgs) normalize(*MappingSchema) ([]Parameter, error) {
	return []Parameter{}, nil
}

func (a singleArg) normalize(*MappingSchema) ([]Parameter, error) {
	return []Parameter{a.p}, nil
}

func (a argList) normalize(*MappingSchema) ([]Parameter, error) {
	return append(make([]Parameter, 0, len(a)), a...), nil
}

func (a objectArg) normalize(ms *MappingSchema) ([]Parameter, error) {
	rv := reflect.ValueOf(a.v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return []Parameter{}, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, errUnsupportedShape(a.v)
	}

	entity, err := ms.Entity(rv.Type())
	if err != nil {
		return nil, errUnsupportedShape(a.v)
	}

	params := make([]Parameter, 0, len(entity.Columns))
	for _, col := range entity.Columns {
		p, err := ms.columnParameter(col, entity.FieldValue(rv, col))
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

// columnParameter resolves one mapped column into a parameter: a column that
// already holds a Parameter wins, then a registered converter for the field
// type, then plain scalar conversion of the value.
func (ms *MappingSchema) columnParameter(col *Column, fv reflect.Value) (Parameter, error) {
	switch col.Type {
	case parameterType:
		p := fv.Interface().(Parameter)
		if p.Name == "" {
			p.Name = col.Name
		}
		return p, nil
	case parameterPtrType:
		if fv.IsNil() {
			return Parameter{Name: col.Name}, nil
		}
		p := *fv.Interface().(*Parameter)
		if p.Name == "" {
			p.Name = col.Name
		}
		return p, nil
	}

	if conv, ok := ms.parameterConverter(col.Type); ok {
		return conv(fv.Interface(), col.Name), nil
	}

	v, err := ms.ParameterValue(fv.Interface())
	if err != nil {
		return Parameter{}, err
	}
	return Parameter{Name: col.Name, Value: v}, nil
}
