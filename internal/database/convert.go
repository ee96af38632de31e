package database

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	bytesType  = reflect.TypeFor[[]byte]()
	valuerType = reflect.TypeFor[driver.Valuer]()
)

// timeLayouts are tried in order when a string or []byte becomes a time.Time.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Convert converts v to type to using the schema's scalar rules.
func (ms *MappingSchema) Convert(v any, to reflect.Type) (any, error) {
	rv, err := ms.convertValue(v, to)
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

// ConvertTo is the typed form of Convert.
func ConvertTo[T any](ms *MappingSchema, v any) (T, error) {
	var zero T
	rv, err := ms.convertValue(v, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	return valueAs[T](rv), nil
}

// valueAs unwraps rv as T. A zero interface value becomes T's zero value.
func valueAs[T any](rv reflect.Value) T {
	var out T
	if rv.IsValid() {
		reflect.ValueOf(&out).Elem().Set(rv)
	}
	return out
}

// ParameterValue converts a Go value into something a driver accepts as an
// argument: driver.Valuer results, dereferenced pointers and named types
// reduced to their underlying kind. Other values pass through.
func (ms *MappingSchema) ParameterValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if valuer, ok := v.(driver.Valuer); ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, nil
		}
		out, err := valuer.Value()
		if err != nil {
			return nil, errConversion(v, valuerType, err)
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		return ms.ParameterValue(rv.Elem().Interface())
	}

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, errConversion(v, reflect.TypeFor[int64](), nil)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if rv.IsNil() {
				return nil, nil
			}
			return rv.Bytes(), nil
		}
	}
	return v, nil
}

func (ms *MappingSchema) convertValue(v any, to reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(to), nil
	}
	src := reflect.ValueOf(v)

	if fn, ok := ms.valueConverter(src.Type(), to); ok {
		out, err := fn(v)
		if err != nil {
			return reflect.Value{}, errConversion(v, to, err)
		}
		if out == nil {
			return reflect.Zero(to), nil
		}
		return reflect.ValueOf(out), nil
	}

	if to.Kind() == reflect.Interface {
		if src.Type().Implements(to) {
			out := reflect.New(to).Elem()
			out.Set(src)
			return out, nil
		}
		return reflect.Value{}, errConversion(v, to, nil)
	}

	if src.Type() == to {
		return src, nil
	}

	if to.Kind() == reflect.Pointer && !reflect.PointerTo(to).Implements(scannerType) {
		elem, err := ms.convertValue(v, to.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(to.Elem())
		p.Elem().Set(elem)
		return p, nil
	}

	if reflect.PointerTo(to).Implements(scannerType) {
		p := reflect.New(to)
		if err := p.Interface().(sql.Scanner).Scan(v); err != nil {
			return reflect.Value{}, errConversion(v, to, err)
		}
		return p.Elem(), nil
	}

	if src.Kind() == reflect.Pointer {
		if src.IsNil() {
			return reflect.Zero(to), nil
		}
		return ms.convertValue(src.Elem().Interface(), to)
	}

	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return reflect.Value{}, errConversion(v, to, err)
		}
		if dv == nil {
			return reflect.Zero(to), nil
		}
		if reflect.TypeOf(dv) != src.Type() {
			return ms.convertValue(dv, to)
		}
	}

	if src.Type() == bytesType {
		if to == bytesType {
			return reflect.ValueOf(append([]byte(nil), v.([]byte)...)), nil
		}
		return ms.convertString(string(v.([]byte)), v, to)
	}

	if src.Kind() == reflect.String {
		return ms.convertString(src.String(), v, to)
	}

	if t, ok := v.(time.Time); ok {
		switch {
		case to.Kind() == reflect.String:
			return reflect.ValueOf(t.Format(time.RFC3339Nano)).Convert(to), nil
		case to == timeType:
			return src, nil
		}
		return reflect.Value{}, errConversion(v, to, nil)
	}

	return convertKind(src, v, to)
}

// convertString parses s into to. orig is the value reported on failure.
func (ms *MappingSchema) convertString(s string, orig any, to reflect.Type) (reflect.Value, error) {
	out := reflect.New(to).Elem()
	switch to.Kind() {
	case reflect.String:
		out.SetString(s)
		return out, nil
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return reflect.Value{}, errConversion(orig, to, err)
		}
		out.SetBool(b)
		return out, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, to.Bits())
		if err != nil {
			return reflect.Value{}, errConversion(orig, to, err)
		}
		out.SetInt(n)
		return out, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, to.Bits())
		if err != nil {
			return reflect.Value{}, errConversion(orig, to, err)
		}
		out.SetUint(n)
		return out, nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), to.Bits())
		if err != nil {
			return reflect.Value{}, errConversion(orig, to, err)
		}
		out.SetFloat(f)
		return out, nil
	case reflect.Slice:
		if to.Elem().Kind() == reflect.Uint8 {
			out.SetBytes([]byte(s))
			return out, nil
		}
	case reflect.Struct:
		if to == timeType {
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return reflect.ValueOf(t), nil
				}
			}
			return reflect.Value{}, errConversion(orig, to, fmt.Errorf("unrecognised time format %q", s))
		}
	}
	return reflect.Value{}, errConversion(orig, to, nil)
}

// convertKind handles bool and numeric sources, refusing lossy conversions.
func convertKind(src reflect.Value, orig any, to reflect.Type) (reflect.Value, error) {
	out := reflect.New(to).Elem()
	switch src.Kind() {
	case reflect.Bool:
		switch {
		case to.Kind() == reflect.Bool:
			out.SetBool(src.Bool())
			return out, nil
		case to.Kind() == reflect.String:
			out.SetString(strconv.FormatBool(src.Bool()))
			return out, nil
		case isInt(to.Kind()):
			if src.Bool() {
				out.SetInt(1)
			}
			return out, nil
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := src.Int()
		switch {
		case isInt(to.Kind()):
			if out.OverflowInt(n) {
				break
			}
			out.SetInt(n)
			return out, nil
		case isUint(to.Kind()):
			if n < 0 || out.OverflowUint(uint64(n)) {
				break
			}
			out.SetUint(uint64(n))
			return out, nil
		case isFloat(to.Kind()):
			out.SetFloat(float64(n))
			return out, nil
		case to.Kind() == reflect.Bool:
			out.SetBool(n != 0)
			return out, nil
		case to.Kind() == reflect.String:
			out.SetString(strconv.FormatInt(n, 10))
			return out, nil
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := src.Uint()
		switch {
		case isUint(to.Kind()):
			if out.OverflowUint(n) {
				break
			}
			out.SetUint(n)
			return out, nil
		case isInt(to.Kind()):
			if n > math.MaxInt64 || out.OverflowInt(int64(n)) {
				break
			}
			out.SetInt(int64(n))
			return out, nil
		case isFloat(to.Kind()):
			out.SetFloat(float64(n))
			return out, nil
		case to.Kind() == reflect.String:
			out.SetString(strconv.FormatUint(n, 10))
			return out, nil
		}

	case reflect.Float32, reflect.Float64:
		f := src.Float()
		switch {
		case isFloat(to.Kind()):
			if out.OverflowFloat(f) {
				break
			}
			out.SetFloat(f)
			return out, nil
		case isInt(to.Kind()):
			if f != math.Trunc(f) || f < math.MinInt64 || f >= 1<<63 || out.OverflowInt(int64(f)) {
				break
			}
			out.SetInt(int64(f))
			return out, nil
		case to.Kind() == reflect.String:
			out.SetString(strconv.FormatFloat(f, 'g', -1, src.Type().Bits()))
			return out, nil
		}

	default:
		if src.Type().ConvertibleTo(to) && src.Kind() == to.Kind() {
			return src.Convert(to), nil
		}
	}
	return reflect.Value{}, errConversion(orig, to, nil)
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uint64
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
