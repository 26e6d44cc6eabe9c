package codec

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
)

var (
	// ErrUnsupportedType reports a host value with no representable shape.
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrTypeMismatch reports a value whose runtime shape does not
	// structurally match the requested target shape.
	ErrTypeMismatch = errors.New("type mismatch")

	errInvalidKind = errors.New("invalid value kind")
)

// maxSafeInt is the largest integer exactly representable as a float64.
const maxSafeInt = 1 << 53

// Encode converts a host value into its neutral form.
//
// Supported inputs: nil, booleans, strings, integer and float types, slices,
// arrays, string-keyed maps, structs (exported fields, honoring json tags),
// pointers, and Value itself. Functions, channels, complex numbers, and maps
// with non-string keys fail with ErrUnsupportedType.
//
// Numbers are canonicalized to float64. Integers outside ±2^53 are rejected
// with ErrUnsupportedType rather than silently losing precision.
func Encode(v any) (Value, error) {
	if v == nil {
		return Null(), nil
	}
	if val, ok := v.(Value); ok {
		return val, nil
	}
	return encodeValue(reflect.ValueOf(v))
}

func encodeValue(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return Str(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n > maxSafeInt || n < -maxSafeInt {
			return Value{}, fmt.Errorf("%w: integer %d exceeds float64 precision", ErrUnsupportedType, n)
		}
		return Num(float64(n)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := rv.Uint()
		if n > maxSafeInt {
			return Value{}, fmt.Errorf("%w: integer %d exceeds float64 precision", ErrUnsupportedType, n)
		}
		return Num(float64(n)), nil
	case reflect.Float32, reflect.Float64:
		return Num(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null(), nil
		}
		elems := make([]Value, rv.Len())
		for i := range elems {
			e, err := encodeValue(rv.Index(i))
			if err != nil {
				return Value{}, err
			}
			elems[i] = e
		}
		return Seq(elems...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("%w: map key type %s", ErrUnsupportedType, rv.Type().Key())
		}
		if rv.IsNil() {
			return Null(), nil
		}
		entries := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			e, err := encodeValue(iter.Value())
			if err != nil {
				return Value{}, err
			}
			entries[iter.Key().String()] = e
		}
		return Map(entries), nil
	case reflect.Struct:
		if rv.Type() == reflect.TypeOf(Value{}) {
			return rv.Interface().(Value), nil
		}
		entries := make(map[string]Value)
		for _, f := range structFields(rv.Type()) {
			e, err := encodeValue(rv.FieldByIndex(f.index))
			if err != nil {
				return Value{}, err
			}
			entries[f.name] = e
		}
		return Map(entries), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return encodeValue(rv.Elem())
	}
	return Value{}, fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())
}

// Decode converts a neutral value into the shape pointed to by out, which
// must be a non-nil pointer.
//
// Matching is strict: there is no coercion across type categories (a string
// never decodes into a number and vice versa). A number decodes into a
// fixed-width integer target only when it is integral and within the target
// range; anything else fails with ErrTypeMismatch. Null decodes to the zero
// value of pointer, map, slice, and interface targets. Undefined decodes
// only into *Value or *any.
func Decode(v Value, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: decode target must be a non-nil pointer", ErrTypeMismatch)
	}
	return decodeValue(v, rv.Elem())
}

func decodeValue(v Value, dst reflect.Value) error {
	if dst.Type() == reflect.TypeOf(Value{}) {
		dst.Set(reflect.ValueOf(v))
		return nil
	}
	if dst.Kind() == reflect.Interface && dst.NumMethod() == 0 {
		iv := v.Interface()
		if iv == nil {
			dst.Set(reflect.Zero(dst.Type()))
		} else {
			dst.Set(reflect.ValueOf(iv))
		}
		return nil
	}

	switch v.kind {
	case KindUndefined:
		return fmt.Errorf("%w: undefined into %s", ErrTypeMismatch, dst.Type())
	case KindNull:
		switch dst.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice:
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		return fmt.Errorf("%w: null into %s", ErrTypeMismatch, dst.Type())
	}

	if dst.Kind() == reflect.Pointer {
		p := reflect.New(dst.Type().Elem())
		if err := decodeValue(v, p.Elem()); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}

	switch v.kind {
	case KindBool:
		if dst.Kind() != reflect.Bool {
			return fmt.Errorf("%w: bool into %s", ErrTypeMismatch, dst.Type())
		}
		dst.SetBool(v.b)
		return nil
	case KindString:
		if dst.Kind() != reflect.String {
			return fmt.Errorf("%w: string into %s", ErrTypeMismatch, dst.Type())
		}
		dst.SetString(v.str)
		return nil
	case KindNumber:
		return decodeNumber(v.num, dst)
	case KindSequence:
		return decodeSequence(v.seq, dst)
	case KindMapping:
		return decodeMapping(v.obj, dst)
	}
	return errInvalidKind
}

func decodeNumber(n float64, dst reflect.Value) error {
	switch dst.Kind() {
	case reflect.Float32, reflect.Float64:
		dst.SetFloat(n)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if math.Trunc(n) != n || math.IsInf(n, 0) || math.IsNaN(n) {
			return fmt.Errorf("%w: number %v is not integral", ErrTypeMismatch, n)
		}
		i := int64(n)
		if dst.OverflowInt(i) {
			return fmt.Errorf("%w: number %v overflows %s", ErrTypeMismatch, n, dst.Type())
		}
		dst.SetInt(i)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if math.Trunc(n) != n || n < 0 || math.IsInf(n, 0) || math.IsNaN(n) {
			return fmt.Errorf("%w: number %v is not a valid %s", ErrTypeMismatch, n, dst.Type())
		}
		u := uint64(n)
		if dst.OverflowUint(u) {
			return fmt.Errorf("%w: number %v overflows %s", ErrTypeMismatch, n, dst.Type())
		}
		dst.SetUint(u)
		return nil
	}
	return fmt.Errorf("%w: number into %s", ErrTypeMismatch, dst.Type())
}

func decodeSequence(elems []Value, dst reflect.Value) error {
	switch dst.Kind() {
	case reflect.Slice:
		out := reflect.MakeSlice(dst.Type(), len(elems), len(elems))
		for i, e := range elems {
			if err := decodeValue(e, out.Index(i)); err != nil {
				return err
			}
		}
		dst.Set(out)
		return nil
	case reflect.Array:
		if dst.Len() != len(elems) {
			return fmt.Errorf("%w: sequence of %d into %s", ErrTypeMismatch, len(elems), dst.Type())
		}
		for i, e := range elems {
			if err := decodeValue(e, dst.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: sequence into %s", ErrTypeMismatch, dst.Type())
}

func decodeMapping(entries map[string]Value, dst reflect.Value) error {
	switch dst.Kind() {
	case reflect.Map:
		if dst.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: mapping into %s", ErrTypeMismatch, dst.Type())
		}
		out := reflect.MakeMapWithSize(dst.Type(), len(entries))
		for k, e := range entries {
			ev := reflect.New(dst.Type().Elem()).Elem()
			if err := decodeValue(e, ev); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(dst.Type().Key()), ev)
		}
		dst.Set(out)
		return nil
	case reflect.Struct:
		fields := structFields(dst.Type())
		for k, e := range entries {
			f, ok := findField(fields, k)
			if !ok {
				continue // unknown keys are ignored
			}
			if err := decodeValue(e, dst.FieldByIndex(f.index)); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: mapping into %s", ErrTypeMismatch, dst.Type())
}

type field struct {
	name  string
	index []int
}

func structFields(t reflect.Type) []field {
	fields := make([]field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			base, _, _ := strings.Cut(tag, ",")
			if base == "-" {
				continue
			}
			if base != "" {
				name = base
			}
		}
		fields = append(fields, field{name: name, index: sf.Index})
	}
	return fields
}

func findField(fields []field, key string) (field, bool) {
	for _, f := range fields {
		if f.name == key {
			return f, true
		}
	}
	for _, f := range fields {
		if strings.EqualFold(f.name, key) {
			return f, true
		}
	}
	return field{}, false
}
