// Package schema validates and converts loosely typed JSON documents.
//
// A schema is built from scalar kinds (Decimal, Int, String, Bool), records
// with required and optional fields, homogeneous lists and fixed tuples.
// Validate walks a decoded document against it, converting every scalar to
// its Go type (decimal.Decimal, int64, string, bool) and reporting the first
// mismatch with its path.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/shopspring/decimal"
)

// Schema is one node of a schema tree.
type Schema interface {
	convert(path string, v any) (any, error)
}

// Record is a validated JSON object.
type Record map[string]any

// Field is a record member.
type Field struct {
	Name     string
	Schema   Schema
	Optional bool
}

// Required declares a field that must be present.
func Required(name string, s Schema) Field { return Field{Name: name, Schema: s} }

// Optional declares a field that may be absent.
func Optional(name string, s Schema) Field { return Field{Name: name, Schema: s, Optional: true} }

// Parse decodes data and validates it against s.
func Parse(data []byte, s Schema) (any, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Validate(v, s)
}

// Validate converts an already decoded value. Numbers should have been
// decoded with json.Decoder.UseNumber to keep decimal precision.
func Validate(v any, s Schema) (any, error) {
	out, err := s.convert("$", v)
	if err != nil {
		return nil, fmt.Errorf("schema: %w: %v", domain.ErrMalformedData, err)
	}
	return out, nil
}

type scalar struct {
	name string
	fn   func(any) (any, error)
}

func (s scalar) convert(path string, v any) (any, error) {
	out, err := s.fn(v)
	if err != nil {
		return nil, fmt.Errorf("%s: expected %s: %v", path, s.name, err)
	}
	return out, nil
}

// Decimal accepts JSON numbers and numeric strings.
func Decimal() Schema {
	return scalar{name: "decimal", fn: func(v any) (any, error) {
		switch x := v.(type) {
		case json.Number:
			return decimal.NewFromString(x.String())
		case string:
			return decimal.NewFromString(strings.TrimSpace(x))
		case float64:
			return decimal.NewFromFloat(x), nil
		default:
			return nil, fmt.Errorf("got %T", v)
		}
	}}
}

// Int accepts integral JSON numbers and integer strings. A fractional part
// written as ".0" is tolerated.
func Int() Schema {
	return scalar{name: "int", fn: func(v any) (any, error) {
		var s string
		switch x := v.(type) {
		case json.Number:
			s = x.String()
		case string:
			s = strings.TrimSpace(x)
		case float64:
			s = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			return nil, fmt.Errorf("got %T", v)
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		if !d.Equal(d.Truncate(0)) {
			return nil, fmt.Errorf("%s is not integral", s)
		}
		return d.IntPart(), nil
	}}
}

// String accepts JSON strings only.
func String() Schema {
	return scalar{name: "string", fn: func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("got %T", v)
		}
		return s, nil
	}}
}

// Bool accepts JSON booleans, 0/1 and "true"/"false".
func Bool() Schema {
	return scalar{name: "bool", fn: func(v any) (any, error) {
		switch x := v.(type) {
		case bool:
			return x, nil
		case json.Number:
			return x.String() != "0", nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(x))
		default:
			return nil, fmt.Errorf("got %T", v)
		}
	}}
}

type record struct {
	fields []Field
}

// Object declares a record. Keys not listed are dropped from the result.
func Object(fields ...Field) Schema { return record{fields: fields} }

func (r record) convert(path string, v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected object, got %T", path, v)
	}
	out := make(Record, len(r.fields))
	for _, f := range r.fields {
		raw, present := m[f.Name]
		if !present || raw == nil {
			if f.Optional {
				continue
			}
			return nil, fmt.Errorf("%s: missing key %q", path, f.Name)
		}
		conv, err := f.Schema.convert(path+"."+f.Name, raw)
		if err != nil {
			return nil, err
		}
		out[f.Name] = conv
	}
	return out, nil
}

type list struct {
	elem Schema
}

// List declares a homogeneous array.
func List(elem Schema) Schema { return list{elem: elem} }

func (l list) convert(path string, v any) (any, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected list, got %T", path, v)
	}
	out := make([]any, 0, len(items))
	for i, item := range items {
		conv, err := l.elem.convert(fmt.Sprintf("%s[%d]", path, i), item)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, nil
}

type tuple struct {
	elems []Schema
}

// Tuple declares a fixed-length array such as a [price, amount] level.
// Extra trailing elements are ignored.
func Tuple(elems ...Schema) Schema { return tuple{elems: elems} }

func (t tuple) convert(path string, v any) (any, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected list, got %T", path, v)
	}
	if len(items) < len(t.elems) {
		return nil, fmt.Errorf("%s: expected %d elements, got %d", path, len(t.elems), len(items))
	}
	out := make([]any, len(t.elems))
	for i, s := range t.elems {
		conv, err := s.convert(fmt.Sprintf("%s[%d]", path, i), items[i])
		if err != nil {
			return nil, err
		}
		out[i] = conv
	}
	return out, nil
}

// Remap renames keys of a decoded object, or of every object in a list,
// before validation. Keys absent from names are kept.
func Remap(v any, names map[string]string) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if to, ok := names[k]; ok {
				k = to
			}
			out[k] = val
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Remap(item, names)
		}
		return out
	default:
		return v
	}
}

// Decode only decodes data, keeping numbers as json.Number. Use it with
// Remap and Validate when keys must be renamed first.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("schema: %w: %v", domain.ErrMalformedData, err)
	}
	return v, nil
}
