package rollup

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is an ordered mapping from field name to Value. Rows returned by a
// Fetcher or held by a Table are treated as immutable; Clone before Set.
type Row struct {
	fields []string
	values map[string]Value
}

// RowOf builds a Row from alternating field/value arguments. A dangling
// field without a value is stored as Null.
func RowOf(kv ...any) Row {
	r := Row{values: make(map[string]Value, (len(kv)+1)/2)}
	for i := 0; i < len(kv); i += 2 {
		field := fmt.Sprint(kv[i])
		value := Null
		if i+1 < len(kv) {
			value = ValueOf(kv[i+1])
		}
		r.Set(field, value)
	}
	return r
}

// Set assigns a field, appending it to the field order when new.
func (r *Row) Set(field string, v Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[field]; !ok {
		r.fields = append(r.fields, field)
	}
	r.values[field] = v
}

// Get returns the value stored for field.
func (r Row) Get(field string) (Value, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Value returns the value stored for field or Null.
func (r Row) Value(field string) Value {
	return r.values[field]
}

// Has reports whether field is present.
func (r Row) Has(field string) bool {
	_, ok := r.values[field]
	return ok
}

// Fields returns the field names in insertion order.
func (r Row) Fields() []string {
	return append([]string(nil), r.fields...)
}

// Len returns the number of fields.
func (r Row) Len() int { return len(r.fields) }

// Clone returns a copy that shares nothing with r.
func (r Row) Clone() Row {
	out := Row{
		fields: append([]string(nil), r.fields...),
		values: make(map[string]Value, len(r.values)),
	}
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// Equal compares field sets and values, ignoring field order.
func (r Row) Equal(o Row) bool {
	if len(r.values) != len(o.values) {
		return false
	}
	for k, v := range r.values {
		ov, ok := o.values[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Map returns the row as a plain map of Go values.
func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		v := r.values[f]
		switch v.kind {
		case KindNumber:
			out[f] = v.num
		case KindString:
			out[f] = v.str
		default:
			out[f] = nil
		}
	}
	return out
}

// MarshalJSON encodes the row as a JSON object keeping field order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := r.values[f].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object keeping field order.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("rollup: row must be a JSON object")
	}
	out := Row{values: make(map[string]Value)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		field, ok := tok.(string)
		if !ok {
			return fmt.Errorf("rollup: unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("rollup: field %q: %w", field, err)
		}
		out.Set(field, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}
