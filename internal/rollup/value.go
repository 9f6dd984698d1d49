package rollup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind enumerates the value types a Row field may hold.
type Kind uint8

const (
	// KindNull marks an absent or explicitly null value.
	KindNull Kind = iota
	// KindNumber marks a float64 value.
	KindNumber
	// KindString marks a text value.
	KindString
)

// Value is a single row cell: a number, a string or null.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// Null is the zero Value.
var Null = Value{}

// Num wraps a number.
func Num(v float64) Value {
	return Value{kind: KindNumber, num: v}
}

// Text wraps a string.
func Text(s string) Value {
	return Value{kind: KindString, str: s}
}

// ValueOf converts a Go value into a Value. Integers and floats become
// numbers, strings and byte slices become text, nil becomes Null. Anything
// else is rendered with fmt.
func ValueOf(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null
	case Value:
		return val
	case float64:
		return Num(val)
	case float32:
		return Num(float64(val))
	case int:
		return Num(float64(val))
	case int8:
		return Num(float64(val))
	case int16:
		return Num(float64(val))
	case int32:
		return Num(float64(val))
	case int64:
		return Num(float64(val))
	case uint:
		return Num(float64(val))
	case uint8:
		return Num(float64(val))
	case uint16:
		return Num(float64(val))
	case uint32:
		return Num(float64(val))
	case uint64:
		return Num(float64(val))
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return Num(f)
		}
		return Text(val.String())
	case string:
		return Text(val)
	case []byte:
		return Text(string(val))
	case bool:
		return Text(strconv.FormatBool(val))
	case fmt.Stringer:
		return Text(val.String())
	default:
		return Text(fmt.Sprint(val))
	}
}

// Kind reports the value type.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Number returns the numeric payload when the value is a number.
func (v Value) Number() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Str returns the text payload when the value is a string.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Float coerces the value to a number: numbers as-is, strings parsed after
// stripping grouping punctuation and a percent sign, everything else 0.
func (v Value) Float() float64 {
	f, _ := coerce(v)
	return f
}

// String renders the value for keys and display. Null renders as "".
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	default:
		return ""
	}
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	default:
		return true
	}
}

// MarshalJSON encodes numbers as JSON numbers, strings as strings and null
// as null. Non-finite numbers encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts numbers, strings, booleans and null.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch raw.(type) {
	case map[string]any, []any:
		return fmt.Errorf("rollup: unsupported value %s", string(data))
	}
	*v = ValueOf(raw)
	return nil
}

var numericReplacer = strings.NewReplacer(",", "", "_", "", " ", "", "\u00a0", "", "\u202f", "")

// coerce converts a value to a number. malformed is true when a non-blank
// string could not be parsed or a number is not finite.
func coerce(v Value) (f float64, malformed bool) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return 0, true
		}
		return v.num, false
	case KindString:
		return parseNumeric(v.str)
	default:
		return 0, false
	}
}

func parseNumeric(s string) (float64, bool) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimSuffix(cleaned, "%")
	cleaned = numericReplacer.Replace(cleaned)
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, true
	}
	return f, false
}
