package rollup

import (
	"fmt"
	"strings"
)

// DefaultSeparator joins the components of a composite key.
const DefaultSeparator = "-"

// KeySpec names the dimension fields whose values identify an entity. One
// field gives a plain key; two fields are joined with Separator, for example
// "Bangalore-Indiranagar" for city + branch.
type KeySpec struct {
	Fields    []string `json:"fields"`
	Separator string   `json:"separator,omitempty"`
}

// SingleKey groups on one field.
func SingleKey(field string) KeySpec {
	return KeySpec{Fields: []string{field}}
}

// CompositeKey groups on an ordered pair of fields.
func CompositeKey(first, second string) KeySpec {
	return KeySpec{Fields: []string{first, second}}
}

// WithSeparator returns a copy using sep to join components.
func (k KeySpec) WithSeparator(sep string) KeySpec {
	k.Fields = append([]string(nil), k.Fields...)
	k.Separator = sep
	return k
}

// Validate ensures at least one non-empty field.
func (k KeySpec) Validate() error {
	if len(k.Fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidKeySpec)
	}
	for i, f := range k.Fields {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("%w: field %d is blank", ErrInvalidKeySpec, i)
		}
	}
	return nil
}

// Identity returns the first key field, the one labelled on total rows.
func (k KeySpec) Identity() string {
	if len(k.Fields) == 0 {
		return ""
	}
	return k.Fields[0]
}

// SameFields reports whether both specs group on the same ordered fields.
func (k KeySpec) SameFields(fields []string) bool {
	if len(k.Fields) != len(fields) {
		return false
	}
	for i := range fields {
		if k.Fields[i] != fields[i] {
			return false
		}
	}
	return true
}

func (k KeySpec) separator() string {
	if k.Separator == "" {
		return DefaultSeparator
	}
	return k.Separator
}

// Components returns the key component per field and the fields the row
// lacks. A missing field contributes "".
func (k KeySpec) Components(row Row) (parts []string, missing []string) {
	parts = make([]string, len(k.Fields))
	for i, f := range k.Fields {
		v, ok := row.Get(f)
		if !ok {
			missing = append(missing, f)
			continue
		}
		parts[i] = v.String()
	}
	return parts, missing
}

// Key computes the group key of row.
func (k KeySpec) Key(row Row) string {
	parts, _ := k.Components(row)
	return k.Join(parts)
}

// Join concatenates components with the separator.
func (k KeySpec) Join(parts []string) string {
	return strings.Join(parts, k.separator())
}

// Split is the inverse of Join. The last component absorbs any extra
// separators, so only the leading components must be separator-free.
func (k KeySpec) Split(key string) []string {
	n := len(k.Fields)
	if n <= 1 {
		return []string{key}
	}
	parts := strings.SplitN(key, k.separator(), n)
	for len(parts) < n {
		parts = append(parts, "")
	}
	return parts
}
