package rollup

import "encoding/json"

// Table maps group keys to merged rows in first-seen order. It may carry one
// grand-total row which is kept apart from the keyed data rows.
type Table struct {
	spec  KeySpec
	keys  []string
	rows  map[string]Row
	parts map[string][]string
	total *Row
}

// NewTable returns an empty table keyed by spec.
func NewTable(spec KeySpec) *Table {
	return &Table{
		spec:  spec,
		rows:  make(map[string]Row),
		parts: make(map[string][]string),
	}
}

// Spec returns the key spec the table was built with.
func (t *Table) Spec() KeySpec { return t.spec }

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Keys returns the group keys in table order.
func (t *Table) Keys() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.keys...)
}

// Has reports whether key is present among the data rows.
func (t *Table) Has(key string) bool {
	if t == nil {
		return false
	}
	_, ok := t.rows[key]
	return ok
}

// Row returns the data row stored under key.
func (t *Table) Row(key string) (Row, bool) {
	if t == nil {
		return Row{}, false
	}
	r, ok := t.rows[key]
	return r, ok
}

// Components returns the key components recorded for key.
func (t *Table) Components(key string) []string {
	if t == nil {
		return nil
	}
	if parts, ok := t.parts[key]; ok {
		return append([]string(nil), parts...)
	}
	return t.spec.Split(key)
}

// DataRows returns the data rows in table order, excluding any total row.
func (t *Table) DataRows() []Row {
	if t == nil {
		return nil
	}
	out := make([]Row, 0, len(t.keys))
	for _, k := range t.keys {
		out = append(out, t.rows[k])
	}
	return out
}

// Rows returns the data rows followed by the total row when present.
func (t *Table) Rows() []Row {
	out := t.DataRows()
	if total, ok := t.Total(); ok {
		out = append(out, total)
	}
	return out
}

// Total returns the grand-total row.
func (t *Table) Total() (Row, bool) {
	if t == nil || t.total == nil {
		return Row{}, false
	}
	return *t.total, true
}

// Fields returns the union of field names across data rows, first-seen order.
func (t *Table) Fields() []string {
	fields, _ := t.schema()
	return fields
}

// schema returns the field union plus the first non-null sample per field.
func (t *Table) schema() ([]string, map[string]Value) {
	if t == nil {
		return nil, nil
	}
	var fields []string
	samples := make(map[string]Value)
	seen := make(map[string]bool)
	for _, k := range t.keys {
		row := t.rows[k]
		for _, f := range row.fields {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
			if v := row.values[f]; !v.IsNull() {
				if _, ok := samples[f]; !ok {
					samples[f] = v
				}
			}
		}
	}
	return fields, samples
}

func (t *Table) put(key string, parts []string, row Row) {
	if _, ok := t.rows[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.rows[key] = row
	if parts != nil {
		t.parts[key] = parts
	}
}

// clone copies the key index; rows are shared since they are immutable.
func (t *Table) clone() *Table {
	out := NewTable(t.spec)
	out.keys = append(out.keys, t.keys...)
	for k, r := range t.rows {
		out.rows[k] = r
	}
	for k, p := range t.parts {
		out.parts[k] = p
	}
	if t.total != nil {
		total := *t.total
		out.total = &total
	}
	return out
}

type tableJSON struct {
	KeyFields []string `json:"key_fields"`
	Rows      []Row    `json:"rows"`
	Total     *Row     `json:"total,omitempty"`
}

// MarshalJSON encodes the key fields, data rows and total row.
func (t *Table) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	payload := tableJSON{KeyFields: t.spec.Fields, Rows: t.DataRows(), Total: t.total}
	if payload.Rows == nil {
		payload.Rows = []Row{}
	}
	return json.Marshal(payload)
}
