package rollup

import "strings"

type unionEntry struct {
	key    string
	parts  []string
	source *Table
}

// Synchronize aligns tables that share a key universe. Every output table
// holds the union of keys in the same order (first appearance scanning the
// tables in order), so row i refers to the same entity everywhere. A key a
// table lacks gets a placeholder row: keyFields carry the key values, typed
// as in the row that introduced the key, and every other field of that table
// is zeroed for its type. Inputs are not modified. A table that needed placeholders loses its total row because its
// data rows changed; run AppendGrandTotal afterwards.
func Synchronize(tables []*Table, keyFields []string) []*Table {
	union := unionKeys(tables, keyFields)
	out := make([]*Table, 0, len(tables))
	for _, t := range tables {
		if t == nil {
			t = NewTable(KeySpec{Fields: append([]string(nil), keyFields...)})
		}
		fields, samples := t.schema()
		aligned := NewTable(t.spec)
		filled := false
		for _, entry := range union {
			if row, ok := t.rows[entry.key]; ok {
				aligned.put(entry.key, t.parts[entry.key], row)
				continue
			}
			filled = true
			aligned.put(entry.key, entry.parts, placeholder(entry, keyFields, fields, samples))
		}
		if !filled && t.total != nil {
			total := *t.total
			aligned.total = &total
		}
		out = append(out, aligned)
	}
	return out
}

func unionKeys(tables []*Table, keyFields []string) []unionEntry {
	seen := make(map[string]bool)
	var union []unionEntry
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, key := range t.keys {
			if seen[key] {
				continue
			}
			seen[key] = true
			parts := t.parts[key]
			if len(parts) != len(keyFields) {
				parts = KeySpec{Fields: keyFields, Separator: t.spec.Separator}.Split(key)
			}
			union = append(union, unionEntry{key: key, parts: parts, source: t})
		}
	}
	return union
}

func placeholder(entry unionEntry, keyFields, fields []string, samples map[string]Value) Row {
	if len(fields) == 0 {
		// An empty table has no schema of its own; borrow the one of the
		// row that introduced the key.
		fields, samples = entry.source.schema()
	}
	isKey := make(map[string]int, len(keyFields))
	for i, f := range keyFields {
		isKey[f] = i
	}
	origin, _ := entry.source.Row(entry.key)
	keyValue := func(f string) Value {
		if v, ok := origin.Get(f); ok {
			return v
		}
		return Text(entry.parts[isKey[f]])
	}
	row := Row{values: make(map[string]Value, len(fields)+len(keyFields))}
	for _, f := range keyFields {
		if !contains(fields, f) {
			row.Set(f, keyValue(f))
		}
	}
	for _, f := range fields {
		if _, ok := isKey[f]; ok {
			row.Set(f, keyValue(f))
			continue
		}
		row.Set(f, zeroLike(samples[f]))
	}
	return row
}

// zeroLike returns the "nothing here" value matching v's type: 0 for
// numbers, "0%" for percent strings, "0" for other numeric strings and ""
// for text.
func zeroLike(v Value) Value {
	switch v.kind {
	case KindNumber:
		return Num(0)
	case KindString:
		s := strings.TrimSpace(v.str)
		if strings.HasSuffix(s, "%") {
			return Text("0%")
		}
		if _, bad := parseNumeric(s); !bad && s != "" {
			return Text("0")
		}
		return Text("")
	default:
		return Null
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
