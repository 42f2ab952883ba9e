// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

// Package table implements the tabular reconciliation core: the RawTable
// container, schema normalization, table classification, the fixed join
// pipeline, and the row filter/deriver.
//
// A RawTable is an ordered sequence of named columns over rows of mixed
// scalar values (string, number, time, nil). Tables are small enough to fit
// in memory; every operation that changes shape returns a new table and
// leaves its input untouched.
package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawTable is an untyped in-memory tabular dataset. Identity is the source
// name (file or relation name). Rows are stored row-major; nil is the null
// value.
type RawTable struct {
	name    string
	columns []string
	index   map[string]int
	rows    [][]any
}

// New creates an empty RawTable with the given source name and columns.
func New(name string, columns []string) *RawTable {
	t := &RawTable{
		name:    name,
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range t.columns {
		t.index[c] = i
	}
	return t
}

// Name returns the source identity of the table.
func (t *RawTable) Name() string { return t.name }

// Columns returns the ordered column names.
func (t *RawTable) Columns() []string { return append([]string(nil), t.columns...) }

// NumRows returns the number of rows.
func (t *RawTable) NumRows() int { return len(t.rows) }

// NumCols returns the number of columns.
func (t *RawTable) NumCols() int { return len(t.columns) }

// HasColumn reports whether the named column exists.
func (t *RawTable) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnIndex returns the position of the named column, or -1.
func (t *RawTable) ColumnIndex(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// AppendRow appends a row. The row length must match the column count.
func (t *RawTable) AppendRow(row []any) error {
	if len(row) != len(t.columns) {
		return fmt.Errorf("table %s: row has %d values, want %d", t.name, len(row), len(t.columns))
	}
	t.rows = append(t.rows, row)
	return nil
}

// Cell returns the value at (row, column name). Missing columns yield nil.
func (t *RawTable) Cell(row int, col string) any {
	i, ok := t.index[col]
	if !ok || row < 0 || row >= len(t.rows) {
		return nil
	}
	return t.rows[row][i]
}

// Row returns the backing slice for a row. Callers must not mutate it.
func (t *RawTable) Row(i int) []any { return t.rows[i] }

// Column returns all values of the named column in row order.
func (t *RawTable) Column(name string) ([]any, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	out := make([]any, len(t.rows))
	for r, row := range t.rows {
		out[r] = row[i]
	}
	return out, true
}

// Rename returns a new table with columns renamed per the mapping. Columns
// absent from the mapping keep their names. A rename that collides with an
// existing column is an error: same-named columns from different sources
// must never silently overwrite each other.
func (t *RawTable) Rename(mapping map[string]string) (*RawTable, error) {
	cols := make([]string, len(t.columns))
	seen := make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		name := c
		if renamed, ok := mapping[c]; ok {
			name = renamed
		}
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("table %s: rename collides on %q (columns %d and %d)", t.name, name, prev, i)
		}
		seen[name] = i
		cols[i] = name
	}
	out := New(t.name, cols)
	out.rows = t.rows
	return out, nil
}

// Select returns a new table containing only the named columns, in the
// given order. Requesting a missing column is an error; callers that
// tolerate absence filter the list first (see Intersect).
func (t *RawTable) Select(cols []string) (*RawTable, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		j, ok := t.index[c]
		if !ok {
			return nil, fmt.Errorf("table %s: column %q not found", t.name, c)
		}
		idx[i] = j
	}
	out := New(t.name, cols)
	out.rows = make([][]any, len(t.rows))
	for r, row := range t.rows {
		nr := make([]any, len(idx))
		for i, j := range idx {
			nr[i] = row[j]
		}
		out.rows[r] = nr
	}
	return out, nil
}

// Intersect returns the subset of wanted columns present in the table,
// preserving the wanted order, together with the missing names.
func (t *RawTable) Intersect(wanted []string) (present, missing []string) {
	for _, c := range wanted {
		if t.HasColumn(c) {
			present = append(present, c)
		} else {
			missing = append(missing, c)
		}
	}
	return present, missing
}

// Filter returns a new table with the rows for which keep returns true.
func (t *RawTable) Filter(keep func(row []any) bool) *RawTable {
	out := New(t.name, t.columns)
	for _, row := range t.rows {
		if keep(row) {
			out.rows = append(out.rows, row)
		}
	}
	return out
}

// WithColumn returns a new table with an extra column computed per row.
// Adding a column that already exists is an error.
func (t *RawTable) WithColumn(name string, value func(row []any) any) (*RawTable, error) {
	if t.HasColumn(name) {
		return nil, fmt.Errorf("table %s: column %q already exists", t.name, name)
	}
	out := New(t.name, append(t.Columns(), name))
	out.rows = make([][]any, len(t.rows))
	for r, row := range t.rows {
		nr := make([]any, len(row)+1)
		copy(nr, row)
		nr[len(row)] = value(row)
		out.rows[r] = nr
	}
	return out, nil
}

// SetCell overwrites a single cell in place. Used by column coercions that
// rewrite values without changing shape.
func (t *RawTable) SetCell(row int, col string, v any) {
	if i, ok := t.index[col]; ok && row >= 0 && row < len(t.rows) {
		t.rows[row][i] = v
	}
}

// Clone returns a deep copy of the table.
func (t *RawTable) Clone() *RawTable {
	out := New(t.name, t.columns)
	out.rows = make([][]any, len(t.rows))
	for r, row := range t.rows {
		out.rows[r] = append([]any(nil), row...)
	}
	return out
}

// DropDuplicates returns a new table with duplicate rows removed. When key
// columns are given, uniqueness is judged on those columns only and the
// first occurrence wins; otherwise whole rows are compared.
func (t *RawTable) DropDuplicates(keys ...string) *RawTable {
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		if i, ok := t.index[k]; ok {
			idx = append(idx, i)
		}
	}
	seen := make(map[string]struct{}, len(t.rows))
	out := New(t.name, t.columns)
	for _, row := range t.rows {
		var sb strings.Builder
		if len(idx) > 0 {
			for _, i := range idx {
				sb.WriteString(formatKey(row[i]))
				sb.WriteByte('\x1f')
			}
		} else {
			for _, v := range row {
				sb.WriteString(formatKey(v))
				sb.WriteByte('\x1f')
			}
		}
		k := sb.String()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out.rows = append(out.rows, row)
	}
	return out
}

// formatKey renders a scalar for use in a composite lookup key.
func formatKey(v any) string {
	switch x := v.(type) {
	case nil:
		return "\x00"
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return formatKey(float64(x))
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// IsNull reports whether a scalar is the null value.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok {
		return math.IsNaN(f)
	}
	return false
}

// AsFloat coerces a scalar to float64. Strings are parsed; nil and
// unparseable values report false.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// AsInt64 coerces a scalar to int64 via AsFloat.
func AsInt64(v any) (int64, bool) {
	f, ok := AsFloat(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// AsString renders a scalar the way the feature recipe expects: nil becomes
// the literal "None" to match the historical stringification of missing
// product names.
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// AsTime coerces a scalar to a timestamp. Strings are parsed against the
// accepted layouts; unparseable values report false.
func AsTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return parseTimestamp(x)
	default:
		return time.Time{}, false
	}
}

// timestampLayouts are the accepted created_at formats, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
