// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package table

import (
	"fmt"
	"strings"
)

// Concat appends the rows of all tables that share at least the columns of
// the first table. Extra columns in later tables are ignored; tables
// missing one of the base columns contribute nulls for it.
func Concat(name string, tables []*RawTable) *RawTable {
	if len(tables) == 0 {
		return New(name, nil)
	}
	cols := tables[0].Columns()
	out := New(name, cols)
	for _, t := range tables {
		for i := 0; i < t.NumRows(); i++ {
			row := make([]any, len(cols))
			for j, c := range cols {
				row[j] = t.Cell(i, c)
			}
			out.rows = append(out.rows, row)
		}
	}
	return out
}

// GroupBySum groups rows by the key columns and sums every numeric column,
// dropping non-numeric non-key columns. Group order follows first
// appearance; within a group, nulls and unparseable values contribute zero.
func GroupBySum(t *RawTable, keys []string) (*RawTable, error) {
	for _, k := range keys {
		if !t.HasColumn(k) {
			return nil, &SchemaError{Table: t.Name(), Missing: []string{k}}
		}
	}

	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}

	// Numeric columns: every non-null value must coerce to float64.
	var numeric []string
	for _, c := range t.Columns() {
		if _, isKey := keySet[c]; isKey {
			continue
		}
		ok := t.NumRows() > 0
		for i := 0; i < t.NumRows(); i++ {
			v := t.Cell(i, c)
			if IsNull(v) {
				continue
			}
			if _, numericVal := AsFloat(v); !numericVal {
				ok = false
				break
			}
		}
		if ok {
			numeric = append(numeric, c)
		}
	}

	outCols := append(append([]string(nil), keys...), numeric...)
	out := New(t.Name(), outCols)

	type group struct {
		row  []any
		sums []float64
	}
	groups := make(map[string]*group)
	var order []string

	for i := 0; i < t.NumRows(); i++ {
		var sb strings.Builder
		for _, k := range keys {
			sb.WriteString(formatKey(t.Cell(i, k)))
			sb.WriteByte('\x1f')
		}
		gk := sb.String()
		g, ok := groups[gk]
		if !ok {
			g = &group{row: make([]any, len(keys)), sums: make([]float64, len(numeric))}
			for j, k := range keys {
				g.row[j] = t.Cell(i, k)
			}
			groups[gk] = g
			order = append(order, gk)
		}
		for j, c := range numeric {
			if f, numericVal := AsFloat(t.Cell(i, c)); numericVal {
				g.sums[j] += f
			}
		}
	}

	for _, gk := range order {
		g := groups[gk]
		row := make([]any, 0, len(outCols))
		row = append(row, g.row...)
		for _, s := range g.sums {
			row = append(row, s)
		}
		if err := out.AppendRow(row); err != nil {
			return nil, fmt.Errorf("group by sum: %w", err)
		}
	}
	return out, nil
}
