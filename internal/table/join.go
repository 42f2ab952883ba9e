// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package table

import (
	"fmt"

	"github.com/demandcast/demandcast/internal/logging"
)

// Required columns validated before the join pipeline starts. Missing
// columns fail fast with the full list of missing names.
var (
	requiredOrderCols     = []string{"id", "created_at", "seller_id", "smp_id", "status"}
	requiredOrderItemCols = []string{"order_id", "sub_total", "quantity", "sales_price"}
)

// FactTableInputs names the seven source tables consumed by the join
// pipeline. The fact side is order_items; everything else is a dimension.
type FactTableInputs struct {
	OrderItems           *RawTable
	Orders               *RawTable
	ProductVariants      *RawTable
	ProductMaterialCodes *RawTable
	SellerMarketplaces   *RawTable
	Marketplaces         *RawTable
	Products             *RawTable
}

// StepReport carries the per-join diagnostics: row accounting and the null
// rate of every column the step added. An unexpected row-count change is a
// correctness signal surfaced here, never silently ignored.
type StepReport struct {
	Step       string             `json:"step"`
	RightTable string             `json:"right_table"`
	RowsBefore int                `json:"rows_before"`
	RowsAfter  int                `json:"rows_after"`
	// Dropped counts left rows discarded by the validated inner join.
	Dropped int `json:"dropped,omitempty"`
	// FanOut reports duplicate keys on the dimension side. The engine keeps
	// the first match to preserve row count, but the condition is a defect
	// in the dimension data and is surfaced for audit.
	FanOut    bool               `json:"fan_out,omitempty"`
	NullRates map[string]float64 `json:"null_rates,omitempty"`
}

// JoinReport aggregates step reports and integrity warnings for one run of
// the join pipeline.
type JoinReport struct {
	Steps    []StepReport `json:"steps"`
	Warnings []string     `json:"warnings,omitempty"`
}

func (r *JoinReport) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, msg)
	logging.Warn().Str("component", "join").Msg(msg)
}

// BuildFactTable executes the fixed six-step join pipeline:
//
//	order_items ⋈ orders               (order_id = id, validated inner)
//	            ⟕ product_variants      (pv_id = id, suffix _pv)
//	            ⟕ product_material_codes(pm_id = id, suffix _pm)
//	            ⟕ seller_marketplaces   (smp_id = id, suffix _smp)
//	            ⟕ marketplaces          (mp_id = id, suffix _mp)
//	            ⟕ products              (p_id = id, suffix _product)
//
// The first join is inner: every order item must reference a valid order,
// and dropped items are accounted in the report rather than passing through
// with null order attributes. All later joins are left-outer: unmatched
// dimension rows yield nulls, never row loss. Column collisions are
// resolved by suffixing the right-hand column, so every output column name
// is globally unique.
func BuildFactTable(in FactTableInputs) (*RawTable, *JoinReport, error) {
	if err := requireColumns(in.Orders, requiredOrderCols); err != nil {
		return nil, nil, err
	}
	if err := requireColumns(in.OrderItems, requiredOrderItemCols); err != nil {
		return nil, nil, err
	}
	if in.OrderItems.NumRows() == 0 {
		return nil, nil, &DataQualityError{Table: in.OrderItems.Name(), Reason: "fact table has zero rows"}
	}

	report := &JoinReport{}

	steps := []struct {
		name    string
		right   *RawTable
		leftKey string
		suffix  string
		inner   bool
	}{
		{"order_items+orders", in.Orders, "order_id", "_order", true},
		{"+product_variants", in.ProductVariants, "pv_id", "_pv", false},
		{"+product_material_codes", in.ProductMaterialCodes, "pm_id", "_pm", false},
		{"+seller_marketplaces", in.SellerMarketplaces, "smp_id", "_smp", false},
		{"+marketplaces", in.Marketplaces, "mp_id", "_mp", false},
		{"+products", in.Products, "p_id", "_product", false},
	}

	fact := in.OrderItems
	var err error
	for _, s := range steps {
		var sr StepReport
		fact, sr, err = joinStep(fact, s.right, s.leftKey, "id", s.suffix, s.inner, report)
		if err != nil {
			return nil, nil, fmt.Errorf("join step %s: %w", s.name, err)
		}
		sr.Step = s.name
		report.Steps = append(report.Steps, sr)

		logging.Info().
			Str("step", sr.Step).
			Int("rows_before", sr.RowsBefore).
			Int("rows_after", sr.RowsAfter).
			Int("dropped", sr.Dropped).
			Msg("Join step complete")
	}

	if fact.NumRows() == 0 {
		return nil, report, &DataQualityError{Table: in.OrderItems.Name(), Reason: "zero rows after joining orders"}
	}

	return fact, report, nil
}

// joinStep performs one left-outer (or validated inner) join from the
// accumulating fact side onto a dimension table.
func joinStep(left, right *RawTable, leftKey, rightKey, suffix string, inner bool, report *JoinReport) (*RawTable, StepReport, error) {
	sr := StepReport{RightTable: rightTableName(right), RowsBefore: left.NumRows()}

	if right == nil || right.NumCols() == 0 || !right.HasColumn(rightKey) {
		// A missing or keyless dimension contributes nothing; left rows pass
		// through unchanged with no new columns.
		if !inner {
			report.warnf("dimension %s absent or missing key %q, passing rows through", sr.RightTable, rightKey)
			sr.RowsAfter = left.NumRows()
			return left, sr, nil
		}
		return nil, sr, &SchemaError{Table: sr.RightTable, Missing: []string{rightKey}}
	}
	if !left.HasColumn(leftKey) {
		return nil, sr, &SchemaError{Table: left.Name(), Missing: []string{leftKey}}
	}

	// Index the dimension by key. Duplicate keys are fan-out: the first row
	// wins so output row count stays equal to the left input, and the
	// condition is reported as an integrity warning.
	keyed := make(map[string]int, right.NumRows())
	for i := 0; i < right.NumRows(); i++ {
		k := formatKey(right.Cell(i, rightKey))
		if _, dup := keyed[k]; dup {
			if !sr.FanOut {
				report.warnf("dimension %s has duplicate join keys (first seen %q), keeping first match", sr.RightTable, k)
			}
			sr.FanOut = true
			continue
		}
		keyed[k] = i
	}

	// Right columns collide with left ones by suffix; left names win.
	rightCols := right.Columns()
	outRight := make([]string, len(rightCols))
	for i, c := range rightCols {
		name := c
		if left.HasColumn(name) {
			name += suffix
		}
		if left.HasColumn(name) {
			return nil, sr, fmt.Errorf("column %q still collides after suffix %q", c, suffix)
		}
		outRight[i] = name
	}

	out := New(left.Name(), append(left.Columns(), outRight...))
	nullCount := make([]int, len(rightCols))

	for i := 0; i < left.NumRows(); i++ {
		lrow := left.Row(i)
		lk := formatKey(left.Cell(i, leftKey))
		ri, matched := keyed[lk]
		if !matched {
			if inner {
				sr.Dropped++
				continue
			}
			row := make([]any, len(lrow)+len(rightCols))
			copy(row, lrow)
			for j := range rightCols {
				nullCount[j]++
			}
			out.rows = append(out.rows, row)
			continue
		}
		rrow := right.Row(ri)
		row := make([]any, 0, len(lrow)+len(rrow))
		row = append(row, lrow...)
		row = append(row, rrow...)
		for j, v := range rrow {
			if IsNull(v) {
				nullCount[j]++
			}
		}
		out.rows = append(out.rows, row)
	}

	sr.RowsAfter = out.NumRows()
	if inner && sr.Dropped > 0 {
		report.warnf("inner join dropped %d order items without a matching order", sr.Dropped)
	}
	if !inner && sr.RowsAfter != sr.RowsBefore {
		report.warnf("left join onto %s changed row count %d -> %d", sr.RightTable, sr.RowsBefore, sr.RowsAfter)
	}

	if sr.RowsAfter > 0 {
		sr.NullRates = make(map[string]float64, len(outRight))
		for j, c := range outRight {
			sr.NullRates[c] = float64(nullCount[j]) / float64(sr.RowsAfter)
		}
	}

	return out, sr, nil
}

func rightTableName(t *RawTable) string {
	if t == nil {
		return "<absent>"
	}
	return t.Name()
}
