// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersFixture() *RawTable {
	t := New("orders", []string{"id", "created_at", "seller_id", "smp_id", "status"})
	_ = t.AppendRow([]any{int64(1), "2025-01-01", int64(1), int64(9), "ok"})
	return t
}

func orderItemsFixture() *RawTable {
	t := New("order_items", []string{"order_id", "sub_total", "quantity", "sales_price", "pv_id", "pm_id"})
	_ = t.AppendRow([]any{int64(1), 10.0, 2.0, 5.0, int64(0), int64(3)})
	return t
}

func emptyDim(name string, cols []string) *RawTable {
	return New(name, cols)
}

func factInputs() FactTableInputs {
	return FactTableInputs{
		OrderItems:           orderItemsFixture(),
		Orders:               ordersFixture(),
		ProductVariants:      emptyDim("product_variants", []string{"id", "name", "sku", "mp_variant_id", "p_id", "mp_id"}),
		ProductMaterialCodes: emptyDim("product_material_codes", []string{"id", "name", "slug"}),
		SellerMarketplaces:   emptyDim("seller_marketplaces", []string{"id", "naame"}),
		Marketplaces:         emptyDim("marketplaces", []string{"id", "name"}),
		Products:             emptyDim("products", []string{"id", "name", "color", "image"}),
	}
}

func TestBuildFactTableNullFillsUnmatchedDimensions(t *testing.T) {
	fact, report, err := BuildFactTable(factInputs())
	require.NoError(t, err)
	require.Equal(t, 1, fact.NumRows())

	// Order attributes joined in.
	assert.Equal(t, int64(1), fact.Cell(0, "order_id"))
	assert.Equal(t, "2025-01-01", fact.Cell(0, "created_at"))
	assert.Equal(t, "ok", fact.Cell(0, "status"))

	// All dimension-sourced fields are null, never dropped.
	for _, col := range []string{"name", "sku", "name_pm", "slug", "naame", "name_mp", "color", "image"} {
		require.True(t, fact.HasColumn(col), "column %s", col)
		assert.Nil(t, fact.Cell(0, col), "column %s", col)
	}

	require.Len(t, report.Steps, 6)
	for _, sr := range report.Steps[1:] {
		assert.Equal(t, sr.RowsBefore, sr.RowsAfter, "left join step %s must preserve row count", sr.Step)
	}
}

func TestBuildFactTableSuffixesCollidingColumns(t *testing.T) {
	fact, _, err := BuildFactTable(factInputs())
	require.NoError(t, err)

	// Every joined table carries an "id" column; suffixes keep them unique.
	for _, col := range []string{"id", "id_pv", "id_pm", "id_smp", "id_mp", "id_product"} {
		assert.True(t, fact.HasColumn(col), "column %s", col)
	}

	// No duplicate column names anywhere.
	seen := map[string]bool{}
	for _, c := range fact.Columns() {
		assert.False(t, seen[c], "duplicate column %s", c)
		seen[c] = true
	}
}

func TestBuildFactTableInnerJoinDropsOrphanItems(t *testing.T) {
	in := factInputs()
	orphan := []any{int64(99), 1.0, 1.0, 1.0, int64(0), int64(0)}
	require.NoError(t, in.OrderItems.AppendRow(orphan))

	fact, report, err := BuildFactTable(in)
	require.NoError(t, err)

	assert.Equal(t, 1, fact.NumRows())
	assert.Equal(t, 1, report.Steps[0].Dropped)
	assert.NotEmpty(t, report.Warnings)
}

func TestBuildFactTableDetectsFanOut(t *testing.T) {
	in := factInputs()
	// Duplicate material-code key: fan-out on the dimension side.
	require.NoError(t, in.ProductMaterialCodes.AppendRow([]any{int64(3), "Steel Rod", "steel-rod"}))
	require.NoError(t, in.ProductMaterialCodes.AppendRow([]any{int64(3), "Steel Rod dup", "steel-rod-2"}))

	fact, report, err := BuildFactTable(in)
	require.NoError(t, err)

	// Row count preserved despite the duplicate key; first match wins.
	assert.Equal(t, 1, fact.NumRows())
	assert.Equal(t, "Steel Rod", fact.Cell(0, "name_pm"))
	assert.True(t, report.Steps[2].FanOut)
	assert.NotEmpty(t, report.Warnings)
}

func TestBuildFactTableMissingRequiredColumnsFailsFast(t *testing.T) {
	in := factInputs()
	in.Orders = New("orders", []string{"id", "created_at"})

	_, _, err := BuildFactTable(in)
	require.Error(t, err)

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "orders", se.Table)
	assert.ElementsMatch(t, []string{"seller_id", "smp_id", "status"}, se.Missing)
}

func TestBuildFactTableEmptyFactIsFatal(t *testing.T) {
	in := factInputs()
	in.OrderItems = New("order_items", []string{"order_id", "sub_total", "quantity", "sales_price"})

	_, _, err := BuildFactTable(in)
	var dqe *DataQualityError
	require.ErrorAs(t, err, &dqe)
}

func TestBuildFactTableNullRates(t *testing.T) {
	_, report, err := BuildFactTable(factInputs())
	require.NoError(t, err)

	// No product variant matched, so every _pv-step column is fully null.
	pv := report.Steps[1]
	for col, rate := range pv.NullRates {
		assert.Equal(t, 1.0, rate, "column %s", col)
	}
}
