// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func productTable() *RawTable {
	t := New("products.csv", []string{"product_id", "product_name", "brand"})
	_ = t.AppendRow([]any{int64(1), "Widget", "Acme"})
	return t
}

func salesTable() *RawTable {
	t := New("sales.csv", []string{"product_id", "date", "quantity"})
	_ = t.AppendRow([]any{int64(1), "2025-01-01", int64(3)})
	return t
}

func TestClassifyProductCandidate(t *testing.T) {
	d := Classify(productTable())
	assert.True(t, d.Product)
	assert.False(t, d.Sales)
	assert.ElementsMatch(t, []string{"product_id", "product_name", "brand"}, d.ProductCols)
}

func TestClassifySalesCandidate(t *testing.T) {
	d := Classify(salesTable())
	assert.True(t, d.Sales)
	assert.Contains(t, d.SalesCols, "date")
}

func TestClassifySalesRequiresDateColumn(t *testing.T) {
	// Two sales attributes but no date-like column: not a sales candidate.
	tbl := New("sales_nodate.csv", []string{"product_id", "quantity"})
	_ = tbl.AppendRow([]any{int64(1), int64(2)})

	d := Classify(tbl)
	assert.False(t, d.Sales)
}

func TestClassifyRejectsUnrelatedTable(t *testing.T) {
	tbl := New("misc.csv", []string{"id", "description"})
	_ = tbl.AppendRow([]any{int64(1), "something"})

	d := Classify(tbl)
	assert.False(t, d.Product)
	assert.False(t, d.Sales)
	assert.NotEmpty(t, d.Reason)
}

func TestClassifyRejectsEmptyTable(t *testing.T) {
	d := Classify(New("empty.csv", []string{"product_id", "product_name"}))
	assert.True(t, d.Rejected)
	assert.Equal(t, "empty table", d.Reason)
}

// Classifying the same table twice yields the same decision.
func TestClassifyIsDeterministic(t *testing.T) {
	tbl := salesTable()
	assert.Equal(t, Classify(tbl), Classify(tbl))
}
