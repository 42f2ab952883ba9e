// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeColumn(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"order_date", TagDate},
		{"Created_On", TagDate},
		{"TIMESTAMP", TagDate},
		{"sale_date", TagDate},
		{"product_id", TagProductID},
		{"material_code", TagProductID},
		{"SKU", TagProductID},
		{"pm_id", TagProductID},
		{"quantity", TagQuantity},
		{"Qty Ordered", TagQuantity},
		{"units_sold", TagQuantity},
		{"description", "description"},
		{" Seller Name ", "seller_name"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeColumn(tt.in))
		})
	}
}

// A name matching both the date and product groups resolves to date: the
// group order is fixed, date-like first.
func TestNormalizeColumnGroupOrder(t *testing.T) {
	assert.Equal(t, TagDate, NormalizeColumn("product_id_timestamp"))
	assert.Equal(t, TagProductID, NormalizeColumn("sku_units"))
}

func TestNormalizeColumnsKeepsDistinctColumns(t *testing.T) {
	in := New("mixed.csv", []string{"order_date", "created_on", "product_id"})
	_ = in.AppendRow([]any{"2025-01-01", "2025-01-02", int64(1)})

	out := NormalizeColumns(in)

	// Both raw names match the date group, but only the first takes the
	// canonical tag; the second keeps its sanitized name.
	assert.Equal(t, []string{TagDate, "created_on", TagProductID}, out.Columns())
	assert.Equal(t, 1, out.NumRows())
}
