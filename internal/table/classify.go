// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package table

import "github.com/demandcast/demandcast/internal/logging"

// Attribute sets used by the classifier. A table qualifying for a set
// contributes those columns to the corresponding combined table.
var (
	productAttributes = []string{"product_id", "product_name", "category", "brand", "cost_price", "price"}
	salesAttributes   = []string{"product_id", "date", "quantity", "sale_price", "sales", "marketplace"}
)

// Decision records the classifier's verdict for one table. It is logged per
// file for auditability and is deterministic for a given input.
type Decision struct {
	Table       string   `json:"table"`
	Product     bool     `json:"product"`
	Sales       bool     `json:"sales"`
	ProductCols []string `json:"product_cols,omitempty"`
	SalesCols   []string `json:"sales_cols,omitempty"`
	Rejected    bool     `json:"rejected"`
	Reason      string   `json:"reason,omitempty"`
}

// Classify inspects a table with normalized columns and decides whether it
// contributes to the product dimension set, the sales fact set, both, or
// neither. Thresholds: a product candidate matches at least two product
// attributes; a sales candidate matches at least two sales attributes and
// carries a date-like column. Empty tables are rejected outright.
func Classify(t *RawTable) Decision {
	d := Decision{Table: t.Name()}

	if t.NumRows() == 0 {
		d.Rejected = true
		d.Reason = "empty table"
		logging.Warn().Str("table", d.Table).Msg("Classifier rejected empty table")
		return d
	}

	d.ProductCols, _ = t.Intersect(productAttributes)
	d.SalesCols, _ = t.Intersect(salesAttributes)

	d.Product = len(d.ProductCols) >= 2
	d.Sales = len(d.SalesCols) >= 2 && t.HasColumn(TagDate)

	if !d.Product && !d.Sales {
		d.Reason = "matches neither attribute set"
	}

	logging.Info().
		Str("table", d.Table).
		Bool("product", d.Product).
		Bool("sales", d.Sales).
		Strs("product_cols", d.ProductCols).
		Strs("sales_cols", d.SalesCols).
		Msg("Table classified")

	return d
}
