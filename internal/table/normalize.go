// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package table

import "strings"

// Canonical tags assigned by the schema normalizer.
const (
	TagDate      = "date"
	TagProductID = "product_id"
	TagQuantity  = "quantity"
)

// Alias groups for semantically-equivalent columns across inconsistently
// named exports. Matching is case-insensitive substring matching and the
// groups are checked in this fixed order: date-like, then
// product-identifier-like, then quantity-like. The order is part of the
// contract: a column matching two groups resolves to the earlier group, and
// within a group the alias list order is the tie-break.
var (
	dateAliases      = []string{"date", "order_date", "created_on", "timestamp"}
	productIDAliases = []string{"product_id", "product_code", "material_code", "pm_id", "sku"}
	quantityAliases  = []string{"quantity", "qty", "units"}
)

// NormalizeColumn canonicalizes a single raw column name. Names matching no
// alias group are returned sanitized but otherwise unchanged.
func NormalizeColumn(name string) string {
	s := sanitizeColumn(name)
	for _, alias := range dateAliases {
		if strings.Contains(s, alias) {
			return TagDate
		}
	}
	for _, alias := range productIDAliases {
		if strings.Contains(s, alias) {
			return TagProductID
		}
	}
	for _, alias := range quantityAliases {
		if strings.Contains(s, alias) {
			return TagQuantity
		}
	}
	return s
}

// sanitizeColumn lowercases, trims, and replaces spaces with underscores so
// that matching is whitespace- and case-insensitive.
func sanitizeColumn(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(s, " ", "_")
}

// NormalizeColumns returns a new table with every column name canonicalized.
// When two raw columns normalize to the same tag, the first keeps the tag
// and later ones keep their sanitized names: deduplicating here would
// silently merge distinct source columns.
func NormalizeColumns(t *RawTable) *RawTable {
	cols := make([]string, t.NumCols())
	seen := make(map[string]struct{}, t.NumCols())
	for i, c := range t.Columns() {
		name := NormalizeColumn(c)
		if _, dup := seen[name]; dup {
			name = sanitizeColumn(c)
		}
		// A second collision keeps the sanitized original; it stays unique
		// because raw column names are unique within a file.
		seen[name] = struct{}{}
		cols[i] = name
	}
	out := New(t.Name(), cols)
	for i := 0; i < t.NumRows(); i++ {
		out.rows = append(out.rows, t.Row(i))
	}
	return out
}
