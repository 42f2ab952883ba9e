// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package table

import (
	"time"

	"github.com/demandcast/demandcast/internal/logging"
)

// FilterParams parametrize the row filter: a closed date interval on
// created_at and an equality filter on seller_id.
type FilterParams struct {
	SellerID int64
	From     time.Time
	To       time.Time
}

// finalFactCols is the fixed projection applied after derivation. Expected
// columns absent from the joined table are warned about, not fatal.
var finalFactCols = []string{
	"pv_id", "pm_id", "order_id", "created_at", "seller_id", "smp_id", "status",
	"units_sold", "amount", "unit_price", "product_name", "sku", "marketplace_id",
	"name", "color", "name_mp", "image",
}

// standardizeRenames maps legacy export names onto the canonical sales
// schema consumed by the feature engineer.
var standardizeRenames = map[string]string{
	"units_sold": "quantity",
	"unit_price": "sales_price",
	"amount":     "sub_total",
	"naame":      "seller_name",
	"name_mp":    "marketplace_name",
}

// standardColumns is the canonical sales-record schema, projected
// present-only with a warning for anything missing.
var standardColumns = []string{
	"order_id", "created_at", "sub_total", "sales_price", "quantity",
	"product_id", "product_name", "brand", "category",
	"sub_category", "sub_sub_category", "seller_name", "marketplace_name",
}

// FilterAndDerive applies, in order: created_at parsing (unparseable values
// become null), the date/seller window filter, the per-row derive rule, and
// the fixed final projection. Running it on its own output is a no-op
// beyond the projection: the operation is idempotent.
func FilterAndDerive(t *RawTable, p FilterParams) (*RawTable, error) {
	out := coerceCreatedAt(t)
	before := out.NumRows()

	sellerIdx := out.ColumnIndex("seller_id")
	if sellerIdx < 0 {
		return nil, &SchemaError{Table: t.Name(), Missing: []string{"seller_id"}}
	}

	out = out.Filter(func(row []any) bool {
		ts, ok := rowTime(out, row, "created_at")
		if !ok {
			return false
		}
		seller, ok := AsInt64(row[sellerIdx])
		if !ok || seller != p.SellerID {
			return false
		}
		return !ts.Before(p.From) && !ts.After(p.To)
	})

	logging.Info().
		Int("rows_before", before).
		Int("rows_after", out.NumRows()).
		Int64("seller_id", p.SellerID).
		Msg("Filtered seller and date window")

	if out.NumRows() == 0 {
		return nil, &DataQualityError{Table: t.Name(), Reason: "zero rows after seller/date filtering"}
	}

	out, err := deriveColumns(out)
	if err != nil {
		return nil, err
	}

	present, missing := out.Intersect(finalFactCols)
	if len(missing) > 0 {
		logging.Warn().Strs("missing", missing).Msg("Expected final columns absent from joined table")
	}
	return out.Select(present)
}

// coerceCreatedAt rewrites the created_at column to time.Time values,
// coercing unparseable entries to null rather than failing.
func coerceCreatedAt(t *RawTable) *RawTable {
	out := t.Clone()
	if !out.HasColumn("created_at") {
		return out
	}
	unparseable := 0
	for i := 0; i < out.NumRows(); i++ {
		v := out.Cell(i, "created_at")
		if IsNull(v) {
			continue
		}
		if ts, ok := AsTime(v); ok {
			out.SetCell(i, "created_at", ts)
		} else {
			out.SetCell(i, "created_at", nil)
			unparseable++
		}
	}
	if unparseable > 0 {
		logging.Warn().Int("count", unparseable).Msg("Unparseable created_at values coerced to null")
	}
	return out
}

func rowTime(t *RawTable, row []any, col string) (time.Time, bool) {
	i := t.ColumnIndex(col)
	if i < 0 {
		return time.Time{}, false
	}
	return AsTime(row[i])
}

// noVariantSentinel is the pv_id value meaning "order item has no product
// variant"; such rows fall back to material-code-level attributes.
const noVariantSentinel = int64(0)

// DerivedRow holds the outputs of the per-row derive rule.
type DerivedRow struct {
	UnitsSold     any
	Amount        any
	UnitPrice     any
	ProductName   any
	SKU           any
	MarketplaceID any
}

// DeriveRow is the pure per-row rule computing derived columns from a fact
// row. When pv_id is the "no variant" sentinel, material-code-level fields
// (name_pm, slug) are preferred over variant-level fields (name, sku) and
// the marketplace variant id is nulled; otherwise variant-level fields win.
// The rule is applied uniformly per row because the branch differs by row.
func DeriveRow(get func(col string) any) DerivedRow {
	d := DerivedRow{
		UnitsSold: get("quantity"),
		Amount:    get("sub_total"),
		UnitPrice: get("sales_price"),
	}
	pvID, _ := AsInt64(get("pv_id"))
	if pvID == noVariantSentinel {
		d.ProductName = get("name_pm")
		d.SKU = get("slug")
		d.MarketplaceID = nil
	} else {
		d.ProductName = get("name")
		d.SKU = get("sku")
		d.MarketplaceID = get("mp_variant_id")
	}
	return d
}

// deriveSourceFallbacks lets a re-run on already-derived output read the
// previously derived value when the original source column was projected
// away. This is what keeps FilterAndDerive idempotent.
var deriveSourceFallbacks = map[string]string{
	"quantity":      "units_sold",
	"sub_total":     "amount",
	"sales_price":   "unit_price",
	"name_pm":       "product_name",
	"slug":          "sku",
	"mp_variant_id": "marketplace_id",
}

// deriveColumns applies DeriveRow across the table. Derived columns that
// already exist (a re-run on derived output) are overwritten in place so
// the operation stays idempotent.
func deriveColumns(t *RawTable) (*RawTable, error) {
	out := t.Clone()
	for _, col := range []string{"units_sold", "amount", "unit_price", "product_name", "sku", "marketplace_id"} {
		if !out.HasColumn(col) {
			var err error
			out, err = out.WithColumn(col, func([]any) any { return nil })
			if err != nil {
				return nil, err
			}
		}
	}
	for i := 0; i < out.NumRows(); i++ {
		row := out.Row(i)
		get := func(col string) any {
			j := out.ColumnIndex(col)
			if j < 0 {
				if fb, ok := deriveSourceFallbacks[col]; ok {
					j = out.ColumnIndex(fb)
				}
			}
			if j < 0 {
				return nil
			}
			return row[j]
		}
		d := DeriveRow(get)
		out.SetCell(i, "units_sold", d.UnitsSold)
		out.SetCell(i, "amount", d.Amount)
		out.SetCell(i, "unit_price", d.UnitPrice)
		out.SetCell(i, "product_name", d.ProductName)
		out.SetCell(i, "sku", d.SKU)
		out.SetCell(i, "marketplace_id", d.MarketplaceID)
	}
	return out, nil
}

// Standardize renames the derived fact table onto the canonical sales
// schema and projects to the standard column list, warning (not failing)
// when expected columns are absent.
func Standardize(t *RawTable) (*RawTable, error) {
	out, err := t.Rename(standardizeRenames)
	if err != nil {
		return nil, err
	}
	present, missing := out.Intersect(standardColumns)
	if len(missing) > 0 {
		logging.Warn().Strs("missing", missing).Msg("Standard sales columns absent, projecting what is present")
	}
	return out.Select(present)
}
