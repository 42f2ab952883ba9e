// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

// Package features implements the feature engineer: one derivation recipe
// shared by a fit mode (training) and a transform mode (inference).
//
// Fit mode returns the scaled feature matrix, target vector, fitted scaler,
// ordered feature names, and the category mapping. Transform mode takes the
// previously fitted scaler and mapping and returns only the matrix plus the
// join keys needed to re-attach predictions. The feature column order is
// part of the contract: scaler and model are order-sensitive and carry no
// column-name awareness after the transform step.
package features

import (
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"gonum.org/v1/gonum/mat"

	"github.com/demandcast/demandcast/internal/logging"
	"github.com/demandcast/demandcast/internal/table"
)

// Well-known columns of the standardized sales table.
const (
	ColOrderID     = "order_id"
	ColCreatedAt   = "created_at"
	ColProductName = "product_name"
	ColMarketplace = "marketplace_name"
	ColTarget      = "sub_total"
)

// derivedNames lists the derived features in their fixed output order,
// appended after the base numeric columns.
var derivedNames = []string{
	"day_of_week", "hour", "week_of_year",
	"product_length", "marketplace_code", "prev_day_sales",
}

// identifier/leak columns excluded from the feature matrix after the
// derivation that consumes them.
var dropColumns = map[string]struct{}{
	ColOrderID:     {},
	ColCreatedAt:   {},
	ColProductName: {},
	ColMarketplace: {},
}

// RowKey identifies one engineered row so predictions can be re-joined to
// the source data.
type RowKey struct {
	ProductName string    `json:"product_name"`
	CreatedAt   time.Time `json:"created_at"`
	OrderID     any       `json:"order_id,omitempty"`
}

// Engineered is the fit-mode result.
type Engineered struct {
	X            *mat.Dense
	Y            []float64
	Scaler       *StandardScaler
	FeatureNames []string
	Categories   *CategoryMapping
}

// Batch is the transform-mode result: a scaled matrix whose rows align with
// Keys, plus the per-row actual target for reporting.
type Batch struct {
	X       *mat.Dense
	Keys    []RowKey
	Actuals []float64
}

// preparedRow is one source row after timestamp coercion and the stable
// (product, created_at) sort that lag features depend on.
type preparedRow struct {
	src     int
	product string
	created time.Time
	target  float64
	orderID any
}

// prepare coerces and sorts rows for the shared recipe. Rows with
// unparseable created_at are skipped with a warning: a lag feature cannot
// be anchored without a timestamp.
func prepare(t *table.RawTable) ([]preparedRow, error) {
	var missing []string
	for _, c := range []string{ColCreatedAt, ColProductName, ColTarget} {
		if !t.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &table.SchemaError{Table: t.Name(), Missing: missing}
	}

	rows := make([]preparedRow, 0, t.NumRows())
	skipped := 0
	for i := 0; i < t.NumRows(); i++ {
		created, ok := table.AsTime(t.Cell(i, ColCreatedAt))
		if !ok {
			skipped++
			continue
		}
		target, _ := table.AsFloat(t.Cell(i, ColTarget))
		rows = append(rows, preparedRow{
			src:     i,
			product: table.AsString(t.Cell(i, ColProductName)),
			created: created,
			target:  target,
			orderID: t.Cell(i, ColOrderID),
		})
	}
	if skipped > 0 {
		logging.Warn().Int("count", skipped).Msg("Rows without parseable created_at skipped by feature engineer")
	}

	sort.SliceStable(rows, func(a, b int) bool {
		if rows[a].product != rows[b].product {
			return rows[a].product < rows[b].product
		}
		return rows[a].created.Before(rows[b].created)
	})
	return rows, nil
}

// derived computes the six derived features for one prepared row.
// prevSales is the target value of the immediately preceding chronological
// row of the same product, 0 when no prior row exists.
func derived(t *table.RawTable, r preparedRow, cats *CategoryMapping, prevSales float64) []float64 {
	_, week := r.created.ISOWeek()

	code := UnknownCategoryCode
	if mp := t.Cell(r.src, ColMarketplace); !table.IsNull(mp) {
		code = cats.Code(table.AsString(mp))
	}

	return []float64{
		float64((int(r.created.Weekday()) + 6) % 7), // Monday=0
		float64(r.created.Hour()),
		float64(week),
		float64(utf8.RuneCountInString(table.AsString(t.Cell(r.src, ColProductName)))),
		float64(code),
		prevSales,
	}
}

// Fit runs the recipe in training mode: derives features, builds the target
// vector, fits the category mapping and the scaler, and returns the scaled
// matrix with its ordered feature names.
func Fit(t *table.RawTable) (*Engineered, error) {
	rows, err := prepare(t)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &table.DataQualityError{Table: t.Name(), Reason: "no usable rows for feature engineering"}
	}

	cats := fitCategoriesFromTable(t, rows)
	base := baseNumericColumns(t)
	featureNames := append(append([]string(nil), base...), derivedNames...)

	x := mat.NewDense(len(rows), len(featureNames), nil)
	y := make([]float64, len(rows))

	prevByProduct := make(map[string]float64, len(rows))
	for i, r := range rows {
		for j, c := range base {
			x.Set(i, j, numericCell(t, r.src, c))
		}
		prev, seen := prevByProduct[r.product]
		if !seen {
			prev = 0
		}
		d := derived(t, r, cats, prev)
		for j, v := range d {
			x.Set(i, len(base)+j, v)
		}
		y[i] = r.target
		prevByProduct[r.product] = r.target
	}

	scaler := &StandardScaler{}
	scaled, err := scaler.FitTransform(x, featureNames)
	if err != nil {
		return nil, err
	}

	logging.Info().
		Int("rows", len(rows)).
		Int("features", len(featureNames)).
		Int("categories", cats.Len()).
		Msg("Feature engineering complete")

	return &Engineered{
		X:            scaled,
		Y:            y,
		Scaler:       scaler,
		FeatureNames: featureNames,
		Categories:   cats,
	}, nil
}

// Transform runs the recipe in inference mode with previously fitted
// artifacts. The output column order is exactly the scaler's fit-time
// order; a base column the training data had but the batch lacks is a
// schema error, not a silent zero.
func Transform(t *table.RawTable, scaler *StandardScaler, cats *CategoryMapping) (*Batch, error) {
	if scaler == nil || len(scaler.Cols) == 0 {
		return nil, fmt.Errorf("features: scaler not fitted")
	}

	rows, err := prepare(t)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &table.DataQualityError{Table: t.Name(), Reason: "no usable rows for inference"}
	}

	derivedSet := make(map[string]struct{}, len(derivedNames))
	for _, d := range derivedNames {
		derivedSet[d] = struct{}{}
	}
	var base []string
	var missing []string
	for _, c := range scaler.Cols {
		if _, isDerived := derivedSet[c]; isDerived {
			continue
		}
		if !t.HasColumn(c) {
			missing = append(missing, c)
			continue
		}
		base = append(base, c)
	}
	if len(missing) > 0 {
		return nil, &table.SchemaError{Table: t.Name(), Missing: missing}
	}

	x := mat.NewDense(len(rows), len(scaler.Cols), nil)
	keys := make([]RowKey, len(rows))
	actuals := make([]float64, len(rows))

	colPos := make(map[string]int, len(scaler.Cols))
	for j, c := range scaler.Cols {
		colPos[c] = j
	}

	prevByProduct := make(map[string]float64, len(rows))
	for i, r := range rows {
		for _, c := range base {
			x.Set(i, colPos[c], numericCell(t, r.src, c))
		}
		prev := prevByProduct[r.product]
		d := derived(t, r, cats, prev)
		for j, name := range derivedNames {
			x.Set(i, colPos[name], d[j])
		}
		prevByProduct[r.product] = r.target

		keys[i] = RowKey{ProductName: r.product, CreatedAt: r.created, OrderID: r.orderID}
		actuals[i] = r.target
	}

	scaled, err := scaler.Transform(x)
	if err != nil {
		return nil, err
	}
	return &Batch{X: scaled, Keys: keys, Actuals: actuals}, nil
}

// baseNumericColumns selects the input columns that become features
// directly: not identifiers, not the target, and numeric in every non-null
// cell. Non-numeric columns are dropped with a warning.
func baseNumericColumns(t *table.RawTable) []string {
	var base []string
	var dropped []string
	for _, c := range t.Columns() {
		if _, drop := dropColumns[c]; drop || c == ColTarget {
			continue
		}
		numeric := true
		for i := 0; i < t.NumRows(); i++ {
			v := t.Cell(i, c)
			if table.IsNull(v) {
				continue
			}
			if _, ok := table.AsFloat(v); !ok {
				numeric = false
				break
			}
		}
		if numeric {
			base = append(base, c)
		} else {
			dropped = append(dropped, c)
		}
	}
	if len(dropped) > 0 {
		logging.Warn().Strs("columns", dropped).Msg("Non-numeric columns excluded from feature matrix")
	}
	return base
}

// numericCell reads a cell as float64, with nulls contributing zero.
func numericCell(t *table.RawTable, row int, col string) float64 {
	f, _ := table.AsFloat(t.Cell(row, col))
	return f
}

// fitCategoriesFromTable collects the distinct non-null marketplace names
// over the prepared rows.
func fitCategoriesFromTable(t *table.RawTable, rows []preparedRow) *CategoryMapping {
	var values []string
	for _, r := range rows {
		if v := t.Cell(r.src, ColMarketplace); !table.IsNull(v) {
			values = append(values, table.AsString(v))
		}
	}
	return FitCategories(values)
}
