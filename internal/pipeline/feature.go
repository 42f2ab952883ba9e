// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

// Package pipeline contains the two batch orchestrators: the feature
// pipeline (source → join → filter → standardize → feature store) and the
// training pipeline (feature store → engineer → train → evaluate →
// registry). Each run carries a UUID and exports per-stage metrics.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/demandcast/demandcast/internal/config"
	"github.com/demandcast/demandcast/internal/featurestore"
	"github.com/demandcast/demandcast/internal/logging"
	"github.com/demandcast/demandcast/internal/metrics"
	"github.com/demandcast/demandcast/internal/source"
	"github.com/demandcast/demandcast/internal/table"
)

// joinTableNames are the source tables the join pipeline consumes, keyed
// by their role.
var joinTableNames = []string{
	"order_items", "orders", "product_variants", "product_material_codes",
	"seller_marketplaces", "marketplaces", "products",
}

// maxProductNameLen bounds stored product names.
const maxProductNameLen = 100

// FeaturePipeline turns raw source exports into the sales-record feature
// group.
type FeaturePipeline struct {
	cfg   *config.Config
	src   *source.Source
	store featurestore.Store
}

// NewFeaturePipeline wires the feature pipeline.
func NewFeaturePipeline(cfg *config.Config, src *source.Source, store featurestore.Store) *FeaturePipeline {
	return &FeaturePipeline{cfg: cfg, src: src, store: store}
}

// FeatureRunReport summarizes one feature-pipeline run.
type FeatureRunReport struct {
	RunID         string            `json:"run_id"`
	TablesRead    int               `json:"tables_read"`
	TablesSkipped []string          `json:"tables_skipped,omitempty"`
	Decisions     []table.Decision  `json:"decisions"`
	ProductRows   int               `json:"product_rows"`
	SalesRows     int               `json:"sales_rows"`
	JoinReport    *table.JoinReport `json:"join_report"`
	FactRows      int               `json:"fact_rows"`
	StoredRows    int               `json:"stored_rows"`
	GroupAction   string            `json:"group_action"`
}

// Run executes the full feature pipeline.
func (p *FeaturePipeline) Run(ctx context.Context) (*FeatureRunReport, error) {
	report := &FeatureRunReport{RunID: uuid.NewString()}
	logging.Info().Str("run_id", report.RunID).Msg("Feature pipeline starting")

	out, err := p.run(ctx, report)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.PipelineRuns.WithLabelValues("feature", outcome).Inc()
	return out, err
}

func (p *FeaturePipeline) run(ctx context.Context, report *FeatureRunReport) (*FeatureRunReport, error) {
	// Stage 1: fetch every non-empty source table.
	start := time.Now()
	tables, err := p.fetchTables(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("fetch source tables: %w", err)
	}
	metrics.ObserveStage("fetch", start, report.TablesRead)

	// Stage 2: classify and build the combined product/sales tables.
	start = time.Now()
	p.combine(tables, report)
	metrics.ObserveStage("classify", start, report.SalesRows)

	// Stage 3: the fixed join pipeline.
	start = time.Now()
	fact, joinReport, err := p.join(tables)
	if err != nil {
		return nil, err
	}
	report.JoinReport = joinReport
	for _, s := range joinReport.Steps {
		metrics.JoinRowsDropped.Add(float64(s.Dropped))
	}
	metrics.JoinIntegrityWarnings.Add(float64(len(joinReport.Warnings)))
	metrics.ObserveStage("join", start, fact.NumRows())

	// Stage 4: filter, derive, standardize.
	start = time.Now()
	sales, err := p.filter(fact)
	if err != nil {
		return nil, err
	}
	report.FactRows = sales.NumRows()
	metrics.ObserveStage("filter", start, sales.NumRows())

	// Stage 5: reconcile and write the feature group.
	start = time.Now()
	stored, action, err := p.storeRows(ctx, sales)
	if err != nil {
		return nil, err
	}
	report.StoredRows = stored
	report.GroupAction = string(action)
	metrics.ObserveStage("store", start, stored)

	logging.Info().
		Str("run_id", report.RunID).
		Int("stored_rows", stored).
		Str("group_action", report.GroupAction).
		Msg("Feature pipeline complete")
	return report, nil
}

// fetchTables attaches the raw CSV exports and reads every table, skipping
// empty ones with a warning.
func (p *FeaturePipeline) fetchTables(ctx context.Context, report *FeatureRunReport) (map[string]*table.RawTable, error) {
	names, err := p.src.AttachCSVDir(ctx, p.cfg.Source.RawDataDir)
	if err != nil {
		return nil, err
	}

	tables := make(map[string]*table.RawTable, len(names))
	for _, name := range names {
		t, err := p.src.ReadTable(ctx, name)
		if err != nil {
			return nil, err
		}
		if t.NumRows() == 0 {
			logging.Warn().Str("table", name).Msg("Skipping empty source table")
			report.TablesSkipped = append(report.TablesSkipped, name)
			continue
		}
		tables[name] = t
		report.TablesRead++
	}
	if len(tables) == 0 {
		return nil, &table.DataQualityError{Table: "source", Reason: "no non-empty tables in raw data dir"}
	}
	return tables, nil
}

// combine classifies each table on its normalized columns and builds the
// combined product catalog (deduplicated) and daily sales table
// (aggregated by product and date).
func (p *FeaturePipeline) combine(tables map[string]*table.RawTable, report *FeatureRunReport) {
	var productParts, salesParts []*table.RawTable

	for _, name := range sortedKeys(tables) {
		normalized := table.NormalizeColumns(tables[name])
		d := table.Classify(normalized)
		report.Decisions = append(report.Decisions, d)
		if d.Product {
			part, err := normalized.Select(d.ProductCols)
			if err == nil {
				productParts = append(productParts, part)
			}
		}
		if d.Sales {
			part, err := normalized.Select(d.SalesCols)
			if err == nil {
				salesParts = append(salesParts, part)
			}
		}
	}

	if len(productParts) > 0 {
		catalog := table.Concat("product_catalog", productParts)
		catalog = catalog.DropDuplicates("product_id", "product_name")
		report.ProductRows = catalog.NumRows()
	}
	if len(salesParts) > 0 {
		combined := table.Concat("daily_sales", salesParts)
		if agg, err := table.GroupBySum(combined, []string{"product_id", "date"}); err == nil {
			combined = agg
		}
		report.SalesRows = combined.NumRows()
	}
}

// join runs the fixed six-step join over the named source tables.
func (p *FeaturePipeline) join(tables map[string]*table.RawTable) (*table.RawTable, *table.JoinReport, error) {
	var missing []string
	for _, name := range joinTableNames {
		if tables[name] == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &table.SchemaError{Table: "source", Missing: missing}
	}

	return table.BuildFactTable(table.FactTableInputs{
		OrderItems:           tables["order_items"],
		Orders:               tables["orders"],
		ProductVariants:      tables["product_variants"],
		ProductMaterialCodes: tables["product_material_codes"],
		SellerMarketplaces:   tables["seller_marketplaces"],
		Marketplaces:         tables["marketplaces"],
		Products:             tables["products"],
	})
}

// filter applies the seller/date window, the derive rule, and the
// standardize rename onto the joined fact table.
func (p *FeaturePipeline) filter(fact *table.RawTable) (*table.RawTable, error) {
	from, err := time.Parse("2006-01-02", p.cfg.Pipeline.DateFrom)
	if err != nil {
		return nil, fmt.Errorf("parse date_from: %w", err)
	}
	to, err := time.Parse("2006-01-02", p.cfg.Pipeline.DateTo)
	if err != nil {
		return nil, fmt.Errorf("parse date_to: %w", err)
	}
	// Closed interval over whole days.
	to = to.Add(24*time.Hour - time.Nanosecond)

	filtered, err := table.FilterAndDerive(fact, table.FilterParams{
		SellerID: p.cfg.Pipeline.SellerID,
		From:     from,
		To:       to,
	})
	if err != nil {
		return nil, err
	}
	return table.Standardize(filtered)
}

// storeRows cleans the key column and writes the rows into the reconciled
// feature group.
func (p *FeaturePipeline) storeRows(ctx context.Context, sales *table.RawTable) (int, featurestore.ReconcileAction, error) {
	cleaned := cleanProductNames(sales)

	spec := featurestore.GroupSpec{
		Name:         p.cfg.Pipeline.FeatureGroupName,
		Version:      p.cfg.Pipeline.FeatureGroupVersion,
		Columns:      cleaned.Columns(),
		PrimaryKeys:  []string{"product_name", "order_id"},
		EventTimeCol: "created_at",
		EntityCol:    "product_name",
		Online:       true,
	}
	action, err := p.store.Reconcile(ctx, spec)
	if err != nil {
		return 0, "", fmt.Errorf("reconcile feature group: %w", err)
	}
	if err := p.store.Insert(ctx, spec, cleaned); err != nil {
		return 0, "", fmt.Errorf("insert feature rows: %w", err)
	}
	return cleaned.NumRows(), action, nil
}

// cleanProductNames replaces null product names with "unknown" and bounds
// their length, so the primary key is always a usable string.
func cleanProductNames(t *table.RawTable) *table.RawTable {
	if !t.HasColumn("product_name") {
		return t
	}
	out := t.Clone()
	for i := 0; i < out.NumRows(); i++ {
		v := out.Cell(i, "product_name")
		name := "unknown"
		if !table.IsNull(v) {
			name = table.AsString(v)
		}
		if len(name) > maxProductNameLen {
			name = name[:maxProductNameLen]
		}
		out.SetCell(i, "product_name", name)
	}
	return out
}

func sortedKeys(m map[string]*table.RawTable) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
