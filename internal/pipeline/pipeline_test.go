// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demandcast/demandcast/internal/config"
	"github.com/demandcast/demandcast/internal/featurestore"
	"github.com/demandcast/demandcast/internal/registry"
	"github.com/demandcast/demandcast/internal/source"
	"github.com/demandcast/demandcast/internal/table"
)

// writeFixtures lays out a small but complete raw export: 40 orders over
// January 2025 for one seller, half resolving through a product variant
// and half through a material code.
func writeFixtures(t *testing.T, dir string) {
	t.Helper()

	var orders strings.Builder
	orders.WriteString("id,created_at,seller_id,smp_id,status\n")
	var items strings.Builder
	items.WriteString("order_id,sub_total,quantity,sales_price,pv_id,pm_id\n")

	day := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 40; i++ {
		created := day.Add(time.Duration(i) * 12 * time.Hour)
		orders.WriteString(fmt.Sprintf("%d,%s,1,9,complete\n", i, created.Format("2006-01-02 15:04:05")))

		pvID := 0
		if i%2 == 0 {
			pvID = 1
		}
		qty := 1 + i%4
		price := 5.0 + float64(i%3)
		items.WriteString(fmt.Sprintf("%d,%.2f,%d,%.2f,%d,7\n", i, float64(qty)*price, qty, price, pvID))
	}
	// One order outside the window and one for another seller.
	orders.WriteString("98,2024-12-01 09:00:00,1,9,complete\n")
	orders.WriteString("99,2025-01-05 09:00:00,2,9,complete\n")
	items.WriteString("98,10.00,2,5.00,1,7\n")
	items.WriteString("99,10.00,2,5.00,1,7\n")

	files := map[string]string{
		"orders.csv":      orders.String(),
		"order_items.csv": items.String(),
		"product_variants.csv": "id,name,sku,mp_variant_id,p_id,mp_id\n" +
			"1,Steel Mug,MUG-1,501,3,2\n",
		"product_material_codes.csv": "id,name,slug\n" +
			"7,Ceramic Bowl,ceramic-bowl\n",
		"seller_marketplaces.csv": "id,naame\n9,Acme Store\n",
		"marketplaces.csv":        "id,name\n2,amazon\n",
		"products.csv":            "id,name,color,image\n3,Mug,silver,mug.png\n",
		"empty.csv":               "id,name\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func testConfig(t *testing.T, rawDir string) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Source.RawDataDir = rawDir
	cfg.Source.Threads = 1
	cfg.Source.MaxMemory = "512MB"
	cfg.Pipeline.DateFrom = "2025-01-01"
	cfg.Pipeline.DateTo = "2025-01-31"
	cfg.Training.Workers = 2
	return cfg
}

func TestFeatureAndTrainingPipelines(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end pipeline test")
	}

	rawDir := t.TempDir()
	writeFixtures(t, rawDir)
	cfg := testConfig(t, rawDir)
	ctx := context.Background()

	src, err := source.Open(&cfg.Source)
	require.NoError(t, err)
	defer src.Close()

	store, err := featurestore.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	reg, err := registry.New(t.TempDir())
	require.NoError(t, err)

	// Feature pipeline.
	fp := NewFeaturePipeline(cfg, src, store)
	freport, err := fp.Run(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, freport.RunID)
	assert.Contains(t, freport.TablesSkipped, "empty")
	assert.Equal(t, string(featurestore.ActionCreated), freport.GroupAction)
	// 40 in-window orders for seller 1; the out-of-window and foreign-
	// seller rows are filtered.
	assert.Equal(t, 40, freport.StoredRows)

	view, err := store.ReadAll(ctx, cfg.Pipeline.FeatureGroupName, cfg.Pipeline.FeatureGroupVersion)
	require.NoError(t, err)
	assert.Equal(t, 40, view.NumRows())
	assert.True(t, view.HasColumn("sub_total"))
	assert.True(t, view.HasColumn("marketplace_name"))

	// Both derive branches produced product names.
	names := map[string]bool{}
	for i := 0; i < view.NumRows(); i++ {
		names[table.AsString(view.Cell(i, "product_name"))] = true
	}
	assert.True(t, names["Steel Mug"], "variant branch")
	assert.True(t, names["Ceramic Bowl"], "material-code branch")

	// Training pipeline on the stored view.
	tp := NewTrainingPipeline(cfg, store, reg)
	treport, err := tp.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 40, treport.Rows)
	assert.Equal(t, 1, treport.Version)
	assert.NotNil(t, treport.Metrics)
	assert.NotNil(t, treport.Impact)
	assert.Contains(t, treport.Deployment.Text(), "verdict:")
	assert.Contains(t, treport.Features, "prev_day_sales")

	// The registered bundle round-trips and matches the run.
	bundle, err := reg.Load(cfg.Registry.ModelName, 0)
	require.NoError(t, err)
	assert.Equal(t, treport.RunID, bundle.Manifest.RunID)
	assert.Equal(t, treport.Features, bundle.Manifest.FeatureNames)
	assert.NotEmpty(t, bundle.Model.Trees)

	// Re-running the feature pipeline reuses the compatible group and
	// upserts rather than duplicating.
	freport2, err := fp.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(featurestore.ActionReused), freport2.GroupAction)
	view, err = store.ReadAll(ctx, cfg.Pipeline.FeatureGroupName, cfg.Pipeline.FeatureGroupVersion)
	require.NoError(t, err)
	assert.Equal(t, 40, view.NumRows())
}

func TestFeaturePipelineMissingJoinTables(t *testing.T) {
	rawDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "orders.csv"),
		[]byte("id,created_at,seller_id,smp_id,status\n1,2025-01-02 09:00:00,1,9,complete\n"), 0o644))
	cfg := testConfig(t, rawDir)

	src, err := source.Open(&cfg.Source)
	require.NoError(t, err)
	defer src.Close()

	store, err := featurestore.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	fp := NewFeaturePipeline(cfg, src, store)
	_, err = fp.Run(context.Background())

	var se *table.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Missing, "order_items")
	assert.Contains(t, se.Missing, "products")
}

func TestCleanProductNames(t *testing.T) {
	tbl := table.New("sales", []string{"order_id", "product_name"})
	require.NoError(t, tbl.AppendRow([]any{int64(1), nil}))
	require.NoError(t, tbl.AppendRow([]any{int64(2), strings.Repeat("x", 150)}))
	require.NoError(t, tbl.AppendRow([]any{int64(3), "Mug"}))

	got := cleanProductNames(tbl)
	assert.Equal(t, "unknown", table.AsString(got.Cell(0, "product_name")))
	assert.Len(t, table.AsString(got.Cell(1, "product_name")), 100)
	assert.Equal(t, "Mug", table.AsString(got.Cell(2, "product_name")))
}
