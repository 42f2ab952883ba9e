// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demandcast/demandcast/internal/config"
	"github.com/demandcast/demandcast/internal/table"
)

func testSource(t *testing.T) *Source {
	t.Helper()
	s, err := Open(&config.SourceConfig{
		MaxMemory:     "512MB",
		Threads:       1,
		RetryAttempts: 1,
		RetryDelay:    10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestAttachAndReadCSV(t *testing.T) {
	s := testSource(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeCSV(t, dir, "orders.csv",
		"id,created_at,seller_id,smp_id,status\n"+
			"1,2025-03-01 09:00:00,1,9,complete\n"+
			"2,2025-03-02 10:00:00,2,9,complete\n")
	writeCSV(t, dir, "Order Items.csv",
		"order_id,sub_total,quantity,sales_price\n1,10.5,2,5.25\n")
	writeCSV(t, dir, "notes.txt", "not a csv")

	names, err := s.AttachCSVDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"order_items", "orders"}, names)

	orders, err := s.ReadTable(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 2, orders.NumRows())
	assert.True(t, orders.HasColumn("seller_id"))

	items, err := s.ReadTable(ctx, "order_items")
	require.NoError(t, err)
	require.Equal(t, 1, items.NumRows())
	sub, ok := table.AsFloat(items.Cell(0, "sub_total"))
	require.True(t, ok)
	assert.InDelta(t, 10.5, sub, 1e-9)
}

func TestAttachCSVWithQuoteInPath(t *testing.T) {
	s := testSource(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "bob's exports")
	require.NoError(t, os.Mkdir(dir, 0o755))

	writeCSV(t, dir, "orders.csv",
		"id,created_at,seller_id\n1,2025-03-01 09:00:00,1\n")

	names, err := s.AttachCSVDir(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, []string{"orders"}, names)

	got, err := s.ReadTable(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 1, got.NumRows())
}

func TestReadOrdersPushesDownFilters(t *testing.T) {
	s := testSource(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeCSV(t, dir, "orders.csv",
		"id,created_at,seller_id,smp_id,status\n"+
			"1,2025-03-01 09:00:00,1,9,complete\n"+
			"2,2025-03-02 10:00:00,2,9,complete\n"+
			"3,2024-12-31 10:00:00,1,9,complete\n")
	_, err := s.AttachCSVDir(ctx, dir)
	require.NoError(t, err)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 7, 27, 23, 59, 59, 0, time.UTC)
	got, err := s.ReadOrders(ctx, "orders", 1, from, to)
	require.NoError(t, err)

	require.Equal(t, 1, got.NumRows())
	id, ok := table.AsInt64(got.Cell(0, "id"))
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestReadTableUnknown(t *testing.T) {
	s := testSource(t)
	_, err := s.ReadTable(context.Background(), "missing_table")
	assert.Error(t, err)
}

func TestViewName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"orders.csv", "orders"},
		{"Order Items.csv", "order_items"},
		{"Product-Variants.CSV", "product_variants"},
		{"  seller_marketplaces .csv", "seller_marketplaces"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, viewName(tt.in), tt.in)
	}
}
