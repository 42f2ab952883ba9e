// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package featurestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demandcast/demandcast/internal/table"
)

func testSpec() GroupSpec {
	return GroupSpec{
		Name:         "sales_record",
		Version:      1,
		Columns:      []string{"order_id", "created_at", "sub_total", "product_name"},
		PrimaryKeys:  []string{"product_name", "order_id"},
		EventTimeCol: "created_at",
		EntityCol:    "product_name",
		Online:       true,
	}
}

func testStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func salesTable(t *testing.T) *table.RawTable {
	t.Helper()
	tbl := table.New("sales_record", []string{"order_id", "created_at", "sub_total", "product_name"})
	require.NoError(t, tbl.AppendRow([]any{int64(1), "2025-03-01 09:00:00", 10.0, "A"}))
	require.NoError(t, tbl.AppendRow([]any{int64(2), "2025-03-02 09:00:00", 20.0, "A"}))
	require.NoError(t, tbl.AppendRow([]any{int64(3), "2025-03-03 09:00:00", 30.0, "A"}))
	require.NoError(t, tbl.AppendRow([]any{int64(4), "2025-03-01 12:00:00", 7.0, "B"}))
	return tbl
}

func TestReconcileLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	spec := testSpec()

	// Absent -> created.
	action, err := s.Reconcile(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, action)

	// Same schema -> reused, rows survive.
	require.NoError(t, s.Insert(ctx, spec, salesTable(t)))
	action, err = s.Reconcile(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, ActionReused, action)

	got, err := s.ReadAll(ctx, spec.Name, spec.Version)
	require.NoError(t, err)
	assert.Equal(t, 4, got.NumRows())

	// Changed schema -> recreated, rows dropped.
	changed := spec
	changed.Columns = append(changed.Columns, "quantity")
	action, err = s.Reconcile(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, ActionRecreated, action)

	got, err = s.ReadAll(ctx, spec.Name, spec.Version)
	require.NoError(t, err)
	assert.Equal(t, 0, got.NumRows())
}

func TestInsertRequiresGroup(t *testing.T) {
	s := testStore(t)
	err := s.Insert(context.Background(), testSpec(), salesTable(t))
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestInsertRequiresKeyColumns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	spec := testSpec()
	_, err := s.Reconcile(ctx, spec)
	require.NoError(t, err)

	bad := table.New("sales_record", []string{"order_id", "sub_total"})
	require.NoError(t, bad.AppendRow([]any{int64(1), 10.0}))

	err = s.Insert(ctx, spec, bad)
	var se *table.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Missing, "created_at")
	assert.Contains(t, se.Missing, "product_name")
}

func TestInsertUpsertsByPrimaryKey(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	spec := testSpec()
	_, err := s.Reconcile(ctx, spec)
	require.NoError(t, err)

	require.NoError(t, s.Insert(ctx, spec, salesTable(t)))
	// Re-inserting the same rows must not duplicate them.
	require.NoError(t, s.Insert(ctx, spec, salesTable(t)))

	got, err := s.ReadAll(ctx, spec.Name, spec.Version)
	require.NoError(t, err)
	assert.Equal(t, 4, got.NumRows())
}

func TestRecentWindowPerEntity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	spec := testSpec()
	_, err := s.Reconcile(ctx, spec)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, spec, salesTable(t)))

	got, err := s.Recent(ctx, spec.Name, spec.Version, 2)
	require.NoError(t, err)
	require.Equal(t, 3, got.NumRows(), "2 most recent for A, 1 for B")

	// Entities come out sorted, rows time-ordered within each entity.
	assert.Equal(t, "A", table.AsString(got.Cell(0, "product_name")))
	sub0, _ := table.AsFloat(got.Cell(0, "sub_total"))
	sub1, _ := table.AsFloat(got.Cell(1, "sub_total"))
	assert.Equal(t, 20.0, sub0)
	assert.Equal(t, 30.0, sub1)
	assert.Equal(t, "B", table.AsString(got.Cell(2, "product_name")))
}

func TestRecentValidatesWindow(t *testing.T) {
	s := testStore(t)
	_, err := s.Recent(context.Background(), "sales_record", 1, 0)
	assert.Error(t, err)
}

func TestReadAllUnknownGroup(t *testing.T) {
	s := testStore(t)
	_, err := s.ReadAll(context.Background(), "nope", 1)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestFingerprintSensitivity(t *testing.T) {
	a := testSpec()
	b := testSpec()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Columns = []string{"created_at", "order_id", "sub_total", "product_name"}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint(), "column order is schema-relevant")

	c := testSpec()
	c.Online = false
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestGroupSpecValidate(t *testing.T) {
	assert.NoError(t, testSpec().Validate())

	bad := testSpec()
	bad.Name = ""
	assert.Error(t, bad.Validate())

	bad = testSpec()
	bad.Version = 0
	assert.Error(t, bad.Validate())

	bad = testSpec()
	bad.PrimaryKeys = nil
	assert.Error(t, bad.Validate())
}
