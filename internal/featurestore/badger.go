// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package featurestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/demandcast/demandcast/internal/logging"
	"github.com/demandcast/demandcast/internal/table"
)

// Key prefixes for BadgerDB storage
const (
	groupKeyPrefix = "group:"
	rowKeyPrefix   = "row:"
)

// BadgerStore implements Store on a local BadgerDB, suitable for single-
// node deployments with persistence across restarts.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (or creates) the store at the given path.
func Open(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already-open BadgerDB.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func groupKey(name string, version int) []byte {
	return []byte(fmt.Sprintf("%s%s:v%d", groupKeyPrefix, name, version))
}

func rowPrefix(name string, version int) []byte {
	return []byte(fmt.Sprintf("%s%s:v%d:", rowKeyPrefix, name, version))
}

// storedRow is one persisted feature row. Values align positionally with
// the group's column order.
type storedRow struct {
	Values    []any     `json:"values"`
	Entity    string    `json:"entity"`
	EventTime time.Time `json:"event_time"`
}

// Reconcile applies the three-state group lifecycle.
func (s *BadgerStore) Reconcile(ctx context.Context, spec GroupSpec) (ReconcileAction, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	existing, err := s.loadMeta(spec.Name, spec.Version)
	switch {
	case errors.Is(err, ErrGroupNotFound):
		if err := s.writeMeta(spec); err != nil {
			return "", err
		}
		logging.Info().Str("group", spec.Name).Int("version", spec.Version).Msg("Feature group created")
		return ActionCreated, nil
	case err != nil:
		return "", err
	}

	if existing.Fingerprint == spec.Fingerprint() {
		logging.Debug().Str("group", spec.Name).Int("version", spec.Version).Msg("Feature group schema compatible, reusing")
		return ActionReused, nil
	}

	// Incompatible schema: drop the group's rows and recreate it.
	logging.Warn().
		Str("group", spec.Name).
		Int("version", spec.Version).
		Msg("Feature group schema changed, recreating")
	if err := s.dropRows(ctx, spec.Name, spec.Version); err != nil {
		return "", err
	}
	if err := s.writeMeta(spec); err != nil {
		return "", err
	}
	return ActionRecreated, nil
}

// Insert upserts the table's rows into the group, keyed by the primary-key
// values. Rows without a parseable event time are skipped with a warning.
func (s *BadgerStore) Insert(ctx context.Context, spec GroupSpec, t *table.RawTable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.loadMeta(spec.Name, spec.Version); err != nil {
		return err
	}

	var missing []string
	required := append(append([]string{}, spec.PrimaryKeys...), spec.EventTimeCol, spec.EntityCol)
	for _, c := range required {
		if !t.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &table.SchemaError{Table: t.Name(), Missing: missing}
	}

	prefix := rowPrefix(spec.Name, spec.Version)
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	skipped := 0
	written := 0
	for i := 0; i < t.NumRows(); i++ {
		eventTime, ok := table.AsTime(t.Cell(i, spec.EventTimeCol))
		if !ok {
			skipped++
			continue
		}

		values := make([]any, len(spec.Columns))
		for j, c := range spec.Columns {
			if t.HasColumn(c) {
				values[j] = t.Cell(i, c)
			}
		}
		row := storedRow{
			Values:    values,
			Entity:    table.AsString(t.Cell(i, spec.EntityCol)),
			EventTime: eventTime,
		}
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal feature row: %w", err)
		}

		key := append(append([]byte{}, prefix...), rowDigest(t, i, spec.PrimaryKeys)...)
		if err := wb.Set(key, data); err != nil {
			return fmt.Errorf("batch feature row: %w", err)
		}
		written++
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush feature rows: %w", err)
	}

	if skipped > 0 {
		logging.Warn().Int("count", skipped).Str("group", spec.Name).Msg("Rows without parseable event time skipped by feature store")
	}
	logging.Info().
		Str("group", spec.Name).
		Int("version", spec.Version).
		Int("rows", written).
		Msg("Feature rows inserted")
	return nil
}

// ReadAll returns every stored row of the group in schema column order.
func (s *BadgerStore) ReadAll(ctx context.Context, name string, version int) (*table.RawTable, error) {
	meta, err := s.loadMeta(name, version)
	if err != nil {
		return nil, err
	}

	rows, err := s.scanRows(ctx, name, version)
	if err != nil {
		return nil, err
	}

	out := table.New(name, meta.Spec.Columns)
	for _, r := range rows {
		if err := out.AppendRow(r.Values); err != nil {
			return nil, fmt.Errorf("read feature row: %w", err)
		}
	}
	return out, nil
}

// Recent returns the most recent perEntity rows per entity, grouped by
// entity and time-ordered within each group.
func (s *BadgerStore) Recent(ctx context.Context, name string, version int, perEntity int) (*table.RawTable, error) {
	if perEntity < 1 {
		return nil, fmt.Errorf("featurestore: per-entity window must be >= 1, got %d", perEntity)
	}
	meta, err := s.loadMeta(name, version)
	if err != nil {
		return nil, err
	}

	rows, err := s.scanRows(ctx, name, version)
	if err != nil {
		return nil, err
	}

	byEntity := make(map[string][]storedRow)
	for _, r := range rows {
		byEntity[r.Entity] = append(byEntity[r.Entity], r)
	}
	entities := make([]string, 0, len(byEntity))
	for e := range byEntity {
		entities = append(entities, e)
	}
	sort.Strings(entities)

	out := table.New(name, meta.Spec.Columns)
	for _, e := range entities {
		group := byEntity[e]
		sort.SliceStable(group, func(a, b int) bool {
			return group[a].EventTime.Before(group[b].EventTime)
		})
		if len(group) > perEntity {
			group = group[len(group)-perEntity:]
		}
		for _, r := range group {
			if err := out.AppendRow(r.Values); err != nil {
				return nil, fmt.Errorf("read feature row: %w", err)
			}
		}
	}
	return out, nil
}

func (s *BadgerStore) scanRows(ctx context.Context, name string, version int) ([]storedRow, error) {
	var rows []storedRow
	prefix := rowPrefix(name, version)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var r storedRow
				if err := json.Unmarshal(val, &r); err != nil {
					return fmt.Errorf("unmarshal feature row: %w", err)
				}
				rows = append(rows, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *BadgerStore) loadMeta(name string, version int) (*groupMeta, error) {
	var meta groupMeta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(groupKey(name, version))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("group %s v%d: %w", name, version, ErrGroupNotFound)
		}
		if err != nil {
			return fmt.Errorf("get group meta: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *BadgerStore) writeMeta(spec GroupSpec) error {
	meta := groupMeta{
		Spec:        spec,
		Fingerprint: spec.Fingerprint(),
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal group meta: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(groupKey(spec.Name, spec.Version), data)
	})
}

func (s *BadgerStore) dropRows(ctx context.Context, name string, version int) error {
	prefix := rowPrefix(name, version)

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("delete feature row: %w", err)
		}
	}
	return wb.Flush()
}

// rowDigest hashes the primary-key cell values into a fixed-width key
// suffix, so re-inserting the same row overwrites instead of duplicating.
func rowDigest(t *table.RawTable, row int, pks []string) []byte {
	h := sha256.New()
	for _, pk := range pks {
		fmt.Fprintf(h, "%v|", t.Cell(row, pk))
	}
	return []byte(hex.EncodeToString(h.Sum(nil)))
}
