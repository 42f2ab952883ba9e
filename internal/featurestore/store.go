// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

// Package featurestore provides the feature-store collaborator: named,
// versioned feature groups holding engineered rows between the batch
// pipeline and the serving API. The local implementation is backed by
// BadgerDB; remote feature-store services stay behind the Store interface.
package featurestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/demandcast/demandcast/internal/table"
)

// ErrGroupNotFound is returned when a feature group has not been created.
var ErrGroupNotFound = errors.New("feature group not found")

// ReconcileAction says what Reconcile did to make the store match the
// requested group spec.
type ReconcileAction string

const (
	ActionCreated   ReconcileAction = "created"
	ActionReused    ReconcileAction = "reused"
	ActionRecreated ReconcileAction = "recreated"
)

// GroupSpec declares a feature group: identity, schema, and read behavior.
// The schema fingerprint derived from it decides reconciliation.
type GroupSpec struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
	// Columns is the ordered schema of stored rows.
	Columns []string `json:"columns"`
	// PrimaryKeys identify a row; EventTimeCol orders rows in time.
	PrimaryKeys  []string `json:"primary_keys"`
	EventTimeCol string   `json:"event_time_col"`
	// EntityCol groups rows for "most recent N per entity" reads.
	EntityCol string `json:"entity_col"`
	Online    bool   `json:"online"`
}

// Validate checks the spec for structural completeness.
func (s GroupSpec) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("featurestore: group name required")
	case s.Version < 1:
		return fmt.Errorf("featurestore: group version must be >= 1, got %d", s.Version)
	case len(s.Columns) == 0:
		return fmt.Errorf("featurestore: group %q has no columns", s.Name)
	case len(s.PrimaryKeys) == 0:
		return fmt.Errorf("featurestore: group %q has no primary keys", s.Name)
	case s.EventTimeCol == "":
		return fmt.Errorf("featurestore: group %q has no event time column", s.Name)
	case s.EntityCol == "":
		return fmt.Errorf("featurestore: group %q has no entity column", s.Name)
	}
	return nil
}

// Fingerprint returns a stable hash of everything schema-relevant. Two
// specs with the same fingerprint are compatible; column order matters
// because stored rows are positional.
func (s GroupSpec) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "v%d|%s|%s|%s|%s|%t",
		s.Version,
		strings.Join(s.Columns, ","),
		strings.Join(s.PrimaryKeys, ","),
		s.EventTimeCol,
		s.EntityCol,
		s.Online,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// groupMeta is the persisted group record.
type groupMeta struct {
	Spec        GroupSpec `json:"spec"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the feature-store contract used by the pipeline (Reconcile,
// Insert) and the serving path (ReadAll, Recent).
type Store interface {
	// Reconcile makes the store match the spec: absent groups are
	// created, compatible groups reused, incompatible groups deleted and
	// recreated (their rows discarded).
	Reconcile(ctx context.Context, spec GroupSpec) (ReconcileAction, error)
	// Insert writes the table's rows into the group.
	Insert(ctx context.Context, spec GroupSpec, t *table.RawTable) error
	// ReadAll returns every row of the group as a table in schema order.
	ReadAll(ctx context.Context, name string, version int) (*table.RawTable, error)
	// Recent returns the most recent perEntity rows per entity value,
	// time-ordered within each entity.
	Recent(ctx context.Context, name string, version int, perEntity int) (*table.RawTable, error)
	Close() error
}
