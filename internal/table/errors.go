// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package table

import (
	"fmt"
	"strings"
)

// SchemaError reports required columns missing from a source table. It is
// fatal for the pipeline run: downstream joins assume complete columns, so
// no partial fact table is produced.
type SchemaError struct {
	Table   string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %s: missing required columns: %s", e.Table, strings.Join(e.Missing, ", "))
}

// DataQualityError reports a recoverable data problem: an empty source
// table, unparseable values, or zero rows after filtering. Non-fatal for
// dimension tables (the table is skipped); fatal when it concerns the fact
// table itself.
type DataQualityError struct {
	Table  string
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("table %s: %s", e.Table, e.Reason)
}

// requireColumns validates that all wanted columns exist, returning a
// SchemaError listing every missing name at once.
func requireColumns(t *RawTable, wanted []string) error {
	_, missing := t.Intersect(wanted)
	if len(missing) > 0 {
		return &SchemaError{Table: t.Name(), Missing: missing}
	}
	return nil
}
