// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

// Package source is the relational-source collaborator. It reads raw
// transactional exports through an embedded DuckDB: CSV files are attached
// as views with read_csv_auto, and reads come back as RawTables. Transient
// upstream failures are retried with bounded exponential backoff.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/demandcast/demandcast/internal/config"
	"github.com/demandcast/demandcast/internal/logging"
	"github.com/demandcast/demandcast/internal/table"
)

var identPattern = regexp.MustCompile(`[^a-z0-9_]+`)

// Source wraps a DuckDB connection for batch reads.
type Source struct {
	db  *sql.DB
	cfg *config.SourceConfig
}

// Open opens the DuckDB database configured in cfg. An empty path means an
// in-memory database.
func Open(cfg *config.SourceConfig) (*Source, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	connStr := fmt.Sprintf("%s?threads=%d&max_memory=%s", path, threads, cfg.MaxMemory)
	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logging.Info().Str("path", path).Int("threads", threads).Msg("Relational source opened")
	return &Source{db: db, cfg: cfg}, nil
}

// Close closes the underlying database.
func (s *Source) Close() error {
	return s.db.Close()
}

// AttachCSVDir creates one view per CSV file in dir via read_csv_auto and
// returns the view names, sorted. The view name is the sanitized file stem.
func (s *Source) AttachCSVDir(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list raw data dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		name := viewName(e.Name())
		path := filepath.Join(dir, e.Name())
		// DuckDB rejects bound parameters in DDL, so the path goes in as
		// an escaped string literal.
		stmt := fmt.Sprintf(
			`CREATE OR REPLACE VIEW %q AS SELECT * FROM read_csv_auto('%s', header=true)`,
			name, strings.ReplaceAll(path, "'", "''"))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("attach %s: %w", e.Name(), err)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	logging.Info().Int("tables", len(names)).Str("dir", dir).Msg("CSV exports attached")
	return names, nil
}

// ReadTable reads an entire table or view.
func (s *Source) ReadTable(ctx context.Context, name string) (*table.RawTable, error) {
	return s.query(ctx, name, fmt.Sprintf(`SELECT * FROM %q`, name))
}

// ReadOrders reads the orders table restricted to one seller and a closed
// date window, pushing the row filter down into the source.
func (s *Source) ReadOrders(ctx context.Context, name string, sellerID int64, from, to time.Time) (*table.RawTable, error) {
	q := fmt.Sprintf(
		`SELECT * FROM %q WHERE seller_id = ? AND created_at >= ? AND created_at <= ?`, name)
	return s.query(ctx, name, q, sellerID, from, to)
}

// query runs one read with bounded retry and converts the rows.
func (s *Source) query(ctx context.Context, name, q string, args ...any) (*table.RawTable, error) {
	var out *table.RawTable
	op := func() error {
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("query %s: %w", name, err)
		}
		defer rows.Close()

		out, err = scanTable(name, rows)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	if s.cfg.RetryDelay > 0 {
		bo.InitialInterval = s.cfg.RetryDelay
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.RetryAttempts)), ctx)

	notify := func(err error, wait time.Duration) {
		logging.Warn().Err(err).Dur("retry_in", wait).Str("table", name).Msg("Source read failed, retrying")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return out, nil
}

// scanTable converts a result set into a RawTable, preserving nulls.
func scanTable(name string, rows *sql.Rows) (*table.RawTable, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", name, err)
	}

	out := table.New(name, cols)
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		row := make([]any, len(cols))
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = v
			}
		}
		if err := out.AppendRow(row); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", name, err)
	}
	return out, nil
}

// viewName sanitizes a CSV file name into a SQL identifier.
func viewName(file string) string {
	stem := strings.TrimSuffix(file, filepath.Ext(file))
	stem = strings.ToLower(strings.TrimSpace(stem))
	stem = identPattern.ReplaceAllString(stem, "_")
	return strings.Trim(stem, "_")
}
