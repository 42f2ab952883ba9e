// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

// Package main is the entry point for the Demandcast batch pipeline.
//
// The -stage flag selects what runs:
//
//	feature  raw source exports → join → filter → feature store
//	train    feature store → model training → registry
//	all      both, in order
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/demandcast/demandcast/internal/config"
	"github.com/demandcast/demandcast/internal/featurestore"
	"github.com/demandcast/demandcast/internal/logging"
	"github.com/demandcast/demandcast/internal/pipeline"
	"github.com/demandcast/demandcast/internal/registry"
	"github.com/demandcast/demandcast/internal/source"
)

func main() {
	stage := flag.String("stage", "all", "pipeline stage to run: feature, train, or all")
	flag.Parse()

	if err := run(*stage); err != nil {
		logging.Fatal().Err(err).Str("stage", *stage).Msg("Pipeline failed")
	}
}

func run(stage string) error {
	if stage != "feature" && stage != "train" && stage != "all" {
		return fmt.Errorf("unknown stage %q, want feature, train, or all", stage)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := featurestore.Open(cfg.FeatureStore.Path)
	if err != nil {
		return fmt.Errorf("open feature store: %w", err)
	}
	defer store.Close()

	if stage == "feature" || stage == "all" {
		if err := runFeature(ctx, cfg, store); err != nil {
			return err
		}
	}
	if stage == "train" || stage == "all" {
		if err := runTraining(ctx, cfg, store); err != nil {
			return err
		}
	}
	return nil
}

func runFeature(ctx context.Context, cfg *config.Config, store featurestore.Store) error {
	src, err := source.Open(&cfg.Source)
	if err != nil {
		return fmt.Errorf("open relational source: %w", err)
	}
	defer src.Close()

	report, err := pipeline.NewFeaturePipeline(cfg, src, store).Run(ctx)
	if err != nil {
		return fmt.Errorf("feature pipeline: %w", err)
	}

	logging.Info().
		Str("run_id", report.RunID).
		Int("tables_read", report.TablesRead).
		Int("stored_rows", report.StoredRows).
		Str("group_action", report.GroupAction).
		Msg("Feature stage finished")
	return nil
}

func runTraining(ctx context.Context, cfg *config.Config, store featurestore.Store) error {
	reg, err := registry.New(cfg.Registry.Path)
	if err != nil {
		return fmt.Errorf("open model registry: %w", err)
	}

	report, err := pipeline.NewTrainingPipeline(cfg, store, reg).Run(ctx)
	if err != nil {
		return fmt.Errorf("training pipeline: %w", err)
	}

	logging.Info().
		Str("run_id", report.RunID).
		Int("version", report.Version).
		Str("verdict", string(report.Deployment.Verdict)).
		Msg("Training stage finished")

	fmt.Fprintln(os.Stdout, report.Deployment.Text())
	return nil
}
