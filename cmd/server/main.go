// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

// Package main is the entry point for the Demandcast serving API.
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (env > config file > defaults)
//  2. Logging: zerolog with JSON or console output
//  3. Feature store: local BadgerDB store with versioned feature groups
//  4. Model registry: versioned artifact bundles (model + scaler + mapping)
//  5. Inference service: circuit-broken feature-store reads, batch predict
//  6. HTTP server: chi router with health, predict, and metrics endpoints
//
// A missing or version-mismatched artifact bundle is fatal at startup: the
// server never serves predictions from mixed training runs.
//
// Shutdown on SIGINT/SIGTERM is graceful: the listener stops accepting,
// in-flight requests get a drain window, then the store is closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/demandcast/demandcast/internal/api"
	"github.com/demandcast/demandcast/internal/config"
	"github.com/demandcast/demandcast/internal/featurestore"
	"github.com/demandcast/demandcast/internal/inference"
	"github.com/demandcast/demandcast/internal/logging"
	"github.com/demandcast/demandcast/internal/metrics"
	"github.com/demandcast/demandcast/internal/registry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}

func run() error {
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

	store, err := featurestore.Open(cfg.FeatureStore.Path)
	if err != nil {
		return fmt.Errorf("open feature store: %w", err)
	}
	defer store.Close()

	reg, err := registry.New(cfg.Registry.Path)
	if err != nil {
		return fmt.Errorf("open model registry: %w", err)
	}

	bundle, err := reg.Load(cfg.Registry.ModelName, cfg.Registry.Version)
	if err != nil {
		return fmt.Errorf("load model bundle: %w", err)
	}
	metrics.ModelVersion.WithLabelValues(bundle.Manifest.ModelName).Set(float64(bundle.Manifest.Version))

	svc := inference.New(store, bundle, inference.Options{
		GroupName:    cfg.Pipeline.FeatureGroupName,
		GroupVersion: cfg.Pipeline.FeatureGroupVersion,
		DaysToFetch:  cfg.FeatureStore.DaysToFetch,
	})

	router := api.NewRouter(cfg, api.NewHandlers(svc))
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Str("addr", server.Addr).
			Str("model", bundle.Manifest.ModelName).
			Int("model_version", bundle.Manifest.Version).
			Msg("Serving API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
