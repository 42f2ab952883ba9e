// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

// Package config provides layered configuration for Demandcast using Koanf v2.
//
// Configuration is loaded once at process start via Load() and passed by
// reference into every component constructor. No component reads ambient
// global state. Precedence: environment variables > config file > defaults.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration object for both the batch pipeline and
// the serving API.
type Config struct {
	Logging      LoggingConfig      `koanf:"logging"`
	Server       ServerConfig       `koanf:"server"`
	Source       SourceConfig       `koanf:"source"`
	Pipeline     PipelineConfig     `koanf:"pipeline"`
	Training     TrainingConfig     `koanf:"training"`
	FeatureStore FeatureStoreConfig `koanf:"feature_store"`
	Registry     RegistryConfig     `koanf:"registry"`
	API          APIConfig          `koanf:"api"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// ServerConfig controls the HTTP serving API.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`
}

// SourceConfig controls the relational source collaborator.
type SourceConfig struct {
	// Path is the DuckDB database file. Empty means in-memory.
	Path string `koanf:"path"`
	// RawDataDir holds the raw CSV exports attached into DuckDB.
	RawDataDir string `koanf:"raw_data_dir"`
	MaxMemory  string `koanf:"max_memory"`
	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads       int           `koanf:"threads"`
	RetryAttempts int           `koanf:"retry_attempts" validate:"min=0,max=10"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
}

// PipelineConfig parametrizes the feature pipeline. The seller and date
// window drive the Row Filter; the feature group identifies the output.
type PipelineConfig struct {
	SellerID            int64  `koanf:"seller_id"`
	DateFrom            string `koanf:"date_from" validate:"required"`
	DateTo              string `koanf:"date_to" validate:"required"`
	FeatureGroupName    string `koanf:"feature_group_name" validate:"required"`
	FeatureGroupVersion int    `koanf:"feature_group_version" validate:"min=1"`
}

// TrainingConfig parametrizes the trainer and evaluator.
type TrainingConfig struct {
	TestSize float64 `koanf:"test_size" validate:"gt=0,lt=1"`
	Seed     int64   `koanf:"seed"`
	CVFolds  int     `koanf:"cv_folds" validate:"min=2"`
	// Workers bounds the grid-search worker pool. 0 = GOMAXPROCS.
	Workers   int     `koanf:"workers" validate:"min=0"`
	UnitCost  float64 `koanf:"unit_cost" validate:"gt=0"`
	UnitPrice float64 `koanf:"unit_price" validate:"gt=0"`
}

// FeatureStoreConfig controls the local feature-store backend.
type FeatureStoreConfig struct {
	Path string `koanf:"path" validate:"required"`
	// DaysToFetch is the per-product row window used by the inference service.
	DaysToFetch   int           `koanf:"days_to_fetch" validate:"min=1"`
	RetryAttempts int           `koanf:"retry_attempts" validate:"min=0,max=10"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
}

// RegistryConfig controls the model-registry collaborator.
type RegistryConfig struct {
	Path      string `koanf:"path" validate:"required"`
	ModelName string `koanf:"model_name" validate:"required"`
	// Version selects the artifact bundle loaded by the serving API.
	// 0 = latest registered version.
	Version int `koanf:"version" validate:"min=0"`
}

// APIConfig controls serving-side request policies.
type APIConfig struct {
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"min=1s"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// layered first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8000,
			Timeout: 30 * time.Second,
		},
		Source: SourceConfig{
			Path:          "", // in-memory
			RawDataDir:    "./data/raw",
			MaxMemory:     "2GB",
			Threads:       0,
			RetryAttempts: 5,
			RetryDelay:    2 * time.Second,
		},
		Pipeline: PipelineConfig{
			SellerID:            1,
			DateFrom:            "2025-01-01",
			DateTo:              "2025-07-27",
			FeatureGroupName:    "sales_record",
			FeatureGroupVersion: 1,
		},
		Training: TrainingConfig{
			TestSize:  0.2,
			Seed:      42,
			CVFolds:   3,
			Workers:   0,
			UnitCost:  10.0,
			UnitPrice: 25.0,
		},
		FeatureStore: FeatureStoreConfig{
			Path:          "/data/featurestore",
			DaysToFetch:   25,
			RetryAttempts: 5,
			RetryDelay:    2 * time.Second,
		},
		Registry: RegistryConfig{
			Path:      "/data/registry",
			ModelName: "gbt_model",
			Version:   0,
		},
		API: APIConfig{
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
			CORSOrigins:     []string{"*"},
		},
	}
}

// Validate checks the configuration for structural errors. Called by Load()
// after all layers are applied.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := time.Parse("2006-01-02", c.Pipeline.DateFrom); err != nil {
		return fmt.Errorf("pipeline.date_from must be YYYY-MM-DD: %w", err)
	}
	if _, err := time.Parse("2006-01-02", c.Pipeline.DateTo); err != nil {
		return fmt.Errorf("pipeline.date_to must be YYYY-MM-DD: %w", err)
	}
	if c.Pipeline.DateTo < c.Pipeline.DateFrom {
		return fmt.Errorf("pipeline.date_to %q precedes pipeline.date_from %q", c.Pipeline.DateTo, c.Pipeline.DateFrom)
	}

	return nil
}
