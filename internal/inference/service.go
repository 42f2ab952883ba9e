// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

// Package inference implements the serving-side prediction service: fetch
// fresh rows from the feature store, run the transform-mode feature recipe
// with the registered scaler and category mapping, predict, and re-join
// predictions to their products. Feature-store calls go through a circuit
// breaker so a degraded store sheds load instead of stacking timeouts.
package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/demandcast/demandcast/internal/features"
	"github.com/demandcast/demandcast/internal/featurestore"
	"github.com/demandcast/demandcast/internal/logging"
	"github.com/demandcast/demandcast/internal/registry"
	"github.com/demandcast/demandcast/internal/table"
)

var (
	// ErrNoData means the feature-store window came back empty.
	ErrNoData = errors.New("no data in feature store window")
	// ErrStoreUnavailable means the feature store is down or the breaker
	// is open.
	ErrStoreUnavailable = errors.New("feature store unavailable")
	// ErrBadRecord means a caller-supplied feature record does not match
	// the fitted feature set.
	ErrBadRecord = errors.New("invalid feature record")
)

// Options parametrize the service.
type Options struct {
	GroupName    string
	GroupVersion int
	// DaysToFetch is the per-product row window for batch predictions.
	DaysToFetch int
}

// Prediction is one re-joined prediction row.
type Prediction struct {
	ProductName string    `json:"product_name"`
	CreatedAt   time.Time `json:"created_at"`
	Predicted   float64   `json:"predicted"`
	Actual      float64   `json:"actual"`
}

// Forecast is a batch prediction result, grouped by product and
// time-ordered within each product.
type Forecast struct {
	ModelName    string       `json:"model_name"`
	ModelVersion int          `json:"model_version"`
	Rows         int          `json:"rows"`
	Predictions  []Prediction `json:"predictions"`
}

// Service serves predictions from a loaded artifact bundle.
type Service struct {
	store   featurestore.Store
	bundle  *registry.Bundle
	opts    Options
	breaker *gobreaker.CircuitBreaker[*table.RawTable]
}

// New builds a service around a store and a loaded bundle.
func New(store featurestore.Store, bundle *registry.Bundle, opts Options) *Service {
	breaker := gobreaker.NewCircuitBreaker[*table.RawTable](gobreaker.Settings{
		Name:    "featurestore",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})
	return &Service{store: store, bundle: bundle, opts: opts, breaker: breaker}
}

// Bundle exposes the loaded artifacts for readiness reporting.
func (s *Service) Bundle() *registry.Bundle {
	return s.bundle
}

// PredictRecent runs the batch fetch-and-predict cycle over the most
// recent window per product.
func (s *Service) PredictRecent(ctx context.Context) (*Forecast, error) {
	rows, err := s.breaker.Execute(func() (*table.RawTable, error) {
		return s.store.Recent(ctx, s.opts.GroupName, s.opts.GroupVersion, s.opts.DaysToFetch)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
	}
	if rows.NumRows() == 0 {
		return nil, ErrNoData
	}

	batch, err := features.Transform(rows, s.bundle.Scaler, s.bundle.Categories)
	if err != nil {
		return nil, fmt.Errorf("transform window: %w", err)
	}

	preds := s.bundle.Model.Predict(batch.X)

	out := &Forecast{
		ModelName:    s.bundle.Manifest.ModelName,
		ModelVersion: s.bundle.Manifest.Version,
		Rows:         len(preds),
		Predictions:  make([]Prediction, len(preds)),
	}
	for i, p := range preds {
		out.Predictions[i] = Prediction{
			ProductName: batch.Keys[i].ProductName,
			CreatedAt:   batch.Keys[i].CreatedAt,
			Predicted:   p,
			Actual:      batch.Actuals[i],
		}
	}

	logging.Info().
		Int("rows", out.Rows).
		Int("model_version", out.ModelVersion).
		Msg("Batch prediction served")
	return out, nil
}

// PredictRecord predicts one pre-engineered feature record. The record
// must contain every feature the scaler was fitted on; extras are
// rejected to catch caller drift early.
func (s *Service) PredictRecord(record map[string]float64) (float64, error) {
	cols := s.bundle.Scaler.Cols
	if len(record) != len(cols) {
		return 0, fmt.Errorf("%w: expected %d features, got %d", ErrBadRecord, len(cols), len(record))
	}

	raw := make([]float64, len(cols))
	for j, c := range cols {
		v, ok := record[c]
		if !ok {
			return 0, fmt.Errorf("%w: missing feature %q", ErrBadRecord, c)
		}
		raw[j] = v
	}

	x, err := s.bundle.Scaler.Transform(rowMatrix(raw))
	if err != nil {
		return 0, fmt.Errorf("scale record: %w", err)
	}
	return s.bundle.Model.Predict(x)[0], nil
}

func rowMatrix(row []float64) *mat.Dense {
	return mat.NewDense(1, len(row), row)
}
