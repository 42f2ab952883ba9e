// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package training

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/demandcast/demandcast/internal/evaluation"
	"github.com/demandcast/demandcast/internal/logging"
)

// Options parametrize one training run.
type Options struct {
	TestSize float64
	Seed     int64
	CVFolds  int
	// Workers bounds the grid-search pool. 0 = GOMAXPROCS.
	Workers int
	// Grid defaults to DefaultGrid when nil.
	Grid []GBTParams
}

// Result is the trained model with its selection evidence: the winning
// hyperparameters, the cross-validation score behind the choice, and the
// held-out test metrics and predictions for downstream reporting.
type Result struct {
	Model   *GBTRegressor
	Params  GBTParams
	CVScore float64
	Metrics *evaluation.Metrics
	YTest   []float64
	YPred   []float64
}

// Train runs the full model-selection workflow: seeded train/test split,
// cross-validated grid search on the training split, refit of the best
// estimator on the full training split, and evaluation on the test split.
func Train(x *mat.Dense, y []float64, opts Options) (*Result, error) {
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("training: empty feature matrix (%dx%d), nothing to train on", rows, cols)
	}

	grid := opts.Grid
	if grid == nil {
		grid = DefaultGrid()
	}

	split, err := TrainTestSplit(x, y, opts.TestSize, opts.Seed)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	best, _, err := GridSearch(split.XTrain, split.YTrain, grid, opts.CVFolds, opts.Seed, opts.Workers)
	if err != nil {
		return nil, err
	}

	model := NewGBTRegressor(best.Params)
	if err := model.Fit(split.XTrain, split.YTrain); err != nil {
		return nil, fmt.Errorf("refit of best estimator: %w", err)
	}

	pred := model.Predict(split.XTest)
	metrics, err := evaluation.Evaluate(split.YTest, pred)
	if err != nil {
		return nil, err
	}

	logging.Info().
		Int("train_rows", len(split.YTrain)).
		Int("test_rows", len(split.YTest)).
		Str("params", best.Params.String()).
		Float64("test_rmse", metrics.RMSE).
		Float64("test_r2", metrics.R2).
		Dur("elapsed", time.Since(start)).
		Msg("Training complete")

	return &Result{
		Model:   model,
		Params:  best.Params,
		CVScore: best.Score,
		Metrics: metrics,
		YTest:   split.YTest,
		YPred:   pred,
	}, nil
}
