// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

// Package training implements the model-fitting side of the forecasting
// workflow: a gradient-boosted regression-tree model, a seeded train/test
// split, and a cross-validated hyperparameter grid search on a bounded
// worker pool.
package training

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Regressor is the fit/predict contract the trainer and the inference
// service depend on. The concrete model behind it is interchangeable.
type Regressor interface {
	Fit(x *mat.Dense, y []float64) error
	Predict(x *mat.Dense) []float64
}

// GBTParams are the hyperparameters of the boosted model.
type GBTParams struct {
	Trees        int     `json:"trees"`
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`
	MaxLeaves    int     `json:"max_leaves"`
}

func (p GBTParams) String() string {
	return fmt.Sprintf("trees=%d depth=%d lr=%g leaves=%d", p.Trees, p.MaxDepth, p.LearningRate, p.MaxLeaves)
}

// GBTRegressor is a least-squares gradient-boosted tree ensemble. The
// fitted state is plain data and marshals directly into a registry bundle.
type GBTRegressor struct {
	Params GBTParams `json:"params"`
	Base   float64   `json:"base"`
	Trees  []*Tree   `json:"trees"`
}

// NewGBTRegressor returns an unfitted model with the given hyperparameters.
func NewGBTRegressor(p GBTParams) *GBTRegressor {
	return &GBTRegressor{Params: p}
}

// Fit trains the ensemble on X against y with least-squares boosting: each
// stage fits a tree to the current residuals and contributes a learning-
// rate-scaled correction.
func (g *GBTRegressor) Fit(x *mat.Dense, y []float64) error {
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return fmt.Errorf("training: cannot fit on empty matrix (%dx%d)", rows, cols)
	}
	if rows != len(y) {
		return fmt.Errorf("training: %d feature rows but %d targets", rows, len(y))
	}
	if g.Params.Trees < 1 || g.Params.MaxDepth < 1 || g.Params.MaxLeaves < 2 || g.Params.LearningRate <= 0 {
		return fmt.Errorf("training: invalid hyperparameters %s", g.Params)
	}

	var sum float64
	for _, v := range y {
		sum += v
	}
	g.Base = sum / float64(rows)
	g.Trees = g.Trees[:0]

	pred := make([]float64, rows)
	for i := range pred {
		pred[i] = g.Base
	}

	residual := make([]float64, rows)
	row := make([]float64, cols)
	for stage := 0; stage < g.Params.Trees; stage++ {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}
		t := fitTree(x, residual, g.Params.MaxDepth, g.Params.MaxLeaves)
		g.Trees = append(g.Trees, t)

		for i := 0; i < rows; i++ {
			mat.Row(row, i, x)
			pred[i] += g.Params.LearningRate * t.PredictRow(row)
		}
	}
	return nil
}

// Predict returns the ensemble prediction for each row of X.
func (g *GBTRegressor) Predict(x *mat.Dense) []float64 {
	rows, cols := x.Dims()
	out := make([]float64, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, x)
		p := g.Base
		for _, t := range g.Trees {
			p += g.Params.LearningRate * t.PredictRow(row)
		}
		out[i] = p
	}
	return out
}
