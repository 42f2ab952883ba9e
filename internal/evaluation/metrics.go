// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

// Package evaluation provides pure functions over (yTrue, yPred) pairs:
// regression metrics, prediction-error statistics, business impact, and the
// deployment report that decides whether a trained model ships.
package evaluation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Metrics are the core regression metrics on a held-out set.
type Metrics struct {
	MSE               float64 `json:"mse"`
	RMSE              float64 `json:"rmse"`
	MAE               float64 `json:"mae"`
	R2                float64 `json:"r2"`
	ExplainedVariance float64 `json:"explained_variance"`
}

// ErrorStats describe the distribution of prediction errors
// (yPred - yTrue). Over is the largest overprediction, Under the largest
// underprediction (reported as a negative value).
type ErrorStats struct {
	Over   float64 `json:"max_overprediction"`
	Under  float64 `json:"max_underprediction"`
	Std    float64 `json:"std"`
	Skew   float64 `json:"skew"`
	P5     float64 `json:"p5"`
	P95    float64 `json:"p95"`
	Errors []float64
}

func checkLengths(yTrue, yPred []float64) error {
	if len(yTrue) == 0 {
		return fmt.Errorf("evaluation: empty input")
	}
	if len(yTrue) != len(yPred) {
		return fmt.Errorf("evaluation: length mismatch, %d true vs %d predicted", len(yTrue), len(yPred))
	}
	return nil
}

// Evaluate computes the core regression metrics.
func Evaluate(yTrue, yPred []float64) (*Metrics, error) {
	if err := checkLengths(yTrue, yPred); err != nil {
		return nil, err
	}
	n := float64(len(yTrue))

	var sse, sae float64
	for i := range yTrue {
		d := yPred[i] - yTrue[i]
		sse += d * d
		sae += math.Abs(d)
	}
	mse := sse / n
	mae := sae / n

	meanTrue := stat.Mean(yTrue, nil)
	var tss float64
	for _, v := range yTrue {
		d := v - meanTrue
		tss += d * d
	}

	r2 := 1.0
	if tss > 0 {
		r2 = 1 - sse/tss
	}

	// Explained variance: 1 - Var(err)/Var(yTrue), where Var is the
	// population variance.
	errs := make([]float64, len(yTrue))
	for i := range yTrue {
		errs[i] = yTrue[i] - yPred[i]
	}
	ev := 1.0
	if tss > 0 {
		meanErr := stat.Mean(errs, nil)
		var evar float64
		for _, e := range errs {
			d := e - meanErr
			evar += d * d
		}
		ev = 1 - evar/tss
	}

	return &Metrics{
		MSE:               mse,
		RMSE:              math.Sqrt(mse),
		MAE:               mae,
		R2:                r2,
		ExplainedVariance: ev,
	}, nil
}

// AnalyzeErrors computes distribution statistics of the prediction errors.
func AnalyzeErrors(yTrue, yPred []float64) (*ErrorStats, error) {
	if err := checkLengths(yTrue, yPred); err != nil {
		return nil, err
	}

	errs := make([]float64, len(yTrue))
	for i := range yTrue {
		errs[i] = yPred[i] - yTrue[i]
	}

	s := &ErrorStats{
		Over:   errs[0],
		Under:  errs[0],
		Errors: errs,
	}
	for _, e := range errs[1:] {
		s.Over = math.Max(s.Over, e)
		s.Under = math.Min(s.Under, e)
	}

	if len(errs) > 1 {
		s.Std = stat.StdDev(errs, nil)
		s.Skew = stat.Skew(errs, nil)
	}

	sorted := append([]float64(nil), errs...)
	sort.Float64s(sorted)
	s.P5 = stat.Quantile(0.05, stat.Empirical, sorted, nil)
	s.P95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)

	return s, nil
}
