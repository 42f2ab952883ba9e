// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// StandardScaler standardizes feature columns to zero mean and unit
// variance. The fitted parameters are per-column and order-sensitive: Cols
// records the exact training column order, and Transform refuses input of a
// different width. The scaler is fitted once during training and reused
// verbatim at inference, never refit.
type StandardScaler struct {
	Cols  []string  `json:"cols"`
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit computes per-column mean and population standard deviation. Columns
// with zero variance get scale 1 so transformed values become zero instead
// of dividing by zero.
func (s *StandardScaler) Fit(x *mat.Dense, cols []string) error {
	rows, n := x.Dims()
	if rows == 0 {
		return fmt.Errorf("scaler: cannot fit on zero rows")
	}
	if n != len(cols) {
		return fmt.Errorf("scaler: matrix has %d columns, got %d names", n, len(cols))
	}

	s.Cols = append([]string(nil), cols...)
	s.Mean = make([]float64, n)
	s.Scale = make([]float64, n)

	for j := 0; j < n; j++ {
		var sum float64
		for i := 0; i < rows; i++ {
			sum += x.At(i, j)
		}
		mean := sum / float64(rows)

		var sq float64
		for i := 0; i < rows; i++ {
			d := x.At(i, j) - mean
			sq += d * d
		}
		std := math.Sqrt(sq / float64(rows))
		if std == 0 {
			std = 1
		}

		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return nil
}

// Transform standardizes a matrix using the fitted parameters, returning a
// new matrix. The column count must match the fit-time column count.
func (s *StandardScaler) Transform(x *mat.Dense) (*mat.Dense, error) {
	if len(s.Mean) == 0 {
		return nil, fmt.Errorf("scaler: not fitted")
	}
	rows, n := x.Dims()
	if n != len(s.Mean) {
		return nil, fmt.Errorf("scaler: fitted on %d columns, input has %d", len(s.Mean), n)
	}

	out := mat.NewDense(rows, n, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, (x.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
	return out, nil
}

// FitTransform fits the scaler and standardizes the training matrix.
func (s *StandardScaler) FitTransform(x *mat.Dense, cols []string) (*mat.Dense, error) {
	if err := s.Fit(x, cols); err != nil {
		return nil, err
	}
	return s.Transform(x)
}
