// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package training

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Split is a seeded train/test partition of a feature matrix.
type Split struct {
	XTrain *mat.Dense
	XTest  *mat.Dense
	YTrain []float64
	YTest  []float64
}

// TrainTestSplit shuffles rows with the given seed and partitions them.
// testSize is a fraction in (0, 1); both partitions are guaranteed at
// least one row.
func TrainTestSplit(x *mat.Dense, y []float64, testSize float64, seed int64) (*Split, error) {
	rows, cols := x.Dims()
	if rows == 0 {
		return nil, fmt.Errorf("training: cannot split empty matrix")
	}
	if rows != len(y) {
		return nil, fmt.Errorf("training: %d feature rows but %d targets", rows, len(y))
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, fmt.Errorf("training: test size %g outside (0, 1)", testSize)
	}
	if rows < 2 {
		return nil, fmt.Errorf("training: need at least 2 rows to split, got %d", rows)
	}

	nTest := int(math.Round(float64(rows) * testSize))
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= rows {
		nTest = rows - 1
	}

	perm := rand.New(rand.NewSource(seed)).Perm(rows)
	testIdx := perm[:nTest]
	trainIdx := perm[nTest:]

	s := &Split{
		XTrain: mat.NewDense(len(trainIdx), cols, nil),
		XTest:  mat.NewDense(len(testIdx), cols, nil),
		YTrain: make([]float64, len(trainIdx)),
		YTest:  make([]float64, len(testIdx)),
	}
	for i, r := range trainIdx {
		s.XTrain.SetRow(i, x.RawRowView(r))
		s.YTrain[i] = y[r]
	}
	for i, r := range testIdx {
		s.XTest.SetRow(i, x.RawRowView(r))
		s.YTest[i] = y[r]
	}
	return s, nil
}
