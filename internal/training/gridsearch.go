// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package training

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/demandcast/demandcast/internal/logging"
)

// DefaultGrid returns the standard hyperparameter grid: 36 combinations.
func DefaultGrid() []GBTParams {
	var grid []GBTParams
	for _, trees := range []int{100, 200} {
		for _, depth := range []int{3, 5, 7} {
			for _, lr := range []float64{0.05, 0.1, 0.2} {
				for _, leaves := range []int{31, 50} {
					grid = append(grid, GBTParams{
						Trees:        trees,
						MaxDepth:     depth,
						LearningRate: lr,
						MaxLeaves:    leaves,
					})
				}
			}
		}
	}
	return grid
}

// GridResult is the cross-validation score of one hyperparameter set.
// Score is negative mean MSE over the folds, so greater is better.
type GridResult struct {
	Params GBTParams `json:"params"`
	Score  float64   `json:"score"`
}

// GridSearch scores every grid entry with k-fold cross-validation and
// returns the best. The param×fold fits run on a worker pool; workers <= 0
// means GOMAXPROCS. Ties resolve to grid order, so the search is
// deterministic for a fixed seed.
func GridSearch(x *mat.Dense, y []float64, grid []GBTParams, folds int, seed int64, workers int) (*GridResult, []GridResult, error) {
	rows, _ := x.Dims()
	if rows == 0 {
		return nil, nil, fmt.Errorf("training: cannot search on empty matrix")
	}
	if len(grid) == 0 {
		return nil, nil, fmt.Errorf("training: empty hyperparameter grid")
	}
	if folds < 2 {
		return nil, nil, fmt.Errorf("training: need at least 2 folds, got %d", folds)
	}
	if rows < folds {
		return nil, nil, fmt.Errorf("training: %d rows cannot fill %d folds", rows, folds)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	foldIdx := assignFolds(rows, folds, seed)

	type job struct {
		param int
		fold  int
	}
	jobs := make(chan job)
	scores := make([][]float64, len(grid))
	errs := make([]error, len(grid))
	for i := range scores {
		scores[i] = make([]float64, folds)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				mse, err := foldMSE(x, y, foldIdx, j.fold, grid[j.param])
				mu.Lock()
				if err != nil {
					errs[j.param] = err
				} else {
					scores[j.param][j.fold] = -mse
				}
				mu.Unlock()
			}
		}()
	}
	for p := range grid {
		for f := 0; f < folds; f++ {
			jobs <- job{param: p, fold: f}
		}
	}
	close(jobs)
	wg.Wait()

	results := make([]GridResult, len(grid))
	for p, params := range grid {
		if errs[p] != nil {
			return nil, nil, fmt.Errorf("training: grid entry %s: %w", params, errs[p])
		}
		var sum float64
		for _, s := range scores[p] {
			sum += s
		}
		results[p] = GridResult{Params: params, Score: sum / float64(folds)}
	}

	best := 0
	for p := 1; p < len(results); p++ {
		if results[p].Score > results[best].Score {
			best = p
		}
	}

	logging.Info().
		Int("grid_size", len(grid)).
		Int("folds", folds).
		Int("workers", workers).
		Str("best_params", results[best].Params.String()).
		Float64("best_score", results[best].Score).
		Msg("Grid search complete")

	return &results[best], results, nil
}

// assignFolds maps each row to a fold after a seeded shuffle.
func assignFolds(rows, folds int, seed int64) []int {
	perm := rand.New(rand.NewSource(seed)).Perm(rows)
	out := make([]int, rows)
	for i, r := range perm {
		out[r] = i % folds
	}
	return out
}

// foldMSE trains on all rows outside the fold and scores MSE on the fold.
func foldMSE(x *mat.Dense, y []float64, foldIdx []int, fold int, params GBTParams) (float64, error) {
	rows, cols := x.Dims()
	var trainRows, testRows []int
	for i := 0; i < rows; i++ {
		if foldIdx[i] == fold {
			testRows = append(testRows, i)
		} else {
			trainRows = append(trainRows, i)
		}
	}
	if len(trainRows) == 0 || len(testRows) == 0 {
		return 0, fmt.Errorf("fold %d leaves an empty partition", fold)
	}

	xTrain := mat.NewDense(len(trainRows), cols, nil)
	yTrain := make([]float64, len(trainRows))
	for i, r := range trainRows {
		xTrain.SetRow(i, x.RawRowView(r))
		yTrain[i] = y[r]
	}

	model := NewGBTRegressor(params)
	if err := model.Fit(xTrain, yTrain); err != nil {
		return 0, err
	}

	xTest := mat.NewDense(len(testRows), cols, nil)
	for i, r := range testRows {
		xTest.SetRow(i, x.RawRowView(r))
	}
	pred := model.Predict(xTest)

	var sumSq float64
	for i, r := range testRows {
		d := pred[i] - y[r]
		sumSq += d * d
	}
	return sumSq / float64(len(testRows)), nil
}
