// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package evaluation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluatePerfectPrediction(t *testing.T) {
	y := []float64{1, 2, 3, 4}
	m, err := Evaluate(y, y)
	require.NoError(t, err)

	assert.Equal(t, 0.0, m.MSE)
	assert.Equal(t, 0.0, m.RMSE)
	assert.Equal(t, 0.0, m.MAE)
	assert.Equal(t, 1.0, m.R2)
	assert.Equal(t, 1.0, m.ExplainedVariance)
}

func TestEvaluateKnownValues(t *testing.T) {
	yTrue := []float64{3, -0.5, 2, 7}
	yPred := []float64{2.5, 0.0, 2, 8}

	m, err := Evaluate(yTrue, yPred)
	require.NoError(t, err)

	assert.InDelta(t, 0.375, m.MSE, 1e-12)
	assert.InDelta(t, math.Sqrt(0.375), m.RMSE, 1e-12)
	assert.InDelta(t, 0.5, m.MAE, 1e-12)
	assert.InDelta(t, 0.9486081370449679, m.R2, 1e-12)
	assert.InDelta(t, 0.9571734475374732, m.ExplainedVariance, 1e-12)
}

func TestEvaluateInputValidation(t *testing.T) {
	_, err := Evaluate(nil, nil)
	assert.Error(t, err)

	_, err = Evaluate([]float64{1, 2}, []float64{1})
	assert.Error(t, err)
}

func TestAnalyzeErrorsExtremes(t *testing.T) {
	yTrue := []float64{10, 20, 30, 40}
	yPred := []float64{12, 15, 30, 41}

	s, err := AnalyzeErrors(yTrue, yPred)
	require.NoError(t, err)

	// Errors are yPred - yTrue: [2, -5, 0, 1].
	assert.Equal(t, 2.0, s.Over)
	assert.Equal(t, -5.0, s.Under)
	assert.Len(t, s.Errors, 4)
	assert.Greater(t, s.Std, 0.0)
	assert.LessOrEqual(t, s.P5, s.P95)
}

// Underpredicting [10,20] as [8,25] with unit cost 10 and unit price 25
// loses 2×15=30 in profit and wastes 5×10=50 in stock cost.
func TestBusinessImpactExample(t *testing.T) {
	imp, err := AssessImpact([]float64{10, 20}, []float64{8, 25}, Economics{UnitCost: 10, UnitPrice: 25})
	require.NoError(t, err)

	assert.InDelta(t, 30.0, imp.LostProfit, 1e-12)
	assert.InDelta(t, 50.0, imp.WasteCost, 1e-12)
	assert.InDelta(t, 80.0, imp.TotalCost, 1e-12)
	assert.InDelta(t, 50.0/30.0, imp.WasteProfitRatio, 1e-12)
	assert.InDelta(t, 25.0*30.0-50.0, imp.NetRevenue, 1e-12)
}

func TestBusinessImpactRatioInfWithoutUnderprediction(t *testing.T) {
	imp, err := AssessImpact([]float64{10}, []float64{12}, Economics{UnitCost: 10, UnitPrice: 25})
	require.NoError(t, err)

	assert.Equal(t, 0.0, imp.LostProfit)
	assert.True(t, math.IsInf(imp.WasteProfitRatio, 1))
}

func TestDeploymentReportApprove(t *testing.T) {
	m := &Metrics{R2: 0.85, MAE: 2.0}
	e := &ErrorStats{Over: 10, Under: -12}

	r := BuildReport(m, e, DefaultThresholds())
	assert.Equal(t, VerdictApprove, r.Verdict)
	assert.True(t, r.Ideal)
	for _, c := range r.Checks {
		assert.True(t, c.Passed, c.Name)
	}
}

func TestDeploymentReportRejectsAnyFailedGate(t *testing.T) {
	tests := []struct {
		name string
		m    Metrics
		e    ErrorStats
	}{
		{"low r2", Metrics{R2: 0.65, MAE: 2.0}, ErrorStats{Over: 5, Under: -5}},
		{"high mae", Metrics{R2: 0.9, MAE: 3.5}, ErrorStats{Over: 5, Under: -5}},
		{"large overprediction", Metrics{R2: 0.9, MAE: 2.0}, ErrorStats{Over: 20, Under: -5}},
		{"large underprediction", Metrics{R2: 0.9, MAE: 2.0}, ErrorStats{Over: 5, Under: -20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := BuildReport(&tt.m, &tt.e, DefaultThresholds())
			assert.Equal(t, VerdictReject, r.Verdict)
		})
	}
}

func TestReportText(t *testing.T) {
	r := BuildReport(&Metrics{R2: 0.75, MAE: 2.8}, &ErrorStats{Over: 3, Under: -4}, DefaultThresholds())
	text := r.Text()
	assert.Contains(t, text, "verdict: APPROVE")
	assert.Contains(t, text, "r2")
	assert.Contains(t, text, "PASS")
}
