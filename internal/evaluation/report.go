// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package evaluation

import (
	"fmt"
	"math"
	"strings"
)

// Verdict is the deployment recommendation.
type Verdict string

const (
	VerdictApprove Verdict = "APPROVE"
	VerdictReject  Verdict = "REJECT"
)

// Thresholds are the acceptance gates a model must clear before serving.
type Thresholds struct {
	R2Min       float64 `json:"r2_min"`
	R2Ideal     float64 `json:"r2_ideal"`
	MAEMax      float64 `json:"mae_max"`
	MAEIdeal    float64 `json:"mae_ideal"`
	MaxAbsOver  float64 `json:"max_abs_overprediction"`
	MaxAbsUnder float64 `json:"max_abs_underprediction"`
}

// DefaultThresholds returns the standard acceptance gates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		R2Min:       0.7,
		R2Ideal:     0.8,
		MAEMax:      3.0,
		MAEIdeal:    2.5,
		MaxAbsOver:  15,
		MaxAbsUnder: 15,
	}
}

// Check is one gate's outcome.
type Check struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Limit  float64 `json:"limit"`
	Passed bool    `json:"passed"`
}

// DeploymentReport aggregates the metric gates into a single verdict. All
// checks must pass for an APPROVE.
type DeploymentReport struct {
	Checks  []Check `json:"checks"`
	Verdict Verdict `json:"verdict"`
	Ideal   bool    `json:"meets_ideal"`
}

// BuildReport evaluates the acceptance gates against the computed metrics
// and error statistics.
func BuildReport(m *Metrics, e *ErrorStats, th Thresholds) *DeploymentReport {
	checks := []Check{
		{Name: "r2", Value: m.R2, Limit: th.R2Min, Passed: m.R2 >= th.R2Min},
		{Name: "mae", Value: m.MAE, Limit: th.MAEMax, Passed: m.MAE <= th.MAEMax},
		{Name: "max_overprediction", Value: e.Over, Limit: th.MaxAbsOver, Passed: math.Abs(e.Over) <= th.MaxAbsOver},
		{Name: "max_underprediction", Value: e.Under, Limit: th.MaxAbsUnder, Passed: math.Abs(e.Under) <= th.MaxAbsUnder},
	}

	verdict := VerdictApprove
	for _, c := range checks {
		if !c.Passed {
			verdict = VerdictReject
			break
		}
	}

	return &DeploymentReport{
		Checks:  checks,
		Verdict: verdict,
		Ideal:   m.R2 >= th.R2Ideal && m.MAE <= th.MAEIdeal,
	}
}

// Text renders the report for logs and the registry manifest.
func (r *DeploymentReport) Text() string {
	var b strings.Builder
	for _, c := range r.Checks {
		status := "PASS"
		if !c.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%-22s %s  value=%.4f limit=%.4f\n", c.Name, status, c.Value, c.Limit)
	}
	fmt.Fprintf(&b, "verdict: %s", r.Verdict)
	if r.Ideal {
		b.WriteString(" (meets ideal targets)")
	}
	return b.String()
}
