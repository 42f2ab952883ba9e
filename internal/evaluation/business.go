// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package evaluation

import "math"

// Economics holds the per-unit figures the business-impact translation
// needs. Price must exceed cost for a meaningful lost-profit figure, but
// the computation itself places no constraint.
type Economics struct {
	UnitCost  float64 `json:"unit_cost"`
	UnitPrice float64 `json:"unit_price"`
}

// BusinessImpact translates prediction errors into money. Underpredictions
// lose the margin on the units not stocked; overpredictions waste the cost
// of units stocked but not sold.
type BusinessImpact struct {
	LostProfit       float64 `json:"lost_profit"`
	WasteCost        float64 `json:"waste_cost"`
	TotalCost        float64 `json:"total_cost"`
	WasteProfitRatio float64 `json:"waste_profit_ratio"`
	NetRevenue       float64 `json:"net_revenue_impact"`
}

// AssessImpact computes the business impact of a prediction set.
// The waste/profit ratio is +Inf when nothing was underpredicted.
func AssessImpact(yTrue, yPred []float64, eco Economics) (*BusinessImpact, error) {
	if err := checkLengths(yTrue, yPred); err != nil {
		return nil, err
	}

	var lost, waste, revenue float64
	for i := range yTrue {
		diff := yTrue[i] - yPred[i]
		if diff > 0 {
			lost += diff * (eco.UnitPrice - eco.UnitCost)
		} else {
			waste += -diff * eco.UnitCost
		}
		revenue += yTrue[i] * eco.UnitPrice
	}

	ratio := math.Inf(1)
	if lost > 0 {
		ratio = waste / lost
	}

	return &BusinessImpact{
		LostProfit:       lost,
		WasteCost:        waste,
		TotalCost:        lost + waste,
		WasteProfitRatio: ratio,
		NetRevenue:       revenue - waste,
	}, nil
}
