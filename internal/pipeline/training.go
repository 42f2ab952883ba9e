// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/demandcast/demandcast/internal/config"
	"github.com/demandcast/demandcast/internal/evaluation"
	"github.com/demandcast/demandcast/internal/features"
	"github.com/demandcast/demandcast/internal/featurestore"
	"github.com/demandcast/demandcast/internal/logging"
	"github.com/demandcast/demandcast/internal/metrics"
	"github.com/demandcast/demandcast/internal/registry"
	"github.com/demandcast/demandcast/internal/table"
	"github.com/demandcast/demandcast/internal/training"
)

// TrainingPipeline reads the feature view, trains and evaluates a model,
// and registers the resulting artifact bundle as one version.
type TrainingPipeline struct {
	cfg   *config.Config
	store featurestore.Store
	reg   *registry.Registry
}

// NewTrainingPipeline wires the training pipeline.
func NewTrainingPipeline(cfg *config.Config, store featurestore.Store, reg *registry.Registry) *TrainingPipeline {
	return &TrainingPipeline{cfg: cfg, store: store, reg: reg}
}

// TrainingRunReport summarizes one training run.
type TrainingRunReport struct {
	RunID      string                       `json:"run_id"`
	Rows       int                          `json:"rows"`
	Features   []string                     `json:"features"`
	Params     training.GBTParams           `json:"params"`
	CVScore    float64                      `json:"cv_score"`
	Metrics    *evaluation.Metrics          `json:"metrics"`
	ErrorStats *evaluation.ErrorStats       `json:"error_stats"`
	Impact     *evaluation.BusinessImpact   `json:"impact"`
	Deployment *evaluation.DeploymentReport `json:"deployment"`
	Version    int                          `json:"version"`
}

// Run executes the full training workflow.
func (p *TrainingPipeline) Run(ctx context.Context) (*TrainingRunReport, error) {
	report := &TrainingRunReport{RunID: uuid.NewString()}
	logging.Info().Str("run_id", report.RunID).Msg("Training pipeline starting")

	out, err := p.run(ctx, report)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.PipelineRuns.WithLabelValues("training", outcome).Inc()
	return out, err
}

func (p *TrainingPipeline) run(ctx context.Context, report *TrainingRunReport) (*TrainingRunReport, error) {
	// Stage 1: read the feature view.
	start := time.Now()
	view, err := p.store.ReadAll(ctx, p.cfg.Pipeline.FeatureGroupName, p.cfg.Pipeline.FeatureGroupVersion)
	if err != nil {
		return nil, fmt.Errorf("read feature view: %w", err)
	}
	if view.NumRows() == 0 {
		return nil, &table.DataQualityError{Table: view.Name(), Reason: "feature view is empty, nothing to train on"}
	}
	report.Rows = view.NumRows()
	metrics.ObserveStage("read_view", start, view.NumRows())

	// Stage 2: fit-mode feature engineering.
	start = time.Now()
	eng, err := features.Fit(view)
	if err != nil {
		return nil, fmt.Errorf("engineer features: %w", err)
	}
	report.Features = eng.FeatureNames
	metrics.ObserveStage("engineer", start, len(eng.Y))

	// Stage 3: model selection and fit.
	start = time.Now()
	result, err := training.Train(eng.X, eng.Y, training.Options{
		TestSize: p.cfg.Training.TestSize,
		Seed:     p.cfg.Training.Seed,
		CVFolds:  p.cfg.Training.CVFolds,
		Workers:  p.cfg.Training.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}
	report.Params = result.Params
	report.CVScore = result.CVScore
	report.Metrics = result.Metrics
	metrics.ObserveStage("train", start, len(result.YTest))

	// Stage 4: error analysis, business impact, deployment report.
	start = time.Now()
	report.ErrorStats, err = evaluation.AnalyzeErrors(result.YTest, result.YPred)
	if err != nil {
		return nil, err
	}
	report.Impact, err = evaluation.AssessImpact(result.YTest, result.YPred, evaluation.Economics{
		UnitCost:  p.cfg.Training.UnitCost,
		UnitPrice: p.cfg.Training.UnitPrice,
	})
	if err != nil {
		return nil, err
	}
	report.Deployment = evaluation.BuildReport(report.Metrics, report.ErrorStats, evaluation.DefaultThresholds())
	metrics.ObserveStage("evaluate", start, len(result.YTest))

	logging.Info().
		Str("run_id", report.RunID).
		Str("verdict", string(report.Deployment.Verdict)).
		Float64("test_rmse", report.Metrics.RMSE).
		Float64("test_r2", report.Metrics.R2).
		Float64("total_cost", report.Impact.TotalCost).
		Msg("Model evaluated")

	// Stage 5: register the bundle.
	start = time.Now()
	version, err := p.reg.Register(&registry.Bundle{
		Manifest: registry.Manifest{
			ModelName: p.cfg.Registry.ModelName,
			RunID:     report.RunID,
			Params:    result.Params,
			Metrics: map[string]float64{
				"mse":                result.Metrics.MSE,
				"rmse":               result.Metrics.RMSE,
				"mae":                result.Metrics.MAE,
				"r2":                 result.Metrics.R2,
				"explained_variance": result.Metrics.ExplainedVariance,
				"cv_score":           result.CVScore,
				"lost_profit":        report.Impact.LostProfit,
				"waste_cost":         report.Impact.WasteCost,
				"total_cost":         report.Impact.TotalCost,
			},
			Report:       report.Deployment.Text(),
			FeatureNames: eng.FeatureNames,
		},
		Model:      result.Model,
		Scaler:     eng.Scaler,
		Categories: eng.Categories,
	})
	if err != nil {
		return nil, fmt.Errorf("register model: %w", err)
	}
	report.Version = version
	metrics.ObserveStage("register", start, 1)

	logging.Info().
		Str("run_id", report.RunID).
		Int("version", version).
		Msg("Training pipeline complete")
	return report, nil
}
