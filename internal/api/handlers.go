// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

// Package api provides the HTTP surface of the serving side: health
// probes, the batch and single-record prediction endpoints, and the
// Prometheus scrape endpoint. Every failure path answers with the uniform
// {"error": "..."} shape.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/demandcast/demandcast/internal/inference"
	"github.com/demandcast/demandcast/internal/logging"
	"github.com/demandcast/demandcast/internal/metrics"
	"github.com/demandcast/demandcast/internal/registry"
)

// PredictService is the inference contract the handlers depend on.
type PredictService interface {
	PredictRecent(ctx context.Context) (*inference.Forecast, error)
	PredictRecord(record map[string]float64) (float64, error)
	Bundle() *registry.Bundle
}

// Handlers carries the serving dependencies.
type Handlers struct {
	svc      PredictService
	validate *validator.Validate
}

// NewHandlers builds the handler set.
func NewHandlers(svc PredictService) *Handlers {
	return &Handlers{svc: svc, validate: validator.New()}
}

// healthResponse reports liveness and readiness.
type healthResponse struct {
	Status       string `json:"status"`
	ModelName    string `json:"model_name,omitempty"`
	ModelVersion int    `json:"model_version,omitempty"`
}

// Health reports liveness plus model readiness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if b := h.svc.Bundle(); b != nil {
		resp.ModelName = b.Manifest.ModelName
		resp.ModelVersion = b.Manifest.Version
	} else {
		writeError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// PredictBatch runs the fetch-and-predict cycle over the recent feature-
// store window.
func (h *Handlers) PredictBatch(w http.ResponseWriter, r *http.Request) {
	forecast, err := h.svc.PredictRecent(r.Context())
	if err != nil {
		metrics.PredictionRequests.WithLabelValues("batch", "error").Inc()
		switch {
		case errors.Is(err, inference.ErrNoData):
			writeError(w, http.StatusNotFound, "no data in feature store window")
		case errors.Is(err, inference.ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "feature store unavailable")
		default:
			logging.Error().Err(err).Msg("Batch prediction failed")
			writeError(w, http.StatusInternalServerError, "prediction failed")
		}
		return
	}

	metrics.PredictionRequests.WithLabelValues("batch", "success").Inc()
	writeJSON(w, http.StatusOK, forecast)
}

// predictRequest is the single-record prediction DTO: a complete
// pre-engineered feature record keyed by feature name.
type predictRequest struct {
	Features map[string]float64 `json:"features" validate:"required,min=1"`
}

type predictResponse struct {
	Predicted float64 `json:"predicted"`
}

// PredictOne predicts one structured feature record.
func (h *Handlers) PredictOne(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "features object is required")
		return
	}

	predicted, err := h.svc.PredictRecord(req.Features)
	if err != nil {
		metrics.PredictionRequests.WithLabelValues("single", "error").Inc()
		if errors.Is(err, inference.ErrBadRecord) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			logging.Error().Err(err).Msg("Single-record prediction failed")
			writeError(w, http.StatusInternalServerError, "prediction failed")
		}
		return
	}

	metrics.PredictionRequests.WithLabelValues("single", "success").Inc()
	writeJSON(w, http.StatusOK, predictResponse{Predicted: predicted})
}
