// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demandcast/demandcast/internal/config"
	"github.com/demandcast/demandcast/internal/inference"
	"github.com/demandcast/demandcast/internal/registry"
)

// fakeService is a canned PredictService.
type fakeService struct {
	forecast *inference.Forecast
	err      error
	single   float64
	bundle   *registry.Bundle
}

func (f *fakeService) PredictRecent(ctx context.Context) (*inference.Forecast, error) {
	return f.forecast, f.err
}

func (f *fakeService) PredictRecord(record map[string]float64) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.single, nil
}

func (f *fakeService) Bundle() *registry.Bundle { return f.bundle }

func healthyService() *fakeService {
	return &fakeService{
		forecast: &inference.Forecast{
			ModelName:    "gbt_model",
			ModelVersion: 2,
			Rows:         1,
			Predictions: []inference.Prediction{
				{ProductName: "A", CreatedAt: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), Predicted: 11.5, Actual: 10},
			},
		},
		single: 12.25,
		bundle: &registry.Bundle{Manifest: registry.Manifest{ModelName: "gbt_model", Version: 2}},
	}
}

func testRouter(svc PredictService) http.Handler {
	cfg := &config.Config{}
	cfg.Server.Timeout = 5 * time.Second
	cfg.API.CORSOrigins = []string{"*"}
	cfg.API.RateLimitReqs = 1000
	cfg.API.RateLimitWindow = time.Minute
	return NewRouter(cfg, NewHandlers(svc))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthReady(t *testing.T) {
	rec := do(t, testRouter(healthyService()), http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "gbt_model", resp["model_name"])
	assert.EqualValues(t, 2, resp["model_version"])
}

func TestHealthNoModel(t *testing.T) {
	rec := do(t, testRouter(&fakeService{}), http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestPredictBatchOK(t *testing.T) {
	rec := do(t, testRouter(healthyService()), http.MethodGet, "/api/v1/predict", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var forecast inference.Forecast
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &forecast))
	assert.Equal(t, 2, forecast.ModelVersion)
	require.Len(t, forecast.Predictions, 1)
	assert.Equal(t, "A", forecast.Predictions[0].ProductName)
	assert.InDelta(t, 11.5, forecast.Predictions[0].Predicted, 1e-12)
}

func TestPredictBatchErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"no data", inference.ErrNoData, http.StatusNotFound},
		{"store down", inference.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"other", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := healthyService()
			svc.err = tt.err
			rec := do(t, testRouter(svc), http.MethodGet, "/api/v1/predict", "")
			assert.Equal(t, tt.status, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestPredictOneOK(t *testing.T) {
	body := `{"features": {"sales_price": 5, "quantity": 2}}`
	rec := do(t, testRouter(healthyService()), http.MethodPost, "/api/v1/predict", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 12.25, resp["predicted"], 1e-12)
}

func TestPredictOneErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"bad record", inference.ErrBadRecord, http.StatusBadRequest},
		{"internal", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := healthyService()
			svc.err = tt.err
			rec := do(t, testRouter(svc), http.MethodPost, "/api/v1/predict", `{"features": {"sales_price": 5}}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestPredictOneBadRequests(t *testing.T) {
	h := testRouter(healthyService())

	rec := do(t, h, http.MethodPost, "/api/v1/predict", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/predict", `{"features": {}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, testRouter(healthyService()), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRequestIDHeaderOnResponses(t *testing.T) {
	rec := do(t, testRouter(healthyService()), http.MethodGet, "/api/v1/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
