// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/demandcast/demandcast/internal/logging"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError sends the uniform error shape with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: msg}); err != nil {
		logging.Error().Err(err).Msg("Failed to encode error response")
	}
}

// writeJSON sends a success payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}
