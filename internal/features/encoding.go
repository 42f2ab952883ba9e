// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

package features

import "sort"

// UnknownCategoryCode is returned for categories never seen at fit time and
// for null values.
const UnknownCategoryCode = -1

// CategoryMapping assigns a stable integer code per distinct category
// value. It is built once at fit time and persisted alongside the scaler in
// the same artifact version; inference reuses it instead of recomputing
// codes from the inference batch, which would shift codes whenever the
// batch's category set differs from training.
type CategoryMapping struct {
	Codes map[string]int `json:"codes"`
}

// FitCategories builds a mapping from the distinct non-null values,
// assigning codes 0..n-1 in lexicographic order.
func FitCategories(values []string) *CategoryMapping {
	distinct := make(map[string]struct{}, len(values))
	for _, v := range values {
		distinct[v] = struct{}{}
	}
	sorted := make([]string, 0, len(distinct))
	for v := range distinct {
		sorted = append(sorted, v)
	}
	sort.Strings(sorted)

	m := &CategoryMapping{Codes: make(map[string]int, len(sorted))}
	for i, v := range sorted {
		m.Codes[v] = i
	}
	return m
}

// Code returns the fitted code for a category, or UnknownCategoryCode.
func (m *CategoryMapping) Code(value string) int {
	if m == nil || m.Codes == nil {
		return UnknownCategoryCode
	}
	if c, ok := m.Codes[value]; ok {
		return c
	}
	return UnknownCategoryCode
}

// Len returns the number of fitted categories.
func (m *CategoryMapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Codes)
}
