// Demandcast - Demand Forecasting Pipeline and Serving API
// Copyright 2026 The Demandcast Authors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/demandcast/demandcast

// Package registry stores trained model artifacts as versioned bundles on
// the filesystem. A bundle holds the model, the fitted scaler, and the
// category mapping plus a manifest; the three artifacts share one version
// and are only ever loaded together.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/demandcast/demandcast/internal/features"
	"github.com/demandcast/demandcast/internal/logging"
	"github.com/demandcast/demandcast/internal/training"
)

// ErrModelNotFound is returned when no registered version exists.
var ErrModelNotFound = errors.New("model not found in registry")

// ArtifactVersionMismatch reports a bundle whose components do not share
// one version. Loading such a bundle is fatal: a scaler from one training
// run must never feed a model from another.
type ArtifactVersionMismatch struct {
	ModelName string
	Artifact  string
	Want      int
	Got       int
}

func (e *ArtifactVersionMismatch) Error() string {
	return fmt.Sprintf("registry: %s artifact %q has version %d, bundle is %d",
		e.ModelName, e.Artifact, e.Got, e.Want)
}

// Manifest describes one registered version.
type Manifest struct {
	ModelName    string             `json:"model_name"`
	Version      int                `json:"version"`
	RunID        string             `json:"run_id"`
	CreatedAt    time.Time          `json:"created_at"`
	Params       training.GBTParams `json:"params"`
	Metrics      map[string]float64 `json:"metrics"`
	Report       string             `json:"report"`
	FeatureNames []string           `json:"feature_names"`
}

// Bundle is one complete set of serving artifacts.
type Bundle struct {
	Manifest   Manifest
	Model      *training.GBTRegressor
	Scaler     *features.StandardScaler
	Categories *features.CategoryMapping
}

// envelope wraps each artifact file with the bundle identity so version
// mismatches are detectable at load time.
type envelope struct {
	ModelName string          `json:"model_name"`
	Version   int             `json:"version"`
	Payload   json.RawMessage `json:"payload"`
}

const (
	manifestFile   = "manifest.json"
	modelFile      = "model.json"
	scalerFile     = "scaler.json"
	categoriesFile = "categories.json"
)

var versionDirPattern = regexp.MustCompile(`^v(\d+)$`)

// Registry is a filesystem-backed model registry rooted at one directory.
type Registry struct {
	root string
}

// New returns a registry rooted at dir, creating it if needed.
func New(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create registry root: %w", err)
	}
	return &Registry{root: dir}, nil
}

// Register writes the bundle as the next version of its model name. The
// bundle is staged in a temporary directory and renamed into place, so a
// crash mid-write never leaves a partial version visible.
func (r *Registry) Register(b *Bundle) (int, error) {
	if b.Manifest.ModelName == "" {
		return 0, fmt.Errorf("registry: bundle has no model name")
	}
	if b.Model == nil || b.Scaler == nil || b.Categories == nil {
		return 0, fmt.Errorf("registry: bundle for %q is incomplete", b.Manifest.ModelName)
	}

	modelDir := filepath.Join(r.root, b.Manifest.ModelName)
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return 0, fmt.Errorf("create model dir: %w", err)
	}

	version := 1
	if latest, err := r.LatestVersion(b.Manifest.ModelName); err == nil {
		version = latest + 1
	} else if !errors.Is(err, ErrModelNotFound) {
		return 0, err
	}

	b.Manifest.Version = version
	if b.Manifest.CreatedAt.IsZero() {
		b.Manifest.CreatedAt = time.Now().UTC()
	}

	staging, err := os.MkdirTemp(modelDir, ".staging-")
	if err != nil {
		return 0, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	files := map[string]any{
		modelFile:      b.Model,
		scalerFile:     b.Scaler,
		categoriesFile: b.Categories,
	}
	for name, payload := range files {
		if err := writeArtifact(filepath.Join(staging, name), b.Manifest.ModelName, version, payload); err != nil {
			return 0, err
		}
	}
	if err := writeJSON(filepath.Join(staging, manifestFile), b.Manifest); err != nil {
		return 0, err
	}

	final := filepath.Join(modelDir, fmt.Sprintf("v%d", version))
	if err := os.Rename(staging, final); err != nil {
		return 0, fmt.Errorf("publish version %d: %w", version, err)
	}

	logging.Info().
		Str("model", b.Manifest.ModelName).
		Int("version", version).
		Str("run_id", b.Manifest.RunID).
		Msg("Model version registered")
	return version, nil
}

// Load reads a bundle. Version 0 means the latest registered version.
// Components whose recorded version disagrees with the manifest produce an
// ArtifactVersionMismatch.
func (r *Registry) Load(modelName string, version int) (*Bundle, error) {
	if version == 0 {
		latest, err := r.LatestVersion(modelName)
		if err != nil {
			return nil, err
		}
		version = latest
	}

	dir := filepath.Join(r.root, modelName, fmt.Sprintf("v%d", version))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s v%d: %w", modelName, version, ErrModelNotFound)
	}

	b := &Bundle{
		Model:      &training.GBTRegressor{},
		Scaler:     &features.StandardScaler{},
		Categories: &features.CategoryMapping{},
	}
	if err := readJSON(filepath.Join(dir, manifestFile), &b.Manifest); err != nil {
		return nil, err
	}

	artifacts := map[string]any{
		modelFile:      b.Model,
		scalerFile:     b.Scaler,
		categoriesFile: b.Categories,
	}
	for name, target := range artifacts {
		if err := readArtifact(filepath.Join(dir, name), modelName, b.Manifest.Version, target); err != nil {
			return nil, err
		}
	}

	logging.Info().
		Str("model", modelName).
		Int("version", b.Manifest.Version).
		Msg("Model bundle loaded")
	return b, nil
}

// LatestVersion returns the highest registered version of a model.
func (r *Registry) LatestVersion(modelName string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, modelName))
	if os.IsNotExist(err) {
		return 0, fmt.Errorf("%s: %w", modelName, ErrModelNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("list model versions: %w", err)
	}

	var versions []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if m := versionDirPattern.FindStringSubmatch(e.Name()); m != nil {
			v, _ := strconv.Atoi(m[1])
			versions = append(versions, v)
		}
	}
	if len(versions) == 0 {
		return 0, fmt.Errorf("%s: %w", modelName, ErrModelNotFound)
	}
	sort.Ints(versions)
	return versions[len(versions)-1], nil
}

// Versions lists all registered versions of a model, ascending.
func (r *Registry) Versions(modelName string) ([]int, error) {
	if _, err := r.LatestVersion(modelName); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(r.root, modelName))
	if err != nil {
		return nil, fmt.Errorf("list model versions: %w", err)
	}
	var versions []int
	for _, e := range entries {
		if m := versionDirPattern.FindStringSubmatch(e.Name()); e.IsDir() && m != nil {
			v, _ := strconv.Atoi(m[1])
			versions = append(versions, v)
		}
	}
	sort.Ints(versions)
	return versions, nil
}

func writeArtifact(path, modelName string, version int, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", filepath.Base(path), err)
	}
	return writeJSON(path, envelope{ModelName: modelName, Version: version, Payload: raw})
}

func readArtifact(path, modelName string, version int, target any) error {
	var env envelope
	if err := readJSON(path, &env); err != nil {
		return err
	}
	if env.Version != version {
		return &ArtifactVersionMismatch{
			ModelName: modelName,
			Artifact:  filepath.Base(path),
			Want:      version,
			Got:       env.Version,
		}
	}
	return json.Unmarshal(env.Payload, target)
}

// writeJSON writes to a temp file and renames it into place.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", filepath.Base(path), err)
	}
	return nil
}
