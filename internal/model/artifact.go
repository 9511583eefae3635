// Package model loads, trains and applies posture classifiers.
//
// A model is stored as a JSON artifact holding a standard scaler and either
// logistic-regression weights or class centroids.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/ergowatch/internal/features"
)

// Kind identifies the classifier stored in an artifact.
type Kind string

const (
	// KindLogistic is a binary or multinomial logistic regression.
	KindLogistic Kind = "logistic"
	// KindCentroid is a nearest-centroid classifier without probabilities.
	KindCentroid Kind = "centroid"
)

// ErrInvalidArtifact is returned when an artifact's shapes are inconsistent.
var ErrInvalidArtifact = errors.New("invalid model artifact")

// Scaler standardizes features as (x - mean) / scale.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns the standardized copy of x. A zero scale leaves the
// centered value unscaled.
func (s *Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	if s == nil {
		return out
	}
	floats.Sub(out, s.Mean)
	for i, sc := range s.Scale {
		if sc != 0 {
			out[i] /= sc
		}
	}
	return out
}

// Artifact is the serialized form of a trained classifier.
type Artifact struct {
	Kind    Kind     `json:"kind"`
	Classes []string `json:"classes"`
	// Features names the vector columns the model reads, in order. Empty
	// means the full landmark vector.
	Features  []string    `json:"features,omitempty"`
	Scaler    *Scaler     `json:"scaler,omitempty"`
	Coef      [][]float64 `json:"coef,omitempty"`
	Intercept []float64   `json:"intercept,omitempty"`
	Centroids [][]float64 `json:"centroids,omitempty"`
}

// NumFeatures returns the input width the artifact expects.
func (a *Artifact) NumFeatures() int {
	if len(a.Features) > 0 {
		return len(a.Features)
	}
	return features.Size
}

// Validate checks that the artifact's shapes agree.
func (a *Artifact) Validate() error {
	if len(a.Classes) < 2 {
		return fmt.Errorf("%w: need at least two classes, got %d", ErrInvalidArtifact, len(a.Classes))
	}

	n := a.NumFeatures()
	for _, name := range a.Features {
		if !features.IsFeatureColumn(name) {
			return fmt.Errorf("%w: unknown feature column %q", ErrInvalidArtifact, name)
		}
	}

	if a.Scaler != nil && (len(a.Scaler.Mean) != n || len(a.Scaler.Scale) != n) {
		return fmt.Errorf("%w: scaler width does not match %d features", ErrInvalidArtifact, n)
	}

	switch a.Kind {
	case KindLogistic:
		rows := len(a.Classes)
		if rows == 2 {
			rows = 1
		}
		if len(a.Coef) != rows || len(a.Intercept) != rows {
			return fmt.Errorf("%w: want %d coefficient rows for %d classes", ErrInvalidArtifact, rows, len(a.Classes))
		}
		if err := checkRows(a.Coef, n); err != nil {
			return err
		}
	case KindCentroid:
		if len(a.Centroids) != len(a.Classes) {
			return fmt.Errorf("%w: want one centroid per class", ErrInvalidArtifact)
		}
		if err := checkRows(a.Centroids, n); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidArtifact, a.Kind)
	}
	return nil
}

func checkRows(rows [][]float64, n int) error {
	for i, row := range rows {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrInvalidArtifact, i, len(row), n)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d holds a non-finite value", ErrInvalidArtifact, i)
			}
		}
	}
	return nil
}

// Classifier returns the classifier described by the artifact. Logistic
// artifacts also implement ProbabilisticClassifier.
func (a *Artifact) Classifier() Classifier {
	if a.Kind == KindCentroid {
		return &centroidModel{artifact: a}
	}
	return &logisticModel{artifact: a}
}

// Save writes the artifact as indented JSON, creating parent directories.
func (a *Artifact) Save(path string) error {
	if err := a.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}

// ReadArtifact decodes and validates an artifact file.
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
