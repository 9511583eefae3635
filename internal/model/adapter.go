package model

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ayusman/ergowatch/internal/features"
)

var (
	// ErrModelUnavailable is returned when no usable model was loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrProbabilitiesUnsupported is returned by PredictProbabilities on
	// models without probability output.
	ErrProbabilitiesUnsupported = errors.New("model does not support probabilities")
)

// Adapter wraps a classifier for per-frame use. Probability support is
// decided once when the adapter is built.
type Adapter struct {
	clf   Classifier
	proba ProbabilisticClassifier
	// index maps model inputs to positions in the full feature vector.
	index []int
}

// Load reads a model artifact. Any failure is reported as ErrModelUnavailable.
func Load(path string) (*Adapter, error) {
	a, err := ReadArtifact(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, path, err)
	}

	adapter, err := NewAdapter(a.Classifier(), a.Features)
	if err != nil {
		return nil, err
	}

	slog.Info("model loaded", "path", path, "kind", a.Kind, "classes", a.Classes, "probabilities", adapter.HasProbabilities())
	return adapter, nil
}

// NewAdapter wraps clf. columns names the feature columns clf reads; nil
// means the full landmark vector in order.
func NewAdapter(clf Classifier, columns []string) (*Adapter, error) {
	if clf == nil {
		return nil, ErrModelUnavailable
	}

	a := &Adapter{clf: clf}
	if p, ok := clf.(ProbabilisticClassifier); ok {
		a.proba = p
	}

	if len(columns) > 0 {
		positions := make(map[string]int, features.Size)
		for i, name := range features.Columns() {
			positions[name] = i
		}
		a.index = make([]int, len(columns))
		for i, name := range columns {
			pos, ok := positions[name]
			if !ok {
				return nil, fmt.Errorf("%w: unknown feature column %q", ErrModelUnavailable, name)
			}
			a.index[i] = pos
		}
	}
	return a, nil
}

// HasProbabilities reports whether the model provides class probabilities.
func (a *Adapter) HasProbabilities() bool {
	return a != nil && a.proba != nil
}

// Classes returns the model's classes.
func (a *Adapter) Classes() []string {
	if a == nil {
		return nil
	}
	return a.clf.Classes()
}

// Predict returns the normalized label for vec.
func (a *Adapter) Predict(vec features.Vector) (string, error) {
	if a == nil || a.clf == nil {
		return "", ErrModelUnavailable
	}
	label, err := a.clf.Predict(a.input(vec))
	if err != nil {
		return "", fmt.Errorf("predict: %w", err)
	}
	return NormalizeLabel(label), nil
}

// PredictProbabilities returns each normalized class label's probability.
func (a *Adapter) PredictProbabilities(vec features.Vector) (map[string]float64, error) {
	if a == nil || a.clf == nil {
		return nil, ErrModelUnavailable
	}
	if a.proba == nil {
		return nil, ErrProbabilitiesUnsupported
	}

	probs, err := a.proba.PredictProba(a.input(vec))
	if err != nil {
		return nil, fmt.Errorf("predict probabilities: %w", err)
	}

	classes := a.proba.Classes()
	if len(probs) != len(classes) {
		return nil, fmt.Errorf("model returned %d probabilities for %d classes", len(probs), len(classes))
	}

	out := make(map[string]float64, len(classes))
	for i, c := range classes {
		out[NormalizeLabel(c)] = probs[i]
	}
	return out, nil
}

// ProbabilityOf returns the probability of label for vec, or nil when the
// model has no probabilities or does not know label.
func (a *Adapter) ProbabilityOf(vec features.Vector, label string) (*float64, error) {
	if !a.HasProbabilities() {
		return nil, nil
	}
	probs, err := a.PredictProbabilities(vec)
	if err != nil {
		return nil, err
	}
	p, ok := probs[NormalizeLabel(label)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (a *Adapter) input(vec features.Vector) []float64 {
	if a.index == nil {
		return vec
	}
	x := make([]float64, len(a.index))
	for i, pos := range a.index {
		if pos < len(vec) {
			x[i] = vec[pos]
		}
	}
	return x
}

// NormalizeLabel trims and lower-cases a predicted label.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
