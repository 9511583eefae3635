package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Classifier predicts a label for one feature row.
type Classifier interface {
	Predict(x []float64) (string, error)
	Classes() []string
}

// ProbabilisticClassifier also reports per-class probabilities, ordered as
// Classes.
type ProbabilisticClassifier interface {
	Classifier
	PredictProba(x []float64) ([]float64, error)
}

type logisticModel struct {
	artifact *Artifact
}

func (m *logisticModel) Classes() []string {
	return m.artifact.Classes
}

func (m *logisticModel) Predict(x []float64) (string, error) {
	probs, err := m.PredictProba(x)
	if err != nil {
		return "", err
	}
	return m.artifact.Classes[floats.MaxIdx(probs)], nil
}

func (m *logisticModel) PredictProba(x []float64) ([]float64, error) {
	a := m.artifact
	if len(x) != a.NumFeatures() {
		return nil, fmt.Errorf("input has %d features, model expects %d", len(x), a.NumFeatures())
	}

	z := a.Scaler.Transform(x)

	scores := make([]float64, len(a.Coef))
	for i, row := range a.Coef {
		scores[i] = floats.Dot(row, z) + a.Intercept[i]
	}

	if len(a.Classes) == 2 {
		p := sigmoid(scores[0])
		return []float64{1 - p, p}, nil
	}
	return softmax(scores), nil
}

type centroidModel struct {
	artifact *Artifact
}

func (m *centroidModel) Classes() []string {
	return m.artifact.Classes
}

func (m *centroidModel) Predict(x []float64) (string, error) {
	a := m.artifact
	if len(x) != a.NumFeatures() {
		return "", fmt.Errorf("input has %d features, model expects %d", len(x), a.NumFeatures())
	}

	z := a.Scaler.Transform(x)

	best, bestDist := 0, math.Inf(1)
	for i, c := range a.Centroids {
		if d := floats.Distance(z, c, 2); d < bestDist {
			best, bestDist = i, d
		}
	}
	return a.Classes[best], nil
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

// softmax returns normalized exponentials, shifted by the max for stability.
func softmax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	maxScore := floats.Max(scores)
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}
