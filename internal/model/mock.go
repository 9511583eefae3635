package model

import "sync"

// MockClassifier replays a fixed label sequence for testing. After the
// sequence is exhausted the last label repeats.
type MockClassifier struct {
	mu      sync.Mutex
	labels  []string
	classes []string
	calls   int
	err     error
}

// NewMockClassifier creates a MockClassifier returning labels in order.
func NewMockClassifier(classes []string, labels ...string) *MockClassifier {
	return &MockClassifier{classes: classes, labels: labels}
}

// SetError makes subsequent predictions fail with err.
func (m *MockClassifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of Predict calls.
func (m *MockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Classes returns the configured classes.
func (m *MockClassifier) Classes() []string {
	return m.classes
}

// Predict returns the next label in the sequence.
func (m *MockClassifier) Predict(x []float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	i := m.calls
	m.calls++
	if len(m.labels) == 0 {
		return "", nil
	}
	if i >= len(m.labels) {
		i = len(m.labels) - 1
	}
	return m.labels[i], nil
}

// MockProbabilisticClassifier adds a fixed probability row to MockClassifier.
type MockProbabilisticClassifier struct {
	*MockClassifier
	Probs []float64
}

// PredictProba returns the configured probabilities.
func (m *MockProbabilisticClassifier) PredictProba(x []float64) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float64, len(m.Probs))
	copy(out, m.Probs)
	return out, nil
}
