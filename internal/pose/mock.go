package pose

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu       sync.Mutex
	set      LandmarkSet
	sequence []LandmarkSet
	err      error
	calls    int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetLandmarks sets the landmarks returned by every call to Detect.
func (m *MockDetector) SetLandmarks(set LandmarkSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = set
	m.sequence = nil
}

// SetSequence makes Detect return the given sets in order, one per call.
// Once the sequence is exhausted Detect reports no pose.
func (m *MockDetector) SetSequence(seq []LandmarkSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = seq
	m.set = nil
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of Detect calls made so far.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured landmarks or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (LandmarkSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.sequence != nil {
		if len(m.sequence) == 0 {
			return nil, nil
		}
		next := m.sequence[0]
		m.sequence = m.sequence[1:]
		return next, nil
	}
	return m.set, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// UprightLandmarks returns a preset LandmarkSet of a person sitting upright:
// head stacked over the shoulders and shoulders level.
func UprightLandmarks() LandmarkSet {
	set := baseLandmarks()

	set[Nose] = NewLandmark(0.50, 0.20, -0.30, 0.99)
	set[LeftEar] = NewLandmark(0.55, 0.21, -0.10, 0.95)
	set[RightEar] = NewLandmark(0.45, 0.21, -0.10, 0.95)
	set[LeftShoulder] = NewLandmark(0.62, 0.40, -0.05, 0.99)
	set[RightShoulder] = NewLandmark(0.38, 0.40, -0.05, 0.99)
	set[LeftHip] = NewLandmark(0.58, 0.75, 0.00, 0.90)
	set[RightHip] = NewLandmark(0.42, 0.75, 0.00, 0.90)

	return set
}

// SlouchedLandmarks returns a preset LandmarkSet of a person slouching:
// head dropped forward and shoulders rounded toward the camera.
func SlouchedLandmarks() LandmarkSet {
	set := baseLandmarks()

	set[Nose] = NewLandmark(0.50, 0.34, -0.55, 0.99)
	set[LeftEar] = NewLandmark(0.55, 0.33, -0.35, 0.93)
	set[RightEar] = NewLandmark(0.45, 0.33, -0.35, 0.93)
	set[LeftShoulder] = NewLandmark(0.60, 0.46, -0.25, 0.98)
	set[RightShoulder] = NewLandmark(0.40, 0.47, -0.25, 0.98)
	set[LeftHip] = NewLandmark(0.58, 0.76, 0.00, 0.88)
	set[RightHip] = NewLandmark(0.42, 0.76, 0.00, 0.88)

	return set
}

// baseLandmarks fills all 33 slots with a neutral, low-visibility layout
// so presets only need to override the keypoints they care about.
func baseLandmarks() LandmarkSet {
	set := make(LandmarkSet, NumLandmarks)
	for i := range set {
		set[i] = NewLandmark(0.5, 0.1+float64(i)*0.025, 0, 0.5)
	}
	return set
}
