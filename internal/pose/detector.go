package pose

import "gocv.io/x/gocv"

// Detector defines the interface for pose estimator implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the body landmarks.
	// Returns a nil set if no pose is detected.
	Detect(frame *gocv.Mat) (LandmarkSet, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for pose estimation.
type Config struct {
	// ModelComplexity selects the estimator model (0 = lite, 1 = full, 2 = heavy).
	ModelComplexity int

	// SmoothLandmarks enables the estimator's temporal landmark filter.
	SmoothLandmarks bool

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// InferWidth and InferHeight downscale frames before they are sent to the
	// estimator. Zero keeps the camera resolution.
	InferWidth  int
	InferHeight int

	// Python and Script override the interpreter and service script lookup.
	Python string
	Script string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelComplexity: 1,
		SmoothLandmarks: true,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}

// CaptureConfig returns the lighter configuration used while recording
// training sessions: lite model and 640x360 inference.
func CaptureConfig() Config {
	cfg := DefaultConfig()
	cfg.ModelComplexity = 0
	cfg.InferWidth = 640
	cfg.InferHeight = 360
	return cfg
}
