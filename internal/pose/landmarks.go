// Package pose provides body-landmark types and pose estimator implementations.
package pose

import "math"

// Body landmark indices following the MediaPipe Pose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// Landmark is a single estimated body keypoint.
// A nil attribute was not reported by the estimator.
type Landmark struct {
	X          *float64 `json:"x,omitempty" msgpack:"x,omitempty"`
	Y          *float64 `json:"y,omitempty" msgpack:"y,omitempty"`
	Z          *float64 `json:"z,omitempty" msgpack:"z,omitempty"`
	Visibility *float64 `json:"visibility,omitempty" msgpack:"visibility,omitempty"`
}

// LandmarkSet is one frame's landmarks in fixed anatomical order.
// A nil set means no pose was detected.
type LandmarkSet []Landmark

// NewLandmark returns a fully populated Landmark.
func NewLandmark(x, y, z, visibility float64) Landmark {
	return Landmark{X: &x, Y: &y, Z: &z, Visibility: &visibility}
}

// Values returns the landmark attributes, substituting 0 for any attribute
// that is missing or not a finite number.
func (l Landmark) Values() (x, y, z, visibility float64) {
	return orZero(l.X), orZero(l.Y), orZero(l.Z), orZero(l.Visibility)
}

func orZero(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}

// Present reports whether the set carries a detected pose.
func (s LandmarkSet) Present() bool {
	return len(s) > 0
}
