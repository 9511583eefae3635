// Package features converts body landmarks into fixed-length feature vectors.
package features

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ayusman/ergowatch/internal/pose"
)

// ValuesPerLandmark is the number of features emitted per landmark (x, y, z, visibility).
const ValuesPerLandmark = 4

// Size is the length of every feature vector.
const Size = pose.NumLandmarks * ValuesPerLandmark

// ErrMalformedInput is returned when a landmark set has the wrong cardinality.
var ErrMalformedInput = errors.New("malformed landmark set")

// Vector is a flattened (x, y, z, visibility) quadruple per landmark in landmark order.
type Vector []float64

// Vectorize converts one frame's landmarks into a feature vector of length Size.
// Missing or non-finite attributes become 0. An empty set yields an all-zero
// vector; any other length than pose.NumLandmarks is rejected.
func Vectorize(set pose.LandmarkSet) (Vector, error) {
	vec := make(Vector, Size)
	if len(set) == 0 {
		return vec, nil
	}
	if len(set) != pose.NumLandmarks {
		return nil, fmt.Errorf("%w: got %d landmarks, want %d", ErrMalformedInput, len(set), pose.NumLandmarks)
	}

	for i, lm := range set {
		x, y, z, v := lm.Values()
		base := i * ValuesPerLandmark
		vec[base] = x
		vec[base+1] = y
		vec[base+2] = z
		vec[base+3] = v
	}

	return vec, nil
}

// Columns returns the feature column names: x_0, y_0, z_0, v_0, ..., v_32.
func Columns() []string {
	cols := make([]string, 0, Size)
	for i := 0; i < pose.NumLandmarks; i++ {
		n := strconv.Itoa(i)
		cols = append(cols, "x_"+n, "y_"+n, "z_"+n, "v_"+n)
	}
	return cols
}

// IsFeatureColumn reports whether a column name holds a landmark feature.
func IsFeatureColumn(name string) bool {
	if len(name) < 3 || name[1] != '_' {
		return false
	}
	switch name[0] {
	case 'x', 'y', 'z', 'v':
		return true
	}
	return false
}
