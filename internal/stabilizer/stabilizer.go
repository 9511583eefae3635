// Package stabilizer turns noisy per-frame posture labels into a stable
// verdict using a sliding-window majority vote and an exponentially smoothed
// "good" probability.
package stabilizer

import "sort"

// Defaults used by live detection.
const (
	DefaultWindow = 8
	DefaultAlpha  = 0.6
	// InitialSmoothed seeds the smoothed good probability.
	InitialSmoothed = 0.5
)

// Result is the stabilized state after one observation.
type Result struct {
	// Voted is the majority label over the window.
	Voted string
	// SmoothedGood is the smoothed probability of the good class.
	SmoothedGood float64
	// HasProbability is true once any probability was observed.
	HasProbability bool
}

// Stabilizer holds the vote window and smoothed probability of one
// detection run. It is not safe for concurrent use.
type Stabilizer struct {
	window   []string
	size     int
	alpha    float64
	smoothed float64
	hasProb  bool
}

// New creates a Stabilizer with the given window size and smoothing weight.
// alpha is the weight kept by the history; each new sample contributes
// 1-alpha. Non-positive sizes fall back to DefaultWindow and alpha outside
// [0,1] falls back to DefaultAlpha.
func New(window int, alpha float64) *Stabilizer {
	if window <= 0 {
		window = DefaultWindow
	}
	if alpha < 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Stabilizer{
		window:   make([]string, 0, window),
		size:     window,
		alpha:    alpha,
		smoothed: InitialSmoothed,
	}
}

// Observe pushes a frame label into the window, evicting the oldest when
// full, and folds probGood into the smoothed probability when it is non-nil.
func (s *Stabilizer) Observe(label string, probGood *float64) Result {
	if len(s.window) >= s.size {
		s.window = s.window[1:]
	}
	s.window = append(s.window, label)

	if probGood != nil {
		s.smoothed = s.alpha*s.smoothed + (1-s.alpha)*(*probGood)
		s.hasProb = true
	}

	return s.Current()
}

// Current returns the state without observing a frame. Frames with no pose
// use this so the window and smoothing are left untouched.
func (s *Stabilizer) Current() Result {
	return Result{
		Voted:          MajorityVote(s.window),
		SmoothedGood:   s.smoothed,
		HasProbability: s.hasProb,
	}
}

// Window returns a copy of the labels in the window, oldest first.
func (s *Stabilizer) Window() []string {
	out := make([]string, len(s.window))
	copy(out, s.window)
	return out
}

// Reset clears the window and reseeds the smoothed probability.
func (s *Stabilizer) Reset() {
	s.window = s.window[:0]
	s.smoothed = InitialSmoothed
	s.hasProb = false
}

// MajorityVote returns the most frequent label. Ties go to the
// lexicographically smallest label. An empty window votes "".
func MajorityVote(labels []string) string {
	if len(labels) == 0 {
		return ""
	}

	counts := make(map[string]int, 2)
	for _, l := range labels {
		counts[l]++
	}

	distinct := make([]string, 0, len(counts))
	for l := range counts {
		distinct = append(distinct, l)
	}
	sort.Strings(distinct)

	best := distinct[0]
	for _, l := range distinct[1:] {
		if counts[l] > counts[best] {
			best = l
		}
	}
	return best
}
