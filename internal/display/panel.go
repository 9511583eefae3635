// Package display renders the posture verdict over camera frames.
package display

import (
	"fmt"
	"image/color"
	"time"
)

// Verdict colours.
var (
	ColorGood    = color.RGBA{R: 0, G: 200, B: 0, A: 0}
	ColorBad     = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	ColorNeutral = color.RGBA{R: 0, G: 180, B: 180, A: 0}
	ColorText    = color.RGBA{R: 235, G: 235, B: 235, A: 0}
	ColorPanel   = color.RGBA{R: 20, G: 20, B: 20, A: 0}
)

// NoPose is shown for frames without a detected person.
const NoPose = "No pose"

// State is what one detection frame shows.
type State struct {
	// Present is false when no pose was detected this frame.
	Present bool
	Voted   string
	// ProbThisFrame is true when the classifier gave a probability this frame.
	ProbThisFrame bool
	SmoothedGood  float64
	FPS           float64
}

// Verdict returns the headline text and colour for a frame.
func Verdict(present bool, voted string) (string, color.RGBA) {
	if !present {
		return NoPose, ColorNeutral
	}
	switch voted {
	case "good":
		return "Good posture", ColorGood
	case "bad":
		return "Bad posture", ColorBad
	default:
		return voted, ColorNeutral
	}
}

// Lines returns the panel lines for a detection frame.
func (s State) Lines() []string {
	headline, _ := Verdict(s.Present, s.Voted)
	lines := []string{headline}
	if s.ProbThisFrame {
		lines = append(lines, fmt.Sprintf("Good prob (smoothed): %.2f", s.SmoothedGood))
	}
	return append(lines, fmt.Sprintf("FPS: %.1f", s.FPS), "Press q to quit")
}

// CaptureLines returns the panel lines for a capture frame.
func CaptureLines(label string, rows int) []string {
	return []string{
		fmt.Sprintf("Recording %s - press 'q' to stop", label),
		fmt.Sprintf("Rows: %d", rows),
	}
}

// FPSWindow is the number of frame intervals averaged by FPSMeter.
const FPSWindow = 30

// FPSMeter averages the frame rate over the most recent intervals.
type FPSMeter struct {
	intervals []time.Duration
	last      time.Time
}

// Tick records a frame at now and returns the current rate.
func (m *FPSMeter) Tick(now time.Time) float64 {
	if !m.last.IsZero() {
		if len(m.intervals) >= FPSWindow {
			m.intervals = m.intervals[1:]
		}
		m.intervals = append(m.intervals, now.Sub(m.last))
	}
	m.last = now
	return m.Rate()
}

// Rate returns frames per second over the recorded intervals.
func (m *FPSMeter) Rate() float64 {
	if len(m.intervals) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range m.intervals {
		total += d
	}
	if total <= 0 {
		return 0
	}
	return float64(len(m.intervals)) / total.Seconds()
}
