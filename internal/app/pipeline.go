package app

import (
	"context"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/ayusman/ergowatch/internal/display"
	"github.com/ayusman/ergowatch/internal/features"
	"github.com/ayusman/ergowatch/internal/pose"
	"github.com/ayusman/ergowatch/internal/stabilizer"
)

// FrameResult is the outcome of one detection frame.
type FrameResult struct {
	// Present is false when no usable pose was found this frame.
	Present bool
	// Label is this frame's normalized prediction.
	Label string
	// ProbThisFrame is true when the model gave a good probability this frame.
	ProbThisFrame bool
	// Alerted is true when the voted label raised an alert.
	Alerted bool
	stabilizer.Result
}

// ProcessLandmarks classifies one frame's landmarks and updates the
// stabilizer and alarm. Frames without a pose, and frames that fail to
// vectorize or classify, leave the stabilizer untouched and report no pose.
func (d *Detection) ProcessLandmarks(set pose.LandmarkSet) FrameResult {
	d.mu.Lock()
	d.frames++
	d.mu.Unlock()

	if !set.Present() {
		return FrameResult{Result: d.stab.Current()}
	}

	vec, err := features.Vectorize(set)
	if err != nil {
		slog.Debug("skipping malformed landmark set", "error", err)
		return FrameResult{Result: d.stab.Current()}
	}

	label, err := d.config.Model.Predict(vec)
	if err != nil {
		slog.Debug("classification failed", "error", err)
		return FrameResult{Result: d.stab.Current()}
	}

	prob, err := d.config.Model.ProbabilityOf(vec, d.config.GoodLabel)
	if err != nil {
		slog.Debug("probability lookup failed", "error", err)
		prob = nil
	}

	res := d.stab.Observe(label, prob)
	alerted, err := d.alarm.MaybeAlert(res.Voted, res.SmoothedGood, res.HasProbability)
	if err != nil {
		slog.Warn("failed to log bad posture event", "error", err)
	}

	return FrameResult{
		Present:       true,
		Label:         label,
		ProbThisFrame: prob != nil,
		Alerted:       alerted,
		Result:        res,
	}
}

// Run opens the camera and processes frames until ctx is done, the viewer
// asks to quit or a frame read fails.
func (d *Detection) Run(ctx context.Context) error {
	cam := d.config.Camera
	if err := cam.Open(); err != nil {
		return err
	}
	defer cam.Close()

	if err := d.startRun(); err != nil {
		return err
	}
	defer d.finishRun()

	slog.Info("detection started", "run_id", d.RunID())

	for {
		select {
		case <-ctx.Done():
			slog.Info("detection stopped", "frames", d.Frames(), "alerts", d.Alerts())
			return nil
		default:
		}

		frame, err := cam.ReadFrame()
		if err != nil {
			slog.Warn("frame read failed, stopping detection", "error", err)
			return nil
		}

		quit := d.step(frame)
		frame.Close()

		if quit {
			slog.Info("detection stopped", "frames", d.Frames(), "alerts", d.Alerts())
			return nil
		}
	}
}

func (d *Detection) step(frame *gocv.Mat) bool {
	set, err := d.config.Detector.Detect(frame)
	if err != nil {
		slog.Debug("pose estimation failed", "error", err)
		set = nil
	}

	fr := d.ProcessLandmarks(set)
	if d.config.OnFrame != nil {
		d.config.OnFrame(fr)
	}

	fps := d.fps.Tick(d.config.Now())
	if d.config.Viewer == nil {
		return false
	}

	display.Render(frame, set, display.State{
		Present:       fr.Present,
		Voted:         fr.Voted,
		ProbThisFrame: fr.ProbThisFrame,
		SmoothedGood:  fr.SmoothedGood,
		FPS:           fps,
	})
	return d.config.Viewer.Show(frame)
}
