// Package app runs the live posture detection and dataset capture loops.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/ergowatch/internal/alarm"
	"github.com/ayusman/ergowatch/internal/capture"
	"github.com/ayusman/ergowatch/internal/display"
	"github.com/ayusman/ergowatch/internal/eventlog"
	"github.com/ayusman/ergowatch/internal/model"
	"github.com/ayusman/ergowatch/internal/pose"
	"github.com/ayusman/ergowatch/internal/stabilizer"
	"github.com/ayusman/ergowatch/internal/store"
)

// ErrCaptureInterrupted is returned when frame acquisition fails during a
// capture session. Buffered rows are flushed before it is returned.
var ErrCaptureInterrupted = errors.New("capture interrupted")

// Config holds the collaborators of a detection run.
type Config struct {
	Camera   capture.Camera
	Detector pose.Detector
	Model    *model.Adapter
	// Player plays the alert sound. Nil rings the terminal bell only.
	Player alarm.Player
	// Viewer shows annotated frames. Nil runs without display.
	Viewer display.Viewer
	// Store records the run and its events when set.
	Store *store.Store

	// EventLog is the bad-posture log file. Empty disables file logging.
	EventLog  string
	ModelPath string
	Window    int
	Alpha     float64
	// GoodLabel is the class whose probability is smoothed (default: good).
	GoodLabel string
	Muted     bool

	// OnFrame is called after every processed frame.
	OnFrame func(FrameResult)
	// Now returns the wall-clock time. Defaults to time.Now.
	Now func() time.Time
}

// Detection classifies frames, stabilizes the verdict and raises alerts.
type Detection struct {
	config Config
	stab   *stabilizer.Stabilizer
	alarm  *alarm.Dispatcher
	fps    display.FPSMeter

	mu     sync.RWMutex
	runID  string
	frames int
}

// New creates a Detection. A nil model is ErrModelUnavailable.
func New(config Config) (*Detection, error) {
	if config.Model == nil {
		return nil, model.ErrModelUnavailable
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.GoodLabel == "" {
		config.GoodLabel = "good"
	}

	d := &Detection{
		config: config,
		stab:   stabilizer.New(config.Window, config.Alpha),
	}

	var sinks []eventlog.Sink
	if config.EventLog != "" {
		sinks = append(sinks, eventlog.FileSink{Path: config.EventLog})
	}
	if config.Store != nil {
		sinks = append(sinks, eventlog.SinkFunc(d.logToStore))
	}

	d.alarm = alarm.NewDispatcher(config.Player, eventlog.Multi(sinks...), config.Now)
	d.alarm.SetMuted(config.Muted)

	if !config.Model.HasProbabilities() {
		slog.Info("model has no probabilities, smoothed good probability disabled")
	}

	return d, nil
}

// SetMuted silences or restores the alert sound.
func (d *Detection) SetMuted(muted bool) {
	d.alarm.SetMuted(muted)
}

// Muted reports whether the alert sound is silenced.
func (d *Detection) Muted() bool {
	return d.alarm.Muted()
}

// Alerts returns the number of alerts raised so far.
func (d *Detection) Alerts() int64 {
	return d.alarm.Alerts()
}

// Frames returns the number of frames processed so far.
func (d *Detection) Frames() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frames
}

// RunID returns the store run ID of the current run, if any.
func (d *Detection) RunID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.runID
}

// Stabilizer returns the vote window and smoothed probability state.
func (d *Detection) Stabilizer() *stabilizer.Stabilizer {
	return d.stab
}

// Wait blocks until in-flight alert playback finishes.
func (d *Detection) Wait() {
	d.alarm.Wait()
}

func (d *Detection) logToStore(ev eventlog.Event) error {
	runID := d.RunID()
	if runID == "" {
		return nil
	}
	return d.config.Store.Events().Insert(runID, ev)
}

func (d *Detection) startRun() error {
	if d.config.Store == nil {
		return nil
	}

	run := &store.Run{Mode: store.RunModeDetect, ModelPath: d.config.ModelPath}
	if err := d.config.Store.Runs().Create(run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	d.mu.Lock()
	d.runID = run.ID
	d.frames = 0
	d.mu.Unlock()
	return nil
}

func (d *Detection) finishRun() {
	runID := d.RunID()
	if runID == "" {
		return
	}
	if err := d.config.Store.Runs().Finish(runID, d.Frames(), int(d.alarm.Alerts())); err != nil {
		slog.Warn("failed to finish run", "run_id", runID, "error", err)
	}
}
