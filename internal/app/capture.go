package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ayusman/ergowatch/internal/capture"
	"github.com/ayusman/ergowatch/internal/dataset"
	"github.com/ayusman/ergowatch/internal/display"
	"github.com/ayusman/ergowatch/internal/features"
	"github.com/ayusman/ergowatch/internal/pose"
	"github.com/ayusman/ergowatch/internal/session"
	"github.com/ayusman/ergowatch/internal/store"
)

// DefaultDrawEvery is how often landmarks are drawn during capture.
const DefaultDrawEvery = 3

// CaptureConfig holds the collaborators of a capture session.
type CaptureConfig struct {
	Camera   capture.Camera
	Detector pose.Detector
	Recorder *session.Recorder
	Viewer   display.Viewer
	Store    *store.Store

	// Seconds bounds the session length. Zero runs until stopped.
	Seconds int
	// DrawEvery draws landmarks on every Nth frame (default: 3).
	DrawEvery int
	// Now returns the wall-clock time. Defaults to time.Now.
	Now func() time.Time
}

// Capture records labeled landmark sessions from the camera.
type Capture struct {
	config CaptureConfig
}

// CaptureResult describes a finished capture session.
type CaptureResult struct {
	Path      string
	SessionID int64
	Label     string
	Rows      int
	Frames    int
}

// NewCapture creates a Capture.
func NewCapture(config CaptureConfig) *Capture {
	if config.DrawEvery <= 0 {
		config.DrawEvery = DefaultDrawEvery
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Capture{config: config}
}

// Run records a session for label until ctx is done, the viewer asks to
// quit or the time limit passes. A failed frame read ends the session with
// ErrCaptureInterrupted. Buffered rows are flushed on the way out; a failed
// final flush is joined to the loop error and the result still reports the
// rows already on disk.
func (c *Capture) Run(ctx context.Context, label string) (*CaptureResult, error) {
	cam := c.config.Camera
	if err := cam.Open(); err != nil {
		return nil, err
	}
	defer cam.Close()

	sess, err := c.config.Recorder.Start(label)
	if err != nil {
		return nil, err
	}

	runID := c.startRun(label)

	frames, loopErr := c.loop(ctx, sess)

	path, stopErr := sess.Stop()
	if stopErr != nil {
		stopErr = fmt.Errorf("flush session: %w", stopErr)
	}

	res := &CaptureResult{
		Path:      path,
		SessionID: sess.ID,
		Label:     label,
		Rows:      sess.Flushed(),
		Frames:    frames,
	}
	c.finishRun(runID, res)

	return res, errors.Join(loopErr, stopErr)
}

func (c *Capture) loop(ctx context.Context, sess *session.Session) (int, error) {
	start := c.config.Now()
	limit := time.Duration(c.config.Seconds) * time.Second
	lines := func() []string { return display.CaptureLines(sess.Label, sess.Recorded()) }

	frames := 0
	for {
		select {
		case <-ctx.Done():
			return frames, nil
		default:
		}

		frame, err := c.config.Camera.ReadFrame()
		if err != nil {
			slog.Warn("frame grab failed, stopping capture", "error", err)
			return frames, fmt.Errorf("%w: %v", ErrCaptureInterrupted, err)
		}

		set, err := c.config.Detector.Detect(frame)
		if err != nil {
			slog.Debug("pose estimation failed", "error", err)
			set = nil
		}

		if set.Present() {
			vec, err := features.Vectorize(set)
			if err != nil {
				slog.Debug("skipping malformed landmark set", "error", err)
			} else if err := sess.Record(vec); err != nil {
				frame.Close()
				return frames, err
			}
		}
		if err := sess.FlushIfDue(); err != nil {
			frame.Close()
			return frames, err
		}

		quit := false
		if c.config.Viewer != nil {
			if frames%c.config.DrawEvery == 0 {
				display.DrawLandmarks(frame, set)
			}
			display.DrawPanel(frame, lines(), image.Pt(10, 10))
			quit = c.config.Viewer.Show(frame)
		}
		frame.Close()
		frames++

		if quit {
			return frames, nil
		}
		if limit > 0 && c.config.Now().Sub(start) >= limit {
			return frames, nil
		}
	}
}

func (c *Capture) startRun(label string) string {
	if c.config.Store == nil {
		return ""
	}
	run := &store.Run{Mode: store.RunModeCapture, Label: label}
	if err := c.config.Store.Runs().Create(run); err != nil {
		slog.Warn("failed to record capture run", "error", err)
		return ""
	}
	return run.ID
}

func (c *Capture) finishRun(runID string, res *CaptureResult) {
	if c.config.Store == nil || runID == "" {
		return
	}
	if err := c.config.Store.Runs().Finish(runID, res.Frames, 0); err != nil {
		slog.Warn("failed to finish capture run", "run_id", runID, "error", err)
	}
	if res.Rows == 0 {
		return
	}
	err := c.config.Store.Sessions().Create(&store.Session{
		Path:      sessionKey(res.Path),
		SessionID: res.SessionID,
		RunID:     runID,
		Label:     res.Label,
		Rows:      res.Rows,
	})
	if err != nil {
		slog.Warn("failed to record capture session", "path", res.Path, "error", err)
	}
}

// Datasets names the cumulative dataset files a session is merged into.
type Datasets struct {
	Unlabeled string
	Labeled   string
}

// MergeSession appends a session file to both datasets. With a store, a
// session already merged is refused with store.ErrAlreadyMerged and the
// merge is recorded.
func MergeSession(s *store.Store, path, label string, ds Datasets) (int, error) {
	key := sessionKey(path)
	if s != nil {
		sess, err := s.Sessions().GetByPath(key)
		switch {
		case err == nil && sess.MergedAt != nil:
			return 0, fmt.Errorf("%s: %w", path, store.ErrAlreadyMerged)
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return 0, err
		}
	}

	n, err := dataset.Merge(path, label, ds.Unlabeled, ds.Labeled)
	if err != nil || n == 0 || s == nil {
		return n, err
	}

	if _, err := s.Sessions().GetByPath(key); errors.Is(err, store.ErrNotFound) {
		if err := s.Sessions().Create(&store.Session{Path: key, Label: label, Rows: n}); err != nil {
			slog.Warn("failed to record merged session", "path", path, "error", err)
			return n, nil
		}
	}
	if err := s.Sessions().MarkMerged(key, n); err != nil {
		slog.Warn("failed to mark session merged", "path", path, "error", err)
	}
	return n, nil
}

// sessionKey is the absolute, cleaned form of a session path under which
// the store tracks it.
func sessionKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// CaptureAndMerge records a session and merges it into the datasets when
// it captured any rows. It returns a status line for the user.
func CaptureAndMerge(ctx context.Context, c *Capture, label string, ds Datasets) (string, error) {
	res, err := c.Run(ctx, label)
	if err != nil && !errors.Is(err, ErrCaptureInterrupted) {
		return "error during capture", err
	}
	if err != nil {
		slog.Warn("capture ended early", "error", err)
	}

	if res == nil || res.Rows == 0 {
		return "capture canceled or no frames recorded", nil
	}

	n, err := MergeSession(c.config.Store, res.Path, label, ds)
	if err != nil {
		return "error during merge", err
	}
	return fmt.Sprintf("captured %d rows for '%s' and appended to datasets", n, label), nil
}
