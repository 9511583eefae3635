package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/ergowatch/internal/alarm"
	"github.com/ayusman/ergowatch/internal/capture"
	"github.com/ayusman/ergowatch/internal/display"
	"github.com/ayusman/ergowatch/internal/eventlog"
	"github.com/ayusman/ergowatch/internal/model"
	"github.com/ayusman/ergowatch/internal/pose"
	"github.com/ayusman/ergowatch/internal/session"
	"github.com/ayusman/ergowatch/internal/store"
	"github.com/ayusman/ergowatch/internal/tabular"
)

// tickClock advances by step on every call.
type tickClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newTickClock(step time.Duration) *tickClock {
	return &tickClock{now: time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC), step: step}
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "ergowatch.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// badModel always predicts bad with a good probability of 0.4.
func badModel(t *testing.T) *model.Adapter {
	t.Helper()
	clf := &model.MockProbabilisticClassifier{
		MockClassifier: model.NewMockClassifier([]string{"bad", "good"}, "bad"),
		Probs:          []float64{0.6, 0.4},
	}
	a, err := model.NewAdapter(clf, nil)
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	return a
}

func newDetection(t *testing.T, cfg Config) *Detection {
	t.Helper()
	if cfg.Model == nil {
		cfg.Model = badModel(t)
	}
	if cfg.Player == nil {
		cfg.Player = alarm.NewRecordingPlayer(64)
	}
	if cfg.Now == nil {
		cfg.Now = newTickClock(10 * time.Millisecond).Now
	}
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(d.Wait)
	return d
}

func TestNew_RequiresModel(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, model.ErrModelUnavailable) {
		t.Errorf("New() error = %v, want ErrModelUnavailable", err)
	}
}

func TestProcessLandmarks_SustainedBadPosture(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "bad_posture_log.csv")
	d := newDetection(t, Config{EventLog: logPath})

	prev := 1.0
	for i := 0; i < 8; i++ {
		fr := d.ProcessLandmarks(pose.SlouchedLandmarks())
		if !fr.Present || fr.Voted != "bad" || !fr.Alerted || !fr.ProbThisFrame {
			t.Fatalf("frame %d = %+v", i, fr)
		}
		if fr.SmoothedGood > prev {
			t.Errorf("frame %d smoothed %f rose above %f", i, fr.SmoothedGood, prev)
		}
		prev = fr.SmoothedGood
	}

	events, err := eventlog.Read(logPath)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(events) != 8 {
		t.Fatalf("got %d events, want 8", len(events))
	}
	for i, ev := range events {
		if ev.Label != "bad" || ev.ProbGood == nil {
			t.Errorf("event %d = %+v", i, ev)
		}
		if i > 0 && ev.TimestampMs < events[i-1].TimestampMs {
			t.Errorf("event %d timestamp went backwards", i)
		}
	}
	if d.Alerts() != 8 {
		t.Errorf("Alerts() = %d, want 8", d.Alerts())
	}
}

func TestProcessLandmarks_NoPoseLeavesStateUntouched(t *testing.T) {
	d := newDetection(t, Config{})

	first := d.ProcessLandmarks(pose.SlouchedLandmarks())
	window := d.Stabilizer().Window()

	fr := d.ProcessLandmarks(nil)
	if fr.Present || fr.Alerted {
		t.Errorf("no-pose frame = %+v", fr)
	}
	if fr.SmoothedGood != first.SmoothedGood || fr.Voted != first.Voted {
		t.Errorf("no-pose frame changed state: %+v, was %+v", fr.Result, first.Result)
	}
	if got := d.Stabilizer().Window(); len(got) != len(window) {
		t.Errorf("window = %v, want %v", got, window)
	}
	if d.Frames() != 2 {
		t.Errorf("Frames() = %d, want 2", d.Frames())
	}
}

func TestProcessLandmarks_FailuresDegradeToNoPose(t *testing.T) {
	t.Run("malformed set", func(t *testing.T) {
		d := newDetection(t, Config{})
		fr := d.ProcessLandmarks(make(pose.LandmarkSet, 5))
		if fr.Present || len(d.Stabilizer().Window()) != 0 {
			t.Errorf("malformed frame = %+v", fr)
		}
	})

	t.Run("classifier error", func(t *testing.T) {
		clf := model.NewMockClassifier([]string{"bad", "good"}, "bad")
		clf.SetError(errors.New("boom"))
		a, _ := model.NewAdapter(clf, nil)

		d := newDetection(t, Config{Model: a})
		fr := d.ProcessLandmarks(pose.UprightLandmarks())
		if fr.Present || fr.Alerted {
			t.Errorf("failed frame = %+v", fr)
		}
	})
}

func TestProcessLandmarks_WithoutProbabilities(t *testing.T) {
	a, _ := model.NewAdapter(model.NewMockClassifier([]string{"bad", "good"}, " BAD "), nil)
	logPath := filepath.Join(t.TempDir(), "log.csv")
	d := newDetection(t, Config{Model: a, EventLog: logPath})

	fr := d.ProcessLandmarks(pose.SlouchedLandmarks())
	if fr.Label != "bad" || fr.ProbThisFrame || fr.HasProbability {
		t.Errorf("frame = %+v", fr)
	}
	if fr.SmoothedGood != 0.5 {
		t.Errorf("SmoothedGood = %f, want seed 0.5", fr.SmoothedGood)
	}

	events, _ := eventlog.Read(logPath)
	if len(events) != 1 || events[0].ProbGood != nil {
		t.Errorf("events = %+v, want one event with null probability", events)
	}
}

func TestProcessLandmarks_VoteDrivesAlerts(t *testing.T) {
	clf := model.NewMockClassifier([]string{"bad", "good"}, "good", "good", "good", "bad", "bad", "bad", "bad")
	a, _ := model.NewAdapter(clf, nil)
	d := newDetection(t, Config{Model: a})

	var alerted []bool
	for i := 0; i < 7; i++ {
		alerted = append(alerted, d.ProcessLandmarks(pose.UprightLandmarks()).Alerted)
	}

	// 3 good then 4 bad: a 3-3 tie goes to the lexicographically smaller label.
	want := []bool{false, false, false, false, false, true, true}
	for i := range want {
		if alerted[i] != want[i] {
			t.Errorf("frame %d alerted = %v, want %v", i, alerted[i], want[i])
		}
	}
}

func TestDetection_Run(t *testing.T) {
	frames := capture.NewBlankFrames(3, 64, 48)
	defer capture.CloseFrames(frames)

	det := pose.NewMockDetector()
	det.SetSequence([]pose.LandmarkSet{pose.SlouchedLandmarks(), nil, pose.SlouchedLandmarks()})

	s := newStore(t)
	viewer := &display.Headless{}
	var seen []FrameResult

	d := newDetection(t, Config{
		Camera:    capture.NewMockCamera(frames, false),
		Detector:  det,
		Viewer:    viewer,
		Store:     s,
		ModelPath: "models/posture_model.json",
		EventLog:  filepath.Join(t.TempDir(), "log.xlsx"),
		OnFrame:   func(fr FrameResult) { seen = append(seen, fr) },
	})

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(seen) != 3 || viewer.Shown() != 3 {
		t.Fatalf("processed %d frames, shown %d, want 3", len(seen), viewer.Shown())
	}

	run, err := s.Runs().GetByID(d.RunID())
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if run.Frames != 3 || run.Alerts != 2 || run.EndedAt == nil {
		t.Errorf("run = %+v, want 3 frames and 2 alerts", run)
	}

	n, _ := s.Events().Count(d.RunID())
	if n != 2 {
		t.Errorf("stored events = %d, want 2", n)
	}
}

func TestDetection_Run_Stops(t *testing.T) {
	frames := capture.NewBlankFrames(1, 64, 48)
	defer capture.CloseFrames(frames)

	t.Run("viewer quit", func(t *testing.T) {
		viewer := &display.Headless{}
		viewer.Stop()
		d := newDetection(t, Config{
			Camera:   capture.NewMockCamera(frames, true),
			Detector: pose.NewMockDetector(),
			Viewer:   viewer,
		})

		if err := d.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if d.Frames() != 1 {
			t.Errorf("Frames() = %d, want 1", d.Frames())
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		cam := capture.NewMockCamera(frames, true)
		d := newDetection(t, Config{Camera: cam, Detector: pose.NewMockDetector()})

		if err := d.Run(ctx); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if cam.Reads() != 0 {
			t.Errorf("Reads() = %d, want 0", cam.Reads())
		}
	})
}

func newCapture(t *testing.T, cam capture.Camera, det pose.Detector, s *store.Store) (*Capture, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "sessions")
	clock := newTickClock(0)
	return NewCapture(CaptureConfig{
		Camera:   cam,
		Detector: det,
		Recorder: session.NewRecorder(session.Config{Dir: dir, Now: clock.Now}),
		Viewer:   &display.Headless{},
		Store:    s,
		Now:      clock.Now,
	}), dir
}

func TestCapture_Run(t *testing.T) {
	frames := capture.NewBlankFrames(5, 64, 48)
	defer capture.CloseFrames(frames)

	det := pose.NewMockDetector()
	det.SetSequence([]pose.LandmarkSet{
		pose.UprightLandmarks(), pose.UprightLandmarks(), nil, pose.UprightLandmarks(), pose.UprightLandmarks(),
	})

	c, dir := newCapture(t, capture.NewMockCamera(frames, false), det, nil)

	res, err := c.Run(context.Background(), "good")
	if !errors.Is(err, ErrCaptureInterrupted) {
		t.Fatalf("Run() error = %v, want ErrCaptureInterrupted", err)
	}
	if res == nil {
		t.Fatal("Run() returned no result")
	}
	if res.Rows != 4 || res.Frames != 5 {
		t.Errorf("result = %+v, want 4 rows from 5 frames", res)
	}
	if filepath.Dir(res.Path) != dir || !strings.HasPrefix(filepath.Base(res.Path), "good_pose_") {
		t.Errorf("Path = %q", res.Path)
	}

	_, rows, err := tabular.ReadCSV(res.Path)
	if err != nil || len(rows) != 4 {
		t.Errorf("session file has %d rows (err %v), want 4", len(rows), err)
	}
}

func TestCapture_Run_TimeLimit(t *testing.T) {
	frames := capture.NewBlankFrames(1, 64, 48)
	defer capture.CloseFrames(frames)

	det := pose.NewMockDetector()
	det.SetLandmarks(pose.SlouchedLandmarks())

	clock := newTickClock(time.Second)
	c := NewCapture(CaptureConfig{
		Camera:   capture.NewMockCamera(frames, true),
		Detector: det,
		Recorder: session.NewRecorder(session.Config{Dir: t.TempDir()}),
		Seconds:  2,
		Now:      clock.Now,
	})

	res, err := c.Run(context.Background(), "bad")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Frames != 2 || res.Rows != 2 {
		t.Errorf("result = %+v, want 2 frames and 2 rows", res)
	}
}

// diskViewer records, on every Show, how many session rows are on disk in dir.
type diskViewer struct {
	dir    string
	onShow func()
	rows   []int
}

func (v *diskViewer) Show(img *gocv.Mat) bool {
	if v.onShow != nil {
		v.onShow()
	}
	n := 0
	files, _ := filepath.Glob(filepath.Join(v.dir, "*.csv"))
	for _, f := range files {
		if _, rows, err := tabular.ReadCSV(f); err == nil {
			n += len(rows)
		}
	}
	v.rows = append(v.rows, n)
	return false
}

func (v *diskViewer) Close() error { return nil }

func TestCapture_Run_FlushesWhileOutOfFrame(t *testing.T) {
	frames := capture.NewBlankFrames(4, 64, 48)
	defer capture.CloseFrames(frames)

	det := pose.NewMockDetector()
	det.SetSequence([]pose.LandmarkSet{pose.UprightLandmarks(), nil, nil, nil})

	dir := filepath.Join(t.TempDir(), "sessions")
	viewer := &diskViewer{dir: dir}
	c := NewCapture(CaptureConfig{
		Camera:   capture.NewMockCamera(frames, false),
		Detector: det,
		// One second passes on every recorder clock read.
		Recorder: session.NewRecorder(session.Config{Dir: dir, Now: newTickClock(time.Second).Now}),
		Viewer:   viewer,
		Now:      newTickClock(0).Now,
	})

	res, err := c.Run(context.Background(), "good")
	if !errors.Is(err, ErrCaptureInterrupted) {
		t.Fatalf("Run() error = %v, want ErrCaptureInterrupted", err)
	}
	if res.Rows != 1 {
		t.Fatalf("Rows = %d, want 1", res.Rows)
	}
	if len(viewer.rows) != 4 {
		t.Fatalf("viewer saw %d frames, want 4", len(viewer.rows))
	}
	if viewer.rows[0] != 0 {
		t.Errorf("row on disk after 1s = %d, want 0", viewer.rows[0])
	}
	if last := viewer.rows[len(viewer.rows)-1]; last != 1 {
		t.Errorf("rows on disk before Stop = %d, want 1", last)
	}
}

func TestCapture_Run_FlushFailureKeepsResult(t *testing.T) {
	frames := capture.NewBlankFrames(2, 64, 48)
	defer capture.CloseFrames(frames)

	det := pose.NewMockDetector()
	det.SetLandmarks(pose.UprightLandmarks())

	dir := filepath.Join(t.TempDir(), "sessions")
	clock := newTickClock(0)
	// A directory at the session path makes the final flush fail.
	blocked := filepath.Join(dir, "good_pose_20240305_1407.csv")
	viewer := &diskViewer{dir: dir, onShow: func() { os.MkdirAll(blocked, 0755) }}

	c := NewCapture(CaptureConfig{
		Camera:   capture.NewMockCamera(frames, false),
		Detector: det,
		Recorder: session.NewRecorder(session.Config{Dir: dir, Now: clock.Now}),
		Viewer:   viewer,
		Now:      clock.Now,
	})

	res, err := c.Run(context.Background(), "good")
	if err == nil {
		t.Fatal("Run() should report the failed flush")
	}
	if !errors.Is(err, ErrCaptureInterrupted) {
		t.Errorf("Run() error = %v, want it to keep ErrCaptureInterrupted", err)
	}
	if res == nil {
		t.Fatal("Run() should return the partial result")
	}
	if res.Path != blocked || res.Rows != 0 || res.Frames != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestMergeSession_PathSpellings(t *testing.T) {
	s := newStore(t)
	dir := t.TempDir()

	rec := session.NewRecorder(session.Config{Dir: filepath.Join(dir, "sessions")})
	sess, _ := rec.Start("good")
	sess.Record(make([]float64, 132))
	path, _ := sess.Stop()

	ds := Datasets{Unlabeled: filepath.Join(dir, "u.csv"), Labeled: filepath.Join(dir, "l.csv")}
	if n, err := MergeSession(s, path, "good", ds); err != nil || n != 1 {
		t.Fatalf("MergeSession() = (%d, %v), want (1, nil)", n, err)
	}

	spellings := []string{
		filepath.Join(dir, "sessions", "..", "sessions", filepath.Base(path)),
		filepath.Dir(path) + string(filepath.Separator) + "." + string(filepath.Separator) + filepath.Base(path),
	}
	if wd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(wd, path); err == nil {
			spellings = append(spellings, rel)
		}
	}

	for _, p := range spellings {
		t.Run(p, func(t *testing.T) {
			if _, err := MergeSession(s, p, "good", ds); !errors.Is(err, store.ErrAlreadyMerged) {
				t.Errorf("MergeSession(%q) error = %v, want ErrAlreadyMerged", p, err)
			}
		})
	}

	_, rows, _ := tabular.ReadCSV(ds.Labeled)
	if len(rows) != 1 {
		t.Errorf("labeled dataset has %d rows, want 1", len(rows))
	}
}

func TestCaptureAndMerge(t *testing.T) {
	frames := capture.NewBlankFrames(3, 64, 48)
	defer capture.CloseFrames(frames)

	det := pose.NewMockDetector()
	det.SetLandmarks(pose.UprightLandmarks())

	s := newStore(t)
	c, _ := newCapture(t, capture.NewMockCamera(frames, false), det, s)

	dataDir := t.TempDir()
	ds := Datasets{
		Unlabeled: filepath.Join(dataDir, "pose_data.csv"),
		Labeled:   filepath.Join(dataDir, "pose_data_labeled.csv"),
	}

	status, err := CaptureAndMerge(context.Background(), c, "good", ds)
	if err != nil {
		t.Fatalf("CaptureAndMerge() error = %v", err)
	}
	if status != "captured 3 rows for 'good' and appended to datasets" {
		t.Errorf("status = %q", status)
	}

	header, rows, _ := tabular.ReadCSV(ds.Labeled)
	if len(rows) != 3 || header[len(header)-1] != "label" || rows[0][len(header)-1] != "good" {
		t.Errorf("labeled dataset = %v rows with header ending %q", len(rows), header[len(header)-1])
	}

	sessions, _ := s.Sessions().List()
	if len(sessions) != 1 || sessions[0].MergedAt == nil || sessions[0].MergedRows != 3 {
		t.Fatalf("sessions = %+v", sessions)
	}

	if _, err := MergeSession(s, sessions[0].Path, "good", ds); !errors.Is(err, store.ErrAlreadyMerged) {
		t.Errorf("second MergeSession() error = %v, want ErrAlreadyMerged", err)
	}
	_, rows, _ = tabular.ReadCSV(ds.Unlabeled)
	if len(rows) != 3 {
		t.Errorf("unlabeled dataset has %d rows after refused merge, want 3", len(rows))
	}
}

func TestCaptureAndMerge_NothingRecorded(t *testing.T) {
	frames := capture.NewBlankFrames(2, 64, 48)
	defer capture.CloseFrames(frames)

	c, _ := newCapture(t, capture.NewMockCamera(frames, false), pose.NewMockDetector(), nil)
	dataDir := t.TempDir()
	ds := Datasets{
		Unlabeled: filepath.Join(dataDir, "pose_data.csv"),
		Labeled:   filepath.Join(dataDir, "pose_data_labeled.csv"),
	}

	status, err := CaptureAndMerge(context.Background(), c, "bad", ds)
	if err != nil {
		t.Fatalf("CaptureAndMerge() error = %v", err)
	}
	if status != "capture canceled or no frames recorded" {
		t.Errorf("status = %q", status)
	}
	if !tabular.IsMissingOrEmpty(ds.Unlabeled) {
		t.Error("datasets should be untouched")
	}
}

func TestMergeSession_WithoutCaptureRecord(t *testing.T) {
	s := newStore(t)
	dir := t.TempDir()

	rec := session.NewRecorder(session.Config{Dir: dir})
	sess, _ := rec.Start("bad")
	vec := make([]float64, 132)
	sess.Record(vec)
	path, _ := sess.Stop()

	ds := Datasets{Unlabeled: filepath.Join(dir, "u.csv"), Labeled: filepath.Join(dir, "l.csv")}
	n, err := MergeSession(s, path, "bad", ds)
	if err != nil || n != 1 {
		t.Fatalf("MergeSession() = (%d, %v), want (1, nil)", n, err)
	}

	got, err := s.Sessions().GetByPath(path)
	if err != nil || got.MergedAt == nil {
		t.Errorf("session record = %+v, %v", got, err)
	}
}
