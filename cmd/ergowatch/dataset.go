package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ayusman/ergowatch/internal/app"
	"github.com/ayusman/ergowatch/internal/capture"
	"github.com/ayusman/ergowatch/internal/dataset"
	"github.com/ayusman/ergowatch/internal/display"
	"github.com/ayusman/ergowatch/internal/model"
	"github.com/ayusman/ergowatch/internal/session"
)

func runCapture(ctx context.Context, args []string) error {
	fs, c := newFlagSet("capture")
	label := fs.String("label", "", "Session label, e.g. good or bad")
	seconds := fs.Int("seconds", -1, "Stop after this many seconds (overrides config, 0 runs until q)")
	noMerge := fs.Bool("no-merge", false, "Record the session without merging it")
	noDisplay := fs.Bool("no-display", false, "Run without the camera window")
	fs.Parse(args)

	if strings.TrimSpace(*label) == "" {
		return fmt.Errorf("%w: capture requires -label", errUsage)
	}

	cfg, err := c.setup()
	if err != nil {
		return err
	}
	if *seconds >= 0 {
		cfg.Capture.Seconds = *seconds
	}
	paths := cfg.Paths()
	if err := paths.Ensure(); err != nil {
		return err
	}

	st, err := openStore(cfg, paths)
	if err != nil {
		return err
	}
	defer closeStore(st)

	detector, err := newDetector(cfg, capturePoseConfig(cfg))
	if err != nil {
		return err
	}
	defer detector.Close()

	var viewer display.Viewer
	if cfg.Capture.Display && !*noDisplay {
		w := display.NewWindow("Capture - " + *label)
		defer w.Close()
		viewer = w
	}

	capt := app.NewCapture(app.CaptureConfig{
		Camera:   capture.NewCamera(cameraConfig(cfg)),
		Detector: detector,
		Recorder: session.NewRecorder(session.Config{
			Dir:           paths.Sessions,
			FlushRows:     cfg.Capture.FlushRows,
			FlushInterval: cfg.Capture.FlushInterval(),
		}),
		Viewer:    viewer,
		Store:     st,
		Seconds:   cfg.Capture.Seconds,
		DrawEvery: cfg.Capture.DrawEvery,
	})

	if *noMerge {
		res, err := capt.Run(ctx, *label)
		if res != nil {
			fmt.Printf("recorded %d rows to %s\n", res.Rows, res.Path)
		}
		return err
	}

	status, err := app.CaptureAndMerge(ctx, capt, *label, app.Datasets{
		Unlabeled: paths.Unlabeled,
		Labeled:   paths.Labeled,
	})
	fmt.Println("Status:", status)
	return err
}

func runMerge(args []string) error {
	fs, c := newFlagSet("merge")
	sessionPath := fs.String("session", "", "Session CSV to merge")
	label := fs.String("label", "", "Label for the labeled dataset (default: from the file name)")
	fs.Parse(args)

	if *sessionPath == "" {
		return fmt.Errorf("%w: merge requires -session", errUsage)
	}
	if *label == "" {
		*label = labelFromSessionName(*sessionPath)
	}
	if *label == "" {
		return fmt.Errorf("%w: cannot infer label from %s, pass -label", errUsage, *sessionPath)
	}

	cfg, err := c.setup()
	if err != nil {
		return err
	}
	paths := cfg.Paths()

	st, err := openStore(cfg, paths)
	if err != nil {
		return err
	}
	defer closeStore(st)

	n, err := app.MergeSession(st, *sessionPath, *label, app.Datasets{
		Unlabeled: paths.Unlabeled,
		Labeled:   paths.Labeled,
	})
	if err != nil {
		return err
	}
	fmt.Printf("merged %d rows for '%s'\n", n, *label)
	return nil
}

// labelFromSessionName returns the label prefix of a <label>_pose_<time>.csv
// session file name.
func labelFromSessionName(path string) string {
	base := filepath.Base(path)
	i := strings.Index(base, "_pose_")
	if i <= 0 {
		return ""
	}
	return base[:i]
}

func runLabel(args []string) error {
	fs, c := newFlagSet("label")
	rangesPath := fs.String("ranges", "", "YAML file of good and bad ranges per session")
	out := fs.String("out", "", "Output dataset (default: the labeled dataset)")
	fs.Parse(args)

	if *rangesPath == "" {
		return fmt.Errorf("%w: label requires -ranges", errUsage)
	}

	cfg, err := c.setup()
	if err != nil {
		return err
	}
	paths := cfg.Paths()
	if *out == "" {
		*out = paths.Labeled
	}

	ranges, err := dataset.LoadRanges(*rangesPath)
	if err != nil {
		return err
	}

	n, err := dataset.LabelByRanges(paths.Unlabeled, *out, ranges)
	if err != nil {
		return err
	}
	fmt.Printf("labeled %d rows into %s\n", n, *out)
	return nil
}

func runTrain(args []string) error {
	fs, c := newFlagSet("train")
	kind := fs.String("kind", string(model.KindLogistic), "Classifier kind: logistic or centroid")
	data := fs.String("data", "", "Labeled dataset (default: from config)")
	out := fs.String("out", "", "Model artifact (default: from config)")
	testSize := fs.Float64("test-size", 0.2, "Held-out fraction per class")
	seed := fs.Int64("seed", 42, "Split seed")
	fs.Parse(args)

	cfg, err := c.setup()
	if err != nil {
		return err
	}
	paths := cfg.Paths()
	if *data == "" {
		*data = paths.Labeled
	}
	if *out == "" {
		*out = paths.Model
	}

	labeled, err := dataset.LoadLabeled(*data)
	if err != nil {
		return err
	}

	tc := model.DefaultTrainConfig()
	tc.Kind = model.Kind(*kind)
	tc.TestSize = *testSize
	tc.Seed = *seed

	artifact, report, err := model.Train(labeled, tc)
	if err != nil {
		return err
	}
	if err := artifact.Save(*out); err != nil {
		return err
	}

	fmt.Print(report.String())
	fmt.Printf("Saved model to %s\n", *out)
	return nil
}
