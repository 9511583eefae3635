package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ayusman/ergowatch/internal/alarm"
	"github.com/ayusman/ergowatch/internal/app"
	"github.com/ayusman/ergowatch/internal/capture"
	"github.com/ayusman/ergowatch/internal/config"
	"github.com/ayusman/ergowatch/internal/display"
	"github.com/ayusman/ergowatch/internal/model"
	"github.com/ayusman/ergowatch/internal/pose"
	"github.com/ayusman/ergowatch/internal/store"
	"github.com/ayusman/ergowatch/internal/tray"
)

func runDetect(ctx context.Context, args []string) error {
	fs, c := newFlagSet("detect")
	noDisplay := fs.Bool("no-display", false, "Run without the camera window")
	withTray := fs.Bool("tray", false, "Show the menu bar indicator")
	muted := fs.Bool("mute", false, "Start with the alarm sound muted")
	modelPath := fs.String("model", "", "Model artifact (overrides config)")
	fs.Parse(args)

	cfg, err := c.setup()
	if err != nil {
		return err
	}
	if *modelPath != "" {
		cfg.Detection.ModelPath = *modelPath
	}
	paths := cfg.Paths()
	if err := paths.Ensure(); err != nil {
		return err
	}

	// The model is loaded before any frame is read.
	adapter, err := model.Load(paths.Model)
	if err != nil {
		return err
	}

	st, err := openStore(cfg, paths)
	if err != nil {
		return err
	}
	defer closeStore(st)

	startMuted := cfg.Alarm.Muted || *muted
	if st != nil && !*muted {
		startMuted = st.Settings().GetBool(store.SettingAlarmMuted, startMuted)
	}

	detector, err := newDetector(cfg, detectionPoseConfig(cfg))
	if err != nil {
		return err
	}
	defer detector.Close()

	var viewer display.Viewer
	if cfg.Detection.Display && !*noDisplay {
		w := display.NewWindow("Live Detection with Alarm")
		defer w.Close()
		viewer = w
	}

	var indicator *tray.Tray
	if cfg.Detection.Tray || *withTray {
		indicator = tray.New(startMuted)
	}

	var detection *app.Detection
	var onFrame func(app.FrameResult)
	if indicator != nil {
		onFrame = func(fr app.FrameResult) {
			if fr.Present {
				indicator.SetVerdict(fr.Voted)
			} else {
				indicator.SetVerdict("")
			}
			indicator.SetAlerts(detection.Alerts())
		}
	}

	detection, err = app.New(app.Config{
		Camera:    capture.NewCamera(cameraConfig(cfg)),
		Detector:  detector,
		Model:     adapter,
		Player:    newPlayer(cfg, paths),
		Viewer:    viewer,
		Store:     st,
		EventLog:  paths.EventLog,
		ModelPath: paths.Model,
		Window:    cfg.Detection.Window,
		Alpha:     cfg.Detection.Alpha,
		GoodLabel: cfg.Detection.GoodLabel,
		Muted:     startMuted,
		OnFrame:   onFrame,
	})
	if err != nil {
		return err
	}
	defer detection.Wait()

	if indicator == nil {
		return detection.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	indicator.OnQuit(cancel)
	indicator.OnMute(func(m bool) {
		detection.SetMuted(m)
		if st != nil {
			if err := st.Settings().SetBool(store.SettingAlarmMuted, m); err != nil {
				slog.Warn("failed to save mute setting", "error", err)
			}
		}
		slog.Info("alarm mute changed", "muted", m)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- detection.Run(ctx)
		indicator.Quit()
	}()

	// The indicator owns the main thread until it quits.
	indicator.Run()
	cancel()
	return <-errCh
}

func cameraConfig(cfg *config.Config) capture.Config {
	return capture.Config{
		DeviceID:    cfg.Camera.Device,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
		FPS:         cfg.Camera.FPS,
		WarmupReads: cfg.Camera.WarmupReads,
	}
}

func detectionPoseConfig(cfg *config.Config) pose.Config {
	pc := pose.DefaultConfig()
	pc.ModelComplexity = cfg.Detection.ModelComplexity
	pc.MinConfidence = cfg.Detection.MinConfidence
	pc.MinTrackingConf = cfg.Detection.MinConfidence
	return pc
}

func capturePoseConfig(cfg *config.Config) pose.Config {
	pc := pose.CaptureConfig()
	pc.ModelComplexity = cfg.Capture.ModelComplexity
	pc.InferWidth = cfg.Capture.InferWidth
	pc.InferHeight = cfg.Capture.InferHeight
	return pc
}

func newDetector(cfg *config.Config, pc pose.Config) (pose.Detector, error) {
	pc.Python = cfg.Estimator.Python
	pc.Script = cfg.Estimator.Script

	d, err := pose.NewMediaPipeDetector(pc)
	if err != nil {
		return nil, fmt.Errorf("pose estimator unavailable: %w", err)
	}
	slog.Info("using MediaPipe pose estimation", "model_complexity", pc.ModelComplexity)
	return d, nil
}

func newPlayer(cfg *config.Config, paths config.Paths) alarm.Player {
	if cfg.Alarm.PlayerCommand != "" {
		return alarm.NewCommandPlayer(cfg.Alarm.PlayerCommand, cfg.Alarm.PlayerArgs, paths.Sound, cfg.Alarm.TimeoutMs)
	}
	if p := alarm.DetectPlayer(paths.Sound, cfg.Alarm.TimeoutMs); p != nil {
		return p
	}
	slog.Info("no audio player found, alerts ring the terminal bell")
	return nil
}
