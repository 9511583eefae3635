package display

import (
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/ergowatch/internal/pose"
)

func TestVerdict(t *testing.T) {
	tests := []struct {
		name      string
		present   bool
		voted     string
		wantText  string
		wantColor color.RGBA
	}{
		{"no pose", false, "bad", NoPose, ColorNeutral},
		{"good", true, "good", "Good posture", ColorGood},
		{"bad", true, "bad", "Bad posture", ColorBad},
		{"other label passes through", true, "leaning", "leaning", ColorNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, c := Verdict(tt.present, tt.voted)
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if c != tt.wantColor {
				t.Errorf("color = %v, want %v", c, tt.wantColor)
			}
		})
	}
}

func TestState_Lines(t *testing.T) {
	t.Run("with probability", func(t *testing.T) {
		s := State{Present: true, Voted: "bad", ProbThisFrame: true, SmoothedGood: 0.436, FPS: 29.96}
		want := []string{"Bad posture", "Good prob (smoothed): 0.44", "FPS: 30.0", "Press q to quit"}

		got := s.Lines()
		if len(got) != len(want) {
			t.Fatalf("Lines() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("line %d = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("without probability", func(t *testing.T) {
		s := State{FPS: 12.34}
		got := s.Lines()
		if len(got) != 3 || got[0] != NoPose || got[1] != "FPS: 12.3" {
			t.Errorf("Lines() = %v", got)
		}
	})
}

func TestCaptureLines(t *testing.T) {
	got := CaptureLines("good", 7)
	if got[0] != "Recording good - press 'q' to stop" || got[1] != "Rows: 7" {
		t.Errorf("CaptureLines() = %v", got)
	}
}

func TestFPSMeter(t *testing.T) {
	var m FPSMeter
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := m.Tick(start); got != 0 {
		t.Errorf("first Tick() = %f, want 0", got)
	}

	now := start
	for i := 0; i < 10; i++ {
		now = now.Add(50 * time.Millisecond)
		m.Tick(now)
	}
	if got := m.Rate(); math.Abs(got-20) > 1e-9 {
		t.Errorf("Rate() = %f, want 20", got)
	}

	// Only the most recent intervals count.
	for i := 0; i < FPSWindow; i++ {
		now = now.Add(100 * time.Millisecond)
		m.Tick(now)
	}
	if got := m.Rate(); math.Abs(got-10) > 1e-9 {
		t.Errorf("Rate() after window = %f, want 10", got)
	}
}

func TestRender_DrawsOnFrame(t *testing.T) {
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	Render(&img, pose.SlouchedLandmarks(), State{Present: true, Voted: "bad", ProbThisFrame: true, SmoothedGood: 0.3, FPS: 30})

	if img.Rows() != 480 || img.Cols() != 640 {
		t.Fatalf("frame size changed to %dx%d", img.Cols(), img.Rows())
	}
	if gocv.CountNonZero(grey(t, img)) == 0 {
		t.Error("expected overlay pixels on a blank frame")
	}
}

func TestDrawPanel_EmptyInputs(t *testing.T) {
	img := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer img.Close()

	DrawPanel(&img, nil, image.Pt(10, 10))
	DrawLandmarks(&img, nil)

	if gocv.CountNonZero(grey(t, img)) != 0 {
		t.Error("nothing should be drawn without lines or landmarks")
	}
}

func TestHeadless(t *testing.T) {
	h := &Headless{}
	img := gocv.NewMat()
	defer img.Close()

	if h.Show(&img) {
		t.Error("Show() should not quit before Stop()")
	}
	h.Stop()
	if !h.Show(&img) {
		t.Error("Show() should quit after Stop()")
	}
	if h.Shown() != 2 {
		t.Errorf("Shown() = %d, want 2", h.Shown())
	}
}

func grey(t *testing.T, img gocv.Mat) gocv.Mat {
	t.Helper()
	g := gocv.NewMat()
	t.Cleanup(func() { g.Close() })
	gocv.CvtColor(img, &g, gocv.ColorBGRToGray)
	return g
}
