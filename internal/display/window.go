package display

import (
	"sync"

	"gocv.io/x/gocv"
)

// QuitKey stops a run when pressed in the window.
const QuitKey = 'q'

// Viewer shows frames and reports whether the user asked to stop.
type Viewer interface {
	Show(img *gocv.Mat) (quit bool)
	Close() error
}

// Window shows frames in an OpenCV window.
type Window struct {
	window *gocv.Window
}

// NewWindow opens a window with the given title.
func NewWindow(title string) *Window {
	return &Window{window: gocv.NewWindow(title)}
}

// Show displays img and polls the keyboard once.
func (w *Window) Show(img *gocv.Mat) bool {
	w.window.IMShow(*img)
	key := w.window.WaitKey(1)
	return key&0xFF == QuitKey
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.window.Close()
}

// Headless discards frames. Stop requests a quit on the next Show.
type Headless struct {
	mu    sync.Mutex
	shown int
	stop  bool
}

// Show counts the frame and reports a pending stop.
func (h *Headless) Show(img *gocv.Mat) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shown++
	return h.stop
}

// Stop makes the next Show report a quit.
func (h *Headless) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stop = true
}

// Shown returns the number of frames shown.
func (h *Headless) Shown() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shown
}

// Close does nothing.
func (h *Headless) Close() error {
	return nil
}
