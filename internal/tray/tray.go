// Package tray provides a menu bar indicator for live posture detection.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the menu bar indicator.
type Tray struct {
	onMute func(muted bool)
	onQuit func()
	muted  bool
	mu     sync.RWMutex

	// Menu items stored for later updates
	menuMute    *systray.MenuItem
	menuVerdict *systray.MenuItem
	menuAlerts  *systray.MenuItem
}

// New creates a new Tray with the alarm in the given mute state.
func New(muted bool) *Tray {
	return &Tray{
		muted: muted,
	}
}

// OnMute sets the callback called when the alarm is muted or unmuted.
func (t *Tray) OnMute(fn func(muted bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMute = fn
}

// OnQuit sets the callback called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the indicator.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the indicator and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("ergowatch")
	systray.SetTooltip("ergowatch posture monitor")

	t.mu.Lock()
	t.menuVerdict = systray.AddMenuItem(verdictTitle(""), "Current posture")
	t.menuVerdict.Disable()
	t.menuAlerts = systray.AddMenuItem(alertsTitle(0), "Bad posture alerts this run")
	t.menuAlerts.Disable()
	systray.AddSeparator()

	t.menuMute = systray.AddMenuItem(muteTitle(t.muted), "Mute the alarm sound")
	menuMute := t.menuMute
	t.mu.Unlock()
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Stop detection")

	go func() {
		for {
			select {
			case <-menuMute.ClickedCh:
				t.handleMute()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func (t *Tray) handleMute() {
	t.mu.Lock()
	t.muted = !t.muted
	muted := t.muted
	if t.menuMute != nil {
		t.menuMute.SetTitle(muteTitle(muted))
	}
	callback := t.onMute
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(muted)
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetVerdict shows the current posture verdict. An empty verdict means no pose.
func (t *Tray) SetVerdict(verdict string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuVerdict != nil {
		t.menuVerdict.SetTitle(verdictTitle(verdict))
	}
}

// SetAlerts shows the number of alerts raised so far.
func (t *Tray) SetAlerts(n int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuAlerts != nil {
		t.menuAlerts.SetTitle(alertsTitle(n))
	}
}

// IsMuted returns the current mute state.
func (t *Tray) IsMuted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.muted
}

func muteTitle(muted bool) string {
	if muted {
		return "○ Alarm muted"
	}
	return "● Alarm on"
}

func verdictTitle(verdict string) string {
	if verdict == "" {
		return "Posture: no pose"
	}
	return "Posture: " + verdict
}

func alertsTitle(n int64) string {
	return fmt.Sprintf("Alerts: %d", n)
}
