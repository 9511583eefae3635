// Package alarm raises the bad-posture alert and records each alert in the
// event log.
package alarm

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/ergowatch/internal/eventlog"
)

// AlertLabel is the voted label that raises the alarm.
const AlertLabel = "bad"

// Dispatcher fires an alert and logs one event for every frame whose voted
// label is bad. There is no cooldown.
//
// Playback runs on a detached goroutine. A playback still in flight absorbs
// the sound of later alerts; their events are still logged.
type Dispatcher struct {
	player Player
	bell   Player
	sink   eventlog.Sink
	now    func() time.Time

	muted   atomic.Bool
	playing atomic.Bool
	alerts  atomic.Int64
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. A nil player plays only the terminal
// bell and a nil now uses time.Now.
func NewDispatcher(player Player, sink eventlog.Sink, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		player: player,
		bell:   BellPlayer{},
		sink:   sink,
		now:    now,
	}
}

// SetBell replaces the fallback player used when playback fails.
func (d *Dispatcher) SetBell(p Player) {
	d.bell = p
}

// SetMuted silences playback. Events are still logged while muted.
func (d *Dispatcher) SetMuted(muted bool) {
	d.muted.Store(muted)
}

// Muted reports whether playback is silenced.
func (d *Dispatcher) Muted() bool {
	return d.muted.Load()
}

// Alerts returns the number of alerts fired.
func (d *Dispatcher) Alerts() int64 {
	return d.alerts.Load()
}

// MaybeAlert fires when voted is bad. It logs an event carrying smoothed as
// prob_good, or a null probability when hasProb is false. The returned error
// only reports an event log failure; playback never fails the call.
// Playback is single-flight: a bad frame that arrives while a sound is still
// playing is counted and logged but starts no second sound.
func (d *Dispatcher) MaybeAlert(voted string, smoothed float64, hasProb bool) (bool, error) {
	if voted != AlertLabel {
		return false, nil
	}

	d.alerts.Add(1)
	d.play()

	if d.sink == nil {
		return true, nil
	}

	ev := eventlog.Event{
		TimestampMs: d.now().UnixMilli(),
		Label:       AlertLabel,
	}
	if hasProb {
		p := smoothed
		ev.ProbGood = &p
	}
	return true, d.sink.Log(ev)
}

// Wait blocks until in-flight playback finishes.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) play() {
	if d.muted.Load() {
		return
	}
	if !d.playing.CompareAndSwap(false, true) {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.playing.Store(false)
		defer func() {
			if r := recover(); r != nil {
				slog.Debug("alert playback panicked", "panic", r)
			}
		}()

		if d.player != nil {
			err := d.player.Play(context.Background())
			if err == nil {
				return
			}
			slog.Debug("alert playback failed, ringing bell", "error", err)
		}
		if d.bell != nil {
			d.bell.Play(context.Background())
		}
	}()
}
