package alarm

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/ergowatch/internal/eventlog"
)

var fixedNow = time.Date(2024, 3, 5, 14, 7, 30, 0, time.UTC)

func clock() time.Time { return fixedNow }

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMaybeAlert_GoodDoesNothing(t *testing.T) {
	player := NewRecordingPlayer(1)
	sink := &eventlog.MemorySink{}
	d := NewDispatcher(player, sink, clock)

	for _, label := range []string{"good", "", "slouch"} {
		fired, err := d.MaybeAlert(label, 0.9, true)
		if fired || err != nil {
			t.Errorf("MaybeAlert(%q) = (%v, %v), want (false, nil)", label, fired, err)
		}
	}
	d.Wait()

	if player.Plays() != 0 || len(sink.Events) != 0 {
		t.Errorf("plays=%d events=%d, want none", player.Plays(), len(sink.Events))
	}
}

func TestMaybeAlert_BadLogsEvent(t *testing.T) {
	player := NewRecordingPlayer(1)
	sink := &eventlog.MemorySink{}
	d := NewDispatcher(player, sink, clock)

	fired, err := d.MaybeAlert("bad", 0.35, true)
	if !fired || err != nil {
		t.Fatalf("MaybeAlert() = (%v, %v), want (true, nil)", fired, err)
	}
	d.Wait()

	if player.Plays() != 1 {
		t.Errorf("Plays() = %d, want 1", player.Plays())
	}
	if len(sink.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(sink.Events))
	}

	ev := sink.Events[0]
	if ev.TimestampMs != fixedNow.UnixMilli() || ev.Label != "bad" {
		t.Errorf("event = %+v", ev)
	}
	if ev.ProbGood == nil || *ev.ProbGood != 0.35 {
		t.Errorf("ProbGood = %v, want 0.35", ev.ProbGood)
	}
}

func TestMaybeAlert_NullProbability(t *testing.T) {
	sink := &eventlog.MemorySink{}
	d := NewDispatcher(NewRecordingPlayer(1), sink, clock)

	d.MaybeAlert("bad", 0.5, false)
	d.Wait()

	if sink.Events[0].ProbGood != nil {
		t.Errorf("ProbGood = %v, want nil", *sink.Events[0].ProbGood)
	}
}

func TestMaybeAlert_EveryFrameLogs(t *testing.T) {
	sink := &eventlog.MemorySink{}
	d := NewDispatcher(NewRecordingPlayer(8), sink, clock)

	for i := 0; i < 5; i++ {
		d.MaybeAlert("bad", 0.4, true)
	}
	d.Wait()

	if len(sink.Events) != 5 {
		t.Errorf("got %d events, want 5 (no debounce)", len(sink.Events))
	}
	if d.Alerts() != 5 {
		t.Errorf("Alerts() = %d, want 5", d.Alerts())
	}
}

func TestMaybeAlert_LogErrorSurfaces(t *testing.T) {
	sink := &eventlog.MemorySink{Err: errors.New("read-only filesystem")}
	d := NewDispatcher(NewRecordingPlayer(1), sink, clock)

	fired, err := d.MaybeAlert("bad", 0.2, true)
	d.Wait()
	if !fired || err == nil {
		t.Errorf("MaybeAlert() = (%v, %v), want (true, error)", fired, err)
	}
}

func TestMaybeAlert_PlaybackFailureRingsBell(t *testing.T) {
	player := NewRecordingPlayer(1)
	player.SetError(errors.New("no audio device"))
	var bell safeBuffer

	d := NewDispatcher(player, &eventlog.MemorySink{}, clock)
	d.SetBell(BellPlayer{W: &bell})

	fired, err := d.MaybeAlert("bad", 0.2, true)
	d.Wait()

	if !fired || err != nil {
		t.Errorf("MaybeAlert() = (%v, %v), want (true, nil)", fired, err)
	}
	if bell.String() != "\a" {
		t.Errorf("bell output = %q, want %q", bell.String(), "\a")
	}
}

func TestMaybeAlert_NilPlayerUsesBell(t *testing.T) {
	var bell safeBuffer
	d := NewDispatcher(nil, nil, clock)
	d.SetBell(BellPlayer{W: &bell})

	fired, err := d.MaybeAlert("bad", 0.2, false)
	d.Wait()

	if !fired || err != nil {
		t.Errorf("MaybeAlert() = (%v, %v), want (true, nil)", fired, err)
	}
	if bell.String() != "\a" {
		t.Errorf("bell output = %q", bell.String())
	}
}

func TestMaybeAlert_Muted(t *testing.T) {
	player := NewRecordingPlayer(1)
	sink := &eventlog.MemorySink{}
	d := NewDispatcher(player, sink, clock)
	d.SetMuted(true)

	d.MaybeAlert("bad", 0.2, true)
	d.Wait()

	if player.Plays() != 0 {
		t.Errorf("Plays() = %d while muted, want 0", player.Plays())
	}
	if len(sink.Events) != 1 {
		t.Errorf("got %d events while muted, want 1", len(sink.Events))
	}
}

type blockingPlayer struct {
	release chan struct{}
	started chan struct{}
	plays   int
	mu      sync.Mutex
}

func (b *blockingPlayer) Play(ctx context.Context) error {
	b.mu.Lock()
	b.plays++
	b.mu.Unlock()
	b.started <- struct{}{}
	<-b.release
	return nil
}

func TestMaybeAlert_DoesNotBlockOnPlayback(t *testing.T) {
	player := &blockingPlayer{release: make(chan struct{}), started: make(chan struct{}, 1)}
	sink := &eventlog.MemorySink{}
	d := NewDispatcher(player, sink, clock)

	done := make(chan struct{})
	go func() {
		d.MaybeAlert("bad", 0.3, true)
		<-player.started
		d.MaybeAlert("bad", 0.3, true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("MaybeAlert blocked on playback")
	}

	close(player.release)
	d.Wait()

	if len(sink.Events) != 2 {
		t.Errorf("got %d events, want 2", len(sink.Events))
	}
	if d.Alerts() != 2 {
		t.Errorf("Alerts() = %d, want 2", d.Alerts())
	}
	player.mu.Lock()
	defer player.mu.Unlock()
	if player.plays != 1 {
		t.Errorf("plays = %d, want 1 while the first playback was in flight", player.plays)
	}
}

func TestCommandPlayer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	sound := filepath.Join(dir, "beep.wav")
	os.WriteFile(sound, []byte("RIFF"), 0644)

	script := filepath.Join(dir, "player.sh")
	out := filepath.Join(dir, "played.txt")
	os.WriteFile(script, []byte("#!/bin/sh\necho \"$@\" > "+out+"\n"), 0755)

	p := NewCommandPlayer(script, []string{"-q"}, sound, 5000)
	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	data, _ := os.ReadFile(out)
	if strings.TrimSpace(string(data)) != "-q "+sound {
		t.Errorf("player args = %q, want %q", strings.TrimSpace(string(data)), "-q "+sound)
	}
}

func TestCommandPlayer_Errors(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	sound := filepath.Join(dir, "beep.wav")
	os.WriteFile(sound, []byte("RIFF"), 0644)

	t.Run("no sound file", func(t *testing.T) {
		p := NewCommandPlayer("true", nil, "", 1000)
		if err := p.Play(context.Background()); !errors.Is(err, ErrNoSound) {
			t.Errorf("Play() error = %v, want ErrNoSound", err)
		}
	})

	t.Run("missing sound file", func(t *testing.T) {
		p := NewCommandPlayer("true", nil, filepath.Join(dir, "missing.wav"), 1000)
		if err := p.Play(context.Background()); err == nil {
			t.Error("expected error for missing sound file")
		}
	})

	t.Run("failing command", func(t *testing.T) {
		script := filepath.Join(dir, "fail.sh")
		os.WriteFile(script, []byte("#!/bin/sh\necho broken >&2\nexit 1\n"), 0755)

		p := NewCommandPlayer(script, nil, sound, 1000)
		err := p.Play(context.Background())
		if err == nil || !strings.Contains(err.Error(), "broken") {
			t.Errorf("Play() error = %v, want stderr in message", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		script := filepath.Join(dir, "slow.sh")
		os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 5\n"), 0755)

		p := NewCommandPlayer(script, nil, sound, 100)
		err := p.Play(context.Background())
		if err == nil || !strings.Contains(err.Error(), "timeout") {
			t.Errorf("Play() error = %v, want timeout", err)
		}
	})
}

func TestBellPlayer(t *testing.T) {
	var buf bytes.Buffer
	if err := (BellPlayer{W: &buf}).Play(context.Background()); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if buf.String() != "\a" {
		t.Errorf("output = %q", buf.String())
	}
}
