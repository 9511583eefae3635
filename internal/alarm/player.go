package alarm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// Player plays the alert sound. Play may block until playback ends.
type Player interface {
	Play(ctx context.Context) error
}

// waitDelay bounds how long a killed player may hold its output pipes.
const waitDelay = 500 * time.Millisecond

// ErrNoSound is returned by CommandPlayer when no sound file is configured.
var ErrNoSound = errors.New("no sound file configured")

// CommandPlayer plays a sound file with an external audio player command
// such as aplay or afplay.
type CommandPlayer struct {
	Command   string
	Args      []string
	SoundFile string
	timeoutMs int
}

// NewCommandPlayer creates a CommandPlayer that runs command with args and
// the sound file, killing it after timeoutMs milliseconds.
func NewCommandPlayer(command string, args []string, soundFile string, timeoutMs int) *CommandPlayer {
	return &CommandPlayer{
		Command:   command,
		Args:      args,
		SoundFile: soundFile,
		timeoutMs: timeoutMs,
	}
}

// Play runs the player command and waits for it to exit.
func (p *CommandPlayer) Play(ctx context.Context) error {
	if p.SoundFile == "" {
		return ErrNoSound
	}
	if _, err := os.Stat(p.SoundFile); err != nil {
		return fmt.Errorf("sound file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(p.timeoutMs)*time.Millisecond)
	defer cancel()

	args := append(append([]string{}, p.Args...), p.SoundFile)
	cmd := exec.CommandContext(ctx, p.Command, args...)

	cmd.WaitDelay = waitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("player timeout after %dms", p.timeoutMs)
	}

	if err != nil {
		if s := stderr.String(); s != "" {
			return fmt.Errorf("player failed: %w, stderr: %s", err, s)
		}
		return fmt.Errorf("player failed: %w", err)
	}
	return nil
}

// candidatePlayers lists known audio players per platform, best first.
func candidatePlayers() [][]string {
	switch runtime.GOOS {
	case "darwin":
		return [][]string{{"afplay"}}
	case "windows":
		return nil
	default:
		return [][]string{{"paplay"}, {"aplay", "-q"}, {"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}}
	}
}

// DetectPlayer returns a CommandPlayer for the first audio player found on
// PATH, or nil when none is installed.
func DetectPlayer(soundFile string, timeoutMs int) *CommandPlayer {
	for _, c := range candidatePlayers() {
		if path, err := exec.LookPath(c[0]); err == nil {
			return NewCommandPlayer(path, c[1:], soundFile, timeoutMs)
		}
	}
	return nil
}

// BellPlayer writes the terminal bell character.
type BellPlayer struct {
	W io.Writer
}

// Play writes "\a" to the player's writer, or stdout when unset.
func (b BellPlayer) Play(ctx context.Context) error {
	w := b.W
	if w == nil {
		w = os.Stdout
	}
	_, err := io.WriteString(w, "\a")
	return err
}

// RecordingPlayer counts plays for testing.
type RecordingPlayer struct {
	mu    sync.Mutex
	plays int
	err   error
	// Played receives a value after every play when non-nil.
	Played chan struct{}
}

// NewRecordingPlayer creates a RecordingPlayer with a buffered Played channel.
func NewRecordingPlayer(buffer int) *RecordingPlayer {
	return &RecordingPlayer{Played: make(chan struct{}, buffer)}
}

// SetError makes subsequent plays fail with err.
func (r *RecordingPlayer) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Plays returns the number of Play calls.
func (r *RecordingPlayer) Plays() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plays
}

// Play records the call.
func (r *RecordingPlayer) Play(ctx context.Context) error {
	r.mu.Lock()
	r.plays++
	err := r.err
	r.mu.Unlock()

	if r.Played != nil {
		select {
		case r.Played <- struct{}{}:
		default:
		}
	}
	return err
}
