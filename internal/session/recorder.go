// Package session buffers per-frame feature rows during a capture session and
// flushes them to an append-only CSV file.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/ergowatch/internal/features"
	"github.com/ayusman/ergowatch/internal/tabular"
)

// Flush policy defaults.
const (
	// DefaultFlushRows is the buffered row count that forces a flush.
	DefaultFlushRows = 50
	// DefaultFlushInterval is the maximum time buffered rows wait before a flush.
	DefaultFlushInterval = 2 * time.Second
)

// ErrSessionStopped is returned when recording into a stopped session.
var ErrSessionStopped = errors.New("session stopped")

// Config holds configuration options for a Recorder.
type Config struct {
	// Dir is the directory session files are written to.
	Dir string
	// FlushRows is the buffer size that triggers a flush (default: 50).
	FlushRows int
	// FlushInterval is the time since the last flush that triggers a flush (default: 2s).
	FlushInterval time.Duration
	// Now returns the wall-clock time. Defaults to time.Now.
	Now func() time.Time
}

// Recorder starts capture sessions.
type Recorder struct {
	config Config
}

// NewRecorder creates a new Recorder, filling unset options with defaults.
func NewRecorder(config Config) *Recorder {
	if config.FlushRows <= 0 {
		config.FlushRows = DefaultFlushRows
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Recorder{config: config}
}

// Header returns the session CSV header: session_id, timestamp_ms and the
// 132 feature columns.
func Header() []string {
	return append([]string{"session_id", "timestamp_ms"}, features.Columns()...)
}

// Session is one continuous capture run. A Session is not safe for
// concurrent use; it belongs to the capture loop that started it.
type Session struct {
	ID    int64
	Label string
	Path  string

	config    Config
	buffer    [][]string
	lastFlush time.Time
	recorded  int
	flushed   int
	stopped   bool
}

// Start begins a new session for label. The session ID is the start time in
// whole unix seconds and the file is named <label>_pose_<YYYYmmdd_HHMM>.csv.
func (r *Recorder) Start(label string) (*Session, error) {
	if err := os.MkdirAll(r.config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}

	now := r.config.Now()
	path := uniquePath(r.config.Dir, fmt.Sprintf("%s_pose_%s", sanitize(label), now.Format("20060102_1504")))

	s := &Session{
		ID:        now.Unix(),
		Label:     label,
		Path:      path,
		config:    r.config,
		buffer:    make([][]string, 0, r.config.FlushRows),
		lastFlush: now,
	}

	slog.Info("capture session started", "session_id", s.ID, "label", label, "path", path)
	return s, nil
}

// Record appends one feature row to the buffer, flushing it to disk when the
// buffer reaches the row threshold or the flush interval has elapsed.
func (s *Session) Record(vec features.Vector) error {
	if s.stopped {
		return ErrSessionStopped
	}
	if len(vec) != features.Size {
		return fmt.Errorf("%w: vector has %d values, want %d", features.ErrMalformedInput, len(vec), features.Size)
	}

	now := s.config.Now()

	row := make([]string, 0, features.Size+2)
	row = append(row, strconv.FormatInt(s.ID, 10), strconv.FormatInt(now.UnixMilli(), 10))
	for _, v := range vec {
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	s.buffer = append(s.buffer, row)
	s.recorded++

	if len(s.buffer) >= s.config.FlushRows {
		return s.flush(now)
	}
	return s.flushIfDue(now)
}

// FlushIfDue writes buffered rows when more than the flush interval has
// passed since the last flush. The capture loop calls it on every frame,
// including frames without a pose.
func (s *Session) FlushIfDue() error {
	if s.stopped {
		return nil
	}
	return s.flushIfDue(s.config.Now())
}

func (s *Session) flushIfDue(now time.Time) error {
	if len(s.buffer) == 0 || now.Sub(s.lastFlush) <= s.config.FlushInterval {
		return nil
	}
	return s.flush(now)
}

// Stop flushes any buffered rows and returns the session file path. A session
// that captured nothing returns a path to a file that does not exist.
// Calling Stop again after a successful Stop is a no-op; after a failed
// flush it retries.
func (s *Session) Stop() (string, error) {
	if s.stopped {
		return s.Path, nil
	}

	if err := s.flush(s.config.Now()); err != nil {
		return s.Path, err
	}
	s.stopped = true

	slog.Info("capture session stopped", "session_id", s.ID, "rows", s.flushed, "path", s.Path)
	return s.Path, nil
}

// Recorded returns the number of rows recorded so far.
func (s *Session) Recorded() int {
	return s.recorded
}

// Flushed returns the number of rows written to disk so far.
func (s *Session) Flushed() int {
	return s.flushed
}

// Buffered returns the number of rows waiting to be flushed.
func (s *Session) Buffered() int {
	return len(s.buffer)
}

func (s *Session) flush(now time.Time) error {
	if len(s.buffer) == 0 {
		return nil
	}

	if err := tabular.AppendCSV(s.Path, Header(), s.buffer); err != nil {
		return fmt.Errorf("flush session %d: %w", s.ID, err)
	}

	slog.Debug("session rows flushed", "session_id", s.ID, "rows", len(s.buffer))

	s.flushed += len(s.buffer)
	s.buffer = s.buffer[:0]
	s.lastFlush = now
	return nil
}

// sanitize keeps labels safe for use in file names.
func sanitize(label string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, label)
	if clean == "" {
		return "session"
	}
	return clean
}

// uniquePath returns dir/base.csv, adding a numeric suffix when a session
// started in the same minute already owns that name.
func uniquePath(dir, base string) string {
	path := filepath.Join(dir, base+".csv")
	for n := 2; !tabular.IsMissingOrEmpty(path); n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.csv", base, n))
	}
	return path
}
