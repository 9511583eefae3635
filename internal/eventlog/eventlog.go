// Package eventlog persists bad-posture events to a tabular log file.
//
// Every Append reads the whole log, adds one row and rewrites the file. A log
// that cannot be read is replaced by a fresh log holding only the new event.
package eventlog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Column names of the event log.
const (
	ColumnTimestamp = "timestamp"
	ColumnLabel     = "label"
	ColumnProbGood  = "prob_good"
)

// ErrCorruptLog is returned by Read when an existing log cannot be parsed.
var ErrCorruptLog = errors.New("event log corrupt")

// Header is the event log header row.
func Header() []string {
	return []string{ColumnTimestamp, ColumnLabel, ColumnProbGood}
}

// Event is one persisted bad-posture record.
type Event struct {
	// TimestampMs is the event time in unix milliseconds.
	TimestampMs int64
	Label       string
	// ProbGood is the smoothed good probability, nil when none was available.
	ProbGood *float64
}

// AppendResult describes the outcome of an Append.
type AppendResult struct {
	// Rows is the number of events in the log after the append.
	Rows int
	// Recovered is true when an unreadable log was discarded.
	Recovered bool
}

// Append adds ev to the log at path. The format follows the file extension:
// .xlsx writes a spreadsheet, anything else writes CSV.
func Append(path string, ev Event) (AppendResult, error) {
	f := formatFor(path)

	var result AppendResult
	events, err := Read(path)
	if err != nil {
		slog.Warn("event log unreadable, starting fresh", "path", path, "error", err)
		events = nil
		result.Recovered = true
	}

	events = append(events, ev)

	data, err := f.encode(events)
	if err != nil {
		return result, fmt.Errorf("encode event log: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return result, fmt.Errorf("write event log %s: %w", path, err)
	}

	result.Rows = len(events)
	return result, nil
}

// Read returns all events in the log at path. A missing or empty file holds
// no events. Any parse failure is reported as ErrCorruptLog.
func Read(path string) ([]Event, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	events, err := formatFor(path).decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptLog, path, err)
	}
	return events, nil
}

// Export copies the log at src to dst, converting between CSV and XLSX as
// the extensions require. It returns the number of events exported.
func Export(src, dst string) (int, error) {
	events, err := Read(src)
	if err != nil {
		return 0, err
	}

	data, err := formatFor(dst).encode(events)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", dst, err)
	}
	if err := writeFileAtomic(dst, data); err != nil {
		return 0, fmt.Errorf("write %s: %w", dst, err)
	}
	return len(events), nil
}

type format interface {
	encode(events []Event) ([]byte, error)
	decode(data []byte) ([]Event, error)
}

func formatFor(path string) format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return xlsxFormat{}
	}
	return csvFormat{}
}

// record converts an event to its cell values.
func record(ev Event) []string {
	prob := ""
	if ev.ProbGood != nil {
		prob = strconv.FormatFloat(*ev.ProbGood, 'g', -1, 64)
	}
	return []string{strconv.FormatInt(ev.TimestampMs, 10), ev.Label, prob}
}

// columns locates the event columns in a header row.
type columns struct {
	timestamp, label, prob int
}

func locate(header []string) (columns, error) {
	c := columns{timestamp: -1, label: -1, prob: -1}
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case ColumnTimestamp:
			c.timestamp = i
		case ColumnLabel:
			c.label = i
		case ColumnProbGood:
			c.prob = i
		}
	}
	if c.timestamp < 0 || c.label < 0 || c.prob < 0 {
		return c, fmt.Errorf("header %v lacks event columns", header)
	}
	return c, nil
}

// parse builds an event from cell values. Trailing cells may be absent.
func (c columns) parse(cells []string) (Event, error) {
	cell := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}

	ts, err := strconv.ParseFloat(cell(c.timestamp), 64)
	if err != nil {
		return Event{}, fmt.Errorf("timestamp %q: %w", cell(c.timestamp), err)
	}

	ev := Event{TimestampMs: int64(ts), Label: cell(c.label)}

	if raw := cell(c.prob); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Event{}, fmt.Errorf("prob_good %q: %w", raw, err)
		}
		ev.ProbGood = &p
	}
	return ev, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
