package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/ergowatch/internal/tabular"
)

// Range is an inclusive span of session timestamps in milliseconds.
type Range struct {
	StartMs int64 `yaml:"start_ms"`
	EndMs   int64 `yaml:"end_ms"`
}

// Contains reports whether ts lies within the range, bounds included.
func (r Range) Contains(ts int64) bool {
	return r.StartMs <= ts && ts <= r.EndMs
}

// Ranges maps session IDs to the spans labeled good or bad.
type Ranges struct {
	Good map[int64][]Range `yaml:"good"`
	Bad  map[int64][]Range `yaml:"bad"`
}

// LoadRanges reads good and bad ranges from a YAML file keyed by session ID:
//
//	good:
//	  1704099600:
//	    - {start_ms: 1704099600000, end_ms: 1704099630000}
//	bad:
//	  1704099700:
//	    - {start_ms: 1704099700000, end_ms: 1704099720000}
func LoadRanges(path string) (Ranges, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Ranges{}, fmt.Errorf("read ranges: %w", err)
	}

	var r Ranges
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Ranges{}, fmt.Errorf("parse ranges: %w", err)
	}

	for _, set := range []map[int64][]Range{r.Good, r.Bad} {
		for sid, spans := range set {
			for _, span := range spans {
				if span.EndMs < span.StartMs {
					return Ranges{}, fmt.Errorf("session %d: range end %d before start %d", sid, span.EndMs, span.StartMs)
				}
			}
		}
	}
	return r, nil
}

var (
	// ErrMissingColumns is returned when session_id or timestamp_ms is absent.
	ErrMissingColumns = errors.New("dataset missing session_id or timestamp_ms")
	// ErrNonNumeric is returned when session_id or timestamp_ms is not an integer.
	ErrNonNumeric = errors.New("non-numeric session_id or timestamp_ms")
	// ErrNothingLabeled is returned when no row falls into any range.
	ErrNothingLabeled = errors.New("no rows labeled")
)

// Label returns "good" or "bad" for a row, or "" when no range matches.
// Good ranges take precedence.
func (r Ranges) Label(sessionID, ts int64) string {
	if inAny(r.Good[sessionID], ts) {
		return "good"
	}
	if inAny(r.Bad[sessionID], ts) {
		return "bad"
	}
	return ""
}

func inAny(ranges []Range, ts int64) bool {
	for _, rg := range ranges {
		if rg.Contains(ts) {
			return true
		}
	}
	return false
}

// LabelByRanges labels the rows of an unlabeled dataset by timestamp ranges
// and writes the matched rows, with a label column, to outPath. Unmatched
// rows are dropped. outPath is overwritten.
func LabelByRanges(unlabeledPath, outPath string, ranges Ranges) (int, error) {
	header, rows, err := tabular.ReadCSV(unlabeledPath)
	if err != nil {
		return 0, fmt.Errorf("read dataset %s: %w", unlabeledPath, err)
	}
	if header == nil {
		return 0, fmt.Errorf("%w: %s", ErrDatasetMissing, unlabeledPath)
	}

	sidIdx := tabular.ColumnIndex(header, "session_id")
	tsIdx := tabular.ColumnIndex(header, "timestamp_ms")
	if sidIdx < 0 || tsIdx < 0 {
		return 0, fmt.Errorf("%w: %s", ErrMissingColumns, unlabeledPath)
	}

	var out [][]string
	for i, row := range rows {
		sid, err := parseInt(row[sidIdx])
		if err != nil {
			return 0, fmt.Errorf("%w: row %d", ErrNonNumeric, i+1)
		}
		ts, err := parseInt(row[tsIdx])
		if err != nil {
			return 0, fmt.Errorf("%w: row %d", ErrNonNumeric, i+1)
		}

		if label := ranges.Label(sid, ts); label != "" {
			out = append(out, append(slices.Clone(row), label))
		}
	}

	if len(out) == 0 {
		return 0, ErrNothingLabeled
	}

	if err := tabular.WriteCSV(outPath, append(slices.Clone(header), LabelColumn), out); err != nil {
		return 0, fmt.Errorf("write labeled dataset: %w", err)
	}

	slog.Info("dataset labeled by ranges", "path", outPath, "rows", len(out))
	return len(out), nil
}

// parseInt accepts integers written as floats, as spreadsheet tools do.
func parseInt(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return int64(f), nil
}
