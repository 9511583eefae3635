package dataset

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ayusman/ergowatch/internal/features"
	"github.com/ayusman/ergowatch/internal/tabular"
)

var (
	// ErrDatasetMissing is returned when a dataset file is missing or empty.
	ErrDatasetMissing = errors.New("dataset missing or empty")
	// ErrNoLabelColumn is returned when a labeled dataset has no label column.
	ErrNoLabelColumn = errors.New("dataset has no label column")
	// ErrNoFeatureColumns is returned when a dataset carries no landmark features.
	ErrNoFeatureColumns = errors.New("dataset has no feature columns")
)

// Labeled is a labeled dataset loaded into memory for training.
type Labeled struct {
	// Columns are the feature column names, in file order.
	Columns []string
	// X holds one feature row per sample.
	X [][]float64
	// Y holds the label of each sample.
	Y []string
}

// Len returns the number of samples.
func (d *Labeled) Len() int {
	return len(d.Y)
}

// Classes returns the distinct labels in sorted order.
func (d *Labeled) Classes() []string {
	seen := make(map[string]bool)
	var classes []string
	for _, y := range d.Y {
		if !seen[y] {
			seen[y] = true
			classes = append(classes, y)
		}
	}
	slices.Sort(classes)
	return classes
}

// LoadLabeled reads a labeled dataset. Feature columns are those named
// x_*, y_*, z_* or v_*; empty or unparseable cells become 0.0. Rows with an
// empty label are skipped.
func LoadLabeled(path string) (*Labeled, error) {
	header, rows, err := tabular.ReadCSV(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	if header == nil || len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDatasetMissing, path)
	}

	labelIdx := tabular.ColumnIndex(header, LabelColumn)
	if labelIdx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoLabelColumn, path)
	}

	var featureIdx []int
	d := &Labeled{}
	for i, name := range header {
		if features.IsFeatureColumn(name) {
			featureIdx = append(featureIdx, i)
			d.Columns = append(d.Columns, name)
		}
	}
	if len(featureIdx) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFeatureColumns, path)
	}

	for _, row := range rows {
		label := strings.TrimSpace(row[labelIdx])
		if label == "" {
			continue
		}
		x := make([]float64, len(featureIdx))
		for j, idx := range featureIdx {
			x[j] = parseFloat(row[idx])
		}
		d.X = append(d.X, x)
		d.Y = append(d.Y, label)
	}

	return d, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
