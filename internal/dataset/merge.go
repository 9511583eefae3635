// Package dataset maintains the cumulative unlabeled and labeled posture
// datasets built from finished capture sessions.
package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ayusman/ergowatch/internal/tabular"
)

// LabelColumn is the trailing column of the labeled dataset.
const LabelColumn = "label"

// ErrSchemaMismatch is returned when a session file's header differs from
// the header of the dataset it is merged into.
var ErrSchemaMismatch = errors.New("session schema does not match dataset")

// Merge appends the rows of a finished session file to the unlabeled dataset
// and, with a constant label column, to the labeled dataset. Each dataset is
// created with a header when missing or empty. A missing or header-only
// session file merges nothing and touches no dataset.
//
// The two appends are not atomic. Merging the same session twice duplicates
// its rows.
func Merge(sessionPath, label, unlabeledPath, labeledPath string) (int, error) {
	header, rows, err := tabular.ReadCSV(sessionPath)
	if err != nil {
		return 0, fmt.Errorf("read session %s: %w", sessionPath, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	labeledHeader := append(slices.Clone(header), LabelColumn)

	if err := checkHeader(unlabeledPath, header); err != nil {
		return 0, err
	}
	if err := checkHeader(labeledPath, labeledHeader); err != nil {
		return 0, err
	}

	if err := tabular.AppendCSV(unlabeledPath, header, rows); err != nil {
		return 0, fmt.Errorf("append unlabeled dataset: %w", err)
	}

	labeled := make([][]string, len(rows))
	for i, row := range rows {
		labeled[i] = append(slices.Clone(row), label)
	}
	if err := tabular.AppendCSV(labeledPath, labeledHeader, labeled); err != nil {
		return 0, fmt.Errorf("append labeled dataset: %w", err)
	}

	slog.Info("session merged", "session", sessionPath, "label", label, "rows", len(rows))
	return len(rows), nil
}

func checkHeader(path string, want []string) error {
	existing, err := tabular.ReadHeader(path)
	if err != nil {
		return fmt.Errorf("read dataset header %s: %w", path, err)
	}
	if existing != nil && !slices.Equal(existing, want) {
		return fmt.Errorf("%w: %s", ErrSchemaMismatch, path)
	}
	return nil
}
