package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RunMode identifies what a run did.
type RunMode string

const (
	// RunModeDetect is a live detection run.
	RunModeDetect RunMode = "detect"
	// RunModeCapture is a dataset capture run.
	RunModeCapture RunMode = "capture"
)

// Run is one detection or capture run.
type Run struct {
	ID        string
	Mode      RunMode
	Label     string
	ModelPath string
	Frames    int
	Alerts    int
	StartedAt time.Time
	EndedAt   *time.Time
}

// RunRepository provides operations on runs.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// Create inserts a new run, assigning a UUID when ID is empty.
func (r *RunRepository) Create(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO runs (id, mode, label, model_path, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Mode), run.Label, run.ModelPath, run.StartedAt,
	)
	return err
}

// Finish records the final counters of a run and stamps its end time.
func (r *RunRepository) Finish(id string, frames, alerts int) error {
	result, err := r.db.Exec(
		`UPDATE runs SET frames = ?, alerts = ?, ended_at = ? WHERE id = ?`,
		frames, alerts, time.Now(), id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	row := r.db.QueryRow(
		`SELECT id, mode, label, model_path, frames, alerts, started_at, ended_at
		 FROM runs WHERE id = ?`,
		id,
	)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List retrieves the most recent runs, newest first. A limit of zero or
// less returns all runs.
func (r *RunRepository) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, mode, label, model_path, frames, alerts, started_at, ended_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	run := &Run{}
	var mode string
	var ended sql.NullTime

	if err := s.Scan(&run.ID, &mode, &run.Label, &run.ModelPath, &run.Frames, &run.Alerts, &run.StartedAt, &ended); err != nil {
		return nil, err
	}

	run.Mode = RunMode(mode)
	if ended.Valid {
		run.EndedAt = &ended.Time
	}
	return run, nil
}
