package store

import (
	"database/sql"

	"github.com/ayusman/ergowatch/internal/eventlog"
)

// EventRepository stores bad-posture events per run.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Insert appends an event to a run.
func (r *EventRepository) Insert(runID string, ev eventlog.Event) error {
	var prob sql.NullFloat64
	if ev.ProbGood != nil {
		prob = sql.NullFloat64{Float64: *ev.ProbGood, Valid: true}
	}

	_, err := r.db.Exec(
		`INSERT INTO events (run_id, timestamp_ms, label, prob_good) VALUES (?, ?, ?, ?)`,
		runID, ev.TimestampMs, ev.Label, prob,
	)
	return err
}

// ListByRun retrieves a run's events in insertion order.
func (r *EventRepository) ListByRun(runID string) ([]eventlog.Event, error) {
	rows, err := r.db.Query(
		`SELECT timestamp_ms, label, prob_good FROM events WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []eventlog.Event
	for rows.Next() {
		var ev eventlog.Event
		var prob sql.NullFloat64
		if err := rows.Scan(&ev.TimestampMs, &ev.Label, &prob); err != nil {
			return nil, err
		}
		if prob.Valid {
			p := prob.Float64
			ev.ProbGood = &p
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

// Count returns the number of events recorded for a run.
func (r *EventRepository) Count(runID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM events WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// Sink returns an eventlog.Sink that records events under runID.
func (r *EventRepository) Sink(runID string) eventlog.Sink {
	return eventlog.SinkFunc(func(ev eventlog.Event) error {
		return r.Insert(runID, ev)
	})
}
