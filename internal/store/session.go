package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrAlreadyMerged is returned when marking a session merged a second time.
var ErrAlreadyMerged = errors.New("session already merged")

// Session records a capture session file.
type Session struct {
	Path       string
	SessionID  int64
	RunID      string
	Label      string
	Rows       int
	CreatedAt  time.Time
	MergedAt   *time.Time
	MergedRows int
}

// SessionRepository tracks capture sessions and their merge state.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a session.
func (r *SessionRepository) Create(sess *Session) error {
	sess.CreatedAt = time.Now()

	var runID sql.NullString
	if sess.RunID != "" {
		runID = sql.NullString{String: sess.RunID, Valid: true}
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (path, session_id, run_id, label, rows, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.Path, sess.SessionID, runID, sess.Label, sess.Rows, sess.CreatedAt,
	)
	return err
}

// GetByPath retrieves a session by its file path.
func (r *SessionRepository) GetByPath(path string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT path, session_id, run_id, label, rows, created_at, merged_at, merged_rows
		 FROM sessions WHERE path = ?`,
		path,
	)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// MarkMerged stamps a session as merged with the given row count. It
// returns ErrAlreadyMerged when the session was merged before.
func (r *SessionRepository) MarkMerged(path string, rows int) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET merged_at = ?, merged_rows = ?
		 WHERE path = ? AND merged_at IS NULL`,
		time.Now(), rows, path,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		if _, err := r.GetByPath(path); err != nil {
			return err
		}
		return ErrAlreadyMerged
	}
	return nil
}

// List retrieves all sessions, newest first.
func (r *SessionRepository) List() ([]*Session, error) {
	rows, err := r.db.Query(
		`SELECT path, session_id, run_id, label, rows, created_at, merged_at, merged_rows
		 FROM sessions ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

func scanSession(s scanner) (*Session, error) {
	sess := &Session{}
	var runID sql.NullString
	var merged sql.NullTime

	if err := s.Scan(&sess.Path, &sess.SessionID, &runID, &sess.Label, &sess.Rows, &sess.CreatedAt, &merged, &sess.MergedRows); err != nil {
		return nil, err
	}

	sess.RunID = runID.String
	if merged.Valid {
		sess.MergedAt = &merged.Time
	}
	return sess, nil
}
