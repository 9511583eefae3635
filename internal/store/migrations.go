package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Runs table - one row per detection or capture run
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL CHECK(mode IN ('detect', 'capture')),
			label TEXT NOT NULL DEFAULT '',
			model_path TEXT NOT NULL DEFAULT '',
			frames INTEGER NOT NULL DEFAULT 0,
			alerts INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		// Events table - append-only mirror of the bad-posture log
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			timestamp_ms INTEGER NOT NULL,
			label TEXT NOT NULL,
			prob_good REAL
		)`,

		// Sessions table - capture session files and their merge state
		`CREATE TABLE IF NOT EXISTS sessions (
			path TEXT PRIMARY KEY,
			session_id INTEGER NOT NULL,
			run_id TEXT REFERENCES runs(id) ON DELETE SET NULL,
			label TEXT NOT NULL,
			rows INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			merged_at DATETIME,
			merged_rows INTEGER NOT NULL DEFAULT 0
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_session_id ON sessions(session_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
