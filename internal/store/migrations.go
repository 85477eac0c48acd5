package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sessions table - one row per pipeline run
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			fps_goal INTEGER NOT NULL,
			mirror INTEGER NOT NULL DEFAULT 1,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		// Events table - append-only gesture events per session
		`CREATE TABLE IF NOT EXISTS events (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL CHECK(kind IN ('pinch', 'drag', 'release')),
			hand_id TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			start_x REAL,
			start_y REAL,
			ts_ns INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_hand_id ON events(session_id, hand_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
