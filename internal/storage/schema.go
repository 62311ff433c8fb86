package storage

import "fmt"

const schemaFrames = `
CREATE TABLE IF NOT EXISTS frames (
	fid TEXT PRIMARY KEY,
	series_id TEXT NOT NULL,
	season INTEGER NOT NULL,
	episode INTEGER NOT NULL,
	frame INTEGER NOT NULL,
	path TEXT NOT NULL,
	size INTEGER NOT NULL,
	modified INTEGER NOT NULL
);`

const schemaFramesIndexes = `
CREATE INDEX IF NOT EXISTS idx_frames_episode ON frames(series_id, season, episode, frame);`

const schemaSubtitles = `
CREATE TABLE IF NOT EXISTS subtitles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	series_id TEXT NOT NULL,
	season INTEGER NOT NULL,
	episode INTEGER NOT NULL,
	start_frame INTEGER NOT NULL,
	end_frame INTEGER NOT NULL CHECK (end_frame >= start_frame),
	text TEXT NOT NULL
);`

const schemaSubtitlesIndexes = `
CREATE INDEX IF NOT EXISTS idx_subtitles_episode ON subtitles(series_id, season, episode, start_frame);`

const schemaAuth = `
CREATE TABLE IF NOT EXISTS auth_users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_admin INTEGER NOT NULL DEFAULT 0,
	tier TEXT NOT NULL DEFAULT 'free' CHECK (tier IN ('free', 'pro')),
	created_at INTEGER NOT NULL,
	last_login INTEGER
);
CREATE TABLE IF NOT EXISTS auth_sessions (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	FOREIGN KEY (user_id) REFERENCES auth_users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_auth_sessions_user ON auth_sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_auth_sessions_expires ON auth_sessions(expires_at);`

const schemaPreferences = `
CREATE TABLE IF NOT EXISTS user_preferences (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
);`

const schemaScanRuns = `
CREATE TABLE IF NOT EXISTS scan_runs (
	id TEXT PRIMARY KEY,
	root TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER,
	status TEXT NOT NULL,
	frames INTEGER NOT NULL DEFAULT 0,
	error TEXT
);`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY
);`

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			schemaFrames,
			schemaFramesIndexes,
			schemaSubtitles,
			schemaSubtitlesIndexes,
			schemaScanRuns,
		},
	},
	{
		version: 2,
		statements: []string{
			schemaAuth,
			schemaPreferences,
		},
	},
}

func (s *Store) MigrateSchema() error {
	if s == nil || s.db == nil {
		return errNoDB
	}

	if _, err := s.db.Exec(schemaMigrations); err != nil {
		return fmt.Errorf("storage: create schema_migrations table: %w", err)
	}

	current, err := s.currentSchemaVersion()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return err
		}
		current = m.version
	}
	return nil
}

func (s *Store) currentSchemaVersion() (int, error) {
	var version int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("storage: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) applyMigration(m migration) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: start migration %d: %w", m.version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, statement := range m.statements {
		if _, err = tx.Exec(statement); err != nil {
			return fmt.Errorf("storage: migration %d failed: %w", m.version, err)
		}
	}

	if _, err = tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
		return fmt.Errorf("storage: record migration %d: %w", m.version, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit migration %d: %w", m.version, err)
	}
	return nil
}
