package database

import (
	"database/sql"
	"fmt"
)

// statements are idempotent so the schema can be applied on every start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL CHECK (role IN ('therapist', 'patient')),
		created_at    DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id             TEXT PRIMARY KEY,
		therapist_id   TEXT NOT NULL REFERENCES users(id),
		patient_id     TEXT REFERENCES users(id),
		session_code   TEXT NOT NULL UNIQUE,
		status         TEXT NOT NULL DEFAULT 'waiting' CHECK (status IN ('waiting', 'active', 'completed')),
		date_created   DATETIME NOT NULL,
		date_started   DATETIME,
		date_completed DATETIME,
		notes          TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		text       TEXT NOT NULL,
		order_num  INTEGER NOT NULL,
		timestamp  DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS emotion_analyses (
		id                  TEXT PRIMARY KEY,
		question_id         TEXT NOT NULL UNIQUE REFERENCES questions(id),
		dominant_emotion    TEXT NOT NULL DEFAULT '',
		dominant_percentage REAL NOT NULL DEFAULT 0,
		avg_confidence      REAL NOT NULL DEFAULT 0,
		total_detections    INTEGER NOT NULL DEFAULT 0,
		emotion_counts      TEXT NOT NULL DEFAULT '{}',
		raw_data            TEXT NOT NULL DEFAULT '[]',
		analysis_duration   INTEGER NOT NULL DEFAULT 0,
		patient_response    TEXT NOT NULL DEFAULT '',
		timestamp           DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_therapist ON sessions(therapist_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_patient ON sessions(patient_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_session ON questions(session_id, order_num)`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_question ON emotion_analyses(question_id)`,
}

func ensureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
