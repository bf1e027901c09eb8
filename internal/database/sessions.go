package database

import (
	"context"
	"database/sql"
	"fmt"

	"therapymeet/pkg/types"
)

const sessionColumns = `
	s.id, s.therapist_id, s.patient_id, s.session_code, s.status,
	s.date_created, s.date_started, s.date_completed, s.notes,
	t.username, p.username
`

const sessionJoins = `
	FROM sessions s
	JOIN users t ON t.id = s.therapist_id
	LEFT JOIN users p ON p.id = s.patient_id
`

func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO sessions (id, therapist_id, patient_id, session_code, status, date_created, date_started, date_completed, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			session.ID,
			session.TherapistID,
			session.PatientID,
			session.SessionCode,
			session.Status,
			session.DateCreated,
			session.DateStarted,
			session.DateCompleted,
			session.Notes,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

func (m *Manager) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := m.db.QueryRowContext(ctx, "SELECT "+sessionColumns+sessionJoins+" WHERE s.id = ?", id)
	return scanSession(row)
}

func (m *Manager) GetSessionByCode(ctx context.Context, code string) (*types.Session, error) {
	row := m.db.QueryRowContext(ctx, "SELECT "+sessionColumns+sessionJoins+" WHERE s.session_code = ?", code)
	return scanSession(row)
}

// ListSessionsByTherapist returns the therapist's sessions, newest first.
func (m *Manager) ListSessionsByTherapist(ctx context.Context, therapistID string) ([]*types.Session, error) {
	return m.querySessions(ctx, "SELECT "+sessionColumns+sessionJoins+" WHERE s.therapist_id = ? ORDER BY s.date_created DESC", therapistID)
}

// ListSessionsByPatient returns the patient's sessions, newest first.
func (m *Manager) ListSessionsByPatient(ctx context.Context, patientID string) ([]*types.Session, error) {
	return m.querySessions(ctx, "SELECT "+sessionColumns+sessionJoins+" WHERE s.patient_id = ? ORDER BY s.date_created DESC", patientID)
}

func (m *Manager) querySessions(ctx context.Context, query string, arg any) ([]*types.Session, error) {
	rows, err := m.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

// UpdateSession persists patient assignment, status, lifecycle timestamps and
// notes. The session code and therapist never change after creation.
func (m *Manager) UpdateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			UPDATE sessions
			SET patient_id = ?, status = ?, date_started = ?, date_completed = ?, notes = ?
			WHERE id = ?
		`
		result, err := db.ExecContext(ctx, query,
			session.PatientID,
			session.Status,
			session.DateStarted,
			session.DateCompleted,
			session.Notes,
			session.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read update result: %w", err)
		}
		if affected == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var session types.Session
	var patientID sql.NullString
	var dateStarted, dateCompleted sql.NullTime
	var patientName sql.NullString

	err := row.Scan(
		&session.ID,
		&session.TherapistID,
		&patientID,
		&session.SessionCode,
		&session.Status,
		&session.DateCreated,
		&dateStarted,
		&dateCompleted,
		&session.Notes,
		&session.Therapist,
		&patientName,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if patientID.Valid {
		session.PatientID = &patientID.String
	}
	if dateStarted.Valid {
		session.DateStarted = &dateStarted.Time
	}
	if dateCompleted.Valid {
		session.DateCompleted = &dateCompleted.Time
	}
	if patientName.Valid {
		session.Patient = patientName.String
	}

	return &session, nil
}
