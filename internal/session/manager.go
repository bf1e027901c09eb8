package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"therapymeet/internal/database"
	"therapymeet/pkg/types"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8
	codeAttempts = 10
)

// Manager owns the persisted session lifecycle: creation by therapists,
// joining by patients, question recording and completion. Live room state is
// handled separately by the realtime layer.
type Manager struct {
	db *database.Manager
}

func NewManager(db *database.Manager) *Manager {
	return &Manager{db: db}
}

// CreateSession creates a waiting session owned by the therapist, with a
// fresh unique 8-character join code.
func (m *Manager) CreateSession(ctx context.Context, therapistID string) (*types.Session, error) {
	therapist, err := m.db.GetUserByID(ctx, therapistID)
	if err != nil {
		return nil, err
	}
	if therapist.Role != types.RoleTherapist {
		return nil, ErrNotTherapist
	}

	code, err := m.generateCode(ctx)
	if err != nil {
		return nil, err
	}

	session := &types.Session{
		ID:          uuid.New().String(),
		TherapistID: therapist.ID,
		SessionCode: code,
		Status:      types.SessionStatusWaiting,
		DateCreated: time.Now().UTC(),
		Therapist:   therapist.Username,
	}
	if err := m.db.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("Created session: id=%s code=%s therapist=%s", session.ID, code, therapist.Username)
	return session, nil
}

func (m *Manager) generateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		buf := make([]byte, codeLength)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for i, b := range buf {
			buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
		}
		code := string(buf)

		_, err := m.db.GetSessionByCode(ctx, code)
		if errors.Is(err, database.ErrSessionNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", ErrCodeGeneration
}

// ListSessions returns the user's sessions: owned ones for therapists,
// joined ones for patients.
func (m *Manager) ListSessions(ctx context.Context, user *types.User) ([]*types.Session, error) {
	if user.Role == types.RoleTherapist {
		return m.db.ListSessionsByTherapist(ctx, user.ID)
	}
	return m.db.ListSessionsByPatient(ctx, user.ID)
}

// SessionDetail is a session together with its question history.
type SessionDetail struct {
	Session   *types.Session    `json:"session"`
	Questions []*types.Question `json:"questions"`
}

func (m *Manager) GetSessionDetail(ctx context.Context, sessionID string) (*SessionDetail, error) {
	session, err := m.db.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	questions, err := m.db.ListQuestions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{Session: session, Questions: questions}, nil
}

// JoinSession attaches the patient to the session identified by code. The
// first join flips the session to active; rejoining the same session is
// allowed, a different patient is rejected.
func (m *Manager) JoinSession(ctx context.Context, code, patientID string) (*types.Session, error) {
	patient, err := m.db.GetUserByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.Role != types.RolePatient {
		return nil, ErrNotPatient
	}

	session, err := m.db.GetSessionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if session.Status == types.SessionStatusCompleted {
		return nil, ErrSessionCompleted
	}
	if session.PatientID != nil && *session.PatientID != patient.ID {
		return nil, ErrSessionTaken
	}

	if session.PatientID == nil {
		now := time.Now().UTC()
		session.PatientID = &patient.ID
		session.Status = types.SessionStatusActive
		session.DateStarted = &now
		session.Patient = patient.Username
		if err := m.db.UpdateSession(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to join session: %w", err)
		}
		log.Printf("Patient joined session: id=%s code=%s patient=%s", session.ID, code, patient.Username)
	}

	return session, nil
}

// AddQuestion records a question the therapist asked during the session.
func (m *Manager) AddQuestion(ctx context.Context, sessionID, therapistID, text string) (*types.Question, error) {
	if text == "" {
		return nil, ErrEmptyQuestion
	}

	session, err := m.db.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TherapistID != therapistID {
		return nil, ErrNotSessionOwner
	}
	if session.Status == types.SessionStatusCompleted {
		return nil, ErrSessionCompleted
	}

	question := &types.Question{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	if err := m.db.CreateQuestion(ctx, question); err != nil {
		return nil, fmt.Errorf("failed to add question: %w", err)
	}

	return question, nil
}

// CompleteSession marks the session completed and stores the therapist's
// closing notes. Completing twice is an error.
func (m *Manager) CompleteSession(ctx context.Context, sessionID, therapistID, notes string) (*types.Session, error) {
	session, err := m.db.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TherapistID != therapistID {
		return nil, ErrNotSessionOwner
	}
	if session.Status == types.SessionStatusCompleted {
		return nil, ErrSessionCompleted
	}

	now := time.Now().UTC()
	session.Status = types.SessionStatusCompleted
	session.DateCompleted = &now
	if notes != "" {
		session.Notes = notes
	}
	if err := m.db.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to complete session: %w", err)
	}

	log.Printf("Completed session: id=%s code=%s", session.ID, session.SessionCode)
	return session, nil
}

// Dashboard aggregates per-question emotion summaries into session-level
// statistics.
type Dashboard struct {
	SessionID          string         `json:"session_id"`
	Status             string         `json:"status"`
	TotalQuestions     int            `json:"total_questions"`
	AnalyzedQuestions  int            `json:"analyzed_questions"`
	EmotionCounts      map[string]int `json:"emotion_counts"`
	DominantEmotion    string         `json:"dominant_emotion"`
	DominantPercentage float64        `json:"dominant_percentage"`
	AvgConfidence      float64        `json:"avg_confidence"`
}

func (m *Manager) GetDashboard(ctx context.Context, sessionID string) (*Dashboard, error) {
	session, err := m.db.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	questions, err := m.db.ListQuestions(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	dashboard := &Dashboard{
		SessionID:      session.ID,
		Status:         session.Status,
		TotalQuestions: len(questions),
		EmotionCounts:  make(map[string]int),
	}

	var confidenceSum float64
	for _, question := range questions {
		analysis := question.EmotionAnalysis
		if analysis == nil {
			continue
		}
		dashboard.AnalyzedQuestions++
		confidenceSum += analysis.AvgConfidence
		for emotion, count := range analysis.EmotionCounts {
			dashboard.EmotionCounts[emotion] += count
		}
	}

	total := 0
	for emotion, count := range dashboard.EmotionCounts {
		total += count
		if count > dashboard.EmotionCounts[dashboard.DominantEmotion] || dashboard.DominantEmotion == "" {
			dashboard.DominantEmotion = emotion
		}
	}
	if total > 0 {
		dashboard.DominantPercentage = float64(dashboard.EmotionCounts[dashboard.DominantEmotion]) / float64(total) * 100
	}
	if dashboard.AnalyzedQuestions > 0 {
		dashboard.AvgConfidence = confidenceSum / float64(dashboard.AnalyzedQuestions)
	}

	return dashboard, nil
}

// CanProceed reports whether the question already has a stored emotion
// analysis, which gates advancing to the next question in the client.
func (m *Manager) CanProceed(ctx context.Context, sessionID, questionID string) (bool, error) {
	question, err := m.db.GetQuestion(ctx, questionID)
	if err != nil {
		return false, err
	}
	if question.SessionID != sessionID {
		return false, ErrQuestionNotInScope
	}

	_, err = m.db.GetEmotionAnalysisByQuestion(ctx, questionID)
	if errors.Is(err, database.ErrAnalysisNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
