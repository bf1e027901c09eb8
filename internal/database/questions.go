package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"therapymeet/pkg/types"
)

// CreateQuestion inserts a question, assigning the next order number within
// the session. The MAX+1 read happens inside the write loop so concurrent
// inserts cannot race on the same order number.
func (m *Manager) CreateQuestion(ctx context.Context, question *types.Question) error {
	return m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(order_num), 0) + 1 FROM questions WHERE session_id = ?",
			question.SessionID,
		)
		if err := row.Scan(&question.OrderNum); err != nil {
			return fmt.Errorf("failed to compute order number: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO questions (id, session_id, text, order_num, timestamp) VALUES (?, ?, ?, ?, ?)",
			question.ID,
			question.SessionID,
			question.Text,
			question.OrderNum,
			question.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert question: %w", err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit question creation: %w", err)
		}
		return nil
	})
}

func (m *Manager) GetQuestion(ctx context.Context, id string) (*types.Question, error) {
	row := m.db.QueryRowContext(ctx,
		"SELECT id, session_id, text, order_num, timestamp FROM questions WHERE id = ?", id)

	var question types.Question
	err := row.Scan(&question.ID, &question.SessionID, &question.Text, &question.OrderNum, &question.Timestamp)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to query question: %w", err)
	}

	return &question, nil
}

// ListQuestions returns a session's questions in ask order, each carrying its
// emotion analysis summary when one has been recorded.
func (m *Manager) ListQuestions(ctx context.Context, sessionID string) ([]*types.Question, error) {
	query := `
		SELECT q.id, q.session_id, q.text, q.order_num, q.timestamp,
		       a.id, a.dominant_emotion, a.dominant_percentage, a.avg_confidence,
		       a.total_detections, a.emotion_counts, a.raw_data,
		       a.analysis_duration, a.patient_response, a.timestamp
		FROM questions q
		LEFT JOIN emotion_analyses a ON a.question_id = q.id
		WHERE q.session_id = ?
		ORDER BY q.order_num ASC
	`

	rows, err := m.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var questions []*types.Question
	for rows.Next() {
		var question types.Question
		var analysisID, dominant, countsJSON, rawJSON, response sql.NullString
		var dominantPct, avgConfidence sql.NullFloat64
		var detections, duration sql.NullInt64
		var analysisTime sql.NullTime

		err := rows.Scan(
			&question.ID, &question.SessionID, &question.Text, &question.OrderNum, &question.Timestamp,
			&analysisID, &dominant, &dominantPct, &avgConfidence,
			&detections, &countsJSON, &rawJSON,
			&duration, &response, &analysisTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}

		if analysisID.Valid {
			analysis := &types.EmotionAnalysis{
				ID:                 analysisID.String,
				QuestionID:         question.ID,
				DominantEmotion:    dominant.String,
				DominantPercentage: dominantPct.Float64,
				AvgConfidence:      avgConfidence.Float64,
				TotalDetections:    int(detections.Int64),
				AnalysisDuration:   int(duration.Int64),
				PatientResponse:    response.String,
				Timestamp:          analysisTime.Time,
			}
			if err := json.Unmarshal([]byte(countsJSON.String), &analysis.EmotionCounts); err != nil {
				return nil, fmt.Errorf("failed to unmarshal emotion counts: %w", err)
			}
			if err := json.Unmarshal([]byte(rawJSON.String), &analysis.RawData); err != nil {
				return nil, fmt.Errorf("failed to unmarshal raw samples: %w", err)
			}
			question.EmotionAnalysis = analysis
		}

		questions = append(questions, &question)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating question rows: %w", err)
	}

	return questions, nil
}

// UpsertEmotionAnalysis stores the summary for a question, replacing any
// previous one. Recomputation after late samples overwrites in place.
func (m *Manager) UpsertEmotionAnalysis(ctx context.Context, analysis *types.EmotionAnalysis) error {
	return m.executeWrite(func(db *sql.DB) error {
		countsJSON, err := json.Marshal(analysis.EmotionCounts)
		if err != nil {
			return fmt.Errorf("failed to marshal emotion counts: %w", err)
		}
		rawJSON, err := json.Marshal(analysis.RawData)
		if err != nil {
			return fmt.Errorf("failed to marshal raw samples: %w", err)
		}

		query := `
			INSERT INTO emotion_analyses (id, question_id, dominant_emotion, dominant_percentage, avg_confidence,
				total_detections, emotion_counts, raw_data, analysis_duration, patient_response, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(question_id) DO UPDATE SET
				dominant_emotion = excluded.dominant_emotion,
				dominant_percentage = excluded.dominant_percentage,
				avg_confidence = excluded.avg_confidence,
				total_detections = excluded.total_detections,
				emotion_counts = excluded.emotion_counts,
				raw_data = excluded.raw_data,
				analysis_duration = excluded.analysis_duration,
				patient_response = excluded.patient_response,
				timestamp = excluded.timestamp
		`
		_, err = db.ExecContext(ctx, query,
			analysis.ID,
			analysis.QuestionID,
			analysis.DominantEmotion,
			analysis.DominantPercentage,
			analysis.AvgConfidence,
			analysis.TotalDetections,
			string(countsJSON),
			string(rawJSON),
			analysis.AnalysisDuration,
			analysis.PatientResponse,
			analysis.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert emotion analysis: %w", err)
		}
		return nil
	})
}

func (m *Manager) GetEmotionAnalysisByQuestion(ctx context.Context, questionID string) (*types.EmotionAnalysis, error) {
	query := `
		SELECT id, question_id, dominant_emotion, dominant_percentage, avg_confidence,
		       total_detections, emotion_counts, raw_data, analysis_duration, patient_response, timestamp
		FROM emotion_analyses
		WHERE question_id = ?
	`

	row := m.db.QueryRowContext(ctx, query, questionID)

	var analysis types.EmotionAnalysis
	var countsJSON, rawJSON string
	err := row.Scan(
		&analysis.ID,
		&analysis.QuestionID,
		&analysis.DominantEmotion,
		&analysis.DominantPercentage,
		&analysis.AvgConfidence,
		&analysis.TotalDetections,
		&countsJSON,
		&rawJSON,
		&analysis.AnalysisDuration,
		&analysis.PatientResponse,
		&analysis.Timestamp,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("failed to query emotion analysis: %w", err)
	}

	if err := json.Unmarshal([]byte(countsJSON), &analysis.EmotionCounts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal emotion counts: %w", err)
	}
	if err := json.Unmarshal([]byte(rawJSON), &analysis.RawData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw samples: %w", err)
	}

	return &analysis, nil
}
