package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"therapymeet/internal/database"
	"therapymeet/pkg/types"
)

type ContinuousEmotionRequest struct {
	QuestionID      string                `json:"question_id"`
	Duration        int                   `json:"duration"`
	PatientResponse string                `json:"patient_response"`
	Emotions        []types.EmotionSample `json:"emotions"`
}

// handleContinuousEmotion recomputes a question's emotion summary from the
// raw samples the client captured during the analysis window and stores it,
// replacing any earlier summary for the same question.
func (s *Server) handleContinuousEmotion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := s.authenticate(w, r)
	if user == nil {
		return
	}

	var req ContinuousEmotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.QuestionID == "" {
		s.sendError(w, "Question ID is required", http.StatusBadRequest)
		return
	}

	question, err := s.db.GetQuestion(r.Context(), req.QuestionID)
	if err != nil {
		if errors.Is(err, database.ErrQuestionNotFound) {
			s.sendError(w, "Question not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to store analysis", http.StatusInternalServerError)
		}
		return
	}
	sess, err := s.db.GetSession(r.Context(), question.SessionID)
	if err != nil {
		s.sendError(w, "Failed to store analysis", http.StatusInternalServerError)
		return
	}
	if !sessionAccessible(user, sess) {
		s.sendError(w, "Access denied", http.StatusForbidden)
		return
	}

	analysis := summarizeSamples(req.Emotions)
	analysis.ID = uuid.New().String()
	analysis.QuestionID = question.ID
	analysis.AnalysisDuration = req.Duration
	analysis.PatientResponse = req.PatientResponse
	analysis.Timestamp = time.Now().UTC()

	if err := s.db.UpsertEmotionAnalysis(r.Context(), analysis); err != nil {
		s.sendError(w, "Failed to store analysis", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]any{"analysis": analysis})
}

// summarizeSamples reduces raw detections to the stored summary: per-emotion
// counts, the dominant emotion with its share, and the mean confidence.
func summarizeSamples(samples []types.EmotionSample) *types.EmotionAnalysis {
	analysis := &types.EmotionAnalysis{
		TotalDetections: len(samples),
		EmotionCounts:   make(map[string]int),
		RawData:         samples,
	}
	if len(samples) == 0 {
		analysis.RawData = []types.EmotionSample{}
		return analysis
	}

	var confidenceSum float64
	for _, sample := range samples {
		analysis.EmotionCounts[sample.Emotion]++
		confidenceSum += sample.Confidence
	}

	for emotion, count := range analysis.EmotionCounts {
		if count > analysis.EmotionCounts[analysis.DominantEmotion] || analysis.DominantEmotion == "" {
			analysis.DominantEmotion = emotion
		}
	}
	analysis.DominantPercentage = float64(analysis.EmotionCounts[analysis.DominantEmotion]) / float64(len(samples)) * 100
	analysis.AvgConfidence = confidenceSum / float64(len(samples))

	return analysis
}

// handleEmotionTimeline serves GET /api/realtime/session/{id}/emotion-timeline:
// the session's questions in ask order with their stored summaries.
func (s *Server) handleEmotionTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := s.authenticate(w, r)
	if user == nil {
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/realtime/session/"), "/")
	if len(parts) != 2 || parts[1] != "emotion-timeline" {
		s.sendError(w, "Not found", http.StatusNotFound)
		return
	}
	sessionID := parts[0]

	sess, err := s.db.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get timeline", http.StatusInternalServerError)
		}
		return
	}
	if !sessionAccessible(user, sess) {
		s.sendError(w, "Access denied", http.StatusForbidden)
		return
	}

	questions, err := s.db.ListQuestions(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Failed to get timeline", http.StatusInternalServerError)
		return
	}
	if questions == nil {
		questions = []*types.Question{}
	}

	s.sendJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"timeline":   questions,
	})
}
