package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"therapymeet/internal/database"
	"therapymeet/internal/session"
	"therapymeet/pkg/types"
)

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	user := s.authenticate(w, r)
	if user == nil {
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.createSession(w, r, user)
	case http.MethodGet:
		s.listSessions(w, r, user)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionSubtree routes /api/sessions/{...} paths:
//
//	POST /api/sessions/join/{code}
//	GET  /api/sessions/{id}
//	POST /api/sessions/{id}/questions
//	PUT  /api/sessions/{id}/complete
//	GET  /api/sessions/{id}/dashboard
//	GET  /api/sessions/{id}/questions/{qid}/can-proceed
func (s *Server) handleSessionSubtree(w http.ResponseWriter, r *http.Request) {
	user := s.authenticate(w, r)
	if user == nil {
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		s.sendError(w, "Session ID required", http.StatusBadRequest)
		return
	}

	if parts[0] == "join" && len(parts) == 2 && r.Method == http.MethodPost {
		s.joinSession(w, r, user, parts[1])
		return
	}

	sessionID := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.getSession(w, r, user, sessionID)
	case len(parts) == 2 && parts[1] == "questions" && r.Method == http.MethodPost:
		s.addQuestion(w, r, user, sessionID)
	case len(parts) == 2 && parts[1] == "complete" && r.Method == http.MethodPut:
		s.completeSession(w, r, user, sessionID)
	case len(parts) == 2 && parts[1] == "dashboard" && r.Method == http.MethodGet:
		s.getDashboard(w, r, user, sessionID)
	case len(parts) == 4 && parts[1] == "questions" && parts[3] == "can-proceed" && r.Method == http.MethodGet:
		s.canProceed(w, r, user, sessionID, parts[2])
	default:
		s.sendError(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request, user *types.User) {
	created, err := s.sessions.CreateSession(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, session.ErrNotTherapist) {
			s.sendError(w, "Only therapists can create sessions", http.StatusForbidden)
		} else {
			s.sendError(w, "Failed to create session", http.StatusInternalServerError)
		}
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]any{"session": created})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request, user *types.User) {
	sessions, err := s.sessions.ListSessions(r.Context(), user)
	if err != nil {
		s.sendError(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []*types.Session{}
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// sessionAccessible reports whether the user participates in the session.
func sessionAccessible(user *types.User, sess *types.Session) bool {
	if sess.TherapistID == user.ID {
		return true
	}
	return sess.PatientID != nil && *sess.PatientID == user.ID
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, user *types.User, sessionID string) {
	detail, err := s.sessions.GetSessionDetail(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		}
		return
	}
	if !sessionAccessible(user, detail.Session) {
		s.sendError(w, "Access denied", http.StatusForbidden)
		return
	}
	s.sendJSON(w, http.StatusOK, detail)
}

func (s *Server) joinSession(w http.ResponseWriter, r *http.Request, user *types.User, code string) {
	joined, err := s.sessions.JoinSession(r.Context(), strings.ToUpper(code), user.ID)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrSessionNotFound):
			s.sendError(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, session.ErrNotPatient):
			s.sendError(w, "Only patients can join sessions", http.StatusForbidden)
		case errors.Is(err, session.ErrSessionTaken):
			s.sendError(w, "Session already has a patient", http.StatusConflict)
		case errors.Is(err, session.ErrSessionCompleted):
			s.sendError(w, "Session is completed", http.StatusConflict)
		default:
			s.sendError(w, "Failed to join session", http.StatusInternalServerError)
		}
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"session": joined})
}

type AddQuestionRequest struct {
	Text string `json:"text"`
}

func (s *Server) addQuestion(w http.ResponseWriter, r *http.Request, user *types.User, sessionID string) {
	var req AddQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	question, err := s.sessions.AddQuestion(r.Context(), sessionID, user.ID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrSessionNotFound):
			s.sendError(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, session.ErrNotSessionOwner):
			s.sendError(w, "Access denied", http.StatusForbidden)
		case errors.Is(err, session.ErrEmptyQuestion):
			s.sendError(w, "Question text is required", http.StatusBadRequest)
		case errors.Is(err, session.ErrSessionCompleted):
			s.sendError(w, "Session is completed", http.StatusConflict)
		default:
			s.sendError(w, "Failed to add question", http.StatusInternalServerError)
		}
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]any{"question": question})
}

type CompleteSessionRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) completeSession(w http.ResponseWriter, r *http.Request, user *types.User, sessionID string) {
	var req CompleteSessionRequest
	if r.Body != nil {
		// Notes are optional; an empty body completes without them.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	completed, err := s.sessions.CompleteSession(r.Context(), sessionID, user.ID, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrSessionNotFound):
			s.sendError(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, session.ErrNotSessionOwner):
			s.sendError(w, "Access denied", http.StatusForbidden)
		case errors.Is(err, session.ErrSessionCompleted):
			s.sendError(w, "Session already completed", http.StatusConflict)
		default:
			s.sendError(w, "Failed to complete session", http.StatusInternalServerError)
		}
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"session": completed})
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request, user *types.User, sessionID string) {
	sess, err := s.db.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get dashboard", http.StatusInternalServerError)
		}
		return
	}
	if !sessionAccessible(user, sess) {
		s.sendError(w, "Access denied", http.StatusForbidden)
		return
	}

	dashboard, err := s.sessions.GetDashboard(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Failed to get dashboard", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, http.StatusOK, dashboard)
}

func (s *Server) canProceed(w http.ResponseWriter, r *http.Request, user *types.User, sessionID, questionID string) {
	sess, err := s.db.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to check question", http.StatusInternalServerError)
		}
		return
	}
	if !sessionAccessible(user, sess) {
		s.sendError(w, "Access denied", http.StatusForbidden)
		return
	}

	ok, err := s.sessions.CanProceed(r.Context(), sessionID, questionID)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrQuestionNotFound), errors.Is(err, session.ErrQuestionNotInScope):
			s.sendError(w, "Question not found", http.StatusNotFound)
		default:
			s.sendError(w, "Failed to check question", http.StatusInternalServerError)
		}
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"can_proceed": ok})
}
