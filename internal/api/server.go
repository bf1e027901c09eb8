package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"therapymeet/internal/auth"
	"therapymeet/internal/database"
	"therapymeet/internal/realtime"
	"therapymeet/internal/session"
	"therapymeet/pkg/types"
)

// Server is the HTTP surface: authentication, session management and the
// emotion analysis endpoints. It holds no business logic beyond request
// decoding and access checks.
type Server struct {
	db       *database.Manager
	sessions *session.Manager
	tokens   *auth.TokenManager
	registry *realtime.Registry
	router   *http.ServeMux
}

func NewServer(db *database.Manager, sessions *session.Manager, tokens *auth.TokenManager, registry *realtime.Registry) *Server {
	s := &Server{
		db:       db,
		sessions: sessions,
		tokens:   tokens,
		registry: registry,
		router:   http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/auth/register", s.wrap(s.handleRegister))
	s.router.Handle("/api/auth/login", s.wrap(s.handleLogin))
	s.router.Handle("/api/auth/profile", s.wrap(s.handleProfile))
	s.router.Handle("/api/sessions", s.wrap(s.handleSessions))
	s.router.Handle("/api/sessions/", s.wrap(s.handleSessionSubtree))
	s.router.Handle("/api/realtime/continuous-emotion", s.wrap(s.handleContinuousEmotion))
	s.router.Handle("/api/realtime/session/", s.wrap(s.handleEmotionTimeline))
	s.router.Handle("/api/health", s.wrap(s.healthCheck))
}

func (s *Server) wrap(handler http.HandlerFunc) http.Handler {
	return s.corsMiddleware(s.jsonMiddleware(handler))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// authenticate resolves the bearer token to a user, writing the error
// response itself on failure.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) *types.User {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		s.sendError(w, "Authorization required", http.StatusUnauthorized)
		return nil
	}

	userID, err := s.tokens.Verify(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		s.sendError(w, "Invalid or expired token", http.StatusUnauthorized)
		return nil
	}

	user, err := s.db.GetUserByID(r.Context(), userID)
	if err != nil {
		s.sendError(w, "Invalid or expired token", http.StatusUnauthorized)
		return nil
	}
	return user
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.db.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: s.registry.Stats(),
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, response)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
