package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"therapymeet/internal/auth"
	"therapymeet/internal/database"
	"therapymeet/pkg/types"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  *types.User `json:"user"`
	Token string      `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if len(req.Username) < 3 || !types.IsValidUsername(req.Username) {
		s.sendError(w, "Username must be at least 3 characters", http.StatusBadRequest)
		return
	}
	if req.Email == "" {
		s.sendError(w, "Email is required", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 6 {
		s.sendError(w, "Password must be at least 6 characters", http.StatusBadRequest)
		return
	}
	if !types.IsValidRole(req.Role) {
		s.sendError(w, "Role must be therapist or patient", http.StatusBadRequest)
		return
	}

	if _, err := s.db.GetUserByEmail(r.Context(), req.Email); err == nil {
		s.sendError(w, "Email already registered", http.StatusConflict)
		return
	}
	if _, err := s.db.GetUserByUsername(r.Context(), req.Username); err == nil {
		s.sendError(w, "Username already taken", http.StatusConflict)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.sendError(w, "Failed to register", http.StatusInternalServerError)
		return
	}

	user := &types.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.CreateUser(r.Context(), user); err != nil {
		s.sendError(w, "Failed to register", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusCreated, AuthResponse{User: user, Token: s.tokens.Issue(user.ID)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	user, err := s.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		// Same response as a bad password so login probing reveals nothing.
		s.sendError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.sendError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	s.sendJSON(w, http.StatusOK, AuthResponse{User: user, Token: s.tokens.Issue(user.ID)})
}

type UpdateProfileRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user := s.authenticate(w, r)
	if user == nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.sendJSON(w, http.StatusOK, user)
	case http.MethodPut:
		s.updateProfile(w, r, user)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request, user *types.User) {
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Username != "" {
		if len(req.Username) < 3 || !types.IsValidUsername(req.Username) {
			s.sendError(w, "Username must be at least 3 characters", http.StatusBadRequest)
			return
		}
		user.Username = req.Username
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.Password != "" {
		if len(req.Password) < 6 {
			s.sendError(w, "Password must be at least 6 characters", http.StatusBadRequest)
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			s.sendError(w, "Failed to update profile", http.StatusInternalServerError)
			return
		}
		user.PasswordHash = hash
	}

	if err := s.db.UpdateUser(r.Context(), user); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			s.sendError(w, "User not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to update profile", http.StatusInternalServerError)
		}
		return
	}

	s.sendJSON(w, http.StatusOK, user)
}
