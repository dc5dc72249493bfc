package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rx3lixir/voicecards/internal/common"
	"github.com/rx3lixir/voicecards/internal/models"
	"github.com/rx3lixir/voicecards/internal/session"
	"github.com/rx3lixir/voicecards/pkg/password"
)

// Handles creating a new user and signing them in
func (s *Server) HandleSignup(w http.ResponseWriter, r *http.Request) {
	req := new(SignupRequest)
	if err := decodeJSON(r, req); err != nil {
		s.handleError(w, err)
		return
	}

	if err := validateSignupRequest(req); err != nil {
		s.log.Warn("Signup validation failed", "user_email", req.Email, "error", err)
		s.handleError(w, err)
		return
	}

	// Password hashing
	hashedPassword, err := password.Hash(req.Password)
	if err != nil {
		s.handleError(w, fmt.Errorf("failed to hash password: %w", err))
		return
	}

	newUser := &models.User{
		Username:     req.Username,
		Email:        strings.ToLower(req.Email),
		PasswordHash: string(hashedPassword),
	}

	if err := s.store.CreateUser(r.Context(), newUser); err != nil {
		s.handleError(w, err)
		return
	}

	resp, err := s.openSession(r.Context(), newUser)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.log.Info("User created successfully", "user_id", newUser.AuthID, "user_email", newUser.Email)

	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) HandleSignin(w http.ResponseWriter, r *http.Request) {
	req := new(SigninRequest)
	if err := decodeJSON(r, req); err != nil {
		s.handleError(w, err)
		return
	}

	if err := validateSigninRequest(req); err != nil {
		s.handleError(w, err)
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), strings.ToLower(req.Email))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.handleError(w, common.ErrInvalidCredentials)
			return
		}
		s.handleError(w, err)
		return
	}

	ok, err := password.Compare(user.PasswordHash, req.Password)
	if err != nil || !ok {
		s.log.Warn("Failed sign in attempt", "user_email", user.Email)
		s.handleError(w, common.ErrInvalidCredentials)
		return
	}

	resp, err := s.openSession(r.Context(), user)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.log.Info("User signed in", "user_id", user.AuthID)

	s.respondJSON(w, http.StatusOK, resp)
}

// HandleRefreshToken rotates the session: the old one is dropped
func (s *Server) HandleRefreshToken(w http.ResponseWriter, r *http.Request) {
	req := new(RefreshRequest)
	if err := decodeJSON(r, req); err != nil {
		s.handleError(w, err)
		return
	}

	claims, err := s.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		s.handleError(w, NewUnauthorizedError("Invalid or expired refresh token"))
		return
	}

	if _, err := s.sessions.GetSession(r.Context(), claims.SessionID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			s.handleError(w, NewUnauthorizedError("Session has ended"))
			return
		}
		s.handleError(w, err)
		return
	}

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.handleError(w, NewUnauthorizedError("User no longer exists"))
			return
		}
		s.handleError(w, err)
		return
	}

	if err := s.sessions.DeleteSession(r.Context(), claims.SessionID); err != nil {
		s.log.Warn("Failed to drop old session", "session_id", claims.SessionID, "error", err)
	}

	resp, err := s.openSession(r.Context(), user)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) HandleSignout(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		s.handleError(w, common.ErrAuthenticationRequired)
		return
	}

	if err := s.sessions.DeleteSession(r.Context(), claims.SessionID); err != nil {
		s.handleError(w, err)
		return
	}

	s.log.Info("User signed out", "user_id", claims.UserID)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		s.handleError(w, common.ErrAuthenticationRequired)
		return
	}

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, user)
}

// HandleUpdateCurrentUser changes username and/or email. Cards posted
// earlier keep the name they were posted with.
func (s *Server) HandleUpdateCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		s.handleError(w, common.ErrAuthenticationRequired)
		return
	}

	req := new(UpdateUserRequest)
	if err := decodeJSON(r, req); err != nil {
		s.handleError(w, err)
		return
	}

	if err := validateUpdateUserRequest(req); err != nil {
		s.handleError(w, err)
		return
	}

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		s.handleError(w, err)
		return
	}

	if req.Username != nil {
		user.Username = *req.Username
	}
	if req.Email != nil {
		user.Email = *req.Email
	}

	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		s.handleError(w, err)
		return
	}

	s.log.Info("User updated", "user_id", user.AuthID)

	s.respondJSON(w, http.StatusOK, user)
}

// HandleDeleteCurrentUser removes the account after a password check and
// ends every session it had
func (s *Server) HandleDeleteCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		s.handleError(w, common.ErrAuthenticationRequired)
		return
	}

	req := new(DeleteUserRequest)
	if err := decodeJSON(r, req); err != nil {
		s.handleError(w, err)
		return
	}

	if req.Password == "" {
		s.handleError(w, NewValidationError("Password is required"))
		return
	}

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		s.handleError(w, err)
		return
	}

	ok, err = password.Compare(user.PasswordHash, req.Password)
	if err != nil || !ok {
		s.log.Warn("Account deletion with wrong password", "user_id", user.AuthID)
		s.handleError(w, common.ErrInvalidCredentials)
		return
	}

	if err := s.store.DeleteUser(r.Context(), user.AuthID); err != nil {
		s.handleError(w, err)
		return
	}

	if err := s.sessions.DeleteUserSessions(r.Context(), user.AuthID); err != nil {
		s.log.Error("Failed to end sessions of deleted user", "user_id", user.AuthID, "error", err)
	}

	s.log.Info("User deleted", "user_id", user.AuthID)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) openSession(ctx context.Context, user *models.User) (*AuthResponse, error) {
	tokens, err := s.jwtService.GenerateTokenPair(user.AuthID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	sess := &session.Session{
		ID:        tokens.SessionID,
		UserID:    user.AuthID,
		Username:  user.Username,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.sessions.CreateSession(ctx, sess, s.jwtService.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, nil
}
