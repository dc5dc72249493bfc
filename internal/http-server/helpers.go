package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rx3lixir/voicecards/internal/common"
)

// Machine readable error codes, mirrored by the API client
const (
	CodeValidation         = "validation"
	CodeNotFound           = "not_found"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeConflict           = "conflict"
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailInUse         = "email_in_use"
	CodeUploadFailed       = "upload_failed"
	CodeWriteFailed        = "write_failed"
	CodeInternal           = "internal"
)

// APIError represents the structure of error responses
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondJSON sends a JSON response with the given status code
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.log.Error("Failed to encode JSON response", "error", err)
		}
	}
}

// respondError sends an error response with appropriate status code
func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, APIError{
		Error: message,
		Code:  code,
	})
}

// handleError processes an error and sends the appropriate HTTP response
func (s *Server) handleError(w http.ResponseWriter, err error) {
	var validationErr *ValidationErr
	if errors.As(err, &validationErr) {
		s.respondError(w, http.StatusBadRequest, CodeValidation, validationErr.Error())
		return
	}

	var notFoundErr *NotFoundErr
	if errors.As(err, &notFoundErr) {
		s.respondError(w, http.StatusNotFound, CodeNotFound, notFoundErr.Error())
		return
	}

	var unauthorizedErr *UnauthorizedErr
	if errors.As(err, &unauthorizedErr) {
		s.respondError(w, http.StatusUnauthorized, CodeUnauthorized, unauthorizedErr.Error())
		return
	}

	var forbiddenErr *ForbiddenErr
	if errors.As(err, &forbiddenErr) {
		s.respondError(w, http.StatusForbidden, CodeForbidden, forbiddenErr.Error())
		return
	}

	var conflictErr *ConflictErr
	if errors.As(err, &conflictErr) {
		s.respondError(w, http.StatusConflict, CodeConflict, conflictErr.Error())
		return
	}

	switch {
	case errors.Is(err, common.ErrInvalidCredentials):
		s.respondError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password")
	case errors.Is(err, common.ErrAuthenticationRequired), errors.Is(err, common.ErrInvalidToken):
		s.respondError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
	case errors.Is(err, common.ErrEmailInUse):
		s.respondError(w, http.StatusConflict, CodeEmailInUse, "Email is already in use")
	case errors.Is(err, common.ErrNotFound):
		s.respondError(w, http.StatusNotFound, CodeNotFound, "Not found")
	case errors.Is(err, common.ErrUploadFailed):
		s.log.Error("Blob upload failed", "error", err)
		s.respondError(w, http.StatusBadGateway, CodeUploadFailed, "Failed to store audio")
	case errors.Is(err, common.ErrWriteFailed):
		s.log.Error("Write failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, CodeWriteFailed, "Failed to save voice card")
	default:
		s.log.Error("Internal server error", "error", err)
		s.respondError(w, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return NewValidationError("Invalid request body")
	}
	return nil
}

type ValidationErr struct {
	Message string
}

func (e *ValidationErr) Error() string {
	return e.Message
}

func NewValidationError(message string) error {
	return &ValidationErr{
		Message: message,
	}
}

type NotFoundErr struct {
	Message string
}

func (e *NotFoundErr) Error() string {
	return e.Message
}

func NewNotFoundError(message string) error {
	return &NotFoundErr{
		Message: message,
	}
}

type UnauthorizedErr struct {
	Message string
}

func (e *UnauthorizedErr) Error() string {
	return e.Message
}

func NewUnauthorizedError(message string) error {
	return &UnauthorizedErr{
		Message: message,
	}
}

type ForbiddenErr struct {
	Message string
}

func (e *ForbiddenErr) Error() string {
	return e.Message
}

func NewForbiddenError(message string) error {
	return &ForbiddenErr{
		Message: message,
	}
}

type ConflictErr struct {
	Message string
}

func (e *ConflictErr) Error() string {
	return e.Message
}

func NewConflictError(message string) error {
	return &ConflictErr{
		Message: message,
	}
}
