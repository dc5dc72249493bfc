package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rx3lixir/voicecards/internal/common"
	"github.com/rx3lixir/voicecards/pkg/s3storage"
)

// HandleUploadBlob stores the raw request body under the key from the path.
// Keys belong to the uploader ("{userId}-...") and are written once.
func (s *Server) HandleUploadBlob(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		s.handleError(w, common.ErrAuthenticationRequired)
		return
	}

	key := chi.URLParam(r, "key")
	if err := validateBlobKey(key); err != nil {
		s.handleError(w, err)
		return
	}

	if !ownsBlobKey(claims.UserID, key) {
		s.log.Warn("Blob upload to foreign key", "user_id", claims.UserID, "key", key)
		s.handleError(w, NewForbiddenError("Audio key must start with your user id"))
		return
	}

	exists, err := s.blobs.AudioExists(r.Context(), key)
	if err != nil {
		s.handleError(w, fmt.Errorf("failed to check audio blob: %w", err))
		return
	}
	if exists {
		s.handleError(w, NewConflictError("Audio already exists under this key"))
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.handleError(w, NewValidationError(fmt.Sprintf("Audio must not exceed %d bytes", maxErr.Limit)))
			return
		}
		s.handleError(w, NewValidationError("Failed to read audio body"))
		return
	}

	if len(data) == 0 {
		s.handleError(w, NewValidationError("Audio body is empty"))
		return
	}

	if _, err := s.blobs.UploadAudio(r.Context(), key, data, r.Header.Get("Content-Type")); err != nil {
		s.handleError(w, fmt.Errorf("%w: %w", common.ErrUploadFailed, err))
		return
	}

	s.log.Info("Audio uploaded", "key", key, "size", len(data))

	s.respondJSON(w, http.StatusCreated, UploadBlobResponse{
		Key: key,
		URL: s.blobURL(key),
	})
}

func (s *Server) HandleDownloadBlob(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := validateBlobKey(key); err != nil {
		s.handleError(w, err)
		return
	}

	obj, err := s.blobs.OpenAudio(r.Context(), key)
	if err != nil {
		if errors.Is(err, s3storage.ErrObjectNotFound) {
			s.handleError(w, NewNotFoundError("Audio not found"))
			return
		}
		s.handleError(w, err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj); err != nil {
		s.log.Warn("Audio stream interrupted", "key", key, "error", err)
	}
}

func ownsBlobKey(userID uuid.UUID, key string) bool {
	return strings.HasPrefix(key, userID.String()+"-")
}

func (s *Server) blobURL(key string) string {
	return s.opts.PublicURL + "/api/blobs/" + key
}
