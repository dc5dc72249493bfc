package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rx3lixir/voicecards/internal/common"
)

// APIError is a non-2xx answer from the service. It unwraps to the matching
// common sentinel, so callers only need errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("service returned %d", e.Status)
	}
	return fmt.Sprintf("service returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "invalid_credentials":
		return common.ErrInvalidCredentials
	case "unauthorized":
		return common.ErrAuthenticationRequired
	case "email_in_use":
		return common.ErrEmailInUse
	case "not_found":
		return common.ErrNotFound
	case "upload_failed":
		return common.ErrUploadFailed
	case "write_failed":
		return common.ErrWriteFailed
	}

	switch e.Status {
	case http.StatusUnauthorized:
		return common.ErrAuthenticationRequired
	case http.StatusNotFound:
		return common.ErrNotFound
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return common.ErrNetworkFailure
	}

	return nil
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}

	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Error
	}

	return apiErr
}
