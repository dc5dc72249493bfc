// Package common holds the sentinel errors shared by the server, the API
// client and both controllers. Match them with errors.Is.
package common

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Permission and identity.
	ErrPermissionDenied       = errors.New("permission denied")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrEmailInUse             = errors.New("email already in use")
	ErrInvalidToken           = errors.New("invalid token")

	// Remote data service.
	ErrNetworkFailure = errors.New("network failure")
	ErrUploadFailed   = errors.New("upload failed")
	ErrWriteFailed    = errors.New("write failed")
	ErrNotFound       = errors.New("not found")

	// Controllers.
	ErrPlaybackResource = errors.New("playback resource error")
	ErrSuperseded       = errors.New("superseded by a newer request")
	ErrInvalidState     = errors.New("invalid state for operation")
)

// NetworkError wraps err as a retryable network failure. Deadline overruns
// are reported as timeouts so callers can tell them apart in logs.
func NetworkError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: timed out: %w: %w", op, ErrNetworkFailure, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrNetworkFailure, err)
}

// IsRetryable reports whether the presentation layer may retry the action
// that produced err.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkFailure) ||
		errors.Is(err, ErrUploadFailed) ||
		errors.Is(err, ErrWriteFailed)
}
