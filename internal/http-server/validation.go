package httpserver

import (
	"regexp"
	"strings"

	"github.com/rx3lixir/voicecards/internal/models"
)

const (
	maxTitleLength       = 120
	maxDescriptionLength = 1000
)

var blobKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

func validateSignupRequest(req *SignupRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if err := validateUsername(req.Username); err != nil {
		return err
	}

	if err := validateEmail(req.Email); err != nil {
		return err
	}

	if err := validatePassword(req.Password); err != nil {
		return err
	}

	return nil
}

func validateUpdateUserRequest(req *UpdateUserRequest) error {
	if req.Username == nil && req.Email == nil {
		return NewValidationError("Nothing to update")
	}

	if req.Username != nil {
		*req.Username = strings.TrimSpace(*req.Username)
		if err := validateUsername(*req.Username); err != nil {
			return err
		}
	}

	if req.Email != nil {
		*req.Email = strings.ToLower(strings.TrimSpace(*req.Email))
		if err := validateEmail(*req.Email); err != nil {
			return err
		}
	}

	return nil
}

func validateUsername(username string) error {
	if username == "" {
		return NewValidationError("Username is required")
	}

	if len(username) < 2 {
		return NewValidationError("Username must be at least 2 characters long")
	}

	if len(username) > 28 {
		return NewValidationError("Username must be not more that 28 characters long")
	}

	return nil
}

func validateSigninRequest(req *SigninRequest) error {
	req.Email = strings.TrimSpace(req.Email)

	if err := validateEmail(req.Email); err != nil {
		return err
	}

	if req.Password == "" {
		return NewValidationError("Password is required")
	}

	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return NewValidationError("Email is required")
	}

	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return NewValidationError("Invalid email format")
	}

	return nil
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return NewValidationError("Password must be at least 8 characters")
	}

	hasUpper := false
	hasLower := false
	hasDigit := false
	hasSpecial := false

	for _, c := range pw {
		switch {
		case 'A' <= c && c <= 'Z':
			hasUpper = true
		case 'a' <= c && c <= 'z':
			hasLower = true
		case '0' <= c && c <= '9':
			hasDigit = true
		case strings.ContainsRune("!@#$%^&*", c):
			hasSpecial = true
		}
	}

	if !hasUpper {
		return NewValidationError("Password must contain an uppercase letter")
	}
	if !hasLower {
		return NewValidationError("Password must contain a lowercase letter")
	}
	if !hasDigit {
		return NewValidationError("Password must contain a number")
	}
	if !hasSpecial {
		return NewValidationError("Password must contain a special character")
	}

	return nil
}

func validateBlobKey(key string) error {
	if !blobKeyPattern.MatchString(key) {
		return NewValidationError("Blob key may only contain letters, digits, '.', '-' and '_'")
	}
	return nil
}

func validateVoiceCardInput(in *models.VoiceCardInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.AudioURL == "" {
		return NewValidationError("audioUrl is required")
	}

	if in.AudioDuration < 0 {
		return NewValidationError("audioDuration must not be negative")
	}

	if len(in.Title) > maxTitleLength {
		return NewValidationError("Title is too long")
	}

	if len(in.Description) > maxDescriptionLength {
		return NewValidationError("Description is too long")
	}

	if in.Location != nil {
		if in.Location.City == "" || in.Location.Country == "" {
			return NewValidationError("Location needs at least a city and a country")
		}
	}

	return nil
}
