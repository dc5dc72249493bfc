package httpserver

import (
	"github.com/google/uuid"
	"github.com/rx3lixir/voicecards/internal/models"
)

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UpdateUserRequest changes the profile; omitted fields stay as they are
type UpdateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
}

// DeleteUserRequest confirms account deletion with the current password
type DeleteUserRequest struct {
	Password string `json:"password"`
}

type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

type UploadBlobResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type CreateVoiceCardResponse struct {
	ID        uuid.UUID         `json:"id"`
	VoiceCard *models.VoiceCard `json:"voicecard"`
}

type ListVoiceCardsResponse struct {
	VoiceCards []*models.VoiceCard `json:"voicecards"`
	Count      int                 `json:"count"`
}

const EventVoiceCardCreated = "voicecard.created"

// Event is pushed to websocket subscribers of the feed
type Event struct {
	Type      string            `json:"type"`
	VoiceCard *models.VoiceCard `json:"voicecard"`
}
