package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultCardTitle       = "New Voice Card"
	DefaultCardDescription = "This is a new voice card from the voice recorder."
)

type User struct {
	AuthID       uuid.UUID `json:"authId"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Author is the snapshot of a user stored on every card at post time.
type Author struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	ZipCode string `json:"zipCode,omitempty"`
}

type VoiceCard struct {
	ID            uuid.UUID  `json:"id"`
	Author        Author     `json:"author"`
	Location      *Address   `json:"location,omitempty"`
	AudioURL      string     `json:"audioUrl"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	AudioDuration int64      `json:"audioDuration"`
	CreatedAt     time.Time  `json:"createdAt"`
	ParentID      *uuid.UUID `json:"parentId"`
}

// IsReply reports whether the card is a comment on another card.
func (c *VoiceCard) IsReply() bool {
	return c.ParentID != nil
}

// VoiceCardInput carries everything needed to create a card; the service
// assigns the id and creation time.
type VoiceCardInput struct {
	Author        Author     `json:"author"`
	Location      *Address   `json:"location,omitempty"`
	AudioURL      string     `json:"audioUrl"`
	Title         string     `json:"title,omitempty"`
	Description   string     `json:"description,omitempty"`
	AudioDuration int64      `json:"audioDuration"`
	ParentID      *uuid.UUID `json:"parentId,omitempty"`
}

// ApplyDefaults fills the title and description recorded cards get when the
// caller leaves them empty.
func (in *VoiceCardInput) ApplyDefaults() {
	if in.Title == "" {
		in.Title = DefaultCardTitle
	}
	if in.Description == "" {
		in.Description = DefaultCardDescription
	}
}

// NewVoiceCard builds the persisted card from an input.
func NewVoiceCard(in VoiceCardInput, now time.Time) *VoiceCard {
	in.ApplyDefaults()

	return &VoiceCard{
		ID:            uuid.New(),
		Author:        in.Author,
		Location:      in.Location,
		AudioURL:      in.AudioURL,
		Title:         in.Title,
		Description:   in.Description,
		AudioDuration: in.AudioDuration,
		CreatedAt:     now.UTC(),
		ParentID:      in.ParentID,
	}
}
