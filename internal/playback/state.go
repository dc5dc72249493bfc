package playback

import (
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/voicecards/internal/models"
)

type Status string

const (
	StatusStopped Status = "stopped"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
)

// Metadata describes the card behind the active clip, for the mini player
type Metadata struct {
	VoiceCardID uuid.UUID
	Title       string
	Description string
	Author      models.Author
}

// MetadataFor builds the playback metadata of a card
func MetadataFor(card *models.VoiceCard) Metadata {
	return Metadata{
		VoiceCardID: card.ID,
		Title:       card.Title,
		Description: card.Description,
		Author:      card.Author,
	}
}

// State is an immutable snapshot of the single playback slot.
type State struct {
	URL      string
	Status   Status
	Position time.Duration
	Duration time.Duration
	Metadata Metadata

	// Err is set when the last session ended on a playback error.
	Err error
}

func stoppedState() State {
	return State{Status: StatusStopped}
}

// IsActive reports whether url is the clip currently playing or paused.
func (s State) IsActive(url string) bool {
	return s.Status != StatusStopped && s.URL == url
}

func (s State) Playing() bool {
	return s.Status == StatusPlaying
}
