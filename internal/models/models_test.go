package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVoiceCard_AppliesDefaults(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))

	card := NewVoiceCard(VoiceCardInput{
		Author:        Author{ID: uuid.New(), Name: "alice"},
		AudioURL:      "http://blob/a.m4a",
		AudioDuration: 1500,
	}, now)

	assert.NotEqual(t, uuid.Nil, card.ID)
	assert.Equal(t, DefaultCardTitle, card.Title)
	assert.Equal(t, DefaultCardDescription, card.Description)
	assert.Equal(t, time.UTC, card.CreatedAt.Location())
	assert.False(t, card.IsReply())
}

func TestNewVoiceCard_KeepsParentAndText(t *testing.T) {
	parent := uuid.New()

	card := NewVoiceCard(VoiceCardInput{
		Title:       "hello",
		Description: "world",
		ParentID:    &parent,
	}, time.Now())

	assert.Equal(t, "hello", card.Title)
	assert.Equal(t, "world", card.Description)
	require.True(t, card.IsReply())
	assert.Equal(t, parent, *card.ParentID)
}

func TestVoiceCard_TopLevelSerializesNullParent(t *testing.T) {
	card := NewVoiceCard(VoiceCardInput{}, time.Now())

	data, err := json.Marshal(card)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	v, ok := raw["parentId"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.NotContains(t, raw, "location")
}

func TestUser_PasswordHashNotSerialized(t *testing.T) {
	data, err := json.Marshal(User{Username: "bob", PasswordHash: "secret"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
}
